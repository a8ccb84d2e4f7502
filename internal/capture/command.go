package capture

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/kballard/go-shellquote"
)

// FilePlaceholder is replaced by the path of the image file in command templates.
const FilePlaceholder = "{file}"

// commandContext builds commands. Tests replace it.
var commandContext = exec.CommandContext

// splitCommand parses a command template with shell quoting rules and
// substitutes the file placeholder. A template without placeholder gets the
// file appended as the last argument.
func splitCommand(template, file string) ([]string, error) {
	words, err := shellquote.Split(template)
	if err != nil {
		return nil, fmt.Errorf("invalid command %q: %w", template, err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	substituted := false
	for i, w := range words {
		if strings.Contains(w, FilePlaceholder) {
			words[i] = strings.ReplaceAll(w, FilePlaceholder, file)
			substituted = true
		}
	}
	if !substituted && file != "" {
		words = append(words, file)
	}
	return words, nil
}

// run executes argv and returns its standard output. Standard error is folded
// into the returned error.
func run(ctx context.Context, argv []string) ([]byte, error) {
	cmd := commandContext(ctx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", argv[0], err, msg)
		}
		return nil, fmt.Errorf("%s: %w", argv[0], err)
	}
	return stdout.Bytes(), nil
}
