package speech

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/kballard/go-shellquote"

	"lmbuddy/internal/logger"
)

// TextPlaceholder is replaced by the text to speak in command templates.
const TextPlaceholder = "{text}"

// ErrNoCommand means no speech command is configured for this platform.
var ErrNoCommand = errors.New("no speech command configured")

// DefaultCommand returns the speech command used when none is configured.
func DefaultCommand() string {
	switch runtime.GOOS {
	case "darwin":
		return "say"
	case "linux":
		return "espeak-ng"
	default:
		return ""
	}
}

// commandContext builds commands. Tests replace it.
var commandContext = exec.CommandContext

// CommandSpeaker speaks by running an external command. Only one utterance
// plays at a time; a new one interrupts the previous.
type CommandSpeaker struct {
	command string
	log     *log.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCommandSpeaker creates a speaker. An empty command selects DefaultCommand.
func NewCommandSpeaker(command string) *CommandSpeaker {
	if strings.TrimSpace(command) == "" {
		command = DefaultCommand()
	}
	return &CommandSpeaker{command: command, log: logger.NewStyledLogger("Speech")}
}

// Name returns "speech".
func (s *CommandSpeaker) Name() string {
	return "speech"
}

// Initialize checks that the command exists. A missing command only warns.
func (s *CommandSpeaker) Initialize() error {
	argv, err := s.argv("")
	if err != nil {
		s.log.Warn("Speech disabled", "error", err)
		return nil
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		s.log.Warn("Speech command not found", "command", argv[0], "error", err)
	}
	return nil
}

// Shutdown stops any speech in progress.
func (s *CommandSpeaker) Shutdown() error {
	s.Stop()
	return nil
}

// Speak cleans text and starts speaking it in the background. Text that is
// empty after cleaning is ignored.
func (s *CommandSpeaker) Speak(text string) error {
	cleaned := CleanText(text)
	if cleaned == "" {
		s.log.Debug("Nothing to speak after cleaning")
		return nil
	}

	argv, err := s.argv(cleaned)
	if err != nil {
		return err
	}

	s.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cmd := commandContext(ctx, argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start speech command: %w", err)
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			s.log.Warn("Speech command failed", "error", err)
		}
	}()

	s.log.Debug("Speaking", "length", len(cleaned))
	return nil
}

// Stop interrupts the current utterance and waits for the command to exit.
func (s *CommandSpeaker) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Speaking reports whether an utterance is playing.
func (s *CommandSpeaker) Speaking() bool {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

func (s *CommandSpeaker) argv(text string) ([]string, error) {
	if strings.TrimSpace(s.command) == "" {
		return nil, fmt.Errorf("%w for %s", ErrNoCommand, runtime.GOOS)
	}
	words, err := shellquote.Split(s.command)
	if err != nil {
		return nil, fmt.Errorf("invalid speech command %q: %w", s.command, err)
	}
	if len(words) == 0 {
		return nil, ErrNoCommand
	}

	substituted := false
	for i, w := range words {
		if strings.Contains(w, TextPlaceholder) {
			words[i] = strings.ReplaceAll(w, TextPlaceholder, text)
			substituted = true
		}
	}
	if !substituted && text != "" {
		words = append(words, text)
	}
	return words, nil
}
