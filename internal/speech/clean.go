// Package speech reads answers aloud through an external text-to-speech
// command after stripping markup that sounds bad when spoken.
package speech

import (
	"bytes"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

var (
	urlPattern   = regexp.MustCompile(`https?://\S+`)
	blankPattern = regexp.MustCompile(`[ \t]+`)
	linesPattern = regexp.MustCompile(`\n{2,}`)

	markdown = goldmark.New()
	strict   = bluemonday.StrictPolicy()
)

// CleanText turns a markdown answer into plain text for speech: formatting
// markers and tags are dropped, link and code text is kept, entities are
// decoded and bare URLs are replaced by the word "link".
func CleanText(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		buf.Reset()
		buf.WriteString(text)
	}

	plain := html.UnescapeString(strict.Sanitize(buf.String()))
	plain = urlPattern.ReplaceAllString(plain, "link")
	plain = blankPattern.ReplaceAllString(plain, " ")
	plain = linesPattern.ReplaceAllString(plain, "\n")

	lines := strings.Split(plain, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
