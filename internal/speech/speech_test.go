package speech

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty", input: "  ", expected: ""},
		{name: "emphasis", input: "This is **very** _important_.", expected: "This is very important."},
		{name: "link keeps text", input: "See [the docs](https://example.com/docs).", expected: "See the docs."},
		{name: "bare url", input: "Visit https://example.com/a?b=c now", expected: "Visit link now"},
		{name: "inline code", input: "Run `go test` first", expected: "Run go test first"},
		{name: "entities", input: "Fish &amp; chips", expected: "Fish & chips"},
		{name: "heading and list", input: "# Title\n\n- one\n- two", expected: "Title\none\ntwo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanText(tt.input))
		})
	}
}

func TestArgv(t *testing.T) {
	s := NewCommandSpeaker(`say -v "Anna" {text}`)
	argv, err := s.argv("hello there")
	require.NoError(t, err)
	assert.Equal(t, []string{"say", "-v", "Anna", "hello there"}, argv)

	s = NewCommandSpeaker("espeak-ng -s 180")
	argv, err = s.argv("hi")
	require.NoError(t, err)
	assert.Equal(t, []string{"espeak-ng", "-s", "180", "hi"}, argv)

	s = &CommandSpeaker{command: ""}
	_, err = s.argv("hi")
	assert.ErrorIs(t, err, ErrNoCommand)
}

func TestCommandSpeakerStop(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not available on windows")
	}
	dir := t.TempDir()
	out := filepath.Join(dir, "spoken.txt")
	script := filepath.Join(dir, "speak.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho \"$1\" > \""+out+"\"\nexec sleep 30\n"), 0o755))

	s := NewCommandSpeaker(script)
	require.NoError(t, s.Initialize())
	require.NoError(t, s.Speak("**Hello** world"))
	assert.True(t, s.Speaking())

	assert.Eventually(t, func() bool {
		data, err := os.ReadFile(out)
		return err == nil && string(data) == "Hello world\n"
	}, 5*time.Second, 20*time.Millisecond)

	start := time.Now()
	s.Stop()
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, s.Speaking())

	require.NoError(t, s.Speak("   "))
	assert.False(t, s.Speaking())
	require.NoError(t, s.Shutdown())
}
