package console

import (
	"sort"
	"strings"
)

// Completer provides tab completion for slash commands and action keys.
// It implements the readline.AutoCompleter interface.
type Completer struct {
	commands []string
	actions  []string
}

// NewCompleter creates a completer for the given action keys.
func NewCompleter(actions []string) *Completer {
	commands := make([]string, 0, len(commandHelp))
	for _, c := range commandHelp {
		commands = append(commands, c.name)
	}
	sort.Strings(commands)

	keys := append([]string(nil), actions...)
	sort.Strings(keys)
	return &Completer{commands: commands, actions: keys}
}

// Do implements the readline.AutoCompleter interface.
func (c *Completer) Do(line []rune, pos int) (newLine [][]rune, offset int) {
	if pos > len(line) {
		pos = len(line)
	}
	head := string(line[:pos])
	if !strings.HasPrefix(head, "/") {
		return nil, 0
	}

	fields := strings.Fields(head)
	current := ""
	if !strings.HasSuffix(head, " ") && len(fields) > 0 {
		current = fields[len(fields)-1]
		fields = fields[:len(fields)-1]
	}

	var candidates []string
	switch {
	case len(fields) == 0:
		candidates = c.commands
	case len(fields) == 1 && fields[0] == "/action":
		candidates = c.actions
	default:
		return nil, 0
	}

	for _, candidate := range candidates {
		if strings.HasPrefix(candidate, current) {
			newLine = append(newLine, []rune(strings.TrimPrefix(candidate, current)+" "))
		}
	}
	return newLine, len([]rune(current))
}
