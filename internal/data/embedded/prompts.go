// Package embedded provides access to embedded data files.
package embedded

import _ "embed"

// ActionPromptsData contains the embedded action prompt catalog YAML data.
//
//go:embed prompts/actions.yaml
var ActionPromptsData []byte
