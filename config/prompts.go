package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PromptBundle holds the prompt templates from the YAML bundle. Callers
// read only the *System prompts; the *User templates are parsed but not
// used, as the llm package builds the user prompts itself. It is re-read
// from disk on every call so an operator can edit wording without
// restarting the service.
type PromptBundle struct {
	SummarySystem    string `yaml:"summary_system"`
	SummaryUser      string `yaml:"summary_user"`
	ProfileSystem    string `yaml:"profile_system"`
	ProfileUser      string `yaml:"profile_user"`
	SuggestionSystem string `yaml:"suggestion_system"`
	SuggestionUser   string `yaml:"suggestion_user"`
}

// LoadPromptBundle reads and parses the YAML prompt bundle at path.
func LoadPromptBundle(path string) (*PromptBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read prompt bundle %s: %w", path, err)
	}
	var bundle PromptBundle
	if err := yaml.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("config: parse prompt bundle %s: %w", path, err)
	}
	return &bundle, nil
}
