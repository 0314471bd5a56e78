package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/classifier.txt
	classifierRaw string

	//go:embed template/drafter.txt
	drafterRaw string
)

type PromptSet struct {
	Classifier string
	Drafter    string
}

// LoadPromptSet returns the embedded prompts, trimmed.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Classifier: strings.TrimSpace(classifierRaw),
		Drafter:    strings.TrimSpace(drafterRaw),
	}
}
