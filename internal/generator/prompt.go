package generator

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// DefaultPromptTemplate asks the model to answer from the retrieved contexts only
const DefaultPromptTemplate = "You are a helpful assistant. Use the context below to answer the user's question.\n\n" +
	"Context:\n{{ join \"\\n\" .Contexts }}\n\n" +
	"Question: {{ .Question }}\nAnswer:"

// PromptData is the data a prompt template is rendered with
type PromptData struct {
	Question string
	Contexts []string
	Sources  []string
}

// PromptBuilder renders prompts from a text/template with sprig functions
type PromptBuilder struct {
	tmpl *template.Template
}

// NewPromptBuilder parses text, or DefaultPromptTemplate when text is empty
func NewPromptBuilder(text string) (*PromptBuilder, error) {
	if text == "" {
		text = DefaultPromptTemplate
	}
	tmpl, err := template.New("prompt").Option("missingkey=error").Funcs(sprig.TxtFuncMap()).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}
	return &PromptBuilder{tmpl: tmpl}, nil
}

// Build renders the prompt
func (b *PromptBuilder) Build(data PromptData) (string, error) {
	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}
