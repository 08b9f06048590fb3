// Package generator wraps the language models that write answers.
//
// Two providers:
//   - ollama: POST {base}/api/generate with stream disabled (default, qwen2.5:0.5b)
//   - openai: chat completions with the prompt as one user message
//
// Server errors are retried with exponential backoff; 4xx responses other
// than 408 and 429 fail immediately.
//
//	gen, err := generator.New(generator.Config{Provider: "ollama"})
//	pb, _ := generator.NewPromptBuilder("")
//	prompt, _ := pb.Build(generator.PromptData{Question: q, Contexts: contexts})
//	answer, err := gen.Generate(ctx, prompt)
//
// Prompt templates are text/template with the sprig function map.
package generator
