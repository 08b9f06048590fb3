// Package rag ties ingestion, retrieval and generation together.
//
//	p, err := rag.New(ingester, searcher, gen)
//
//	_, err = p.Upload(ctx, []string{"The capital of France is Paris. France is in Europe."}, "en")
//
//	answer, err := p.Ask(ctx, "What is the capital of France?")
//	fmt.Println(answer.Text, answer.Contexts)
//
// Each question retrieves the top three chunks by vector similarity (see
// Config for the mode and k), renders them into the prompt in rank order and
// sends it to the generator. A question with no matching chunks is still
// answered, with an empty context.
package rag
