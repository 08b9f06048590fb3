// Package evaluation runs a question set through the RAG pipeline and records
// what it answered, for scoring with external RAG metric tools.
//
// Input is JSONL, one question per line:
//
//	{"question": "¿Cuál es la capital oficial de Bolivia?", "reference": "Sucre."}
//
// Output is JSONL with the columns user_input, response, retrieved_contexts,
// reference, latency_ms and, for failed questions, error.
//
//	items, _ := evaluation.LoadDataset("qa.jsonl")
//	report, err := evaluation.NewRunner(pipeline, evaluation.Config{Workers: 4}, log).Run(ctx, items)
//	_ = evaluation.SaveRecords("results.jsonl", report.Records)
package evaluation
