// Package tokenizer counts model tokens for chunk metadata.
package tokenizer
