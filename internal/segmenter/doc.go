// Package segmenter turns raw document text into an ordered list of sentences.
//
// Sentence boundaries come from the Unicode text segmentation rules (UAX #29).
// Language tags are validated and reduced to their base language so that chunks
// carry a consistent "language" metadata value.
package segmenter
