package segmenter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/clipperhouse/uax29/sentences"
	"golang.org/x/text/language"
)

// DefaultLanguage is used when a document carries no language tag
const DefaultLanguage = "es"

// ErrInvalidLanguage is returned for tags that do not parse as BCP 47
var ErrInvalidLanguage = errors.New("invalid language tag")

var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)

// Segmenter splits raw text into sentences
type Segmenter struct {
	defaultLang string
}

// New creates a Segmenter. An empty defaultLang selects DefaultLanguage.
func New(defaultLang string) (*Segmenter, error) {
	if defaultLang == "" {
		defaultLang = DefaultLanguage
	}
	base, err := normalize(defaultLang)
	if err != nil {
		return nil, err
	}
	return &Segmenter{defaultLang: base}, nil
}

// DefaultLanguage returns the normalized fallback language
func (s *Segmenter) DefaultLanguage() string {
	return s.defaultLang
}

// Normalize reduces a language tag to its base language ("es-MX" -> "es").
// An empty tag yields the segmenter's default.
func (s *Segmenter) Normalize(lang string) (string, error) {
	if strings.TrimSpace(lang) == "" {
		return s.defaultLang, nil
	}
	return normalize(lang)
}

// Split returns the trimmed, non-empty sentences of text in order.
// Boundaries follow Unicode UAX #29, which does not depend on the language;
// lang is validated so callers can record it with the chunks.
func (s *Segmenter) Split(text, lang string) ([]string, error) {
	if _, err := s.Normalize(lang); err != nil {
		return nil, err
	}

	var out []string
	for _, para := range paragraphs(text) {
		for _, seg := range sentences.SegmentAll([]byte(para)) {
			sentence := strings.TrimSpace(string(seg))
			if sentence == "" {
				continue
			}
			out = append(out, sentence)
		}
	}
	return out, nil
}

// paragraphs splits text on blank lines and joins hard-wrapped lines, since
// UAX #29 treats every line feed as a sentence boundary
func paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := paragraphBreak.Split(text, -1)
	out := parts[:0]
	for _, p := range parts {
		if p = collapseSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalize(lang string) (string, error) {
	tag, err := language.Parse(strings.TrimSpace(lang))
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidLanguage, lang, err)
	}
	base, _ := tag.Base()
	return base.String(), nil
}

// collapseSpace trims the sentence and folds internal runs of whitespace,
// including line breaks from wrapped paragraphs, into single spaces
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
