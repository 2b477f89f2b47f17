package voice

import (
	"regexp"
	"strings"
)

// languageTag matches a leading "[XX]" tag and the whitespace after it.
var languageTag = regexp.MustCompile(`^\[([A-Z]{2})\]\s*`)

// SplitLanguageTag strips a leading two-letter language tag from a
// transcript delta. lang is empty when the delta carries no tag.
func SplitLanguageTag(delta string) (lang, text string) {
	m := languageTag.FindStringSubmatchIndex(delta)
	if m == nil {
		return "", delta
	}
	return delta[m[2]:m[3]], delta[m[1]:]
}

// Transcript accumulates the current turn's input (user) and output
// (model) text, and the last detected language.
type Transcript struct {
	input    strings.Builder
	output   strings.Builder
	language string
}

// AppendInput appends a user transcript delta.
func (t *Transcript) AppendInput(delta string) {
	t.input.WriteString(t.detect(delta))
}

// AppendOutput appends a model transcript delta.
func (t *Transcript) AppendOutput(delta string) {
	t.output.WriteString(t.detect(delta))
}

func (t *Transcript) detect(delta string) string {
	lang, text := SplitLanguageTag(delta)
	if lang != "" {
		t.language = lang
	}
	return text
}

// Complete clears both accumulators at the end of a turn. The detected
// language is kept.
func (t *Transcript) Complete() {
	t.input.Reset()
	t.output.Reset()
}

// Reset clears everything, including the language.
func (t *Transcript) Reset() {
	t.Complete()
	t.language = ""
}

// Input returns the accumulated user text.
func (t *Transcript) Input() string { return t.input.String() }

// Output returns the accumulated model text.
func (t *Transcript) Output() string { return t.output.String() }

// Language returns the last detected language code.
func (t *Transcript) Language() string { return t.language }
