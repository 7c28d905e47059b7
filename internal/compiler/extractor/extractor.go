// Package extractor isolates the single JSON document in a raw model response.
package extractor

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode"

	"artifact-compiler/internal/common/errors"
)

const (
	// DefaultExplanatoryThreshold is the residual length at which text around
	// the JSON candidate counts as explanatory prose.
	DefaultExplanatoryThreshold = 20

	maxSnippet = 100
)

var (
	fenceBlockRe  = regexp.MustCompile("(?s)```(?:json|JSON)?[ \t]*\r?\n?(.*?)```")
	fenceMarkerRe = regexp.MustCompile("```[A-Za-z]*")
)

// Options tunes extraction.
type Options struct {
	// AllowArray accepts a top-level JSON array as the candidate.
	AllowArray bool
	// ExplanatoryThreshold overrides DefaultExplanatoryThreshold when > 0.
	ExplanatoryThreshold int
}

// Extractor returns exactly one JSON candidate from raw model text.
type Extractor struct {
	opts Options
}

func New(opts Options) *Extractor {
	if opts.ExplanatoryThreshold <= 0 {
		opts.ExplanatoryThreshold = DefaultExplanatoryThreshold
	}
	return &Extractor{opts: opts}
}

var defaultExtractor = New(Options{})

// Extract runs the default extractor, which accepts objects only.
func Extract(raw string) (string, error) {
	return defaultExtractor.Extract(raw)
}

// Extract returns the candidate substring verbatim. Failures are
// *errors.CompilerError values of an extraction kind.
func (x *Extractor) Extract(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", errors.NewEmptyResponseError()
	}

	cand, outside, err := x.locate(text)
	if err != nil {
		return "", err
	}

	before := fenceMarkerRe.ReplaceAllString(text[:outside.start], "")
	after := fenceMarkerRe.ReplaceAllString(text[outside.end:], "")
	if snippet, ok := x.explanatory(before, after); ok {
		return "", errors.NewExplanatoryTextError(snippet)
	}

	if !json.Valid([]byte(cand)) {
		var v interface{}
		return "", errors.NewInvalidJSONError(json.Unmarshal([]byte(cand), &v))
	}
	return cand, nil
}

// locate finds the candidate and the span of text it occupies, which for a
// fenced candidate includes the fence itself.
func (x *Extractor) locate(text string) (string, span, error) {
	fences := fenceBlockRe.FindAllStringSubmatchIndex(text, -1)
	if len(fences) > 1 {
		return "", span{}, errors.NewMultipleArtifactsError(len(fences))
	}
	if len(fences) == 1 {
		m := fences[0]
		content := text[m[2]:m[3]]
		if c, ok := x.fromFence(content); ok {
			return c, span{start: m[0], end: m[1]}, nil
		} else if c != "" {
			return "", span{}, errors.NewMultipleArtifactsError(2)
		}
	}

	if x.opensValue(text[0]) {
		open, close := delimiters(text[0])
		if end, ok := scanBalanced(text, 0, open, close); ok {
			rest := strings.TrimLeftFunc(text[end:], unicode.IsSpace)
			if rest != "" && rest[0] == open {
				return "", span{}, errors.NewMultipleArtifactsError(2)
			}
			return text[:end], span{start: 0, end: end}, nil
		}
	}

	spans := findTopLevel(text, '{', '}')
	if len(spans) > 1 {
		// braces in prose ("use {curly} braces") are not artifacts
		if valid := validSpans(text, spans); len(valid) > 0 {
			spans = valid
		}
	}
	switch {
	case len(spans) == 0:
		return "", span{}, errors.NewNoJSONFoundError()
	case len(spans) > 1:
		return "", span{}, errors.NewMultipleArtifactsError(len(spans))
	}
	s := spans[0]
	return text[s.start:s.end], s, nil
}

func validSpans(text string, spans []span) []span {
	var valid []span
	for _, s := range spans {
		if json.Valid([]byte(text[s.start:s.end])) {
			valid = append(valid, s)
		}
	}
	return valid
}

// fromFence returns the fenced candidate. A non-empty candidate with ok=false
// means the fence held more than one value.
func (x *Extractor) fromFence(content string) (string, bool) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" || !x.opensValue(trimmed[0]) {
		return "", false
	}
	open, close := delimiters(trimmed[0])
	end, ok := scanBalanced(trimmed, 0, open, close)
	if !ok {
		// unbalanced content is still the candidate; decoding reports it
		return trimmed, true
	}
	rest := strings.TrimLeftFunc(trimmed[end:], unicode.IsSpace)
	if rest != "" && rest[0] == open {
		return trimmed, false
	}
	return trimmed, true
}

func (x *Extractor) opensValue(b byte) bool {
	return b == '{' || (x.opts.AllowArray && b == '[')
}

func delimiters(open byte) (byte, byte) {
	if open == '[' {
		return '[', ']'
	}
	return '{', '}'
}

// explanatory measures the residual around the candidate. Whitespace runs count
// as a single character. The snippet prefers the text nearest the candidate.
func (x *Extractor) explanatory(before, after string) (string, bool) {
	residual := collapseSpace(before) + collapseSpace(after)
	if len([]rune(residual)) < x.opts.ExplanatoryThreshold {
		return "", false
	}
	if strings.IndexFunc(residual, unicode.IsLetter) < 0 {
		return "", false
	}

	if b := strings.TrimSpace(before); b != "" {
		r := []rune(b)
		if len(r) > maxSnippet {
			r = r[len(r)-maxSnippet:]
		}
		return strings.TrimSpace(string(r)), true
	}
	r := []rune(strings.TrimSpace(after))
	if len(r) > maxSnippet {
		r = r[:maxSnippet]
	}
	return strings.TrimSpace(string(r)), true
}

func collapseSpace(s string) string {
	var b strings.Builder
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !space {
				b.WriteByte(' ')
			}
			space = true
			continue
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}
