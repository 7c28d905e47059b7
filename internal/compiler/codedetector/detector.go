// Package codedetector flags source code embedded in decoded JSON artifacts.
package codedetector

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	// MinLength is the shortest string that is ever scored.
	MinLength = 20
	// Threshold is the score at which a string counts as code.
	Threshold = 0.6
)

// Scores are kept in tenths so threshold comparisons are exact.
const (
	fenceScore      = 10
	multiLangScore  = 9
	singleLangScore = 5
	bonusScore      = 1
	denseScore      = 5
	sparseScore     = 3
	thresholdScore  = 6
)

// Finding locates the first string that looks like code.
type Finding struct {
	Location string
	Snippet  string
	Score    float64
}

// ContainsCode walks v depth-first and returns the first string leaf scoring
// at or above Threshold. Map keys are visited in sorted order.
func ContainsCode(v interface{}) (Finding, bool) {
	return walk(v, "")
}

func walk(v interface{}, path string) (Finding, bool) {
	switch val := v.(type) {
	case string:
		if tenths := score(val); tenths >= thresholdScore {
			loc := path
			if loc == "" {
				loc = "$"
			}
			return Finding{Location: loc, Snippet: val, Score: float64(tenths) / 10}, true
		}
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := k
			if path != "" {
				child = path + "." + k
			}
			if f, ok := walk(val[k], child); ok {
				return f, true
			}
		}
	case []interface{}:
		for i, item := range val {
			if f, ok := walk(item, fmt.Sprintf("%s[%d]", path, i)); ok {
				return f, true
			}
		}
	}
	return Finding{}, false
}

// Score returns the code likelihood of s in [0, 1].
func Score(s string) float64 {
	return float64(score(s)) / 10
}

// IsCode reports whether s scores at or above Threshold.
func IsCode(s string) bool {
	return score(s) >= thresholdScore
}

func score(s string) int {
	if utf8.RuneCountInString(s) < MinLength {
		return 0
	}
	if strings.Contains(s, "```") {
		return fenceScore
	}

	matches := 0
	for _, sig := range signatures {
		if sig.re.MatchString(s) {
			matches++
		}
	}

	switch {
	case matches >= 2:
		return multiLangScore
	case matches == 1:
		tenths := singleLangScore
		if indentedLineRe.MatchString(s) {
			tenths += bonusScore
		}
		if trailingSemiRe.MatchString(s) {
			tenths += bonusScore
		}
		if strings.Contains(s, "{") && strings.Contains(s, "}") {
			tenths += bonusScore
		}
		if callSyntaxRe.MatchString(s) {
			tenths += bonusScore
		}
		if tenths > fenceScore {
			tenths = fenceScore
		}
		return tenths
	}

	d := density(s)
	switch {
	case d > 0.08:
		return denseScore
	case d > 0.05:
		return sparseScore
	}
	return 0
}

func density(s string) float64 {
	total, hits := 0, 0
	for _, r := range s {
		total++
		if strings.ContainsRune(syntaxChars, r) {
			hits++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
