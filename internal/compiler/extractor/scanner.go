package extractor

// span is a half-open byte range [start, end) of a balanced JSON value.
type span struct {
	start, end int
}

// scanBalanced scans s from start, which must hold open, and returns the index
// just past the matching close. Delimiters inside double-quoted strings are
// ignored; a backslash inside a string escapes the next byte. ok is false when
// the value never closes.
//
// Iterating bytes is safe for the ASCII delimiters because UTF-8 never uses
// ASCII bytes inside multi-byte sequences.
func scanBalanced(s string, start int, open, close byte) (end int, ok bool) {
	var depth int
	var inString, escape bool

	for i := start; i < len(s); i++ {
		b := s[i]

		if escape {
			escape = false
			continue
		}
		if inString {
			if b == '\\' {
				escape = true
			} else if b == '"' {
				inString = false
			}
			continue
		}

		switch b {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

// findTopLevel returns every balanced top-level open/close span in s. Text
// between spans is prose, so quotes there do not start strings. An unclosed
// brace that cannot open an object ("a { in prose") is skipped; one that can
// swallows the rest of the input.
func findTopLevel(s string, open, close byte) []span {
	var spans []span
	for i := 0; i < len(s); i++ {
		if s[i] != open {
			continue
		}
		end, ok := scanBalanced(s, i, open, close)
		if !ok {
			if open == '{' && !opensObject(s[i+1:]) {
				continue
			}
			break
		}
		spans = append(spans, span{start: i, end: end})
		i = end - 1
	}
	return spans
}

// opensObject reports whether rest, the text after a '{', begins like a JSON
// object body.
func opensObject(rest string) bool {
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case ' ', '\t', '\n', '\r':
			continue
		case '"', '}':
			return true
		}
		return false
	}
	return false
}
