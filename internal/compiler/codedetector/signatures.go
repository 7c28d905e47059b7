package codedetector

import "regexp"

// signature is one language construct that rarely appears in prose.
type signature struct {
	lang string
	re   *regexp.Regexp
}

var signatures = []signature{
	// Python
	{"python", regexp.MustCompile(`(?m)^\s*def\s+\w+\s*\(`)},
	{"python", regexp.MustCompile(`(?m)^\s*class\s+\w+\s*(\([^)]*\))?\s*:`)},
	{"python", regexp.MustCompile(`(?m)^\s*(import\s+\w+|from\s+[\w.]+\s+import\s+\w+)`)},
	{"python", regexp.MustCompile(`(?m)^\s*async\s+def\s+\w+`)},
	{"python", regexp.MustCompile(`(?m)^\s*@\w+(\.\w+)*(\([^)]*\))?\s*$`)},

	// JavaScript / TypeScript
	{"javascript", regexp.MustCompile(`\bfunction\s*\w*\s*\([^)]*\)\s*\{`)},
	{"javascript", regexp.MustCompile(`\([^)]*\)\s*=>\s*[{(\w]`)},
	{"javascript", regexp.MustCompile(`(?m)^\s*export\s+(default\s+)?(function|class|const|let|interface|type)\b`)},
	{"javascript", regexp.MustCompile(`(?m)^\s*import\s+.+\s+from\s+['"]`)},
	{"javascript", regexp.MustCompile(`(?m)^\s*(const|let|var)\s+\w+\s*=`)},

	// Rust
	{"rust", regexp.MustCompile(`(?m)^\s*(pub\s+)?fn\s+\w+\s*[<(]`)},
	{"rust", regexp.MustCompile(`(?m)^\s*impl\b[^{\n]*\{`)},
	{"rust", regexp.MustCompile(`(?m)^\s*(pub\s+)?struct\s+\w+\s*[{(<;]`)},
	{"rust", regexp.MustCompile(`(?m)^\s*(pub\s+)?enum\s+\w+\s*\{`)},
	{"rust", regexp.MustCompile(`(?m)^\s*(pub\s+)?mod\s+\w+\s*[{;]`)},
	{"rust", regexp.MustCompile(`(?m)^\s*use\s+\w+(::[\w{}*, ]+)+;`)},

	// Go
	{"go", regexp.MustCompile(`(?m)^\s*func\s+(\(\w+\s+\*?\w+\)\s*)?\w+\s*\(`)},
	{"go", regexp.MustCompile(`(?m)^\s*package\s+\w+\s*$`)},
	{"go", regexp.MustCompile(`(?m)^\s*type\s+\w+\s+(struct|interface)\s*\{`)},

	// Java / Kotlin
	{"java", regexp.MustCompile(`(?m)^\s*(public|private|protected)\s+(static\s+)?(final\s+)?(abstract\s+)?(class|interface|enum|void|int|long|boolean|String|[A-Z]\w*(<[^>]*>)?)\s+\w+`)},
	{"kotlin", regexp.MustCompile(`(?m)^\s*(fun\s+\w+\s*\(|(data\s+)?class\s+\w+\s*\(|(val|var)\s+\w+\s*(:\s*\w+)?\s*=)`)},
}

var (
	indentedLineRe = regexp.MustCompile(`(?m)^\s{2,}\w`)
	trailingSemiRe = regexp.MustCompile(`(?m);\s*$`)
	callSyntaxRe   = regexp.MustCompile(`\b\w+\([^)]*\)`)
)

const syntaxChars = "{}[]();=<>+-*/&|^~!"
