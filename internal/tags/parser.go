package tags

import (
	"regexp"
	"strings"
)

// MaxTagsPerInput caps how many @references one input may carry.
// Additional tokens are dropped, not an error; callers log the
// truncation.
const MaxTagsPerInput = 5

var tokenPattern = regexp.MustCompile(`@[A-Za-z0-9]+`)

// Token is one @reference found in the input text
type Token struct {
	// Raw is the token as written, including the leading '@'
	Raw string `json:"raw"`
	// Normalized is the lower-cased reference with non-alphanumeric
	// characters stripped; resolution matches on this form
	Normalized string `json:"normalized"`
	// Start and End are byte offsets of the token in the original text
	Start int `json:"start"`
	End   int `json:"end"`
}

// ParseResult is the outcome of scanning one input
type ParseResult struct {
	// Tokens in order of appearance, capped at MaxTagsPerInput
	Tokens []Token `json:"tokens"`
	// Dropped counts tokens beyond the cap
	Dropped int `json:"dropped"`
	// Stripped is the input with every matched token removed
	Stripped string `json:"stripped"`
}

// Truncated reports whether tokens were dropped at the cap
func (r ParseResult) Truncated() bool { return r.Dropped > 0 }

// Normalize lower-cases a reference and strips non-alphanumeric runes.
// Applied identically to tag tokens and candidate display names so
// matching is case- and punctuation-insensitive.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Parse scans text for @reference tokens. The input is never mutated;
// identical input always yields identical output.
func Parse(text string) ParseResult {
	matches := tokenPattern.FindAllStringIndex(text, -1)

	result := ParseResult{Stripped: stripTokens(text, matches)}
	for i, m := range matches {
		if i >= MaxTagsPerInput {
			result.Dropped = len(matches) - MaxTagsPerInput
			break
		}
		raw := text[m[0]:m[1]]
		result.Tokens = append(result.Tokens, Token{
			Raw:        raw,
			Normalized: Normalize(raw[1:]),
			Start:      m[0],
			End:        m[1],
		})
	}
	return result
}

// Unique returns the tokens deduplicated by normalized form, keeping the
// first occurrence of each.
func (r ParseResult) Unique() []Token {
	seen := make(map[string]bool, len(r.Tokens))
	out := make([]Token, 0, len(r.Tokens))
	for _, t := range r.Tokens {
		if seen[t.Normalized] {
			continue
		}
		seen[t.Normalized] = true
		out = append(out, t)
	}
	return out
}

// stripTokens removes every matched token and collapses the whitespace
// runs left behind.
func stripTokens(text string, matches [][]int) string {
	if len(matches) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	prev := 0
	for _, m := range matches {
		b.WriteString(text[prev:m[0]])
		prev = m[1]
	}
	b.WriteString(text[prev:])
	return strings.Join(strings.Fields(b.String()), " ")
}
