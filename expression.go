package licensescan

import (
	"strings"
	"unicode"
)

// expressionOperators are the literal SPDX combinators this tool understands.
// Splitting is case-sensitive and requires the surrounding spaces, matching
// how registries serialize expressions ("MIT OR Apache-2.0").
var expressionOperators = []string{" AND ", " OR ", " WITH "}

// ParseExpression splits a compound SPDX-style license expression into its
// component identifiers, in order of appearance. Parentheses are stripped but
// grouping is not honored: "(MIT OR Apache-2.0) AND BSD" flattens to all three
// identifiers, which is sufficient for fetching license texts. If no fragment
// survives validation the whole trimmed expression is returned as a single
// identifier, so a caller always has something to look up. An empty or
// blank expression yields nil.
func ParseExpression(expression string) []string {
	trimmed := strings.TrimSpace(expression)
	if trimmed == "" {
		return nil
	}

	fragments := []string{trimmed}
	for _, op := range expressionOperators {
		var next []string
		for _, f := range fragments {
			next = append(next, strings.Split(f, op)...)
		}
		fragments = next
	}

	var identifiers []string
	for _, f := range fragments {
		id := strings.TrimSpace(strings.Trim(strings.TrimSpace(f), "()"))
		if validLicenseIdentifier(id) {
			identifiers = append(identifiers, id)
		}
	}
	if len(identifiers) == 0 {
		return []string{trimmed}
	}
	return identifiers
}

func validLicenseIdentifier(id string) bool {
	if id == "" {
		return false
	}
	if strings.ContainsAny(id, "()") {
		return false
	}
	for _, op := range expressionOperators {
		if strings.Contains(id, op) {
			return false
		}
	}
	for _, r := range id {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
