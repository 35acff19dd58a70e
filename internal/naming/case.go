package naming

import (
	"strings"
	"unicode"
)

// splitWords breaks an identifier into words on separators, lower→upper
// transitions and the end of an acronym ("URLPath" → "URL", "Path").
func splitWords(s string) []string {
	runes := []rune(s)
	var words []string
	var current []rune

	flush := func() {
		if len(current) > 0 {
			words = append(words, string(current))
			current = current[:0]
		}
	}

	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if len(current) > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			if unicode.IsLower(prev) || unicode.IsDigit(prev) {
				flush()
			} else if unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1]) {
				flush()
			}
		}
		current = append(current, r)
	}
	flush()
	return words
}

func hasLower(s string) bool {
	for _, r := range s {
		if unicode.IsLower(r) {
			return true
		}
	}
	return false
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// toPascalCase converts snake_case, kebab-case or mixed input to PascalCase.
// Words are only lowered when the whole input is upper case, so applying it
// twice gives the same result.
// Example: "ORDER_ID" -> "OrderId", "customer_ID" -> "CustomerID"
func toPascalCase(s string) string {
	lower := !hasLower(s)
	var b strings.Builder
	for _, word := range splitWords(s) {
		if lower {
			word = strings.ToLower(word)
		}
		b.WriteString(upperFirst(word))
	}
	return b.String()
}

// toCamelCase converts input to camelCase.
// Example: "CustomerID" -> "customerID", "order_line" -> "orderLine"
func toCamelCase(s string) string {
	lower := !hasLower(s)
	var b strings.Builder
	for i, word := range splitWords(s) {
		if i == 0 {
			b.WriteString(strings.ToLower(word))
			continue
		}
		if lower {
			word = strings.ToLower(word)
		}
		b.WriteString(upperFirst(word))
	}
	return b.String()
}
