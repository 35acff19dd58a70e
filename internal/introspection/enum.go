package introspection

import (
	"fmt"
	"strings"
)

// parseEnumValues reads the member list of a MySQL enum(...) or set(...)
// column type so mapped properties can carry their allowed values.
func parseEnumValues(columnType string) ([]string, error) {
	trimmed := strings.TrimSpace(columnType)
	lower := strings.ToLower(trimmed)

	var kind string
	switch {
	case strings.HasPrefix(lower, "enum("):
		kind = "enum"
	case strings.HasPrefix(lower, "set("):
		kind = "set"
	default:
		return nil, fmt.Errorf("not an enum or set type: %q", columnType)
	}
	if !strings.HasSuffix(trimmed, ")") || len(trimmed) <= len(kind)+1 {
		return nil, fmt.Errorf("invalid %s definition", kind)
	}

	values, err := scanQuotedList(trimmed[len(kind)+1 : len(trimmed)-1])
	if err != nil {
		return nil, fmt.Errorf("invalid %s definition: %w", kind, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("no member values parsed")
	}
	return values, nil
}

// scanQuotedList splits a comma separated list of single-quoted literals.
// A quote inside a literal is escaped either by doubling it or with a
// backslash.
func scanQuotedList(s string) ([]string, error) {
	values := []string{}
	pos := 0
	skipSpace := func() {
		for pos < len(s) && s[pos] == ' ' {
			pos++
		}
	}

	for {
		skipSpace()
		if pos == len(s) {
			return values, nil
		}
		if s[pos] != '\'' {
			return nil, fmt.Errorf("expected quote at position %d", pos)
		}
		pos++

		var sb strings.Builder
		closed := false
		for pos < len(s) && !closed {
			switch ch := s[pos]; {
			case ch == '\\' && pos+1 < len(s):
				sb.WriteByte(s[pos+1])
				pos += 2
			case ch == '\\':
				return nil, fmt.Errorf("unterminated escape")
			case ch == '\'' && pos+1 < len(s) && s[pos+1] == '\'':
				sb.WriteByte('\'')
				pos += 2
			case ch == '\'':
				closed = true
				pos++
			default:
				sb.WriteByte(ch)
				pos++
			}
		}
		if !closed {
			return nil, fmt.Errorf("unterminated literal")
		}
		values = append(values, sb.String())

		skipSpace()
		if pos < len(s) {
			if s[pos] != ',' {
				return nil, fmt.Errorf("expected comma at position %d", pos)
			}
			pos++
		}
	}
}
