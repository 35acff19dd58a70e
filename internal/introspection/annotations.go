package introspection

import (
	"regexp"
	"strings"
)

// Comment annotations let a schema declare extended properties where the
// database has no native facility for them:
//
//	COMMENT 'Customer orders @CS_Alias=Purchase @CS_ManyToMany=false'
//	COMMENT 'Display label @CS_Description="Shown in pickers"'
//
// A bare @key is recorded as "true".
var annotationPattern = regexp.MustCompile(`@([A-Za-z_][A-Za-z0-9_.]*)(?:=(?:"([^"]*)"|(\S+)))?`)

// ParseAnnotations extracts @key[=value] annotations from a comment and
// returns them along with the remaining description text.
func ParseAnnotations(comment string) (ExtendedProperties, string) {
	matches := annotationPattern.FindAllStringSubmatchIndex(comment, -1)
	if len(matches) == 0 {
		return nil, strings.TrimSpace(comment)
	}

	props := make(ExtendedProperties, len(matches))
	var rest strings.Builder
	last := 0
	for _, m := range matches {
		// Ignore e-mail like text such as "ops@example.com".
		if m[0] > 0 && !isSpace(comment[m[0]-1]) {
			continue
		}
		key := comment[m[2]:m[3]]
		value := "true"
		switch {
		case m[4] >= 0:
			value = comment[m[4]:m[5]]
		case m[6] >= 0:
			value = comment[m[6]:m[7]]
		}
		props[key] = value
		rest.WriteString(comment[last:m[0]])
		last = m[1]
	}
	rest.WriteString(comment[last:])

	if len(props) == 0 {
		return nil, strings.TrimSpace(comment)
	}
	return props, strings.Join(strings.Fields(rest.String()), " ")
}

// Description returns a comment with its annotations removed.
func Description(comment string) string {
	_, desc := ParseAnnotations(comment)
	return desc
}

// mergeAnnotations folds comment annotations into existing properties.
// Explicitly set properties take precedence.
func mergeAnnotations(existing ExtendedProperties, comment string) ExtendedProperties {
	parsed, _ := ParseAnnotations(comment)
	if len(parsed) == 0 {
		return existing
	}
	out := existing.Clone()
	for k, v := range parsed {
		if !out.Has(k) {
			out[k] = v
		}
	}
	return out
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
