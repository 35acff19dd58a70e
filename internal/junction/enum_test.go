package junction

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"

	"schemamap/internal/introspection"
)

func TestIsEnum(t *testing.T) {
	rules := defaultRules()
	rules.EnumMatch = regexp.MustCompile(`(?i)(status|type)$`).MatchString
	rules.EnumNameMatch = regexp.MustCompile(`(?i)^(name|label)$`).MatchString

	status := &introspection.Table{
		Schema: "shop",
		Name:   "order_status",
		Columns: []introspection.Column{
			{Name: "id", DataType: "tinyint", IsPrimaryKey: true},
			{Name: "code", DataType: "varchar"},
			{Name: "label", DataType: "varchar"},
		},
	}
	assert.True(t, rules.IsEnum(status))
	assert.Equal(t, "label", rules.EnumNameColumn(status))

	unmatched := *status
	unmatched.Name = "orders"
	assert.False(t, rules.IsEnum(&unmatched))

	stringKey := &introspection.Table{
		Name: "order_type",
		Columns: []introspection.Column{
			{Name: "code", DataType: "varchar", IsPrimaryKey: true},
			{Name: "name", DataType: "varchar"},
		},
	}
	assert.False(t, rules.IsEnum(stringKey))

	noLabel := &introspection.Table{
		Name:    "ticket_type",
		Columns: []introspection.Column{{Name: "id", DataType: "int", IsPrimaryKey: true}},
	}
	assert.False(t, rules.IsEnum(noLabel))
}

func TestEnumNameColumnFallsBackToFirstString(t *testing.T) {
	rules := defaultRules()
	table := &introspection.Table{
		Name: "priority_type",
		Columns: []introspection.Column{
			{Name: "id", DataType: "int", IsPrimaryKey: true},
			{Name: "rank", DataType: "int"},
			{Name: "title", DataType: "varchar"},
			{Name: "caption", DataType: "varchar"},
		},
	}
	assert.Equal(t, "title", rules.EnumNameColumn(table))
	assert.Equal(t, "", rules.EnumNameColumn(nil))
}
