package introspection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func studentCourseSchema() *Schema {
	return &Schema{
		Database: "school",
		Tables: []Table{
			{
				Schema:  "school",
				Name:    "Student",
				Columns: []Column{{Name: "Id", DataType: "int", IsPrimaryKey: true}},
			},
			{
				Schema:  "school",
				Name:    "Course",
				Columns: []Column{{Name: "Id", DataType: "int", IsPrimaryKey: true}},
			},
			{
				Schema: "school",
				Name:   "StudentCourse",
				Columns: []Column{
					{Name: "StudentId", DataType: "int", IsPrimaryKey: true},
					{Name: "CourseId", DataType: "int", IsPrimaryKey: true},
				},
				ForeignKeys: []ForeignKey{
					{ConstraintName: "FK_SC_Student", ColumnName: "StudentId", ReferencedTable: "Student", ReferencedColumn: "Id"},
					{ConstraintName: "FK_SC_Course", ColumnName: "CourseId", ReferencedTable: "Course", ReferencedColumn: "Id"},
					{ConstraintName: "FK_SC_Missing", ColumnName: "CourseId", ReferencedTable: "Archive", ReferencedColumn: "Id"},
				},
			},
		},
	}
}

func TestCatalog_ResolvesKeysInBothDirections(t *testing.T) {
	schema := studentCourseSchema()
	schema.Normalize()
	cat := NewCatalog(schema)

	junction := cat.Table("SCHOOL.studentcourse")
	require.NotNil(t, junction)
	student := cat.Table("school.Student")
	require.NotNil(t, student)

	keys := cat.ForeignKeys(junction)
	require.Len(t, keys, 2, "keys to tables outside the schema are skipped")
	assert.Equal(t, "FK_SC_Course", keys[0].Name)
	assert.Equal(t, "Course", keys[0].PrimaryKeyTable.Name)
	assert.Equal(t, "CourseId", keys[0].ForeignKeyColumns[0].Name)
	assert.True(t, keys[0].ForeignKeyColumns[0].IsForeignKey)

	incoming := cat.PrimaryKeys(student)
	require.Len(t, incoming, 1)
	assert.Equal(t, "FK_SC_Student", incoming[0].Name)
	assert.Same(t, junction, incoming[0].ForeignKeyTable)

	assert.Equal(t, 2, PrimaryKeyCount(junction))
	assert.Equal(t, 1, PrimaryKeyCount(student))
	assert.Len(t, cat.Tables(), 3)
}

func TestCatalog_UnnamedKeyGetsGeneratedName(t *testing.T) {
	schema := &Schema{
		Tables: []Table{
			{Name: "users", Columns: []Column{{Name: "id", IsPrimaryKey: true}}},
			{
				Name:        "posts",
				Columns:     []Column{{Name: "id", IsPrimaryKey: true}, {Name: "author_id"}},
				ForeignKeys: []ForeignKey{{ColumnName: "author_id", ReferencedTable: "users", ReferencedColumn: "id"}},
			},
		},
	}
	cat := NewCatalog(schema)

	keys := cat.ForeignKeys(cat.Table("posts"))
	require.Len(t, keys, 1)
	assert.Equal(t, "fk_posts_users_1", keys[0].Name)
}

func TestCatalog_NilSchema(t *testing.T) {
	cat := NewCatalog(nil)
	assert.Empty(t, cat.Tables())
	assert.Nil(t, cat.Table("anything"))
}
