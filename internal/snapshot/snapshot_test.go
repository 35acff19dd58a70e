package snapshot

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemamap/internal/introspection"
	"schemamap/internal/mapping"
)

func shopSchema() *introspection.Schema {
	s := &introspection.Schema{
		Database: "shop",
		Dialect:  "mysql",
		Tables: []introspection.Table{
			{
				Name: "customers",
				Columns: []introspection.Column{
					{Name: "id", DataType: "int", IsPrimaryKey: true, IsAutoIncrement: true},
					{Name: "name", DataType: "varchar", ColumnType: "varchar(100)"},
				},
				Indexes: []introspection.Index{{Name: "PRIMARY", Unique: true, Primary: true, Columns: []string{"id"}}},
			},
			{
				Name: "orders",
				Columns: []introspection.Column{
					{Name: "id", DataType: "int", IsPrimaryKey: true, IsAutoIncrement: true},
					{Name: "customer_id", DataType: "int"},
					{Name: "total", DataType: "decimal", Precision: 10, Scale: 2, HasDefault: true, ColumnDefault: "0.00"},
				},
				ForeignKeys: []introspection.ForeignKey{
					{ColumnName: "customer_id", ReferencedTable: "customers", ReferencedColumn: "id", ConstraintName: "fk_orders_customer"},
				},
				Indexes: []introspection.Index{{Name: "PRIMARY", Unique: true, Primary: true, Columns: []string{"id"}}},
			},
		},
	}
	s.Normalize()
	return s
}

func entityNames(t *testing.T, schema *introspection.Schema) []string {
	t.Helper()
	mc, err := mapping.NewContext(mapping.DefaultConfig(), nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	m := mapping.NewManager(mc)
	require.NoError(t, m.Load(context.Background(), mapping.NewSchemaProvider(schema)))

	var names []string
	for _, e := range m.Entities() {
		names = append(names, e.Name)
		for _, a := range e.Associations() {
			names = append(names, e.Name+"."+a.Name)
		}
	}
	return names
}

func TestSnapshotRoundTripResolvesTheSameModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "schema.yaml")
	original := shopSchema()

	require.NoError(t, WriteFile(path, original, "abc123"))

	loaded, err := ReadFile(path)
	require.NoError(t, err)

	if diff := cmp.Diff(original, loaded, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("schema changed across snapshot (-want +got):\n%s", diff)
	}
	assert.Equal(t, entityNames(t, original), entityNames(t, loaded))
	assert.Contains(t, entityNames(t, loaded), "Customer.Orders")
}

func TestEncodeWritesVersionAndFingerprint(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, shopSchema(), "fp-1"))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "version: 1\n"), out)
	assert.Contains(t, out, "fingerprint: fp-1")
	assert.Contains(t, out, "ref_table: customers")
}

func TestDecodeHandWrittenSnapshot(t *testing.T) {
	doc := `
tables:
  - name: widgets
    columns:
      - name: id
        data_type: int
        primary_key: true
      - name: label
        data_type: varchar
        nullable: true
`
	schema, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, schema.Tables, 1)
	assert.True(t, schema.Tables[0].HasPrimaryKey())
	assert.True(t, schema.Tables[0].Columns[1].IsNullable)
}

func TestDecodeRejectsUnknownFieldsAndNewerVersions(t *testing.T) {
	_, err := Decode(strings.NewReader("tables: []\ncolour: blue\n"))
	assert.Error(t, err)

	_, err = Decode(strings.NewReader("version: 99\ntables: []\n"))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestDecodeEmptyInput(t *testing.T) {
	schema, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.True(t, schema.IsEmpty())
}

func TestFileFingerprintTracksContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, WriteFile(path, shopSchema(), ""))

	first, err := FileFingerprint(path)
	require.NoError(t, err)
	again, err := FileFingerprint(path)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	changed := shopSchema()
	changed.Tables = changed.Tables[:1]
	require.NoError(t, WriteFile(path, changed, ""))
	updated, err := FileFingerprint(path)
	require.NoError(t, err)
	assert.NotEqual(t, first, updated)
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func openTestCache(t *testing.T, maxEntries int) *Cache {
	t.Helper()
	c, err := OpenCache(CacheOptions{Path: filepath.Join(t.TempDir(), "cache", "schemas.db"), MaxEntries: maxEntries})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCacheHitAndMiss(t *testing.T) {
	c := openTestCache(t, 0)

	_, ok, err := c.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	schema := shopSchema()
	require.NoError(t, c.Put("fp-1", schema))

	got, ok, err := c.Get("fp-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entityNames(t, schema), entityNames(t, got))
	assert.Equal(t, "shop", got.Database)
	assert.Equal(t, "customer_id", got.Tables[1].ForeignKeys[0].ColumnName)
}

func TestCacheEvictsOldestEntries(t *testing.T) {
	c := openTestCache(t, 2)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	for _, fp := range []string{"a", "b", "c"} {
		require.NoError(t, c.Put(fp, shopSchema()))
	}

	n, err := c.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, ok, err := c.Get("a")
	require.NoError(t, err)
	assert.False(t, ok, "oldest entry is evicted")
	_, ok, err = c.Get("c")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCacheRejectsEmptyInput(t *testing.T) {
	c := openTestCache(t, 0)
	assert.Error(t, c.Put("", shopSchema()))
	assert.Error(t, c.Put("fp", nil))

	_, ok, err := c.Get("")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenCacheRequiresPath(t *testing.T) {
	_, err := OpenCache(CacheOptions{})
	assert.Error(t, err)
}
