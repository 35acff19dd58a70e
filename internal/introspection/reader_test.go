package introspection

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var columnHeader = []string{
	"COLUMN_NAME", "DATA_TYPE", "COLUMN_TYPE", "COLUMN_COMMENT", "IS_NULLABLE",
	"COLUMN_DEFAULT", "EXTRA", "CHARACTER_MAXIMUM_LENGTH", "NUMERIC_PRECISION", "NUMERIC_SCALE",
}

var (
	fkHeader    = []string{"COLUMN_NAME", "REFERENCED_TABLE_SCHEMA", "REFERENCED_TABLE_NAME", "REFERENCED_COLUMN_NAME", "CONSTRAINT_NAME", "ORDINAL_POSITION"}
	indexHeader = []string{"INDEX_NAME", "NON_UNIQUE", "SEQ_IN_INDEX", "COLUMN_NAME", "INDEX_TYPE"}
	paramHeader = []string{"PARAMETER_NAME", "PARAMETER_MODE", "DATA_TYPE", "DTD_IDENTIFIER", "ORDINAL_POSITION", "CHARACTER_MAXIMUM_LENGTH", "NUMERIC_PRECISION", "NUMERIC_SCALE"}
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestReader(t *testing.T, cfg ReaderConfig) (*Reader, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	if cfg.Database == "" {
		cfg.Database = "shop"
	}
	cfg.Concurrency = 1
	cfg.Logger = testLogger()
	reader, err := NewReader(db, cfg)
	require.NoError(t, err)
	return reader, mock
}

func expectShopTables(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.TABLES").
		WithArgs("shop", "BASE TABLE", "VIEW").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "TABLE_TYPE", "TABLE_COMMENT"}).
			AddRow("customers", "BASE TABLE", "").
			AddRow("order_summary", "VIEW", "VIEW").
			AddRow("orders", "BASE TABLE", "Customer orders @CS_Alias=Purchase"))

	// customers
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.COLUMNS").
		WithArgs("customers", "shop").
		WillReturnRows(sqlmock.NewRows(columnHeader).
			AddRow("id", "int", "int", "", "NO", nil, "auto_increment", nil, 10, 0).
			AddRow("email", "varchar", "varchar(255)", "Contact address @CS_IsReadOnly", "NO", nil, "", 255, nil, nil).
			AddRow("status", "enum", "enum('active','closed')", "", "NO", "'active'", "", 6, nil, nil).
			AddRow("updated_at", "timestamp", "timestamp", "", "NO", "CURRENT_TIMESTAMP", "DEFAULT_GENERATED on update CURRENT_TIMESTAMP", nil, nil, nil))
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE").
		WithArgs("PRIMARY", "customers", "shop").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("id"))
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE").
		WithArgs("customers", "shop").
		WillReturnRows(sqlmock.NewRows(fkHeader))
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.STATISTICS").
		WithArgs("customers", "shop").
		WillReturnRows(sqlmock.NewRows(indexHeader).
			AddRow("PRIMARY", 0, 1, "id", "BTREE").
			AddRow("ux_customers_email", 0, 1, "email", "BTREE"))

	// orders
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.COLUMNS").
		WithArgs("orders", "shop").
		WillReturnRows(sqlmock.NewRows(columnHeader).
			AddRow("id", "int", "int", "", "NO", nil, "auto_increment", nil, 10, 0).
			AddRow("customer_id", "int", "int", "", "NO", nil, "", nil, 10, 0).
			AddRow("total", "decimal", "decimal(10,2)", "", "YES", nil, "", nil, 10, 2))
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE").
		WithArgs("PRIMARY", "orders", "shop").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("id"))
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE").
		WithArgs("orders", "shop").
		WillReturnRows(sqlmock.NewRows(fkHeader).
			AddRow("customer_id", "shop", "customers", "id", "fk_orders_customer", 1))
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.STATISTICS").
		WithArgs("orders", "shop").
		WillReturnRows(sqlmock.NewRows(indexHeader).
			AddRow("PRIMARY", 0, 1, "id", "BTREE").
			AddRow("ix_orders_customer", 1, 1, "customer_id", "BTREE"))

	// order_summary view
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.COLUMNS").
		WithArgs("order_summary", "shop").
		WillReturnRows(sqlmock.NewRows(columnHeader).
			AddRow("customer_id", "int", "int", "", "NO", nil, "", nil, 10, 0).
			AddRow("order_count", "bigint", "bigint", "", "NO", "0", "", nil, 19, 0))
}

func TestReaderLoad_TablesViewsAndRoutines(t *testing.T) {
	reader, mock := newTestReader(t, ReaderConfig{})
	expectShopTables(mock)

	mock.ExpectQuery("FROM INFORMATION_SCHEMA.ROUTINES").
		WithArgs("shop").
		WillReturnRows(sqlmock.NewRows([]string{"SPECIFIC_NAME", "ROUTINE_NAME", "ROUTINE_TYPE", "DATA_TYPE", "ROUTINE_COMMENT"}).
			AddRow("get_orders", "get_orders", "PROCEDURE", nil, "").
			AddRow("order_total", "order_total", "FUNCTION", "decimal", "Sum of lines"))
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.PARAMETERS").
		WithArgs("get_orders", "shop").
		WillReturnRows(sqlmock.NewRows(paramHeader).
			AddRow("p_customer_id", "IN", "int", "int", 1, nil, 10, 0).
			AddRow("p_count", "OUT", "int", "int", 2, nil, 10, 0))
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.PARAMETERS").
		WithArgs("order_total", "shop").
		WillReturnRows(sqlmock.NewRows(paramHeader).
			AddRow("", "", "decimal", "decimal(10,2)", 0, nil, 10, 2).
			AddRow("p_order_id", "IN", "int", "int", 1, nil, 10, 0))

	schema, err := reader.Load(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, "mysql", schema.Dialect)
	require.Len(t, schema.Tables, 2)
	require.Len(t, schema.Views, 1)
	require.Len(t, schema.Commands, 2)

	customers := schema.Tables[0]
	assert.Equal(t, "shop.customers", customers.FullName())
	id := customers.Column("id")
	require.NotNil(t, id)
	assert.True(t, id.IsPrimaryKey)
	assert.True(t, id.IsAutoIncrement)
	assert.Equal(t, 10, id.Precision)

	email := customers.Column("email")
	require.NotNil(t, email)
	assert.True(t, email.IsUnique)
	assert.True(t, email.ExtendedProperties.IsTrue("CS_IsReadOnly"))
	assert.Equal(t, 255, email.Size)

	status := customers.Column("status")
	require.NotNil(t, status)
	assert.Equal(t, []string{"active", "closed"}, status.EnumValues)
	assert.True(t, status.HasDefault)
	assert.Equal(t, "'active'", status.ColumnDefault)

	updated := customers.Column("updated_at")
	require.NotNil(t, updated)
	assert.True(t, updated.IsRowVersion)
	assert.False(t, updated.IsGenerated)

	orders := schema.Tables[1]
	alias, ok := orders.ExtendedProperties.Get("cs_alias")
	assert.True(t, ok)
	assert.Equal(t, "Purchase", alias)
	customerID := orders.Column("customer_id")
	require.NotNil(t, customerID)
	assert.True(t, customerID.IsForeignKey)
	assert.False(t, customerID.IsUnique)
	assert.True(t, orders.Column("total").IsNullable)
	require.Len(t, orders.ForeignKeys, 1)
	assert.Equal(t, "shop", orders.ForeignKeys[0].ReferencedSchema)
	require.Len(t, orders.Indexes, 2)
	assert.True(t, orders.Indexes[0].Primary)

	view := schema.Views[0]
	assert.Equal(t, "order_summary", view.Name)
	assert.Empty(t, view.Comment)
	assert.Len(t, view.Columns, 2)

	getOrders := schema.Commands[0]
	assert.Equal(t, CommandProcedure, getOrders.Kind)
	assert.Nil(t, getOrders.ReturnValue)
	require.Len(t, getOrders.Parameters, 2)
	assert.Equal(t, DirectionIn, getOrders.Parameters[0].Direction)
	assert.Equal(t, DirectionOut, getOrders.Parameters[1].Direction)

	total := schema.Commands[1]
	assert.Equal(t, CommandFunction, total.Kind)
	require.NotNil(t, total.ReturnValue)
	assert.Equal(t, "RETURN_VALUE", total.ReturnValue.Name)
	assert.Equal(t, DirectionReturnValue, total.ReturnValue.Direction)
	assert.Equal(t, "decimal(10,2)", total.ReturnValue.ColumnType)
	require.Len(t, total.Parameters, 1)
	assert.Equal(t, "p_order_id", total.Parameters[0].Name)
}

func TestReaderLoad_RoutineFailureIsNotFatal(t *testing.T) {
	reader, mock := newTestReader(t, ReaderConfig{})
	expectShopTables(mock)
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.ROUTINES").
		WithArgs("shop").
		WillReturnError(errors.New("access denied"))

	schema, err := reader.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, schema.Commands)
	assert.Len(t, schema.Tables, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReaderLoad_SkipViewsAndCommands(t *testing.T) {
	reader, mock := newTestReader(t, ReaderConfig{SkipViews: true, SkipCommands: true})
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.TABLES").
		WithArgs("shop", "BASE TABLE", "VIEW").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "TABLE_TYPE", "TABLE_COMMENT"}).
			AddRow("order_summary", "VIEW", ""))

	schema, err := reader.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, schema.IsEmpty())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReaderLoad_ColumnErrorIsWrapped(t *testing.T) {
	reader, mock := newTestReader(t, ReaderConfig{SkipCommands: true})
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.TABLES").
		WithArgs("shop", "BASE TABLE", "VIEW").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "TABLE_TYPE", "TABLE_COMMENT"}).
			AddRow("orders", "BASE TABLE", ""))
	boom := errors.New("boom")
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.COLUMNS").
		WithArgs("orders", "shop").
		WillReturnError(boom)

	_, err := reader.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failed to get columns for orders")
}

func TestNewReader_Validation(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = NewReader(nil, ReaderConfig{Database: "shop"})
	assert.Error(t, err)
	_, err = NewReader(db, ReaderConfig{Database: "  "})
	assert.Error(t, err)

	reader, err := NewReader(db, ReaderConfig{Database: "shop"})
	require.NoError(t, err)
	assert.Equal(t, "mysql", reader.Dialect().Name())
}

func TestDialectFor(t *testing.T) {
	for _, driver := range []string{"", "mysql", "TiDB"} {
		d, err := DialectFor(driver)
		require.NoError(t, err)
		assert.Equal(t, "mysql", d.Name())
	}
	d, err := DialectFor("postgres")
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())

	_, err = DialectFor("oracle")
	assert.Error(t, err)
}

func TestPostgresDialect_UsesDollarPlaceholders(t *testing.T) {
	query, args, err := Postgres{}.Columns("public", "orders").ToSql()
	require.NoError(t, err)
	assert.Contains(t, query, "$1")
	assert.Contains(t, query, "$2")
	assert.NotContains(t, query, "?")
	assert.Equal(t, []any{"orders", "public"}, args)
}
