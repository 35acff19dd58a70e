package introspection

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"schemamap/internal/sqltype"
)

// Queryer provides query access for schema introspection.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ReaderConfig controls what a Reader loads.
type ReaderConfig struct {
	// Database is the schema (MySQL database or PostgreSQL namespace) to read.
	Database string
	Dialect  Dialect
	// Concurrency bounds how many tables are read in parallel. Values below
	// one read tables one at a time.
	Concurrency int
	SkipViews   bool
	// SkipCommands disables stored procedure and function discovery.
	SkipCommands bool
	Logger       *slog.Logger
}

// Reader loads a Schema from a live database.
type Reader struct {
	db      Queryer
	dialect Dialect
	cfg     ReaderConfig
	logger  *slog.Logger
}

// NewReader validates cfg and returns a reader over db.
func NewReader(db Queryer, cfg ReaderConfig) (*Reader, error) {
	if db == nil {
		return nil, fmt.Errorf("queryer is required")
	}
	if strings.TrimSpace(cfg.Database) == "" {
		return nil, fmt.Errorf("database name is required")
	}
	if cfg.Dialect == nil {
		cfg.Dialect = MySQL{}
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{db: db, dialect: cfg.Dialect, cfg: cfg, logger: logger}, nil
}

// Dialect returns the dialect used to build catalog queries.
func (r *Reader) Dialect() Dialect {
	return r.dialect
}

type tableInfo struct {
	Name    string
	IsView  bool
	Comment string
}

// Load reads every table, view and routine of the configured database.
func (r *Reader) Load(ctx context.Context) (*Schema, error) {
	ctx, span := startSpan(ctx, "introspection.build_schema",
		attribute.String("db.name", r.cfg.Database),
		attribute.String("db.system", r.dialect.Name()),
	)
	defer span.End()

	infos, err := r.getTables(ctx)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to get tables: %w", err)
	}

	var tableInfos, viewInfos []tableInfo
	for _, info := range infos {
		if info.IsView {
			if !r.cfg.SkipViews {
				viewInfos = append(viewInfos, info)
			}
			continue
		}
		tableInfos = append(tableInfos, info)
	}

	schema := &Schema{
		Database: r.cfg.Database,
		Dialect:  r.dialect.Name(),
		Tables:   make([]Table, len(tableInfos)),
		Views:    make([]View, len(viewInfos)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, info := range tableInfos {
		g.Go(func() error {
			table, err := r.loadTable(gctx, info)
			if err != nil {
				return err
			}
			schema.Tables[i] = table
			return nil
		})
	}
	for i, info := range viewInfos {
		g.Go(func() error {
			columns, err := r.getColumns(gctx, info.Name)
			if err != nil {
				return fmt.Errorf("failed to get columns for view %s: %w", info.Name, err)
			}
			schema.Views[i] = View{
				Schema:  r.cfg.Database,
				Name:    info.Name,
				Comment: info.Comment,
				Columns: columns,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	if !r.cfg.SkipCommands {
		commands, err := r.getCommands(ctx)
		if err != nil {
			// Routine metadata is often restricted; the model is still usable without it.
			r.logger.Warn("failed to read stored routines, continuing without commands",
				slog.String("database", r.cfg.Database),
				slog.String("error", err.Error()),
			)
		} else {
			schema.Commands = commands
		}
	}

	schema.Normalize()
	span.SetAttributes(
		attribute.Int("schema.tables", len(schema.Tables)),
		attribute.Int("schema.views", len(schema.Views)),
		attribute.Int("schema.commands", len(schema.Commands)),
	)
	return schema, nil
}

func (r *Reader) loadTable(ctx context.Context, info tableInfo) (Table, error) {
	columns, err := r.getColumns(ctx, info.Name)
	if err != nil {
		return Table{}, fmt.Errorf("failed to get columns for %s: %w", info.Name, err)
	}
	primaryKeys, err := r.getPrimaryKeys(ctx, info.Name)
	if err != nil {
		return Table{}, fmt.Errorf("failed to get primary keys for table %s: %w", info.Name, err)
	}
	foreignKeys, err := r.getForeignKeys(ctx, info.Name)
	if err != nil {
		return Table{}, fmt.Errorf("failed to get foreign keys for table %s: %w", info.Name, err)
	}
	indexes, err := r.getIndexes(ctx, info.Name)
	if err != nil {
		return Table{}, fmt.Errorf("failed to get indexes for table %s: %w", info.Name, err)
	}

	markPrimaryKeys(columns, primaryKeys)
	return Table{
		Schema:      r.cfg.Database,
		Name:        info.Name,
		Comment:     info.Comment,
		Columns:     columns,
		ForeignKeys: foreignKeys,
		Indexes:     indexes,
	}, nil
}

func (r *Reader) query(ctx context.Context, builder sq.SelectBuilder) (*sql.Rows, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog query: %w", err)
	}
	return r.db.QueryContext(ctx, query, args...)
}

func (r *Reader) getTables(ctx context.Context) ([]tableInfo, error) {
	ctx, span := startSpan(ctx, "introspection.get_tables",
		attribute.String("db.name", r.cfg.Database),
	)
	defer span.End()

	rows, err := r.query(ctx, r.dialect.Tables(r.cfg.Database))
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var tables []tableInfo
	for rows.Next() {
		var name, kind, comment string
		if err := rows.Scan(&name, &kind, &comment); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		info := tableInfo{Name: name, IsView: strings.EqualFold(kind, "VIEW"), Comment: strings.TrimSpace(comment)}
		// MySQL reports the literal comment "VIEW" for views without one.
		if info.IsView && info.Comment == "VIEW" {
			info.Comment = ""
		}
		tables = append(tables, info)
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return tables, nil
}

func (r *Reader) getColumns(ctx context.Context, tableName string) ([]Column, error) {
	ctx, span := startSpan(ctx, "introspection.get_columns",
		attribute.String("db.name", r.cfg.Database),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	rows, err := r.query(ctx, r.dialect.Columns(r.cfg.Database, tableName))
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var columns []Column
	for rows.Next() {
		var col Column
		var dataType, columnType, comment, isNullable, extra string
		var columnDefault sql.NullString
		var charLen, precision, scale sql.NullInt64
		if err := rows.Scan(&col.Name, &dataType, &columnType, &comment, &isNullable,
			&columnDefault, &extra, &charLen, &precision, &scale); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		col.DataType = strings.ToLower(dataType)
		col.ColumnType = columnType
		col.Comment = strings.TrimSpace(comment)
		col.IsNullable = strings.EqualFold(isNullable, "YES")
		if columnDefault.Valid {
			col.ColumnDefault = columnDefault.String
			col.HasDefault = true
		}
		col.Size = nullInt(charLen)
		col.Precision = nullInt(precision)
		col.Scale = nullInt(scale)

		extraLower := strings.ToLower(extra)
		col.IsAutoIncrement = strings.Contains(extraLower, "auto_increment")
		// MySQL 8 reports DEFAULT_GENERATED for expression defaults, which are not computed columns.
		col.IsGenerated = strings.Contains(extraLower, "virtual generated") ||
			strings.Contains(extraLower, "stored generated")
		col.IsRowVersion = strings.Contains(extraLower, "on update current_timestamp") ||
			sqltype.IsRowVersion(columnType)
		if col.DataType == "enum" || col.DataType == "set" {
			values, err := parseEnumValues(columnType)
			if err != nil {
				r.logger.Warn("failed to parse enum values",
					slog.String("table", tableName),
					slog.String("column", col.Name),
					slog.String("type", columnType),
					slog.String("error", err.Error()),
				)
			} else {
				col.EnumValues = values
			}
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return columns, nil
}

func (r *Reader) getPrimaryKeys(ctx context.Context, tableName string) ([]string, error) {
	ctx, span := startSpan(ctx, "introspection.get_primary_keys",
		attribute.String("db.name", r.cfg.Database),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	rows, err := r.query(ctx, r.dialect.PrimaryKeys(r.cfg.Database, tableName))
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var keys []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		keys = append(keys, name)
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return keys, nil
}

func (r *Reader) getForeignKeys(ctx context.Context, tableName string) ([]ForeignKey, error) {
	ctx, span := startSpan(ctx, "introspection.get_foreign_keys",
		attribute.String("db.name", r.cfg.Database),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	rows, err := r.query(ctx, r.dialect.ForeignKeys(r.cfg.Database, tableName))
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var keys []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		var refSchema sql.NullString
		if err := rows.Scan(&fk.ColumnName, &refSchema, &fk.ReferencedTable, &fk.ReferencedColumn,
			&fk.ConstraintName, &fk.OrdinalPosition); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		fk.ReferencedSchema = refSchema.String
		keys = append(keys, fk)
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return keys, nil
}

func (r *Reader) getIndexes(ctx context.Context, tableName string) ([]Index, error) {
	ctx, span := startSpan(ctx, "introspection.get_indexes",
		attribute.String("db.name", r.cfg.Database),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	rows, err := r.query(ctx, r.dialect.Indexes(r.cfg.Database, tableName))
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	byName := make(map[string]*Index)
	var order []string
	for rows.Next() {
		var name, columnName string
		var indexType sql.NullString
		var nonUnique, seq int
		if err := rows.Scan(&name, &nonUnique, &seq, &columnName, &indexType); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		idx, ok := byName[name]
		if !ok {
			idx = &Index{
				Name:    name,
				Unique:  nonUnique == 0,
				Primary: name == "PRIMARY",
				Type:    indexType.String,
			}
			byName[name] = idx
			order = append(order, name)
		}
		idx.Columns = append(idx.Columns, columnName)
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	indexes := make([]Index, 0, len(order))
	for _, name := range order {
		indexes = append(indexes, *byName[name])
	}
	return indexes, nil
}

type routineInfo struct {
	SpecificName string
	Name         string
	Kind         CommandKind
	ReturnType   string
	Comment      string
}

func (r *Reader) getCommands(ctx context.Context) ([]Command, error) {
	ctx, span := startSpan(ctx, "introspection.get_routines",
		attribute.String("db.name", r.cfg.Database),
	)
	defer span.End()

	routines, err := r.getRoutines(ctx)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	commands := make([]Command, 0, len(routines))
	for _, routine := range routines {
		cmd, err := r.loadCommand(ctx, routine)
		if err != nil {
			recordSpanError(span, err)
			return nil, fmt.Errorf("failed to get parameters for %s: %w", routine.Name, err)
		}
		commands = append(commands, cmd)
	}
	return commands, nil
}

func (r *Reader) getRoutines(ctx context.Context) ([]routineInfo, error) {
	rows, err := r.query(ctx, r.dialect.Routines(r.cfg.Database))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var routines []routineInfo
	for rows.Next() {
		var info routineInfo
		var kind string
		var returnType sql.NullString
		if err := rows.Scan(&info.SpecificName, &info.Name, &kind, &returnType, &info.Comment); err != nil {
			return nil, err
		}
		info.Kind = CommandProcedure
		if strings.EqualFold(kind, "FUNCTION") {
			info.Kind = CommandFunction
		}
		info.ReturnType = strings.ToLower(returnType.String)
		routines = append(routines, info)
	}
	return routines, rows.Err()
}

func (r *Reader) loadCommand(ctx context.Context, routine routineInfo) (Command, error) {
	cmd := Command{
		Schema:  r.cfg.Database,
		Name:    routine.Name,
		Kind:    routine.Kind,
		Comment: strings.TrimSpace(routine.Comment),
	}

	rows, err := r.query(ctx, r.dialect.Parameters(r.cfg.Database, routine.SpecificName))
	if err != nil {
		return Command{}, err
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var p Parameter
		var mode, dataType, declared string
		var ordinal int
		var charLen, precision, scale sql.NullInt64
		if err := rows.Scan(&p.Name, &mode, &dataType, &declared, &ordinal, &charLen, &precision, &scale); err != nil {
			return Command{}, err
		}
		p.DataType = strings.ToLower(dataType)
		p.ColumnType = declared
		p.Size = nullInt(charLen)
		p.Precision = nullInt(precision)
		p.Scale = nullInt(scale)
		p.IsNullable = true
		p.IsRowVersion = sqltype.IsRowVersion(declared)

		switch {
		case ordinal == 0:
			p.Name = "RETURN_VALUE"
			p.Direction = DirectionReturnValue
			cmd.ReturnValue = &p
		case routine.Kind == CommandFunction && (strings.EqualFold(mode, "OUT") || strings.EqualFold(mode, "TABLE")):
			// Function OUT parameters describe the returned row shape.
			cmd.Results = append(cmd.Results, Column{
				Name:       p.Name,
				DataType:   p.DataType,
				ColumnType: p.ColumnType,
				Size:       p.Size,
				Precision:  p.Precision,
				Scale:      p.Scale,
				IsNullable: true,
			})
		default:
			p.Direction = parameterDirection(mode)
			cmd.Parameters = append(cmd.Parameters, p)
		}
	}
	if err := rows.Err(); err != nil {
		return Command{}, err
	}

	if cmd.Kind == CommandFunction && cmd.ReturnValue == nil && len(cmd.Results) == 0 && hasScalarReturn(routine.ReturnType) {
		cmd.ReturnValue = &Parameter{
			Name:       "RETURN_VALUE",
			DataType:   sqltype.BaseType(routine.ReturnType),
			ColumnType: routine.ReturnType,
			Direction:  DirectionReturnValue,
			IsNullable: true,
		}
	}
	return cmd, nil
}

func parameterDirection(mode string) ParameterDirection {
	switch strings.ToUpper(strings.TrimSpace(mode)) {
	case "OUT":
		return DirectionOut
	case "INOUT":
		return DirectionInOut
	default:
		return DirectionIn
	}
}

func hasScalarReturn(returnType string) bool {
	switch returnType {
	case "", "void", "record", "trigger", "event_trigger":
		return false
	}
	return true
}

func nullInt(v sql.NullInt64) int {
	if !v.Valid {
		return 0
	}
	return int(v.Int64)
}
