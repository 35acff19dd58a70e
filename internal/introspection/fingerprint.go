package introspection

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	FingerprintModeStructural  = "structural"
	FingerprintModeLightweight = "lightweight"
	FingerprintModeUnknown     = "unknown"
)

// FingerprintDetails identifies a catalog state. Components holds one hash
// per catalog area so callers can report what changed.
type FingerprintDetails struct {
	Value      string
	Mode       string
	Components map[string]string
}

// lightweightFingerprinter is implemented by dialects that can cheaply detect
// change from table timestamps when the structural queries are unavailable.
type lightweightFingerprinter interface {
	TableTimestamps(schema string) sq.SelectBuilder
}

// TableTimestamps lists table create and update times.
func (MySQL) TableTimestamps(schema string) sq.SelectBuilder {
	return sq.Select("TABLE_NAME", "COALESCE(CAST(CREATE_TIME AS CHAR), '')", "COALESCE(CAST(UPDATE_TIME AS CHAR), '')").
		From("INFORMATION_SCHEMA.TABLES").
		Where(sq.Eq{"TABLE_SCHEMA": schema, "TABLE_TYPE": "BASE TABLE"}).
		OrderBy("TABLE_NAME")
}

// Fingerprint hashes the catalog metadata the mapping depends on. When the
// structural queries fail and the dialect supports it, a timestamp based
// fingerprint is returned instead.
func (r *Reader) Fingerprint(ctx context.Context) (FingerprintDetails, error) {
	ctx, span := startSpan(ctx, "introspection.compute_fingerprint",
		attribute.String("db.schema", r.cfg.Database),
	)
	defer span.End()

	details, err := r.structuralFingerprint(ctx)
	if err == nil {
		span.SetAttributes(attribute.String("schema.fingerprint_mode", details.Mode))
		return details, nil
	}

	light, ok := r.dialect.(lightweightFingerprinter)
	if !ok {
		recordSpanError(span, err)
		return FingerprintDetails{Mode: FingerprintModeUnknown, Components: map[string]string{}}, err
	}
	r.logger.Warn("structural fingerprint failed, falling back to lightweight fingerprint",
		slog.String("error", err.Error()),
	)
	hash, _, fallbackErr := r.hashComponentQuery(ctx, light.TableTimestamps(r.cfg.Database))
	if fallbackErr != nil {
		recordSpanError(span, fallbackErr)
		return FingerprintDetails{Mode: FingerprintModeUnknown, Components: map[string]string{}},
			fmt.Errorf("failed to compute fingerprints: structural error: %w; fallback error: %v", err, fallbackErr)
	}
	components := map[string]string{"table_timestamps": hash}
	span.SetAttributes(attribute.String("schema.fingerprint_mode", FingerprintModeLightweight))
	return FingerprintDetails{
		Value:      CombineComponentHashes(components),
		Mode:       FingerprintModeLightweight,
		Components: components,
	}, nil
}

func (r *Reader) structuralFingerprint(ctx context.Context) (FingerprintDetails, error) {
	queries := r.dialect.FingerprintQueries(r.cfg.Database)
	names := make([]string, 0, len(queries))
	for name := range queries {
		names = append(names, name)
	}
	sort.Strings(names)

	components := make(map[string]string, len(names))
	for _, name := range names {
		if r.cfg.SkipCommands && name == "routines" {
			continue
		}
		hash, _, err := r.hashComponentQuery(ctx, queries[name])
		if err != nil {
			return FingerprintDetails{}, fmt.Errorf("failed to hash %s component: %w", name, err)
		}
		components[name] = hash
	}
	return FingerprintDetails{
		Value:      CombineComponentHashes(components),
		Mode:       FingerprintModeStructural,
		Components: components,
	}, nil
}

func (r *Reader) hashComponentQuery(ctx context.Context, builder sq.SelectBuilder) (string, int, error) {
	rows, err := r.query(ctx, builder)
	if err != nil {
		return "", 0, err
	}
	defer func() {
		_ = rows.Close()
	}()

	columns, err := rows.Columns()
	if err != nil {
		return "", 0, err
	}
	values := make([]sql.NullString, len(columns))
	scanTargets := make([]any, len(columns))
	for i := range values {
		scanTargets[i] = &values[i]
	}

	hash := sha256.New()
	rowCount := 0
	for rows.Next() {
		rowCount++
		if err := rows.Scan(scanTargets...); err != nil {
			return "", 0, err
		}
		// Length-prefixed cells keep "a|b" distinct from "a" + "b".
		for _, value := range values {
			cell := ""
			if value.Valid {
				cell = value.String
			}
			_, _ = fmt.Fprintf(hash, "%d:%s|", len(cell), cell)
		}
		_, _ = hash.Write([]byte{'\n'})
	}
	if err := rows.Err(); err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hash.Sum(nil)), rowCount, nil
}

// CombineComponentHashes folds component hashes into one value in key order.
func CombineComponentHashes(componentHashes map[string]string) string {
	if len(componentHashes) == 0 {
		return ""
	}
	keys := make([]string, 0, len(componentHashes))
	for key := range componentHashes {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	hash := sha256.New()
	for _, key := range keys {
		_, _ = fmt.Fprintf(hash, "%s=%s\n", key, componentHashes[key])
	}
	return hex.EncodeToString(hash.Sum(nil))
}

// ChangedComponents lists the component names whose hashes differ, over the
// union of both maps.
func ChangedComponents(previous, current map[string]string) []string {
	keySet := make(map[string]struct{}, len(previous)+len(current))
	for key := range previous {
		keySet[key] = struct{}{}
	}
	for key := range current {
		keySet[key] = struct{}{}
	}
	keys := make([]string, 0, len(keySet))
	for key := range keySet {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	changed := make([]string, 0, len(keys))
	for _, key := range keys {
		if previous[key] != current[key] {
			changed = append(changed, key)
		}
	}
	return changed
}
