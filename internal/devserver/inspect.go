package devserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// ColumnInfo describes one column of a table
type ColumnInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	NotNull    bool   `json:"not_null"`
	PrimaryKey bool   `json:"primary_key"`
}

// TableInfo is the schema, row count and sample rows of one table
type TableInfo struct {
	Name    string              `json:"name"`
	Rows    int                 `json:"rows"`
	Columns []ColumnInfo        `json:"columns"`
	Sample  []map[string]string `json:"sample,omitempty"`
}

// Inspect describes every table in db with up to sampleRows rows each.
// JSON payload columns are pretty-printed and blobs are summarised by size.
func Inspect(ctx context.Context, db *sql.DB, sampleRows int) ([]TableInfo, error) {
	names, err := tableNames(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to get tables: %w", err)
	}

	tables := make([]TableInfo, 0, len(names))
	for _, name := range names {
		info := TableInfo{Name: name}
		if err := db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %q", name)).Scan(&info.Rows); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", name, err)
		}
		if info.Columns, err = tableSchema(ctx, db, name); err != nil {
			return nil, fmt.Errorf("failed to get schema of %s: %w", name, err)
		}
		if info.Rows > 0 && sampleRows > 0 {
			if info.Sample, err = sampleData(ctx, db, name, info.Columns, sampleRows); err != nil {
				return nil, fmt.Errorf("failed to sample %s: %w", name, err)
			}
		}
		tables = append(tables, info)
	}
	return tables, nil
}

func tableNames(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type='table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func tableSchema(ctx context.Context, db *sql.DB, table string) ([]ColumnInfo, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var columns []ColumnInfo
	for rows.Next() {
		var (
			col          ColumnInfo
			cid          int
			notNull, pk  int
			defaultValue sql.NullString
		)
		if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &defaultValue, &pk); err != nil {
			return nil, err
		}
		col.NotNull = notNull == 1
		col.PrimaryKey = pk > 0
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func sampleData(ctx context.Context, db *sql.DB, table string, columns []ColumnInfo, limit int) ([]map[string]string, error) {
	names := make([]string, len(columns))
	for i, col := range columns {
		names[i] = fmt.Sprintf("%q", col.Name)
	}
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %q LIMIT %d", strings.Join(names, ", "), table, limit))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var sample []map[string]string
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(map[string]string, len(columns))
		for i, col := range columns {
			row[col.Name] = formatValue(col.Name, values[i])
		}
		sample = append(sample, row)
	}
	return sample, rows.Err()
}

func formatValue(column string, v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "<NULL>"
	case []byte:
		if column == "data" {
			return fmt.Sprintf("<%d bytes>", len(val))
		}
		return formatText(column, string(val))
	case string:
		return formatText(column, val)
	default:
		return fmt.Sprint(val)
	}
}

func formatText(column, s string) string {
	if column == "payload" && s != "" && s != "{}" {
		var decoded interface{}
		if json.Unmarshal([]byte(s), &decoded) == nil {
			if pretty, err := json.MarshalIndent(decoded, "", "  "); err == nil {
				return string(pretty)
			}
		}
	}
	if first, _, found := strings.Cut(s, "\n"); found {
		s = first + "..."
	}
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
