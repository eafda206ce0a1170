package database

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// ColumnInfo describes one column of an inspected table.
type ColumnInfo struct {
	Field   string
	Type    string
	Null    string
	Key     string
	Default *string // Pointer because NULL default is possible
	Extra   string
}

// TableColumns retrieves the column definitions of a table. The device
// inventory schema is owned by the upstream provisioning workflow, so
// instead of migrating it we inspect it.
func TableColumns(db *gorm.DB, tableName string) ([]ColumnInfo, error) {
	if db.Dialector.Name() == "sqlite" {
		// SQLite uses PRAGMA table_info
		type sqliteColumn struct {
			Cid        int
			Name       string
			Type       string
			Notnull    int
			DefaultVal *string
			Pk         int
		}
		var sqliteCols []sqliteColumn
		err := db.Raw(fmt.Sprintf("PRAGMA table_info('%s')", tableName)).
			Scan(&sqliteCols).Error
		if err != nil {
			return nil, fmt.Errorf("failed to get columns for table %s: %w", tableName, err)
		}
		columns := make([]ColumnInfo, 0, len(sqliteCols))
		for _, col := range sqliteCols {
			columns = append(columns, ColumnInfo{
				Field: strings.ToLower(col.Name),
				Type:  strings.ToLower(col.Type),
			})
		}
		return columns, nil
	}

	// raw SHOW COLUMNS gives the exact MySQL type strings
	var columns []ColumnInfo
	err := db.Raw(fmt.Sprintf("SHOW COLUMNS FROM `%s`", tableName)).
		Scan(&columns).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get columns for table %s: %w", tableName, err)
	}
	for i := range columns {
		columns[i].Type = strings.ToLower(columns[i].Type)
		columns[i].Field = strings.ToLower(columns[i].Field)
	}
	return columns, nil
}

// VerifySchema checks that every required table carries the columns the
// application reads and writes. It reports all missing columns at once so
// a misconfigured deployment fails with one actionable error.
func VerifySchema(db *gorm.DB, required map[string][]string) error {
	var missing []string
	for table, fields := range required {
		columns, err := TableColumns(db, table)
		if err != nil {
			return err
		}
		present := make(map[string]bool, len(columns))
		for _, col := range columns {
			present[col.Field] = true
		}
		for _, field := range fields {
			if !present[strings.ToLower(field)] {
				missing = append(missing, table+"."+field)
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("database schema missing columns: %s",
			strings.Join(missing, ", "))
	}
	return nil
}
