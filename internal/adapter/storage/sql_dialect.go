package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect captures the SQL differences between the supported databases.
type Dialect struct {
	Name   string
	Driver string
	// numbered placeholders ($1, $2, ...) instead of ?
	numbered bool
	// inserts read the generated id through RETURNING instead of LastInsertId
	returning bool
	isolation sql.IsolationLevel
	schema    []string
}

var (
	MySQL = Dialect{
		Name:      "mysql",
		Driver:    "mysql",
		isolation: sql.LevelSerializable,
		schema: []string{
			`CREATE TABLE IF NOT EXISTS facilities (
				id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				location VARCHAR(255) NOT NULL DEFAULT '',
				max_capacity INT NOT NULL CHECK (max_capacity >= 0)
			)`,
			`CREATE TABLE IF NOT EXISTS products (
				id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
				sku VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL,
				category VARCHAR(255) NOT NULL DEFAULT '',
				sku_lower VARCHAR(255) GENERATED ALWAYS AS (LOWER(sku)) STORED,
				UNIQUE KEY uq_products_sku_lower (sku_lower)
			)`,
			`CREATE TABLE IF NOT EXISTS stock_lines (
				id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
				facility_id BIGINT NOT NULL,
				product_id BIGINT NULL,
				sku VARCHAR(255) NOT NULL,
				item_name VARCHAR(255) NOT NULL DEFAULT '',
				quantity INT NOT NULL CHECK (quantity >= 0),
				storage_location VARCHAR(255) NULL,
				INDEX idx_stock_lines_facility (facility_id),
				INDEX idx_stock_lines_sku (sku)
			)`,
		},
	}

	Postgres = Dialect{
		Name:      "postgres",
		Driver:    "pgx",
		numbered:  true,
		returning: true,
		isolation: sql.LevelSerializable,
		schema: []string{
			`CREATE TABLE IF NOT EXISTS facilities (
				id BIGSERIAL PRIMARY KEY,
				name TEXT NOT NULL,
				location TEXT NOT NULL DEFAULT '',
				max_capacity INTEGER NOT NULL CHECK (max_capacity >= 0)
			)`,
			`CREATE TABLE IF NOT EXISTS products (
				id BIGSERIAL PRIMARY KEY,
				sku TEXT NOT NULL,
				name TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				category TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE TABLE IF NOT EXISTS stock_lines (
				id BIGSERIAL PRIMARY KEY,
				facility_id BIGINT NOT NULL,
				product_id BIGINT NULL,
				sku TEXT NOT NULL,
				item_name TEXT NOT NULL DEFAULT '',
				quantity INTEGER NOT NULL CHECK (quantity >= 0),
				storage_location TEXT NULL
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS uq_products_sku_lower ON products (LOWER(sku))`,
			`CREATE INDEX IF NOT EXISTS idx_stock_lines_facility ON stock_lines (facility_id)`,
		},
	}

	SQLite = Dialect{
		Name:   "sqlite",
		Driver: "sqlite",
		schema: []string{
			`CREATE TABLE IF NOT EXISTS facilities (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL,
				location TEXT NOT NULL DEFAULT '',
				max_capacity INTEGER NOT NULL CHECK (max_capacity >= 0)
			)`,
			`CREATE TABLE IF NOT EXISTS products (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				sku TEXT NOT NULL,
				name TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				category TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE TABLE IF NOT EXISTS stock_lines (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				facility_id INTEGER NOT NULL,
				product_id INTEGER NULL,
				sku TEXT NOT NULL,
				item_name TEXT NOT NULL DEFAULT '',
				quantity INTEGER NOT NULL CHECK (quantity >= 0),
				storage_location TEXT NULL
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS uq_products_sku_lower ON products (LOWER(sku))`,
			`CREATE INDEX IF NOT EXISTS idx_stock_lines_facility ON stock_lines (facility_id)`,
		},
	}
)

func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "mysql":
		return MySQL, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return Dialect{}, fmt.Errorf("unsupported sql dialect %q", name)
}

// rebind rewrites ? placeholders for dialects that number them.
func (d Dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// uniqueViolation reports whether err is a unique-key rejection from any of the
// supported drivers.
func uniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(liteErr.Error(), "UNIQUE")
	}
	return false
}
