package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/port"
)

var (
	_ port.DatabaseRepository = (*SQLStore)(nil)
	_ port.Transactor         = (*SQLStore)(nil)
)

// querier is the subset shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore persists facilities, products and stock lines through database/sql.
// A store bound to a transaction runs every call inside it.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	q       querier
	inTx    bool
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, q: db}
}

// OpenSQLStore opens the database for the named dialect, checks connectivity
// and creates missing tables.
func OpenSQLStore(ctx context.Context, dialectName, dsn string) (*SQLStore, error) {
	dialect, err := DialectFor(dialectName)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect.Name, err)
	}
	if dialect.Name == SQLite.Name {
		// one writer at a time, and in-memory databases live per connection
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect.Name, err)
	}
	store := NewSQLStore(db, dialect)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", s.dialect.Name, err)
		}
	}
	return nil
}

func (s *SQLStore) WithinTx(ctx context.Context, fn func(repo port.DatabaseRepository) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: s.dialect.isolation})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&SQLStore{db: s.db, dialect: s.dialect, q: tx, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) error {
	_, err := s.q.ExecContext(ctx, s.dialect.rebind(query), args...)
	return err
}

func (s *SQLStore) insert(ctx context.Context, query string, args ...any) (int64, error) {
	if s.dialect.returning {
		var id int64
		err := s.q.QueryRowContext(ctx, s.dialect.rebind(query+" RETURNING id"), args...).Scan(&id)
		return id, err
	}
	result, err := s.q.ExecContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

const facilityColumns = `id, name, location, max_capacity`

func (s *SQLStore) GetFacility(ctx context.Context, id int64) (*domain.Facility, error) {
	var f domain.Facility
	err := s.q.QueryRowContext(ctx, s.dialect.rebind(`
		SELECT `+facilityColumns+` FROM facilities WHERE id = ?`), id,
	).Scan(&f.ID, &f.Name, &f.Location, &f.MaxCapacity)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query facility: %w", err)
	}
	return &f, nil
}

func (s *SQLStore) ListFacilities(ctx context.Context) ([]domain.Facility, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+facilityColumns+` FROM facilities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query facilities: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Facility, 0)
	for rows.Next() {
		var f domain.Facility
		if err := rows.Scan(&f.ID, &f.Name, &f.Location, &f.MaxCapacity); err != nil {
			return nil, fmt.Errorf("scan facility: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLStore) SaveFacility(ctx context.Context, facility *domain.Facility) error {
	if facility.ID == 0 {
		id, err := s.insert(ctx, `
			INSERT INTO facilities (name, location, max_capacity) VALUES (?, ?, ?)`,
			facility.Name, facility.Location, facility.MaxCapacity,
		)
		if err != nil {
			return fmt.Errorf("insert facility: %w", err)
		}
		facility.ID = id
		return nil
	}
	if err := s.exec(ctx, `
		UPDATE facilities SET name = ?, location = ?, max_capacity = ? WHERE id = ?`,
		facility.Name, facility.Location, facility.MaxCapacity, facility.ID,
	); err != nil {
		return fmt.Errorf("update facility: %w", err)
	}
	return nil
}

func (s *SQLStore) DeleteFacility(ctx context.Context, id int64) error {
	if err := s.exec(ctx, `DELETE FROM facilities WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete facility: %w", err)
	}
	return nil
}

const productColumns = `id, sku, name, description, category`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.Category)
	return p, err
}

func (s *SQLStore) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := scanProduct(s.q.QueryRowContext(ctx, s.dialect.rebind(`
		SELECT `+productColumns+` FROM products WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return &p, nil
}

func (s *SQLStore) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLStore) FindProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	p, err := scanProduct(s.q.QueryRowContext(ctx, s.dialect.rebind(`
		SELECT `+productColumns+` FROM products
		WHERE LOWER(sku) = LOWER(?) ORDER BY id LIMIT 1`), strings.TrimSpace(sku)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query product by sku: %w", err)
	}
	return &p, nil
}

func (s *SQLStore) SaveProduct(ctx context.Context, product *domain.Product) error {
	if product.ID == 0 {
		id, err := s.insert(ctx, `
			INSERT INTO products (sku, name, description, category) VALUES (?, ?, ?, ?)`,
			product.SKU, product.Name, product.Description, product.Category,
		)
		if uniqueViolation(err) {
			return fmt.Errorf("%w: product sku %q already exists", domain.ErrStateConflict, product.SKU)
		}
		if err != nil {
			return fmt.Errorf("insert product: %w", err)
		}
		product.ID = id
		return nil
	}
	if err := s.exec(ctx, `
		UPDATE products SET sku = ?, name = ?, description = ?, category = ? WHERE id = ?`,
		product.SKU, product.Name, product.Description, product.Category, product.ID,
	); uniqueViolation(err) {
		return fmt.Errorf("%w: product sku %q already exists", domain.ErrStateConflict, product.SKU)
	} else if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

const lineColumns = `id, facility_id, product_id, sku, item_name, quantity, storage_location`

func scanLine(row interface{ Scan(...any) error }) (domain.StockLine, error) {
	var (
		l         domain.StockLine
		productID sql.NullInt64
		location  sql.NullString
	)
	err := row.Scan(&l.ID, &l.FacilityID, &productID, &l.Key.SKU, &l.Name, &l.Quantity, &location)
	if err != nil {
		return l, err
	}
	if productID.Valid {
		l.Key.ProductID = productID.Int64
	}
	if location.Valid {
		l.StorageLocation = domain.StringPtr(location.String)
	}
	return l, nil
}

func (s *SQLStore) queryLines(ctx context.Context, where string, args ...any) ([]domain.StockLine, error) {
	rows, err := s.q.QueryContext(ctx, s.dialect.rebind(`
		SELECT `+lineColumns+` FROM stock_lines WHERE `+where+` ORDER BY id`), args...)
	if err != nil {
		return nil, fmt.Errorf("query stock lines: %w", err)
	}
	defer rows.Close()

	out := make([]domain.StockLine, 0)
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stock line: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetLine(ctx context.Context, id int64) (*domain.StockLine, error) {
	l, err := scanLine(s.q.QueryRowContext(ctx, s.dialect.rebind(`
		SELECT `+lineColumns+` FROM stock_lines WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query stock line: %w", err)
	}
	return &l, nil
}

func (s *SQLStore) ListLines(ctx context.Context) ([]domain.StockLine, error) {
	return s.queryLines(ctx, `1 = 1`)
}

func (s *SQLStore) LinesByFacility(ctx context.Context, facilityID int64) ([]domain.StockLine, error) {
	return s.queryLines(ctx, `facility_id = ?`, facilityID)
}

func (s *SQLStore) LinesBySKU(ctx context.Context, sku string) ([]domain.StockLine, error) {
	return s.queryLines(ctx, `LOWER(sku) = LOWER(?)`, strings.TrimSpace(sku))
}

func (s *SQLStore) FindLine(ctx context.Context, facilityID int64, key domain.CatalogKey) (*domain.StockLine, error) {
	var (
		lines []domain.StockLine
		err   error
	)
	if key.Inline() {
		lines, err = s.queryLines(ctx, `facility_id = ? AND product_id IS NULL AND LOWER(sku) = LOWER(?)`,
			facilityID, strings.TrimSpace(key.SKU))
	} else {
		lines, err = s.queryLines(ctx, `facility_id = ? AND product_id = ?`, facilityID, key.ProductID)
	}
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, nil
	}
	return &lines[0], nil
}

func (s *SQLStore) SaveLine(ctx context.Context, line *domain.StockLine) error {
	var productID sql.NullInt64
	if !line.Key.Inline() {
		productID = sql.NullInt64{Int64: line.Key.ProductID, Valid: true}
	}
	var location sql.NullString
	if line.StorageLocation != nil {
		location = sql.NullString{String: *line.StorageLocation, Valid: true}
	}

	if line.ID == 0 {
		id, err := s.insert(ctx, `
			INSERT INTO stock_lines (facility_id, product_id, sku, item_name, quantity, storage_location)
			VALUES (?, ?, ?, ?, ?, ?)`,
			line.FacilityID, productID, line.Key.SKU, line.Name, line.Quantity, location,
		)
		if err != nil {
			return fmt.Errorf("insert stock line: %w", err)
		}
		line.ID = id
		return nil
	}
	if err := s.exec(ctx, `
		UPDATE stock_lines
		SET facility_id = ?, product_id = ?, sku = ?, item_name = ?, quantity = ?, storage_location = ?
		WHERE id = ?`,
		line.FacilityID, productID, line.Key.SKU, line.Name, line.Quantity, location, line.ID,
	); err != nil {
		return fmt.Errorf("update stock line: %w", err)
	}
	return nil
}

func (s *SQLStore) DeleteLine(ctx context.Context, id int64) error {
	if err := s.exec(ctx, `DELETE FROM stock_lines WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete stock line: %w", err)
	}
	return nil
}

func (s *SQLStore) DeleteLinesByFacility(ctx context.Context, facilityID int64) error {
	if err := s.exec(ctx, `DELETE FROM stock_lines WHERE facility_id = ?`, facilityID); err != nil {
		return fmt.Errorf("delete stock lines: %w", err)
	}
	return nil
}
