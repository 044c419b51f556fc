// Package cart is the transactional local cart table.
//
// Rows are keyed by (customer, product) and always hold a quantity of at
// least one; a row whose quantity would reach zero is deleted instead. Every
// operation is scoped to a single customer.
package cart

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

var (
	// ErrNoCustomer is returned when an operation is called without a customer identity.
	ErrNoCustomer = errors.New("storefront: cart operation requires a customer")

	// ErrCrossCustomer is returned when a line belonging to another customer is passed in.
	ErrCrossCustomer = errors.New("storefront: cart line belongs to another customer")

	// ErrNoProduct is returned when a product id is empty.
	ErrNoProduct = errors.New("storefront: cart operation requires a product")
)

// Line is one cart row.
type Line struct {
	Customer  string
	ProductID string
	Quantity  int
	AddedAt   time.Time
}

// Store is a SQLite-backed cart table.
// The pool holds a single connection, so writes for all customers are serialized.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the cart database at the given path.
// Use ":memory:" only in single-connection setups; Open enforces one.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cart database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to cart database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Get returns the customer's cart in the order products were first added.
func (s *Store) Get(ctx context.Context, customer string) ([]Line, error) {
	if customer == "" {
		return nil, ErrNoCustomer
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, quantity, added_at
		FROM cart_items
		WHERE customer = ?
		ORDER BY added_at, rowid
	`, customer)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		line := Line{Customer: customer}
		var addedAt int64
		if err := rows.Scan(&line.ProductID, &line.Quantity, &addedAt); err != nil {
			return nil, fmt.Errorf("get cart: %w", err)
		}
		line.AddedAt = time.Unix(0, addedAt).UTC()
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return lines, nil
}

// Add increments the quantity of productID by one, creating the row if absent.
func (s *Store) Add(ctx context.Context, customer, productID string) error {
	if err := checkScope(customer, productID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cart_items (customer, product_id, quantity, added_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(customer, product_id) DO UPDATE SET quantity = quantity + 1
	`, customer, productID, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("add to cart: %w", err)
	}
	return nil
}

// SetQuantity overwrites the quantity of productID. A quantity of zero or
// less removes the row. Last write wins across concurrent callers.
func (s *Store) SetQuantity(ctx context.Context, customer, productID string, qty int) error {
	if qty <= 0 {
		return s.Remove(ctx, customer, productID)
	}
	if err := checkScope(customer, productID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cart_items (customer, product_id, quantity, added_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(customer, product_id) DO UPDATE SET quantity = excluded.quantity
	`, customer, productID, qty, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("set cart quantity: %w", err)
	}
	return nil
}

// Remove deletes productID from the cart. Removing an absent row is not an error.
func (s *Store) Remove(ctx context.Context, customer, productID string) error {
	if err := checkScope(customer, productID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM cart_items WHERE customer = ? AND product_id = ?
	`, customer, productID)
	if err != nil {
		return fmt.Errorf("remove from cart: %w", err)
	}
	return nil
}

// Clear removes the given lines in one transaction. Each line's quantity is
// subtracted from the stored row and rows reaching zero are deleted, so units
// added by another session after lines were read survive. Lines of another
// customer reject the whole call before anything is deleted.
func (s *Store) Clear(ctx context.Context, customer string, lines []Line) error {
	if customer == "" {
		return ErrNoCustomer
	}
	for _, line := range lines {
		if line.Customer != customer {
			return fmt.Errorf("%w: %s", ErrCrossCustomer, line.ProductID)
		}
	}
	if len(lines) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	defer tx.Rollback()

	for _, line := range lines {
		if line.Quantity < 1 {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM cart_items
			WHERE customer = ? AND product_id = ? AND quantity <= ?
		`, customer, line.ProductID, line.Quantity); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE cart_items SET quantity = quantity - ?
			WHERE customer = ? AND product_id = ?
		`, line.Quantity, customer, line.ProductID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func checkScope(customer, productID string) error {
	if customer == "" {
		return ErrNoCustomer
	}
	if productID == "" {
		return ErrNoProduct
	}
	return nil
}
