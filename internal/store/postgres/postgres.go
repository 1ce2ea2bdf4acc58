package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"invobook/backend/internal/domain"
	"invobook/backend/internal/invoice"
	"invobook/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the tables this store expects. Safe to call on every
// startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS products (
			display_name TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			weight TEXT NOT NULL DEFAULT '',
			quantity INT NOT NULL DEFAULT 0 CHECK (quantity >= 0),
			damaged_quantity INT NOT NULL DEFAULT 0 CHECK (damaged_quantity >= 0),
			cost_price NUMERIC(12,2) NOT NULL DEFAULT 0,
			selling_price NUMERIC(12,2) NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS invoices (
			invoice_number TEXT PRIMARY KEY,
			customer_name TEXT NOT NULL,
			customer_phone TEXT,
			customer_address TEXT,
			subtotal NUMERIC(12,2) NOT NULL DEFAULT 0,
			total_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS invoice_items (
			id BIGSERIAL PRIMARY KEY,
			invoice_number TEXT NOT NULL REFERENCES invoices(invoice_number),
			product_name TEXT NOT NULL,
			weight TEXT NOT NULL DEFAULT '',
			quantity INT NOT NULL CHECK (quantity > 0),
			unit_price NUMERIC(12,2) NOT NULL,
			line_total NUMERIC(12,2) NOT NULL
		)`,
		`ALTER TABLE invoice_items ADD COLUMN IF NOT EXISTS weight TEXT NOT NULL DEFAULT ''`,
		`CREATE INDEX IF NOT EXISTS idx_invoice_items_number ON invoice_items (invoice_number)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_created_at ON invoices (created_at)`,
		`CREATE TABLE IF NOT EXISTS app_users (
			username TEXT PRIMARY KEY,
			password TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'staff',
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, weight, display_name, quantity, damaged_quantity,
			cost_price::float8, selling_price::float8, created_at, updated_at
		FROM products
		ORDER BY display_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	product.Weight = strings.TrimSpace(product.Weight)
	if product.Name == "" || product.Quantity < 0 || product.CostPrice < 0 || product.SellingPrice < 0 {
		return nil, store.ErrInvalidInput
	}
	product.DisplayName = domain.FullProductName(product.Name, product.Weight)

	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (display_name, name, weight, quantity, damaged_quantity, cost_price, selling_price, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, product.DisplayName, product.Name, product.Weight, product.Quantity, product.DamagedQuantity, product.CostPrice, product.SellingPrice, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateProduct
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProduct(ctx context.Context, displayName string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT name, weight, display_name, quantity, damaged_quantity,
			cost_price::float8, selling_price::float8, created_at, updated_at
		FROM products
		WHERE display_name = $1
	`, displayName).Scan(&p.Name, &p.Weight, &p.DisplayName, &p.Quantity, &p.DamagedQuantity, &p.CostPrice, &p.SellingPrice, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (s *Store) SetQuantity(ctx context.Context, displayName string, quantity int) (*domain.Product, error) {
	if quantity < 0 {
		return nil, store.ErrInvalidInput
	}

	return s.updateReturning(ctx, `
		UPDATE products
		SET quantity = $2, updated_at = now()
		WHERE display_name = $1
		RETURNING name, weight, display_name, quantity, damaged_quantity,
			cost_price::float8, selling_price::float8, created_at, updated_at
	`, nil, displayName, quantity)
}

func (s *Store) AdjustQuantity(ctx context.Context, displayName string, delta int) (*domain.Product, error) {
	return s.updateReturning(ctx, `
		UPDATE products
		SET quantity = quantity + $2, updated_at = now()
		WHERE display_name = $1 AND quantity + $2 >= 0
		RETURNING name, weight, display_name, quantity, damaged_quantity,
			cost_price::float8, selling_price::float8, created_at, updated_at
	`, store.ErrInsufficientStock, displayName, delta)
}

func (s *Store) MarkDamaged(ctx context.Context, displayName string, quantity int) (*domain.Product, error) {
	if quantity < 1 {
		return nil, store.ErrInvalidInput
	}

	return s.updateReturning(ctx, `
		UPDATE products
		SET quantity = quantity - $2, damaged_quantity = damaged_quantity + $2, updated_at = now()
		WHERE display_name = $1 AND quantity >= $2
		RETURNING name, weight, display_name, quantity, damaged_quantity,
			cost_price::float8, selling_price::float8, created_at, updated_at
	`, store.ErrInsufficientStock, displayName, quantity)
}

func (s *Store) RestoreDamaged(ctx context.Context, displayName string, quantity int) (*domain.Product, error) {
	if quantity < 1 {
		return nil, store.ErrInvalidInput
	}

	return s.updateReturning(ctx, `
		UPDATE products
		SET damaged_quantity = damaged_quantity - $2, quantity = quantity + $2, updated_at = now()
		WHERE display_name = $1 AND damaged_quantity >= $2
		RETURNING name, weight, display_name, quantity, damaged_quantity,
			cost_price::float8, selling_price::float8, created_at, updated_at
	`, store.ErrInsufficientDamagedStock, displayName, quantity)
}

// updateReturning runs a guarded single-row UPDATE. When the guard keeps the
// row from matching, shortfallErr tells a guard miss apart from a missing
// product.
func (s *Store) updateReturning(ctx context.Context, query string, shortfallErr error, displayName string, arg int) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, query, displayName, arg).Scan(
		&p.Name, &p.Weight, &p.DisplayName, &p.Quantity, &p.DamagedQuantity,
		&p.CostPrice, &p.SellingPrice, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if shortfallErr == nil {
				return nil, store.ErrNotFound
			}
			var exists bool
			checkErr := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE display_name = $1)`, displayName).Scan(&exists)
			if checkErr != nil {
				return nil, checkErr
			}
			if !exists {
				return nil, store.ErrNotFound
			}
			return nil, shortfallErr
		}
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (s *Store) DeleteProduct(ctx context.Context, displayName string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE display_name = $1`, displayName)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DamagedProducts(ctx context.Context) ([]domain.DamagedProduct, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT display_name, quantity, damaged_quantity, cost_price::float8,
			(damaged_quantity * cost_price)::float8
		FROM products
		WHERE damaged_quantity > 0
		ORDER BY damaged_quantity DESC, display_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.DamagedProduct, 0, 16)
	for rows.Next() {
		var d domain.DamagedProduct
		if err := rows.Scan(&d.DisplayName, &d.Quantity, &d.DamagedQuantity, &d.CostPrice, &d.ValueLost); err != nil {
			return nil, err
		}
		d.ValueLost = invoice.Round2(d.ValueLost)
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateInvoice locks the product rows, verifies stock, writes the invoice
// and its items, and decrements stock inside one serializable transaction.
// Serialization conflicts between concurrent sales are retried; a genuine
// shortfall surfaces as ErrInsufficientStock once the retry wins the locks.
func (s *Store) CreateInvoice(ctx context.Context, inv domain.Invoice) (*domain.Invoice, error) {
	if inv.InvoiceNumber == "" || len(inv.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}

	var created *domain.Invoice
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		created, err = s.createInvoiceTx(ctx, inv)
		if !isSerializationFailure(err) {
			break
		}
	}
	return created, err
}

func (s *Store) createInvoiceTx(ctx context.Context, inv domain.Invoice) (*domain.Invoice, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	required := make(map[string]int, len(inv.Items))
	names := make([]string, 0, len(inv.Items))
	for _, item := range inv.Items {
		if item.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}
		if _, seen := required[item.ProductName]; !seen {
			names = append(names, item.ProductName)
		}
		required[item.ProductName] += item.Quantity
	}

	stockRows, err := pgTx.QueryContext(ctx, `
		SELECT display_name, quantity
		FROM products
		WHERE display_name = ANY($1)
		FOR UPDATE
	`, names)
	if err != nil {
		return nil, err
	}
	available := make(map[string]int, len(names))
	for stockRows.Next() {
		var name string
		var qty int
		if err := stockRows.Scan(&name, &qty); err != nil {
			_ = stockRows.Close()
			return nil, err
		}
		available[name] = qty
	}
	if err := stockRows.Err(); err != nil {
		_ = stockRows.Close()
		return nil, err
	}
	_ = stockRows.Close()

	for _, name := range names {
		qty, exists := available[name]
		if !exists {
			return nil, store.ErrNotFound
		}
		if qty < required[name] {
			return nil, store.ErrInsufficientStock
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO invoices (invoice_number, customer_name, customer_phone, customer_address, subtotal, total_amount, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, inv.InvoiceNumber, inv.CustomerName, nullIfEmpty(inv.CustomerPhone), nullIfEmpty(inv.CustomerAddress), inv.Subtotal, inv.TotalAmount, inv.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateInvoice
		}
		return nil, err
	}

	for _, item := range inv.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO invoice_items (invoice_number, product_name, weight, quantity, unit_price, line_total)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, inv.InvoiceNumber, item.ProductName, item.Weight, item.Quantity, item.UnitPrice, item.LineTotal)
		if err != nil {
			return nil, err
		}
	}

	for _, name := range names {
		_, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET quantity = quantity - $2, updated_at = now()
			WHERE display_name = $1
		`, name, required[name])
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return &inv, nil
}

func (s *Store) GetInvoiceByNumber(ctx context.Context, number string) (*domain.Invoice, error) {
	var inv domain.Invoice
	var phone sql.NullString
	var address sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT invoice_number, customer_name, customer_phone, customer_address,
			subtotal::float8, total_amount::float8, created_at
		FROM invoices
		WHERE invoice_number = $1
	`, number).Scan(&inv.InvoiceNumber, &inv.CustomerName, &phone, &address, &inv.Subtotal, &inv.TotalAmount, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if phone.Valid {
		inv.CustomerPhone = phone.String
	}
	if address.Valid {
		inv.CustomerAddress = address.String
	}
	inv.CreatedAt = inv.CreatedAt.UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_name, weight, quantity, unit_price::float8, line_total::float8
		FROM invoice_items
		WHERE invoice_number = $1
		ORDER BY id ASC
	`, inv.InvoiceNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.InvoiceItem, 0, 8)
	for rows.Next() {
		var item domain.InvoiceItem
		if err := rows.Scan(&item.ProductName, &item.Weight, &item.Quantity, &item.UnitPrice, &item.LineTotal); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	inv.Items = items

	return &inv, nil
}

func (s *Store) ListInvoices(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Invoice, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT invoice_number, customer_name, customer_phone, customer_address,
			subtotal::float8, total_amount::float8, created_at
		FROM invoices
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC, invoice_number DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Invoice, 0, limit)
	numbers := make([]string, 0, limit)
	for rows.Next() {
		var inv domain.Invoice
		var phone sql.NullString
		var address sql.NullString
		if err := rows.Scan(&inv.InvoiceNumber, &inv.CustomerName, &phone, &address, &inv.Subtotal, &inv.TotalAmount, &inv.CreatedAt); err != nil {
			return nil, err
		}
		if phone.Valid {
			inv.CustomerPhone = phone.String
		}
		if address.Valid {
			inv.CustomerAddress = address.String
		}
		inv.CreatedAt = inv.CreatedAt.UTC()
		result = append(result, inv)
		numbers = append(numbers, inv.InvoiceNumber)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(numbers) == 0 {
		return result, nil
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT invoice_number, product_name, weight, quantity, unit_price::float8, line_total::float8
		FROM invoice_items
		WHERE invoice_number = ANY($1)
		ORDER BY id ASC
	`, numbers)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	itemMap := make(map[string][]domain.InvoiceItem, len(numbers))
	for itemRows.Next() {
		var number string
		var item domain.InvoiceItem
		if err := itemRows.Scan(&number, &item.ProductName, &item.Weight, &item.Quantity, &item.UnitPrice, &item.LineTotal); err != nil {
			return nil, err
		}
		itemMap[number] = append(itemMap[number], item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		result[i].Items = itemMap[result[i].InvoiceNumber]
	}
	return result, nil
}

func (s *Store) SummaryStats(ctx context.Context, from time.Time, to time.Time) (domain.SummaryStats, error) {
	var stats domain.SummaryStats

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::bigint,
			COALESCE(SUM(total_amount),0)::float8,
			COUNT(DISTINCT customer_name)::bigint
		FROM invoices
		WHERE created_at >= $1 AND created_at < $2
	`, from, to).Scan(&stats.InvoiceCount, &stats.TotalRevenue, &stats.UniqueCustomers)
	if err != nil {
		return stats, err
	}

	// Profit is priced against the current catalog cost; items whose product
	// was deleted contribute zero cost.
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(ii.quantity),0)::bigint,
			COALESCE(SUM(ii.quantity * (ii.unit_price - COALESCE(p.cost_price, 0))),0)::float8
		FROM invoice_items ii
		JOIN invoices i ON i.invoice_number = ii.invoice_number
		LEFT JOIN products p ON p.display_name = ii.product_name
		WHERE i.created_at >= $1 AND i.created_at < $2
	`, from, to).Scan(&stats.UnitsSold, &stats.TotalProfit)
	if err != nil {
		return stats, err
	}

	// Damaged figures cover the whole catalog, not just the window.
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(damaged_quantity),0)::bigint,
			COALESCE(SUM(damaged_quantity * cost_price),0)::float8
		FROM products
	`).Scan(&stats.DamagedUnits, &stats.DamagedValue)
	if err != nil {
		return stats, err
	}

	stats.TotalRevenue = invoice.Round2(stats.TotalRevenue)
	stats.TotalProfit = invoice.Round2(stats.TotalProfit)
	stats.DamagedValue = invoice.Round2(stats.DamagedValue)
	return stats, nil
}

func (s *Store) SalesByProduct(ctx context.Context, from time.Time, to time.Time) ([]domain.ProductSales, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ii.product_name,
			COALESCE(SUM(ii.quantity),0)::bigint,
			COALESCE(SUM(ii.line_total),0)::float8,
			COUNT(DISTINCT ii.invoice_number)::bigint
		FROM invoice_items ii
		JOIN invoices i ON i.invoice_number = ii.invoice_number
		WHERE i.created_at >= $1 AND i.created_at < $2
		GROUP BY ii.product_name
		ORDER BY SUM(ii.quantity) DESC, ii.product_name
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.ProductSales, 0, 32)
	for rows.Next() {
		var entry domain.ProductSales
		if err := rows.Scan(&entry.ProductName, &entry.Quantity, &entry.Revenue, &entry.OrderCount); err != nil {
			return nil, err
		}
		entry.Revenue = invoice.Round2(entry.Revenue)
		if entry.Quantity > 0 {
			entry.AveragePrice = invoice.Round2(entry.Revenue / float64(entry.Quantity))
		}
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) ProfitByProduct(ctx context.Context, from time.Time, to time.Time) ([]domain.ProductProfit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ii.product_name,
			COALESCE(SUM(ii.quantity),0)::bigint,
			COALESCE(SUM(ii.line_total),0)::float8,
			COALESCE(SUM(ii.quantity * COALESCE(p.cost_price, 0)),0)::float8
		FROM invoice_items ii
		JOIN invoices i ON i.invoice_number = ii.invoice_number
		LEFT JOIN products p ON p.display_name = ii.product_name
		WHERE i.created_at >= $1 AND i.created_at < $2
		GROUP BY ii.product_name
		ORDER BY SUM(ii.line_total) - SUM(ii.quantity * COALESCE(p.cost_price, 0)) DESC, ii.product_name
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.ProductProfit, 0, 32)
	for rows.Next() {
		var entry domain.ProductProfit
		if err := rows.Scan(&entry.ProductName, &entry.Quantity, &entry.Revenue, &entry.Cost); err != nil {
			return nil, err
		}
		entry.Revenue = invoice.Round2(entry.Revenue)
		entry.Cost = invoice.Round2(entry.Cost)
		entry.Profit = invoice.Round2(entry.Revenue - entry.Cost)
		if entry.Revenue != 0 {
			entry.MarginPercent = invoice.Round2(entry.Profit / entry.Revenue * 100)
		}
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) TopProducts(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.TopProduct, error) {
	if limit < 1 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ii.product_name,
			COALESCE(SUM(ii.quantity),0)::bigint,
			COALESCE(SUM(ii.line_total),0)::float8,
			COUNT(DISTINCT ii.invoice_number)::bigint
		FROM invoice_items ii
		JOIN invoices i ON i.invoice_number = ii.invoice_number
		WHERE i.created_at >= $1 AND i.created_at < $2
		GROUP BY ii.product_name
		ORDER BY SUM(ii.quantity) DESC, ii.product_name
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.TopProduct, 0, limit)
	for rows.Next() {
		var entry domain.TopProduct
		if err := rows.Scan(&entry.ProductName, &entry.Quantity, &entry.Revenue, &entry.TimesOrdered); err != nil {
			return nil, err
		}
		entry.Revenue = invoice.Round2(entry.Revenue)
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = "staff"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateUser
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanProduct(rows *sql.Rows) (domain.Product, error) {
	var p domain.Product
	if err := rows.Scan(&p.Name, &p.Weight, &p.DisplayName, &p.Quantity, &p.DamagedQuantity, &p.CostPrice, &p.SellingPrice, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return p, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// isSerializationFailure reports a SERIALIZABLE commit conflict (SQLSTATE
// 40001), which is safe to retry on a fresh transaction.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
