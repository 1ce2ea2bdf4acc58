package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"invobook/backend/internal/domain"
	"invobook/backend/internal/invoice"
	"invobook/backend/internal/store"
)

type Store struct {
	mu               sync.RWMutex
	products         map[string]domain.Product
	invoicesByNumber map[string]*domain.Invoice
	usersByUsername  map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"staff", staffPwd, "staff"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		products:         make(map[string]domain.Product),
		invoicesByNumber: make(map[string]*domain.Invoice),
		usersByUsername:  seedUsers(),
	}
}

func NewSeeded() *Store {
	seed := []domain.Product{
		{Name: "Rice", Weight: "5kg", Quantity: 40, CostPrice: 400, SellingPrice: 450},
		{Name: "Rice", Weight: "10kg", Quantity: 25, CostPrice: 780, SellingPrice: 860},
		{Name: "Sugar", Weight: "1kg", Quantity: 60, CostPrice: 38, SellingPrice: 45},
		{Name: "Wheat Flour", Weight: "5kg", Quantity: 30, CostPrice: 190, SellingPrice: 225},
		{Name: "Cooking Oil", Weight: "1L", Quantity: 50, CostPrice: 120, SellingPrice: 140},
		{Name: "Toor Dal", Weight: "1kg", Quantity: 45, CostPrice: 110, SellingPrice: 130},
		{Name: "Tea Powder", Weight: "250g", Quantity: 70, CostPrice: 95, SellingPrice: 115},
		{Name: "Salt", Weight: "1kg", Quantity: 80, CostPrice: 18, SellingPrice: 24},
		{Name: "Matchbox", Quantity: 100, CostPrice: 1, SellingPrice: 2},
		{Name: "Detergent Bar", Quantity: 55, CostPrice: 22, SellingPrice: 30},
	}

	now := time.Now().UTC()
	products := make(map[string]domain.Product, len(seed))
	for _, p := range seed {
		p.DisplayName = domain.FullProductName(p.Name, p.Weight)
		p.CreatedAt = now
		p.UpdatedAt = now
		products[p.DisplayName] = p
	}

	return &Store{
		products:         products,
		invoicesByNumber: make(map[string]*domain.Invoice),
		usersByUsername:  seedUsers(),
	}
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmpString(a.DisplayName, b.DisplayName)
	})

	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product.Name = strings.TrimSpace(product.Name)
	product.Weight = strings.TrimSpace(product.Weight)
	if product.Name == "" || product.Quantity < 0 || product.CostPrice < 0 || product.SellingPrice < 0 {
		return nil, store.ErrInvalidInput
	}
	product.DisplayName = domain.FullProductName(product.Name, product.Weight)
	if _, exists := s.products[product.DisplayName]; exists {
		return nil, store.ErrDuplicateProduct
	}

	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	s.products[product.DisplayName] = product
	created := product
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, displayName string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[displayName]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) SetQuantity(_ context.Context, displayName string, quantity int) (*domain.Product, error) {
	if quantity < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[displayName]
	if !exists {
		return nil, store.ErrNotFound
	}
	product.Quantity = quantity
	product.UpdatedAt = time.Now().UTC()
	s.products[displayName] = product
	updated := product
	return &updated, nil
}

func (s *Store) AdjustQuantity(_ context.Context, displayName string, delta int) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[displayName]
	if !exists {
		return nil, store.ErrNotFound
	}
	if product.Quantity+delta < 0 {
		return nil, store.ErrInsufficientStock
	}
	product.Quantity += delta
	product.UpdatedAt = time.Now().UTC()
	s.products[displayName] = product
	updated := product
	return &updated, nil
}

func (s *Store) MarkDamaged(_ context.Context, displayName string, quantity int) (*domain.Product, error) {
	if quantity < 1 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[displayName]
	if !exists {
		return nil, store.ErrNotFound
	}
	if product.Quantity < quantity {
		return nil, store.ErrInsufficientStock
	}
	product.Quantity -= quantity
	product.DamagedQuantity += quantity
	product.UpdatedAt = time.Now().UTC()
	s.products[displayName] = product
	updated := product
	return &updated, nil
}

func (s *Store) RestoreDamaged(_ context.Context, displayName string, quantity int) (*domain.Product, error) {
	if quantity < 1 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[displayName]
	if !exists {
		return nil, store.ErrNotFound
	}
	if product.DamagedQuantity < quantity {
		return nil, store.ErrInsufficientDamagedStock
	}
	product.DamagedQuantity -= quantity
	product.Quantity += quantity
	product.UpdatedAt = time.Now().UTC()
	s.products[displayName] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[displayName]; !exists {
		return store.ErrNotFound
	}
	delete(s.products, displayName)
	return nil
}

func (s *Store) DamagedProducts(_ context.Context) ([]domain.DamagedProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.DamagedProduct, 0, 16)
	for _, p := range s.products {
		if p.DamagedQuantity < 1 {
			continue
		}
		result = append(result, domain.DamagedProduct{
			DisplayName:     p.DisplayName,
			Quantity:        p.Quantity,
			DamagedQuantity: p.DamagedQuantity,
			CostPrice:       p.CostPrice,
			ValueLost:       invoice.Round2(float64(p.DamagedQuantity) * p.CostPrice),
		})
	}

	slices.SortFunc(result, func(a, b domain.DamagedProduct) int {
		if a.DamagedQuantity == b.DamagedQuantity {
			return cmpString(a.DisplayName, b.DisplayName)
		}
		if a.DamagedQuantity > b.DamagedQuantity {
			return -1
		}
		return 1
	})

	return result, nil
}

// CreateInvoice checks stock, decrements it, and records the invoice as one
// critical section. Either every line commits or nothing changes.
func (s *Store) CreateInvoice(_ context.Context, inv domain.Invoice) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.invoicesByNumber[inv.InvoiceNumber]; exists {
		return nil, store.ErrDuplicateInvoice
	}

	required := make(map[string]int, len(inv.Items))
	for _, item := range inv.Items {
		required[item.ProductName] += item.Quantity
	}
	for name, qty := range required {
		product, exists := s.products[name]
		if !exists {
			return nil, store.ErrNotFound
		}
		if product.Quantity < qty {
			return nil, store.ErrInsufficientStock
		}
	}

	now := time.Now().UTC()
	for name, qty := range required {
		product := s.products[name]
		product.Quantity -= qty
		product.UpdatedAt = now
		s.products[name] = product
	}

	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now
	}
	saved := cloneInvoice(&inv)
	s.invoicesByNumber[inv.InvoiceNumber] = saved

	return cloneInvoice(saved), nil
}

func (s *Store) GetInvoiceByNumber(_ context.Context, number string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, exists := s.invoicesByNumber[number]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneInvoice(inv), nil
}

func (s *Store) ListInvoices(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Invoice, 0, 64)
	for _, inv := range s.invoicesByNumber {
		if inv.CreatedAt.Before(from) || !inv.CreatedAt.Before(to) {
			continue
		}
		result = append(result, *cloneInvoice(inv))
	}

	slices.SortFunc(result, func(a, b domain.Invoice) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.InvoiceNumber, a.InvoiceNumber)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) SummaryStats(_ context.Context, from time.Time, to time.Time) (domain.SummaryStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.SummaryStats{}
	customers := map[string]struct{}{}
	for _, inv := range s.invoicesByNumber {
		if inv.CreatedAt.Before(from) || !inv.CreatedAt.Before(to) {
			continue
		}
		stats.InvoiceCount++
		stats.TotalRevenue += inv.TotalAmount
		customers[inv.CustomerName] = struct{}{}
		for _, item := range inv.Items {
			stats.UnitsSold += int64(item.Quantity)
			cost := 0.0
			if product, ok := s.products[item.ProductName]; ok {
				cost = product.CostPrice
			}
			stats.TotalProfit += float64(item.Quantity) * (item.UnitPrice - cost)
		}
	}
	stats.UniqueCustomers = int64(len(customers))

	// Damaged figures cover the whole catalog, not just the window.
	for _, p := range s.products {
		stats.DamagedUnits += int64(p.DamagedQuantity)
		stats.DamagedValue += float64(p.DamagedQuantity) * p.CostPrice
	}

	stats.TotalRevenue = invoice.Round2(stats.TotalRevenue)
	stats.TotalProfit = invoice.Round2(stats.TotalProfit)
	stats.DamagedValue = invoice.Round2(stats.DamagedValue)
	return stats, nil
}

func (s *Store) SalesByProduct(_ context.Context, from time.Time, to time.Time) ([]domain.ProductSales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byProduct := map[string]*domain.ProductSales{}
	for _, inv := range s.invoicesByNumber {
		if inv.CreatedAt.Before(from) || !inv.CreatedAt.Before(to) {
			continue
		}
		seen := map[string]struct{}{}
		for _, item := range inv.Items {
			entry := byProduct[item.ProductName]
			if entry == nil {
				entry = &domain.ProductSales{ProductName: item.ProductName}
				byProduct[item.ProductName] = entry
			}
			entry.Quantity += int64(item.Quantity)
			entry.Revenue += item.LineTotal
			if _, ok := seen[item.ProductName]; !ok {
				seen[item.ProductName] = struct{}{}
				entry.OrderCount++
			}
		}
	}

	result := make([]domain.ProductSales, 0, len(byProduct))
	for _, entry := range byProduct {
		entry.Revenue = invoice.Round2(entry.Revenue)
		if entry.Quantity > 0 {
			entry.AveragePrice = invoice.Round2(entry.Revenue / float64(entry.Quantity))
		}
		result = append(result, *entry)
	}

	slices.SortFunc(result, func(a, b domain.ProductSales) int {
		if a.Quantity == b.Quantity {
			return cmpString(a.ProductName, b.ProductName)
		}
		if a.Quantity > b.Quantity {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) ProfitByProduct(_ context.Context, from time.Time, to time.Time) ([]domain.ProductProfit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byProduct := map[string]*domain.ProductProfit{}
	for _, inv := range s.invoicesByNumber {
		if inv.CreatedAt.Before(from) || !inv.CreatedAt.Before(to) {
			continue
		}
		for _, item := range inv.Items {
			entry := byProduct[item.ProductName]
			if entry == nil {
				entry = &domain.ProductProfit{ProductName: item.ProductName}
				byProduct[item.ProductName] = entry
			}
			cost := 0.0
			if product, ok := s.products[item.ProductName]; ok {
				cost = product.CostPrice
			}
			entry.Quantity += int64(item.Quantity)
			entry.Revenue += item.LineTotal
			entry.Cost += float64(item.Quantity) * cost
		}
	}

	result := make([]domain.ProductProfit, 0, len(byProduct))
	for _, entry := range byProduct {
		entry.Revenue = invoice.Round2(entry.Revenue)
		entry.Cost = invoice.Round2(entry.Cost)
		entry.Profit = invoice.Round2(entry.Revenue - entry.Cost)
		if entry.Revenue != 0 {
			entry.MarginPercent = invoice.Round2(entry.Profit / entry.Revenue * 100)
		}
		result = append(result, *entry)
	}

	slices.SortFunc(result, func(a, b domain.ProductProfit) int {
		if a.Profit == b.Profit {
			return cmpString(a.ProductName, b.ProductName)
		}
		if a.Profit > b.Profit {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) TopProducts(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.TopProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 10
	}

	byProduct := map[string]*domain.TopProduct{}
	ordered := map[string]map[string]struct{}{}
	for _, inv := range s.invoicesByNumber {
		if inv.CreatedAt.Before(from) || !inv.CreatedAt.Before(to) {
			continue
		}
		for _, item := range inv.Items {
			entry := byProduct[item.ProductName]
			if entry == nil {
				entry = &domain.TopProduct{ProductName: item.ProductName}
				byProduct[item.ProductName] = entry
				ordered[item.ProductName] = map[string]struct{}{}
			}
			entry.Quantity += int64(item.Quantity)
			entry.Revenue += item.LineTotal
			ordered[item.ProductName][inv.InvoiceNumber] = struct{}{}
		}
	}

	result := make([]domain.TopProduct, 0, len(byProduct))
	for name, entry := range byProduct {
		entry.Revenue = invoice.Round2(entry.Revenue)
		entry.TimesOrdered = int64(len(ordered[name]))
		result = append(result, *entry)
	}

	slices.SortFunc(result, func(a, b domain.TopProduct) int {
		if a.Quantity == b.Quantity {
			return cmpString(a.ProductName, b.ProductName)
		}
		if a.Quantity > b.Quantity {
			return -1
		}
		return 1
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrDuplicateUser
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "staff"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneInvoice(src *domain.Invoice) *domain.Invoice {
	if src == nil {
		return nil
	}
	dup := *src
	dupItems := make([]domain.InvoiceItem, len(src.Items))
	copy(dupItems, src.Items)
	dup.Items = dupItems
	return &dup
}
