package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"invobook/backend/internal/domain"
	"invobook/backend/internal/invoice"
	"invobook/backend/internal/store"
)

func testInvoice(number string, customer string, items ...domain.InvoiceItem) domain.Invoice {
	subtotal := invoice.Subtotal(items)
	return domain.Invoice{
		InvoiceNumber: number,
		CustomerName:  customer,
		Items:         items,
		Subtotal:      subtotal,
		TotalAmount:   invoice.Total(subtotal),
		CreatedAt:     time.Now().UTC(),
	}
}

func item(name string, qty int, unitPrice float64) domain.InvoiceItem {
	return domain.InvoiceItem{
		ProductName: name,
		Quantity:    qty,
		UnitPrice:   unitPrice,
		LineTotal:   invoice.LineTotal(unitPrice, qty),
	}
}

func TestSeededCatalog(t *testing.T) {
	s := NewSeeded()
	products, err := s.ListProducts(context.Background())
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	if len(products) != 10 {
		t.Fatalf("expected 10 seeded products, got %d", len(products))
	}

	rice, err := s.GetProduct(context.Background(), "Rice (5kg)")
	if err != nil {
		t.Fatalf("get rice: %v", err)
	}
	if rice.Quantity != 40 || rice.CostPrice != 400 || rice.SellingPrice != 450 {
		t.Fatalf("unexpected rice seed: %+v", rice)
	}

	matchbox, err := s.GetProduct(context.Background(), "Matchbox")
	if err != nil {
		t.Fatalf("weightless product should be keyed by bare name: %v", err)
	}
	if matchbox.DisplayName != "Matchbox" {
		t.Fatalf("unexpected display name %q", matchbox.DisplayName)
	}
}

func TestCreateProductDuplicate(t *testing.T) {
	s := NewSeeded()
	_, err := s.CreateProduct(context.Background(), domain.Product{
		Name: "Rice", Weight: "5kg", Quantity: 5, CostPrice: 400, SellingPrice: 450,
	})
	if !errors.Is(err, store.ErrDuplicateProduct) {
		t.Fatalf("expected ErrDuplicateProduct, got %v", err)
	}

	created, err := s.CreateProduct(context.Background(), domain.Product{
		Name: "Rice", Weight: "25kg", Quantity: 5, CostPrice: 1900, SellingPrice: 2100,
	})
	if err != nil {
		t.Fatalf("different weight should be a distinct product: %v", err)
	}
	if created.DisplayName != "Rice (25kg)" {
		t.Fatalf("unexpected display name %q", created.DisplayName)
	}
}

func TestCreateProductRejectsInvalidInput(t *testing.T) {
	s := New()
	cases := []domain.Product{
		{Name: "  ", Quantity: 1, CostPrice: 1, SellingPrice: 2},
		{Name: "Ghee", Quantity: -1, CostPrice: 1, SellingPrice: 2},
		{Name: "Ghee", Quantity: 1, CostPrice: -1, SellingPrice: 2},
	}
	for _, p := range cases {
		if _, err := s.CreateProduct(context.Background(), p); !errors.Is(err, store.ErrInvalidInput) {
			t.Errorf("product %+v: expected ErrInvalidInput, got %v", p, err)
		}
	}
}

func TestCreateInvoiceInsufficientStockLeavesStateIntact(t *testing.T) {
	s := NewSeeded()
	inv := testInvoice("INV-20260830120000-AAAAA1", "Ravi",
		item("Sugar (1kg)", 10, 45),
		item("Rice (5kg)", 500, 450),
	)
	_, err := s.CreateInvoice(context.Background(), inv)
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	sugar, _ := s.GetProduct(context.Background(), "Sugar (1kg)")
	if sugar.Quantity != 60 {
		t.Fatalf("sugar stock changed on failed sale: %d", sugar.Quantity)
	}
	if _, err := s.GetInvoiceByNumber(context.Background(), inv.InvoiceNumber); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("failed sale must not record an invoice, got %v", err)
	}
}

func TestCreateInvoiceUnknownProduct(t *testing.T) {
	s := NewSeeded()
	inv := testInvoice("INV-20260830120000-AAAAA2", "Ravi", item("Ghee (1kg)", 1, 500))
	if _, err := s.CreateInvoice(context.Background(), inv); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateInvoiceDuplicateNumber(t *testing.T) {
	s := NewSeeded()
	inv := testInvoice("INV-20260830120000-AAAAA3", "Ravi", item("Salt (1kg)", 1, 24))
	if _, err := s.CreateInvoice(context.Background(), inv); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := s.CreateInvoice(context.Background(), inv); !errors.Is(err, store.ErrDuplicateInvoice) {
		t.Fatalf("expected ErrDuplicateInvoice, got %v", err)
	}
}

func TestCreateInvoiceConcurrentNeverOversells(t *testing.T) {
	s := NewSeeded()
	// Detergent Bar seeds at 55; 80 single-unit sales must fail 25 times.
	const attempts = 80
	var wg sync.WaitGroup
	var mu sync.Mutex
	sold := 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inv := testInvoice(invoice.Number(), "Walk-in", item("Detergent Bar", 1, 30))
			if _, err := s.CreateInvoice(context.Background(), inv); err == nil {
				mu.Lock()
				sold++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if sold != 55 {
		t.Fatalf("expected exactly 55 successful sales, got %d", sold)
	}
	product, _ := s.GetProduct(context.Background(), "Detergent Bar")
	if product.Quantity != 0 {
		t.Fatalf("expected stock 0 after sellout, got %d", product.Quantity)
	}
}

func TestDamagedLifecycle(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	if _, err := s.MarkDamaged(ctx, "Sugar (1kg)", 4); err != nil {
		t.Fatalf("mark damaged: %v", err)
	}
	if _, err := s.MarkDamaged(ctx, "Salt (1kg)", 2); err != nil {
		t.Fatalf("mark damaged: %v", err)
	}

	damaged, err := s.DamagedProducts(ctx)
	if err != nil {
		t.Fatalf("damaged products: %v", err)
	}
	if len(damaged) != 2 {
		t.Fatalf("expected 2 damaged entries, got %d", len(damaged))
	}
	// Sorted by damaged quantity, highest first.
	if damaged[0].DisplayName != "Sugar (1kg)" || damaged[0].DamagedQuantity != 4 {
		t.Fatalf("unexpected first entry: %+v", damaged[0])
	}
	if damaged[0].ValueLost != 152 {
		t.Fatalf("expected value lost 152 for 4 sugar units, got %v", damaged[0].ValueLost)
	}

	if _, err := s.RestoreDamaged(ctx, "Sugar (1kg)", 4); err != nil {
		t.Fatalf("restore damaged: %v", err)
	}
	sugar, _ := s.GetProduct(ctx, "Sugar (1kg)")
	if sugar.Quantity != 60 || sugar.DamagedQuantity != 0 {
		t.Fatalf("restore did not round-trip: %+v", sugar)
	}

	if _, err := s.RestoreDamaged(ctx, "Sugar (1kg)", 1); !errors.Is(err, store.ErrInsufficientDamagedStock) {
		t.Fatalf("expected ErrInsufficientDamagedStock, got %v", err)
	}
	if _, err := s.MarkDamaged(ctx, "Sugar (1kg)", 1000); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestAdjustQuantityUnderflow(t *testing.T) {
	s := NewSeeded()
	if _, err := s.AdjustQuantity(context.Background(), "Matchbox", -101); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	product, _ := s.GetProduct(context.Background(), "Matchbox")
	if product.Quantity != 100 {
		t.Fatalf("failed adjust changed stock: %d", product.Quantity)
	}
}

func TestSalesByProductOrdersByQuantity(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	mustCreate(t, s, testInvoice(invoice.Number(), "Ravi",
		item("Rice (5kg)", 2, 450),
		item("Sugar (1kg)", 5, 45),
	))
	mustCreate(t, s, testInvoice(invoice.Number(), "Meena",
		item("Sugar (1kg)", 3, 45),
	))

	from := time.Now().UTC().Add(-time.Hour)
	to := time.Now().UTC().Add(time.Hour)
	sales, err := s.SalesByProduct(ctx, from, to)
	if err != nil {
		t.Fatalf("sales by product: %v", err)
	}
	if len(sales) != 2 {
		t.Fatalf("expected 2 products, got %d", len(sales))
	}
	if sales[0].ProductName != "Sugar (1kg)" || sales[0].Quantity != 8 {
		t.Fatalf("unexpected leader: %+v", sales[0])
	}
	if sales[0].OrderCount != 2 {
		t.Fatalf("sugar appears on 2 invoices, got order count %d", sales[0].OrderCount)
	}
	if sales[0].Revenue != 360 || sales[0].AveragePrice != 45 {
		t.Fatalf("unexpected sugar figures: %+v", sales[0])
	}
}

func TestProfitByProductUsesCatalogCost(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	mustCreate(t, s, testInvoice(invoice.Number(), "Ravi", item("Rice (5kg)", 2, 450)))

	from := time.Now().UTC().Add(-time.Hour)
	to := time.Now().UTC().Add(time.Hour)
	profit, err := s.ProfitByProduct(ctx, from, to)
	if err != nil {
		t.Fatalf("profit by product: %v", err)
	}
	if len(profit) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(profit))
	}
	entry := profit[0]
	if entry.Revenue != 900 || entry.Cost != 800 || entry.Profit != 100 {
		t.Fatalf("unexpected profit entry: %+v", entry)
	}
	if entry.MarginPercent != invoice.Round2(100.0/900.0*100) {
		t.Fatalf("unexpected margin: %v", entry.MarginPercent)
	}
}

func TestProfitByProductDeletedProductCostsZero(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	mustCreate(t, s, testInvoice(invoice.Number(), "Ravi", item("Matchbox", 10, 2)))
	if err := s.DeleteProduct(ctx, "Matchbox"); err != nil {
		t.Fatalf("delete product: %v", err)
	}

	from := time.Now().UTC().Add(-time.Hour)
	to := time.Now().UTC().Add(time.Hour)
	profit, err := s.ProfitByProduct(ctx, from, to)
	if err != nil {
		t.Fatalf("profit by product: %v", err)
	}
	if profit[0].Cost != 0 || profit[0].Profit != 20 {
		t.Fatalf("deleted product should cost zero in reports: %+v", profit[0])
	}
}

func TestTopProductsTracksTimesOrdered(t *testing.T) {
	s := NewSeeded()
	mustCreate(t, s, testInvoice(invoice.Number(), "Ravi", item("Salt (1kg)", 2, 24)))
	mustCreate(t, s, testInvoice(invoice.Number(), "Meena", item("Salt (1kg)", 1, 24)))
	mustCreate(t, s, testInvoice(invoice.Number(), "Arun", item("Rice (5kg)", 5, 450)))

	from := time.Now().UTC().Add(-time.Hour)
	to := time.Now().UTC().Add(time.Hour)
	top, err := s.TopProducts(context.Background(), from, to, 10)
	if err != nil {
		t.Fatalf("top products: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("expected 2 products, got %d", len(top))
	}
	if top[0].ProductName != "Rice (5kg)" || top[0].Quantity != 5 {
		t.Fatalf("unexpected leader: %+v", top[0])
	}
	if top[1].ProductName != "Salt (1kg)" || top[1].TimesOrdered != 2 {
		t.Fatalf("unexpected runner-up: %+v", top[1])
	}

	limited, err := s.TopProducts(context.Background(), from, to, 1)
	if err != nil {
		t.Fatalf("top products limited: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("limit 1 should cap the list, got %d", len(limited))
	}
}

func TestSummaryStatsCountsCatalogWideDamage(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	mustCreate(t, s, testInvoice(invoice.Number(), "Ravi", item("Rice (5kg)", 1, 450)))
	mustCreate(t, s, testInvoice(invoice.Number(), "Ravi", item("Sugar (1kg)", 2, 45)))
	if _, err := s.MarkDamaged(ctx, "Salt (1kg)", 3); err != nil {
		t.Fatalf("mark damaged: %v", err)
	}

	from := time.Now().UTC().Add(-time.Hour)
	to := time.Now().UTC().Add(time.Hour)
	stats, err := s.SummaryStats(ctx, from, to)
	if err != nil {
		t.Fatalf("summary stats: %v", err)
	}
	if stats.InvoiceCount != 2 || stats.UnitsSold != 3 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	if stats.TotalRevenue != 540 {
		t.Fatalf("expected revenue 540, got %v", stats.TotalRevenue)
	}
	if stats.TotalProfit != 64 {
		t.Fatalf("expected profit 64, got %v", stats.TotalProfit)
	}
	if stats.UniqueCustomers != 1 {
		t.Fatalf("expected 1 unique customer, got %d", stats.UniqueCustomers)
	}
	if stats.DamagedUnits != 3 || stats.DamagedValue != 54 {
		t.Fatalf("unexpected damaged figures: %+v", stats)
	}
}

func TestSummaryStatsWindowExcludesOutsideSales(t *testing.T) {
	s := NewSeeded()
	mustCreate(t, s, testInvoice(invoice.Number(), "Ravi", item("Salt (1kg)", 1, 24)))

	from := time.Now().UTC().Add(-48 * time.Hour)
	to := time.Now().UTC().Add(-24 * time.Hour)
	stats, err := s.SummaryStats(context.Background(), from, to)
	if err != nil {
		t.Fatalf("summary stats: %v", err)
	}
	if stats.InvoiceCount != 0 || stats.TotalRevenue != 0 {
		t.Fatalf("window should exclude today's sale: %+v", stats)
	}
}

func TestListInvoicesNewestFirstAndLimited(t *testing.T) {
	s := NewSeeded()
	first := testInvoice(invoice.Number(), "Ravi", item("Salt (1kg)", 1, 24))
	first.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	second := testInvoice(invoice.Number(), "Meena", item("Salt (1kg)", 1, 24))
	second.CreatedAt = time.Now().UTC().Add(-time.Hour)
	mustCreate(t, s, first)
	mustCreate(t, s, second)

	from := time.Now().UTC().Add(-24 * time.Hour)
	to := time.Now().UTC().Add(time.Hour)
	invoices, err := s.ListInvoices(context.Background(), from, to, 0)
	if err != nil {
		t.Fatalf("list invoices: %v", err)
	}
	if len(invoices) != 2 {
		t.Fatalf("expected 2 invoices, got %d", len(invoices))
	}
	if invoices[0].InvoiceNumber != second.InvoiceNumber {
		t.Fatalf("expected newest first, got %s", invoices[0].InvoiceNumber)
	}

	limited, err := s.ListInvoices(context.Background(), from, to, 1)
	if err != nil {
		t.Fatalf("list invoices limited: %v", err)
	}
	if len(limited) != 1 || limited[0].InvoiceNumber != second.InvoiceNumber {
		t.Fatalf("limit should keep the newest invoice: %+v", limited)
	}
}

func TestUserAccounts(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	if err := s.CreateUser(ctx, domain.UserAccount{Username: "admin", Password: "x"}); !errors.Is(err, store.ErrDuplicateUser) {
		t.Fatalf("expected ErrDuplicateUser, got %v", err)
	}
	if err := s.CreateUser(ctx, domain.UserAccount{Username: " ", Password: "x"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := s.CreateUser(ctx, domain.UserAccount{Username: "Clerk", Password: "secret"}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("expected 3 users, got %d", len(users))
	}
	// Usernames are lowercased and the list is sorted.
	if users[0].Username != "admin" || users[1].Username != "clerk" || users[2].Username != "staff" {
		t.Fatalf("unexpected usernames: %v", []string{users[0].Username, users[1].Username, users[2].Username})
	}
	if users[1].Role != "staff" {
		t.Fatalf("default role should be staff, got %q", users[1].Role)
	}

	if err := s.UpdateUserPassword(ctx, "clerk", "rotated"); err != nil {
		t.Fatalf("update password: %v", err)
	}
	if err := s.UpdateUserPassword(ctx, "ghost", "x"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func mustCreate(t *testing.T, s *Store, inv domain.Invoice) {
	t.Helper()
	if _, err := s.CreateInvoice(context.Background(), inv); err != nil {
		t.Fatalf("create invoice %s: %v", inv.InvoiceNumber, err)
	}
}
