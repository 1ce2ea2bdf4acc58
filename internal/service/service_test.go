package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"invobook/backend/internal/domain"
	"invobook/backend/internal/invoice"
	"invobook/backend/internal/store"
	"invobook/backend/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.NewSeeded(), nil)
}

func adminContext() context.Context {
	return WithActor(context.Background(), domain.Actor{
		Username: "admin",
		Role:     "admin",
	})
}

func price(v float64) *float64 {
	return &v
}

func TestCreateSaleHappyPath(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	inv, err := svc.CreateSale(ctx, domain.SaleRequest{
		Customer: domain.CustomerInfo{Name: "Ravi Kumar", Phone: "9876543210"},
		Items: []domain.SaleItemInput{
			{ProductName: "Rice (5kg)", Quantity: 3, UnitPrice: price(450)},
			{ProductName: "Sugar (1kg)", Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	if !strings.HasPrefix(inv.InvoiceNumber, "INV-") {
		t.Fatalf("unexpected invoice number %q", inv.InvoiceNumber)
	}
	if inv.Subtotal != 1440 {
		t.Fatalf("expected subtotal 1440, got %.2f", inv.Subtotal)
	}
	if inv.TotalAmount != inv.Subtotal {
		t.Fatalf("total %.2f should equal subtotal %.2f", inv.TotalAmount, inv.Subtotal)
	}

	rice, err := svc.GetProduct(ctx, "Rice (5kg)")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if rice.Quantity != 37 {
		t.Fatalf("expected rice stock 37 after sale, got %d", rice.Quantity)
	}
}

func TestCreateSaleCapturesProductWeight(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	inv, err := svc.CreateSale(ctx, domain.SaleRequest{
		Customer: domain.CustomerInfo{Name: "Ravi Kumar"},
		Items: []domain.SaleItemInput{
			{ProductName: "Rice (5kg)", Quantity: 1},
			{ProductName: "Matchbox", Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	if inv.Items[0].Weight != "5kg" {
		t.Fatalf("expected weight 5kg on rice line, got %q", inv.Items[0].Weight)
	}
	if inv.Items[1].Weight != "" {
		t.Fatalf("weightless product should carry no weight, got %q", inv.Items[1].Weight)
	}

	// The captured weight must survive later catalog edits.
	if err := svc.DeleteProduct(adminContext(), "Rice (5kg)"); err != nil {
		t.Fatalf("delete product failed: %v", err)
	}
	saved, err := svc.GetInvoice(ctx, inv.InvoiceNumber)
	if err != nil {
		t.Fatalf("get invoice failed: %v", err)
	}
	if saved.Items[0].Weight != "5kg" {
		t.Fatalf("stored invoice lost the sale-time weight, got %q", saved.Items[0].Weight)
	}
}

func TestCreateSaleUsesCatalogPriceWhenUnset(t *testing.T) {
	svc := newTestService()

	inv, err := svc.CreateSale(context.Background(), domain.SaleRequest{
		Customer: domain.CustomerInfo{Name: "Meena"},
		Items: []domain.SaleItemInput{
			{ProductName: "Matchbox", Quantity: 5},
		},
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	if inv.Items[0].UnitPrice != 2 {
		t.Fatalf("expected catalog unit price 2, got %.2f", inv.Items[0].UnitPrice)
	}
	if inv.TotalAmount != 10 {
		t.Fatalf("expected total 10, got %.2f", inv.TotalAmount)
	}
}

func TestCreateSaleCollectsAllValidationErrors(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateSale(context.Background(), domain.SaleRequest{
		Customer: domain.CustomerInfo{Name: "", Phone: "98-76"},
		Items: []domain.SaleItemInput{
			{ProductName: "Rice (5kg)", Quantity: 0},
			{ProductName: "", Quantity: 1, UnitPrice: price(-5)},
		},
	})
	if err == nil {
		t.Fatalf("expected validation failure")
	}

	var saleErr *SaleError
	if !errors.As(err, &saleErr) {
		t.Fatalf("expected *SaleError, got %T", err)
	}
	if saleErr.Step != domain.SaleStepValidating {
		t.Fatalf("expected validating step, got %s", saleErr.Step)
	}

	var valErr *invoice.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected *invoice.ValidationError, got %T", saleErr.Err)
	}

	want := []string{
		"Customer name is required",
		"Phone number should contain only digits",
		"Item 1: Quantity must be greater than 0",
		"Item 2: Product name is required",
		"Item 2: Unit price must be greater than 0",
	}
	if len(valErr.Messages) != len(want) {
		t.Fatalf("expected %d messages, got %d: %v", len(want), len(valErr.Messages), valErr.Messages)
	}
	for i, msg := range want {
		if valErr.Messages[i] != msg {
			t.Fatalf("message %d: expected %q, got %q", i, msg, valErr.Messages[i])
		}
	}
}

func TestCreateSaleInsufficientStockNamesStep(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateSale(context.Background(), domain.SaleRequest{
		Customer: domain.CustomerInfo{Name: "Anil"},
		Items: []domain.SaleItemInput{
			{ProductName: "Rice (5kg)", Quantity: 500},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	var saleErr *SaleError
	if !errors.As(err, &saleErr) || saleErr.Step != domain.SaleStepStockChecking {
		t.Fatalf("expected stock_checking step, got %v", err)
	}

	rice, err := svc.GetProduct(context.Background(), "Rice (5kg)")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if rice.Quantity != 40 {
		t.Fatalf("failed sale must not touch stock, got %d", rice.Quantity)
	}
}

func TestCreateSaleUnknownProduct(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateSale(context.Background(), domain.SaleRequest{
		Customer: domain.CustomerInfo{Name: "Anil"},
		Items: []domain.SaleItemInput{
			{ProductName: "Saffron (1g)", Quantity: 1},
		},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateSaleAggregatesDuplicateLines(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	// Matchbox is seeded with 100 units; two lines of 60 must fail together.
	_, err := svc.CreateSale(ctx, domain.SaleRequest{
		Customer: domain.CustomerInfo{Name: "Anil"},
		Items: []domain.SaleItemInput{
			{ProductName: "Matchbox", Quantity: 60},
			{ProductName: "Matchbox", Quantity: 60},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock for aggregated lines, got %v", err)
	}
}

func TestPreviewSaleDoesNotTouchStock(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	preview, err := svc.PreviewSale(ctx, domain.SaleRequest{
		Customer: domain.CustomerInfo{Name: "Ravi"},
		Items: []domain.SaleItemInput{
			{ProductName: "Rice (5kg)", Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("preview failed: %v", err)
	}
	if preview.Subtotal != 900 {
		t.Fatalf("expected subtotal 900, got %.2f", preview.Subtotal)
	}

	rice, err := svc.GetProduct(ctx, "Rice (5kg)")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if rice.Quantity != 40 {
		t.Fatalf("preview must not change stock, got %d", rice.Quantity)
	}
}

func TestAddProductRequiresAdmin(t *testing.T) {
	svc := newTestService()

	req := domain.ProductCreateRequest{Name: "Jaggery", Weight: "1kg", Quantity: 10, CostPrice: 40, SellingPrice: 55}

	if _, err := svc.AddProduct(context.Background(), req); err == nil {
		t.Fatalf("expected add product to fail without admin actor")
	}

	created, err := svc.AddProduct(adminContext(), req)
	if err != nil {
		t.Fatalf("add product failed: %v", err)
	}
	if created.DisplayName != "Jaggery (1kg)" {
		t.Fatalf("expected display name Jaggery (1kg), got %q", created.DisplayName)
	}
}

func TestAddProductDuplicateDisplayName(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	_, err := svc.AddProduct(ctx, domain.ProductCreateRequest{Name: "Rice", Weight: "5kg", Quantity: 5, CostPrice: 400, SellingPrice: 450})
	if !errors.Is(err, store.ErrDuplicateProduct) {
		t.Fatalf("expected duplicate product, got %v", err)
	}

	// Same base name with a different weight is a distinct catalog entry.
	if _, err := svc.AddProduct(ctx, domain.ProductCreateRequest{Name: "Rice", Weight: "25kg", Quantity: 5, CostPrice: 1900, SellingPrice: 2100}); err != nil {
		t.Fatalf("expected distinct weight variant to be accepted: %v", err)
	}
}

func TestDamageTransferRoundTrip(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	marked, err := svc.MarkDamaged(ctx, domain.DamageTransferRequest{DisplayName: "Sugar (1kg)", Quantity: 4})
	if err != nil {
		t.Fatalf("mark damaged failed: %v", err)
	}
	if marked.Quantity != 56 || marked.DamagedQuantity != 4 {
		t.Fatalf("unexpected partition after mark: available=%d damaged=%d", marked.Quantity, marked.DamagedQuantity)
	}

	report, err := svc.DamagedReport(ctx)
	if err != nil {
		t.Fatalf("damaged report failed: %v", err)
	}
	if report.TotalValueLost != 152 {
		t.Fatalf("expected value lost 152, got %.2f", report.TotalValueLost)
	}

	restored, err := svc.RestoreDamaged(ctx, domain.DamageTransferRequest{DisplayName: "Sugar (1kg)", Quantity: 4})
	if err != nil {
		t.Fatalf("restore damaged failed: %v", err)
	}
	if restored.Quantity != 60 || restored.DamagedQuantity != 0 {
		t.Fatalf("unexpected partition after restore: available=%d damaged=%d", restored.Quantity, restored.DamagedQuantity)
	}

	_, err = svc.RestoreDamaged(ctx, domain.DamageTransferRequest{DisplayName: "Sugar (1kg)", Quantity: 1})
	if !errors.Is(err, store.ErrInsufficientDamagedStock) {
		t.Fatalf("expected insufficient damaged stock, got %v", err)
	}
}

func TestResolveWindowPeriods(t *testing.T) {
	daily, err := ResolveWindow("daily", "", "")
	if err != nil {
		t.Fatalf("daily window failed: %v", err)
	}
	if got := daily.To.Sub(daily.From).Hours(); got != 24 {
		t.Fatalf("expected a 24h daily window, got %.0fh", got)
	}

	weekly, err := ResolveWindow("weekly", "", "")
	if err != nil {
		t.Fatalf("weekly window failed: %v", err)
	}
	if got := weekly.To.Sub(weekly.From).Hours(); got != 8*24 {
		t.Fatalf("expected weekly window to span 8 days, got %.0fh", got)
	}

	ranged, err := ResolveWindow("range", "2026-08-01", "2026-08-15")
	if err != nil {
		t.Fatalf("range window failed: %v", err)
	}
	if ranged.From.Format("2006-01-02") != "2026-08-01" {
		t.Fatalf("unexpected range start %s", ranged.From)
	}
	if ranged.To.Format("2006-01-02") != "2026-08-16" {
		t.Fatalf("range end must include the final day, got %s", ranged.To)
	}

	if _, err := ResolveWindow("range", "2026-08-15", "2026-08-01"); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected inverted range to fail, got %v", err)
	}
	if _, err := ResolveWindow("quarterly", "", ""); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected unknown period to fail, got %v", err)
	}
}

func TestResolveWindowExplicitDatesOverridePeriod(t *testing.T) {
	for _, period := range []string{"", "daily", "weekly", "monthly"} {
		window, err := ResolveWindow(period, "2026-01-01", "2026-01-31")
		if err != nil {
			t.Fatalf("period %q with explicit dates failed: %v", period, err)
		}
		if window.Period != domain.PeriodRange {
			t.Fatalf("period %q: expected range, got %q", period, window.Period)
		}
		if window.From.Format("2006-01-02") != "2026-01-01" {
			t.Fatalf("period %q: unexpected start %s", period, window.From)
		}
		if window.To.Format("2006-01-02") != "2026-02-01" {
			t.Fatalf("period %q: unexpected end %s", period, window.To)
		}
	}

	// A lone date is not an override; the named period still wins.
	window, err := ResolveWindow("daily", "2026-01-01", "")
	if err != nil {
		t.Fatalf("daily with lone start date failed: %v", err)
	}
	if window.Period != domain.PeriodDaily {
		t.Fatalf("expected daily, got %q", window.Period)
	}
}

func TestSummaryReportAfterSales(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	for _, customer := range []string{"Ravi", "Meena", "Ravi"} {
		_, err := svc.CreateSale(ctx, domain.SaleRequest{
			Customer: domain.CustomerInfo{Name: customer},
			Items: []domain.SaleItemInput{
				{ProductName: "Rice (5kg)", Quantity: 1},
			},
		})
		if err != nil {
			t.Fatalf("create sale failed: %v", err)
		}
	}

	report, err := svc.SummaryReport(ctx, "daily", "", "")
	if err != nil {
		t.Fatalf("summary report failed: %v", err)
	}
	if report.Stats.InvoiceCount != 3 {
		t.Fatalf("expected 3 invoices, got %d", report.Stats.InvoiceCount)
	}
	if report.Stats.TotalRevenue != 1350 {
		t.Fatalf("expected revenue 1350, got %.2f", report.Stats.TotalRevenue)
	}
	if report.Stats.TotalProfit != 150 {
		t.Fatalf("expected profit 150, got %.2f", report.Stats.TotalProfit)
	}
	if report.Stats.UniqueCustomers != 2 {
		t.Fatalf("expected 2 unique customers, got %d", report.Stats.UniqueCustomers)
	}
}

func TestProfitReportSortsByProfit(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.CreateSale(ctx, domain.SaleRequest{
		Customer: domain.CustomerInfo{Name: "Ravi"},
		Items: []domain.SaleItemInput{
			{ProductName: "Rice (5kg)", Quantity: 2},
			{ProductName: "Salt (1kg)", Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	report, err := svc.ProfitReport(ctx, "daily", "", "")
	if err != nil {
		t.Fatalf("profit report failed: %v", err)
	}
	if len(report.Products) != 2 {
		t.Fatalf("expected 2 products, got %d", len(report.Products))
	}
	if report.Products[0].ProductName != "Rice (5kg)" {
		t.Fatalf("expected Rice (5kg) first, got %s", report.Products[0].ProductName)
	}
	if report.Products[0].Profit != 100 {
		t.Fatalf("expected rice profit 100, got %.2f", report.Products[0].Profit)
	}
}

func TestTopProductsReportDefaultLimit(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.CreateSale(ctx, domain.SaleRequest{
		Customer: domain.CustomerInfo{Name: "Ravi"},
		Items: []domain.SaleItemInput{
			{ProductName: "Sugar (1kg)", Quantity: 3},
		},
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	report, err := svc.TopProductsReport(ctx, "daily", "", "", 0)
	if err != nil {
		t.Fatalf("top products report failed: %v", err)
	}
	if len(report.Products) != 1 {
		t.Fatalf("expected 1 product, got %d", len(report.Products))
	}
	if report.Products[0].Quantity != 3 {
		t.Fatalf("expected quantity 3, got %d", report.Products[0].Quantity)
	}
}

func TestListInvoicesWindow(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.CreateSale(ctx, domain.SaleRequest{
		Customer: domain.CustomerInfo{Name: "Ravi"},
		Items: []domain.SaleItemInput{
			{ProductName: "Matchbox", Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	invoices, err := svc.ListInvoices(ctx, "", "", 0)
	if err != nil {
		t.Fatalf("list invoices failed: %v", err)
	}
	if len(invoices) != 1 {
		t.Fatalf("expected 1 invoice, got %d", len(invoices))
	}

	none, err := svc.ListInvoices(ctx, "2001-01-01", "2001-01-31", 0)
	if err != nil {
		t.Fatalf("list invoices failed: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no invoices in a past window, got %d", len(none))
	}

	if _, err := svc.ListInvoices(ctx, "not-a-date", "", 0); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid date to fail, got %v", err)
	}
}
