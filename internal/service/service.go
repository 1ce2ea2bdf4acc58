package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"invobook/backend/internal/cache"
	"invobook/backend/internal/domain"
	"invobook/backend/internal/invoice"
	"invobook/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// SaleError reports which step of the sale pipeline failed.
type SaleError struct {
	Step string
	Err  error
}

func (e *SaleError) Error() string {
	return fmt.Sprintf("sale failed at %s: %v", e.Step, e.Err)
}

func (e *SaleError) Unwrap() error {
	return e.Err
}

const summaryCacheTTL = 5 * time.Minute

type Service struct {
	repo    store.Repository
	reports cache.ReportCache
}

func New(repo store.Repository, reports cache.ReportCache) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}

	return &Service{
		repo:    repo,
		reports: reports,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, displayName string) (domain.Product, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return domain.Product{}, store.ErrInvalidInput
	}

	product, err := s.repo.GetProduct(ctx, displayName)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) AddProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Weight = strings.TrimSpace(req.Weight)

	if req.Name == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.Quantity < 0 || req.CostPrice < 0 || req.SellingPrice < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	product := domain.Product{
		Name:         req.Name,
		Weight:       req.Weight,
		DisplayName:  domain.FullProductName(req.Name, req.Weight),
		Quantity:     req.Quantity,
		CostPrice:    invoice.Round2(req.CostPrice),
		SellingPrice: invoice.Round2(req.SellingPrice),
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	log.Printf("[service] product created name=%q qty=%d by=%s", created.DisplayName, created.Quantity, actor.Username)
	return *created, nil
}

func (s *Service) SetStock(ctx context.Context, req domain.StockSetRequest) (domain.Product, error) {
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.DisplayName == "" || req.Quantity < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	updated, err := s.repo.SetQuantity(ctx, req.DisplayName, req.Quantity)
	if err != nil {
		return domain.Product{}, err
	}

	log.Printf("[service] stock set name=%q qty=%d", updated.DisplayName, updated.Quantity)
	return *updated, nil
}

func (s *Service) AdjustStock(ctx context.Context, displayName string, delta int) (domain.Product, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" || delta == 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	updated, err := s.repo.AdjustQuantity(ctx, displayName, delta)
	if err != nil {
		return domain.Product{}, err
	}

	log.Printf("[service] stock adjusted name=%q delta=%d qty=%d", updated.DisplayName, delta, updated.Quantity)
	return *updated, nil
}

func (s *Service) MarkDamaged(ctx context.Context, req domain.DamageTransferRequest) (domain.Product, error) {
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.DisplayName == "" || req.Quantity < 1 {
		return domain.Product{}, store.ErrInvalidInput
	}

	updated, err := s.repo.MarkDamaged(ctx, req.DisplayName, req.Quantity)
	if err != nil {
		return domain.Product{}, err
	}

	log.Printf("[service] stock damaged name=%q moved=%d available=%d damaged=%d", updated.DisplayName, req.Quantity, updated.Quantity, updated.DamagedQuantity)
	return *updated, nil
}

func (s *Service) RestoreDamaged(ctx context.Context, req domain.DamageTransferRequest) (domain.Product, error) {
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.DisplayName == "" || req.Quantity < 1 {
		return domain.Product{}, store.ErrInvalidInput
	}

	updated, err := s.repo.RestoreDamaged(ctx, req.DisplayName, req.Quantity)
	if err != nil {
		return domain.Product{}, err
	}

	log.Printf("[service] stock restored name=%q moved=%d available=%d damaged=%d", updated.DisplayName, req.Quantity, updated.Quantity, updated.DamagedQuantity)
	return *updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, displayName string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return store.ErrInvalidInput
	}

	if err := s.repo.DeleteProduct(ctx, displayName); err != nil {
		return err
	}

	log.Printf("[service] product deleted name=%q by=%s", displayName, actor.Username)
	return nil
}

func (s *Service) DamagedReport(ctx context.Context) (domain.DamagedReportResponse, error) {
	products, err := s.repo.DamagedProducts(ctx)
	if err != nil {
		return domain.DamagedReportResponse{}, err
	}

	var totalLost float64
	for _, product := range products {
		totalLost += product.ValueLost
	}

	return domain.DamagedReportResponse{
		Products:       products,
		TotalValueLost: invoice.Round2(totalLost),
	}, nil
}

// CreateSale runs the full sale pipeline: validate the request, check
// stock, price and total the items, then persist the invoice together with
// the stock decrement in one repository call. The returned error is always
// a *SaleError naming the step that failed.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleRequest) (*domain.Invoice, error) {
	messages := invoice.ValidateCustomer(req.Customer)
	messages = append(messages, invoice.ValidateItems(req.Items)...)
	if len(messages) > 0 {
		return nil, &SaleError{Step: domain.SaleStepValidating, Err: invoice.NewValidationError(messages)}
	}

	required := make(map[string]int, len(req.Items))
	for _, item := range req.Items {
		required[strings.TrimSpace(item.ProductName)] += item.Quantity
	}

	// Advisory pre-check so the caller gets a precise shortfall before any
	// totals are computed. The repository re-checks under its own lock.
	catalog := make(map[string]domain.Product, len(required))
	for name, qty := range required {
		product, err := s.repo.GetProduct(ctx, name)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, &SaleError{Step: domain.SaleStepStockChecking, Err: fmt.Errorf("product %q: %w", name, err)}
			}
			return nil, &SaleError{Step: domain.SaleStepStockChecking, Err: err}
		}
		if product.Quantity < qty {
			return nil, &SaleError{
				Step: domain.SaleStepStockChecking,
				Err:  fmt.Errorf("product %q: have %d, need %d: %w", name, product.Quantity, qty, store.ErrInsufficientStock),
			}
		}
		catalog[name] = *product
	}

	priced := make([]domain.SaleItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		item.ProductName = strings.TrimSpace(item.ProductName)
		if item.UnitPrice == nil {
			rate := catalog[item.ProductName].SellingPrice
			item.UnitPrice = &rate
		}
		priced = append(priced, item)
	}

	items := invoice.BuildItems(priced)
	for i := range items {
		items[i].Weight = catalog[items[i].ProductName].Weight
	}
	subtotal := invoice.Subtotal(items)

	inv := domain.Invoice{
		CustomerName:    strings.TrimSpace(req.Customer.Name),
		CustomerPhone:   strings.TrimSpace(req.Customer.Phone),
		CustomerAddress: strings.TrimSpace(req.Customer.Address),
		Subtotal:        subtotal,
		TotalAmount:     invoice.Total(subtotal),
		CreatedAt:       time.Now().UTC(),
		Items:           items,
	}

	var created *domain.Invoice
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		inv.InvoiceNumber = invoice.Number()
		created, err = s.repo.CreateInvoice(ctx, inv)
		if !errors.Is(err, store.ErrDuplicateInvoice) {
			break
		}
	}
	if err != nil {
		step := domain.SaleStepPersisting
		if errors.Is(err, store.ErrInsufficientStock) || errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrPartialStockAdjustment) {
			// Stock moved between the advisory check and the commit.
			step = domain.SaleStepStockAdjusting
		}
		return nil, &SaleError{Step: step, Err: err}
	}

	log.Printf("[service] sale completed invoice=%s customer=%q total=%.2f items=%d", created.InvoiceNumber, created.CustomerName, created.TotalAmount, len(created.Items))
	return created, nil
}

// PreviewSale prices a sale without touching stock or persisting anything.
func (s *Service) PreviewSale(ctx context.Context, req domain.SaleRequest) (domain.SalePreview, error) {
	messages := invoice.ValidateCustomer(req.Customer)
	messages = append(messages, invoice.ValidateItems(req.Items)...)
	if len(messages) > 0 {
		return domain.SalePreview{}, &SaleError{Step: domain.SaleStepValidating, Err: invoice.NewValidationError(messages)}
	}

	priced := make([]domain.SaleItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		item.ProductName = strings.TrimSpace(item.ProductName)
		if item.UnitPrice == nil {
			product, err := s.repo.GetProduct(ctx, item.ProductName)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return domain.SalePreview{}, &SaleError{Step: domain.SaleStepComputing, Err: fmt.Errorf("product %q: %w", item.ProductName, err)}
				}
				return domain.SalePreview{}, &SaleError{Step: domain.SaleStepComputing, Err: err}
			}
			item.UnitPrice = &product.SellingPrice
		}
		priced = append(priced, item)
	}

	items := invoice.BuildItems(priced)
	subtotal := invoice.Subtotal(items)

	return domain.SalePreview{
		Items:       items,
		Subtotal:    subtotal,
		TotalAmount: invoice.Total(subtotal),
	}, nil
}

func (s *Service) GetInvoice(ctx context.Context, number string) (domain.Invoice, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return domain.Invoice{}, store.ErrInvalidInput
	}

	inv, err := s.repo.GetInvoiceByNumber(ctx, number)
	if err != nil {
		return domain.Invoice{}, err
	}
	return *inv, nil
}

func (s *Service) ListInvoices(ctx context.Context, startDate string, endDate string, limit int) ([]domain.Invoice, error) {
	if limit < 1 {
		limit = 100
	}

	to := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	from := to.Add(-30 * 24 * time.Hour)

	if strings.TrimSpace(startDate) != "" {
		parsed, err := time.Parse("2006-01-02", startDate)
		if err != nil {
			return nil, store.ErrInvalidInput
		}
		from = parsed.UTC()
	}
	if strings.TrimSpace(endDate) != "" {
		parsed, err := time.Parse("2006-01-02", endDate)
		if err != nil {
			return nil, store.ErrInvalidInput
		}
		to = parsed.UTC().Add(24 * time.Hour)
	}
	if !from.Before(to) {
		return nil, store.ErrInvalidInput
	}

	return s.repo.ListInvoices(ctx, from, to, limit)
}

// ResolveWindow turns a named period or an explicit date range into a
// half-open UTC interval. Named periods always end after today so that
// invoices created moments ago are counted. Explicit start and end dates
// take precedence over whatever period was named.
func ResolveWindow(period string, startDate string, endDate string) (domain.ReportWindow, error) {
	period = strings.ToLower(strings.TrimSpace(period))
	if strings.TrimSpace(startDate) != "" && strings.TrimSpace(endDate) != "" {
		period = domain.PeriodRange
	}
	if period == "" {
		period = domain.PeriodDaily
	}

	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	to := today.Add(24 * time.Hour)

	switch period {
	case domain.PeriodDaily:
		return domain.ReportWindow{Period: period, From: today, To: to}, nil
	case domain.PeriodWeekly:
		return domain.ReportWindow{Period: period, From: today.Add(-7 * 24 * time.Hour), To: to}, nil
	case domain.PeriodMonthly:
		return domain.ReportWindow{Period: period, From: today.Add(-30 * 24 * time.Hour), To: to}, nil
	case domain.PeriodRange:
		start, err := time.Parse("2006-01-02", strings.TrimSpace(startDate))
		if err != nil {
			return domain.ReportWindow{}, fmt.Errorf("start_date: %w", store.ErrInvalidInput)
		}
		end, err := time.Parse("2006-01-02", strings.TrimSpace(endDate))
		if err != nil {
			return domain.ReportWindow{}, fmt.Errorf("end_date: %w", store.ErrInvalidInput)
		}
		from := start.UTC()
		rangeTo := end.UTC().Add(24 * time.Hour)
		if !from.Before(rangeTo) {
			return domain.ReportWindow{}, fmt.Errorf("start_date after end_date: %w", store.ErrInvalidInput)
		}
		return domain.ReportWindow{Period: period, From: from, To: rangeTo}, nil
	default:
		return domain.ReportWindow{}, fmt.Errorf("unknown period %q: %w", period, store.ErrInvalidInput)
	}
}

func (s *Service) SummaryReport(ctx context.Context, period string, startDate string, endDate string) (domain.SummaryReport, error) {
	window, err := ResolveWindow(period, startDate, endDate)
	if err != nil {
		return domain.SummaryReport{}, err
	}

	key := fmt.Sprintf("reports:summary:%s:%s:%s", window.Period, window.From.Format("20060102"), window.To.Format("20060102"))
	if cached, ok, err := s.reports.Get(ctx, key); err != nil {
		log.Printf("[service] WARN: report cache read failed key=%s: %v", key, err)
	} else if ok {
		return *cached, nil
	}

	stats, err := s.repo.SummaryStats(ctx, window.From, window.To)
	if err != nil {
		return domain.SummaryReport{}, err
	}

	stats.TotalRevenue = invoice.Round2(stats.TotalRevenue)
	stats.TotalProfit = invoice.Round2(stats.TotalProfit)
	stats.DamagedValue = invoice.Round2(stats.DamagedValue)

	report := domain.SummaryReport{Window: window, Stats: stats}
	if err := s.reports.Set(ctx, key, &report, summaryCacheTTL); err != nil {
		log.Printf("[service] WARN: report cache write failed key=%s: %v", key, err)
	}
	return report, nil
}

func (s *Service) SalesReport(ctx context.Context, period string, startDate string, endDate string) (domain.SalesReport, error) {
	window, err := ResolveWindow(period, startDate, endDate)
	if err != nil {
		return domain.SalesReport{}, err
	}

	products, err := s.repo.SalesByProduct(ctx, window.From, window.To)
	if err != nil {
		return domain.SalesReport{}, err
	}

	return domain.SalesReport{Window: window, Products: products}, nil
}

func (s *Service) ProfitReport(ctx context.Context, period string, startDate string, endDate string) (domain.ProfitReport, error) {
	window, err := ResolveWindow(period, startDate, endDate)
	if err != nil {
		return domain.ProfitReport{}, err
	}

	products, err := s.repo.ProfitByProduct(ctx, window.From, window.To)
	if err != nil {
		return domain.ProfitReport{}, err
	}

	return domain.ProfitReport{Window: window, Products: products}, nil
}

func (s *Service) TopProductsReport(ctx context.Context, period string, startDate string, endDate string, limit int) (domain.TopProductsReport, error) {
	window, err := ResolveWindow(period, startDate, endDate)
	if err != nil {
		return domain.TopProductsReport{}, err
	}

	if limit < 1 {
		limit = 10
	}
	products, err := s.repo.TopProducts(ctx, window.From, window.To, limit)
	if err != nil {
		return domain.TopProductsReport{}, err
	}

	return domain.TopProductsReport{Window: window, Products: products}, nil
}
