package domain

import (
	"fmt"
	"time"
)

type Product struct {
	Name            string    `json:"name"`
	Weight          string    `json:"weight,omitempty"`
	DisplayName     string    `json:"display_name"`
	Quantity        int       `json:"quantity"`
	DamagedQuantity int       `json:"damaged_quantity"`
	CostPrice       float64   `json:"cost_price"`
	SellingPrice    float64   `json:"selling_price"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// FullProductName builds the catalog key: the base name plus the weight
// variant in parentheses when one is set.
func FullProductName(name, weight string) string {
	if weight == "" {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, weight)
}

type ProductCreateRequest struct {
	Name         string  `json:"name"`
	Weight       string  `json:"weight,omitempty"`
	Quantity     int     `json:"quantity"`
	CostPrice    float64 `json:"cost_price"`
	SellingPrice float64 `json:"selling_price"`
}

type StockSetRequest struct {
	DisplayName string `json:"display_name"`
	Quantity    int    `json:"quantity"`
}

// StockUpdateRequest carries either an absolute quantity or a signed delta.
type StockUpdateRequest struct {
	DisplayName string `json:"display_name"`
	Quantity    *int   `json:"quantity,omitempty"`
	Delta       *int   `json:"delta,omitempty"`
}

type DamageTransferRequest struct {
	DisplayName string `json:"display_name"`
	Quantity    int    `json:"quantity"`
}

type DamagedProduct struct {
	DisplayName     string  `json:"display_name"`
	Quantity        int     `json:"quantity"`
	DamagedQuantity int     `json:"damaged_quantity"`
	CostPrice       float64 `json:"cost_price"`
	ValueLost       float64 `json:"value_lost"`
}

type CustomerInfo struct {
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

type SaleItemInput struct {
	ProductName string   `json:"product_name"`
	Quantity    int      `json:"quantity"`
	UnitPrice   *float64 `json:"unit_price,omitempty"`
}

type SaleRequest struct {
	Customer CustomerInfo    `json:"customer"`
	Items    []SaleItemInput `json:"items"`
}

// InvoiceItem is one sold line. Weight is copied from the catalog product at
// sale time so later catalog edits do not rewrite history.
type InvoiceItem struct {
	ProductName string  `json:"product_name"`
	Weight      string  `json:"weight,omitempty"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	LineTotal   float64 `json:"line_total"`
}

type Invoice struct {
	InvoiceNumber   string        `json:"invoice_number"`
	CustomerName    string        `json:"customer_name"`
	CustomerPhone   string        `json:"customer_phone,omitempty"`
	CustomerAddress string        `json:"customer_address,omitempty"`
	Subtotal        float64       `json:"subtotal"`
	TotalAmount     float64       `json:"total_amount"`
	CreatedAt       time.Time     `json:"created_at"`
	Items           []InvoiceItem `json:"items"`
}

type SalePreview struct {
	Items       []InvoiceItem `json:"items"`
	Subtotal    float64       `json:"subtotal"`
	TotalAmount float64       `json:"total_amount"`
}

type InvoiceResponse struct {
	Invoice Invoice `json:"invoice"`
}

type InvoiceListResponse struct {
	Invoices []Invoice `json:"invoices"`
}

type ProductListResponse struct {
	Products []Product `json:"products"`
}

type DamagedReportResponse struct {
	Products       []DamagedProduct `json:"products"`
	TotalValueLost float64          `json:"total_value_lost"`
}

// ReportWindow is a half-open UTC interval [From, To) resolved from a
// named period or an explicit date range.
type ReportWindow struct {
	Period string    `json:"period"`
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`
}

type SummaryStats struct {
	InvoiceCount    int64   `json:"invoice_count"`
	TotalRevenue    float64 `json:"total_revenue"`
	TotalProfit     float64 `json:"total_profit"`
	UnitsSold       int64   `json:"units_sold"`
	UniqueCustomers int64   `json:"unique_customers"`
	DamagedUnits    int64   `json:"damaged_units"`
	DamagedValue    float64 `json:"damaged_value"`
}

type SummaryReport struct {
	Window ReportWindow `json:"window"`
	Stats  SummaryStats `json:"stats"`
}

type ProductSales struct {
	ProductName  string  `json:"product_name"`
	Quantity     int64   `json:"quantity"`
	Revenue      float64 `json:"revenue"`
	OrderCount   int64   `json:"order_count"`
	AveragePrice float64 `json:"average_price"`
}

type SalesReport struct {
	Window   ReportWindow   `json:"window"`
	Products []ProductSales `json:"products"`
}

type ProductProfit struct {
	ProductName   string  `json:"product_name"`
	Quantity      int64   `json:"quantity"`
	Revenue       float64 `json:"revenue"`
	Cost          float64 `json:"cost"`
	Profit        float64 `json:"profit"`
	MarginPercent float64 `json:"margin_percent"`
}

type ProfitReport struct {
	Window   ReportWindow    `json:"window"`
	Products []ProductProfit `json:"products"`
}

type TopProduct struct {
	ProductName  string  `json:"product_name"`
	Quantity     int64   `json:"quantity"`
	Revenue      float64 `json:"revenue"`
	TimesOrdered int64   `json:"times_ordered"`
}

type TopProductsReport struct {
	Window   ReportWindow `json:"window"`
	Products []TopProduct `json:"products"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
	PeriodRange   = "range"
)

const (
	SaleStepValidating     = "validating"
	SaleStepStockChecking  = "stock_checking"
	SaleStepComputing      = "computing"
	SaleStepPersisting     = "persisting"
	SaleStepStockAdjusting = "stock_adjusting"
)

const (
	StockStatusOut = "Out of Stock"
	StockStatusLow = "Low Stock"
	StockStatusIn  = "In Stock"
)
