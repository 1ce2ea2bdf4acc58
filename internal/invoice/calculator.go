// Package invoice holds the pure invoice math: number generation, line and
// invoice totals, and request validation. It never touches a store.
package invoice

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"invobook/backend/internal/domain"
)

// ValidationError carries every validation failure found in a request,
// not just the first one.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages, "; ")
}

func NewValidationError(messages []string) *ValidationError {
	return &ValidationError{Messages: messages}
}

// Round2 rounds to two decimal places, half away from zero.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

var (
	numberMu     sync.Mutex
	numberStamp  string
	numberIssued map[string]struct{}
)

// Number returns an invoice number of the form INV-<YYYYMMDDHHMMSS>-<SUFFIX>
// where SUFFIX is six uppercased characters drawn from a random UUID. Issued
// suffixes are tracked per timestamp so sequential calls never collide.
func Number() string {
	stamp := time.Now().Format("20060102150405")
	numberMu.Lock()
	defer numberMu.Unlock()
	if stamp != numberStamp {
		numberStamp = stamp
		numberIssued = make(map[string]struct{})
	}
	for {
		suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
		if _, taken := numberIssued[suffix]; taken {
			continue
		}
		numberIssued[suffix] = struct{}{}
		return fmt.Sprintf("INV-%s-%s", stamp, suffix)
	}
}

// LineTotal computes unit price times quantity, rounded to two decimals.
func LineTotal(unitPrice float64, quantity int) float64 {
	return Round2(unitPrice * float64(quantity))
}

// Subtotal sums the line totals, rounded to two decimals.
func Subtotal(items []domain.InvoiceItem) float64 {
	var total float64
	for _, item := range items {
		total += item.LineTotal
	}
	return Round2(total)
}

// Total returns the amount due. Selling prices already include any tax, so
// the total equals the subtotal.
func Total(subtotal float64) float64 {
	return Round2(subtotal)
}

// BuildItems converts validated sale inputs into priced invoice items.
// Inputs must already carry a resolved unit price.
func BuildItems(inputs []domain.SaleItemInput) []domain.InvoiceItem {
	items := make([]domain.InvoiceItem, 0, len(inputs))
	for _, in := range inputs {
		price := 0.0
		if in.UnitPrice != nil {
			price = *in.UnitPrice
		}
		items = append(items, domain.InvoiceItem{
			ProductName: in.ProductName,
			Quantity:    in.Quantity,
			UnitPrice:   price,
			LineTotal:   LineTotal(price, in.Quantity),
		})
	}
	return items
}

// ValidateCustomer checks customer fields and returns every failure.
// The name is required; the phone is optional but digits only.
func ValidateCustomer(customer domain.CustomerInfo) []string {
	var errs []string
	if strings.TrimSpace(customer.Name) == "" {
		errs = append(errs, "Customer name is required")
	}
	phone := strings.TrimSpace(customer.Phone)
	if phone != "" && !allDigits(phone) {
		errs = append(errs, "Phone number should contain only digits")
	}
	return errs
}

// ValidateItems checks sale line items and returns every failure, indexed
// from 1 the way the messages are shown to users. A nil unit price means
// the catalog rate will be applied later and is not an error here.
func ValidateItems(items []domain.SaleItemInput) []string {
	if len(items) == 0 {
		return []string{"At least one item is required"}
	}
	var errs []string
	for i, item := range items {
		n := i + 1
		if strings.TrimSpace(item.ProductName) == "" {
			errs = append(errs, fmt.Sprintf("Item %d: Product name is required", n))
		}
		if item.Quantity <= 0 {
			errs = append(errs, fmt.Sprintf("Item %d: Quantity must be greater than 0", n))
		}
		if item.UnitPrice != nil && *item.UnitPrice <= 0 {
			errs = append(errs, fmt.Sprintf("Item %d: Unit price must be greater than 0", n))
		}
	}
	return errs
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
