package store

import (
	"context"
	"errors"
	"time"

	"invobook/backend/internal/domain"
)

var (
	ErrNotFound                 = errors.New("not found")
	ErrDuplicateProduct         = errors.New("duplicate product")
	ErrInsufficientStock        = errors.New("insufficient stock")
	ErrInsufficientDamagedStock = errors.New("insufficient damaged stock")
	ErrDuplicateInvoice         = errors.New("duplicate invoice number")
	ErrDuplicateUser            = errors.New("duplicate user")
	ErrInvalidInput             = errors.New("invalid input")
	ErrPartialStockAdjustment   = errors.New("partial stock adjustment")
)

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, displayName string) (*domain.Product, error)
	SetQuantity(ctx context.Context, displayName string, quantity int) (*domain.Product, error)
	AdjustQuantity(ctx context.Context, displayName string, delta int) (*domain.Product, error)
	MarkDamaged(ctx context.Context, displayName string, quantity int) (*domain.Product, error)
	RestoreDamaged(ctx context.Context, displayName string, quantity int) (*domain.Product, error)
	DeleteProduct(ctx context.Context, displayName string) error
	DamagedProducts(ctx context.Context) ([]domain.DamagedProduct, error)
	CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error)
	GetInvoiceByNumber(ctx context.Context, number string) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Invoice, error)
	SummaryStats(ctx context.Context, from time.Time, to time.Time) (domain.SummaryStats, error)
	SalesByProduct(ctx context.Context, from time.Time, to time.Time) ([]domain.ProductSales, error)
	ProfitByProduct(ctx context.Context, from time.Time, to time.Time) ([]domain.ProductProfit, error)
	TopProducts(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.TopProduct, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
