package store

import (
	"context"
	"errors"
	"time"

	"wallquote/backend/internal/domain"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrConflict        = errors.New("conflict")
	ErrSlotFull        = errors.New("delivery slot is full")
	ErrSlotUnavailable = errors.New("delivery slot is not available")
)

// DiscountUsageCount is the ledger view used for cap checks. Customer is
// matched on a case-insensitive email.
type DiscountUsageCount struct {
	Total    int
	Customer int
}

// OrderPlacement is committed as one unit: slot reservation, discount
// decision, usage record and order insert.
type OrderPlacement struct {
	Order domain.Order
	// DiscountCode is the normalised code the customer entered, or empty.
	DiscountCode string
	// Finalize runs while the store holds the code and slot. code is nil when
	// no code was entered or it does not exist. It must set the order's
	// discount and money fields; an error aborts the placement unchanged.
	Finalize func(order *domain.Order, code *domain.DiscountCode, usage DiscountUsageCount) error
}

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	CreateDiscountCode(ctx context.Context, code domain.DiscountCode) (*domain.DiscountCode, error)
	GetDiscountCode(ctx context.Context, code string) (*domain.DiscountCode, error)
	ListDiscountCodes(ctx context.Context) ([]domain.DiscountCodeSummary, error)
	SetDiscountCodeActive(ctx context.Context, id string, active bool) (*domain.DiscountCode, error)
	CountDiscountUsage(ctx context.Context, codeID string, customerEmail string) (DiscountUsageCount, error)

	CreateDeliveryTemplate(ctx context.Context, template domain.DeliveryTemplate) (*domain.DeliveryTemplate, error)
	ListDeliveryTemplates(ctx context.Context, activeOnly bool) ([]domain.DeliveryTemplate, error)
	ListDeliverySlots(ctx context.Context, from time.Time, to time.Time) ([]domain.DeliverySlot, error)
	CreateDeliverySlots(ctx context.Context, slots []domain.DeliverySlot) (int, error)
	DeleteAutoGeneratedSlotsBefore(ctx context.Context, before time.Time) (int, error)
	SetSlotAvailability(ctx context.Context, id string, available bool) (*domain.DeliverySlot, error)

	PlaceOrder(ctx context.Context, placement OrderPlacement) (*domain.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*domain.Order, error)
	ListOrders(ctx context.Context, status string, limit int) ([]domain.Order, error)
	// Order updates are scoped to their own columns so concurrent staff
	// actions never overwrite each other's fields.
	SetOrderStatus(ctx context.Context, id string, status string) (*domain.Order, error)
	SetDeliveryStatus(ctx context.Context, id string, status string) (*domain.Order, error)
	// SetOrderTotals writes the money fields, weight and line totals of order.
	SetOrderTotals(ctx context.Context, order domain.Order) (*domain.Order, error)
	// ClaimTransport marks the order as pending a carrier booking. It fails
	// with ErrConflict when the order was already sent or a booking is in
	// flight.
	ClaimTransport(ctx context.Context, id string) (*domain.Order, error)
	// RecordTransportOutcome stores the portal result and releases the claim.
	RecordTransportOutcome(ctx context.Context, id string, outcome domain.TransportOutcome) (*domain.Order, error)

	CreateQuoteRequest(ctx context.Context, quote domain.QuoteRequest) (*domain.QuoteRequest, error)
	ListQuoteRequests(ctx context.Context, limit int) ([]domain.QuoteRequest, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
