package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

type Product struct {
	ID        string          `json:"id"`
	SKU       string          `json:"sku,omitempty"`
	Name      string          `json:"name"`
	Category  Category        `json:"category"`
	Color     string          `json:"color,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Weight    decimal.Decimal `json:"weight"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
}

type ProductCreateRequest struct {
	SKU      string          `json:"sku"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Color    string          `json:"color"`
	Price    decimal.Decimal `json:"price"`
	Weight   decimal.Decimal `json:"weight"`
}

// CartLine is what the storefront holds in the session. Thickness is the
// optional variant suffix ("100mm") chosen for sleepers.
type CartLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Thickness string `json:"thickness,omitempty"`
}

type OrderLine struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"product_id"`
	SKU         string          `json:"sku,omitempty"`
	ProductName string          `json:"product_name"`
	Category    Category        `json:"category"`
	Thickness   string          `json:"thickness,omitempty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type DiscountType string

const (
	DiscountPercentage   DiscountType = "percentage"
	DiscountFixedAmount  DiscountType = "fixed_amount"
	DiscountFreeShipping DiscountType = "free_shipping"
)

type DiscountCode struct {
	ID                   string              `json:"id"`
	Code                 string              `json:"code"`
	Name                 string              `json:"name"`
	Description          string              `json:"description,omitempty"`
	Type                 DiscountType        `json:"discount_type"`
	Value                decimal.Decimal     `json:"discount_value"`
	MaxUses              *int                `json:"max_uses,omitempty"`
	MaxUsesPerCustomer   int                 `json:"max_uses_per_customer"`
	MinimumOrderAmount   decimal.NullDecimal `json:"minimum_order_amount"`
	ValidFrom            time.Time           `json:"valid_from"`
	ValidUntil           *time.Time          `json:"valid_until,omitempty"`
	Active               bool                `json:"is_active"`
	ApplicableProducts   []string            `json:"applicable_products,omitempty"`
	ExcludeProducts      []string            `json:"exclude_products,omitempty"`
	ApplicableCategories []string            `json:"applicable_categories,omitempty"`
	ExcludeCategories    []string            `json:"exclude_categories,omitempty"`
	CreatedAt            time.Time           `json:"created_at"`
}

type DiscountCodeCreateRequest struct {
	Code                 string              `json:"code"`
	Name                 string              `json:"name"`
	Description          string              `json:"description"`
	Type                 DiscountType        `json:"discount_type"`
	Value                decimal.Decimal     `json:"discount_value"`
	MaxUses              *int                `json:"max_uses,omitempty"`
	MaxUsesPerCustomer   int                 `json:"max_uses_per_customer"`
	MinimumOrderAmount   decimal.NullDecimal `json:"minimum_order_amount"`
	ValidFrom            *time.Time          `json:"valid_from,omitempty"`
	ValidUntil           *time.Time          `json:"valid_until,omitempty"`
	ApplicableProducts   []string            `json:"applicable_products"`
	ExcludeProducts      []string            `json:"exclude_products"`
	ApplicableCategories string              `json:"applicable_categories"`
	ExcludeCategories    string              `json:"exclude_categories"`
}

// DiscountCodeSummary is the admin listing view with the live usage count.
type DiscountCodeSummary struct {
	DiscountCode
	TimesUsed int    `json:"times_used"`
	Status    string `json:"status"`
}

type DiscountUsage struct {
	ID             string          `json:"id"`
	DiscountCodeID string          `json:"discount_code_id"`
	Code           string          `json:"code"`
	CustomerEmail  string          `json:"customer_email"`
	OrderNumber    string          `json:"order_number"`
	Amount         decimal.Decimal `json:"discount_amount"`
	UsedAt         time.Time       `json:"used_at"`
}

type ApplyDiscountRequest struct {
	Code         string           `json:"code"`
	Email        string           `json:"email"`
	DeliveryCost *decimal.Decimal `json:"delivery_cost,omitempty"`
	Postcode     string           `json:"postcode,omitempty"`
	CartLines    []CartLine       `json:"cart_lines"`
}

type AppliedDiscount struct {
	Code        string          `json:"code"`
	Description string          `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Type        DiscountType    `json:"type"`
}

type ApplyDiscountResponse struct {
	Success  bool             `json:"success"`
	Error    string           `json:"error,omitempty"`
	Reason   string           `json:"reason,omitempty"`
	Discount *AppliedDiscount `json:"discount,omitempty"`
	Totals   *OrderTotals     `json:"totals,omitempty"`
}

type OrderTotals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	DeliveryCost   decimal.Decimal `json:"delivery_cost"`
	TaxAmount      decimal.Decimal `json:"gst"`
	TotalAmount    decimal.Decimal `json:"total"`
}

type Customer struct {
	Email                string `json:"email"`
	FirstName            string `json:"first_name"`
	LastName             string `json:"last_name"`
	Phone                string `json:"phone,omitempty"`
	BillingAddressLine1  string `json:"billing_address_line1,omitempty"`
	BillingCity          string `json:"billing_city,omitempty"`
	BillingState         string `json:"billing_state,omitempty"`
	BillingPostcode      string `json:"billing_postcode,omitempty"`
	DeliveryAddressLine1 string `json:"delivery_address_line1,omitempty"`
	DeliveryCity         string `json:"delivery_city,omitempty"`
	DeliveryState        string `json:"delivery_state,omitempty"`
	DeliveryPostcode     string `json:"delivery_postcode,omitempty"`
}

func (c Customer) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
	OrderStatusRefunded   = "refunded"
)

const (
	DeliveryStatusPending    = "pending"
	DeliveryStatusAccepted   = "accepted"
	DeliveryStatusRejected   = "rejected"
	DeliveryStatusOutsourced = "outsourced"
	DeliveryStatusScheduled  = "scheduled"
	DeliveryStatusCompleted  = "completed"
)

var orderStatuses = map[string]struct{}{
	OrderStatusPending:    {},
	OrderStatusProcessing: {},
	OrderStatusShipped:    {},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
	OrderStatusRefunded:   {},
}

var deliveryStatuses = map[string]struct{}{
	DeliveryStatusPending:    {},
	DeliveryStatusAccepted:   {},
	DeliveryStatusRejected:   {},
	DeliveryStatusOutsourced: {},
	DeliveryStatusScheduled:  {},
	DeliveryStatusCompleted:  {},
}

func IsOrderStatus(s string) bool {
	_, ok := orderStatuses[s]
	return ok
}

func IsDeliveryStatus(s string) bool {
	_, ok := deliveryStatuses[s]
	return ok
}

type Order struct {
	ID                   string          `json:"id"`
	Number               string          `json:"order_number"`
	Status               string          `json:"status"`
	Customer             Customer        `json:"customer"`
	Lines                []OrderLine     `json:"lines"`
	Subtotal             decimal.Decimal `json:"subtotal"`
	DeliveryCost         decimal.Decimal `json:"delivery_cost"`
	DiscountAmount       decimal.Decimal `json:"discount_amount"`
	TaxAmount            decimal.Decimal `json:"tax_amount"`
	TotalAmount          decimal.Decimal `json:"total_amount"`
	DiscountCodeID       string          `json:"discount_code_id,omitempty"`
	DiscountCode         string          `json:"discount_code,omitempty"`
	DiscountType         DiscountType    `json:"discount_type,omitempty"`
	DeliveryZone         string          `json:"delivery_zone"`
	ZoneFee              decimal.Decimal `json:"zone_fee"`
	NeedsManualQuote     bool            `json:"needs_manual_quote"`
	SteelOrder           bool            `json:"steel_order"`
	TotalWeightKg        decimal.Decimal `json:"total_weight_kg"`
	PaymentReference     string          `json:"payment_reference,omitempty"`
	PaidAt               *time.Time      `json:"paid_at,omitempty"`
	DeliverySlotID       string          `json:"delivery_slot_id,omitempty"`
	DeliveryDate         *time.Time      `json:"delivery_date,omitempty"`
	DeliveryTimeSlot     string          `json:"delivery_time_slot,omitempty"`
	DeliveryStatus       string          `json:"delivery_status"`
	DeliveryInstructions string          `json:"delivery_instructions,omitempty"`
	SpecialRequests      string          `json:"special_requests,omitempty"`
	TransportSent        bool            `json:"transport_sent"`
	TransportSentAt      *time.Time      `json:"transport_sent_at,omitempty"`
	TransportResponse    string          `json:"transport_response,omitempty"`
	TransportPending     bool            `json:"transport_pending,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

func (o Order) TotalItems() int {
	total := 0
	for _, line := range o.Lines {
		total += line.Quantity
	}
	return total
}

// VolumeEstimate sizes the vehicle needed from the item count.
func (o Order) VolumeEstimate() string {
	items := o.TotalItems()
	switch {
	case items <= 5:
		return "Small load (fits in ute)"
	case items <= 15:
		return "Medium load (small truck required)"
	default:
		return "Large load (truck with crane required)"
	}
}

type PlaceOrderRequest struct {
	Customer             Customer   `json:"customer"`
	CartLines            []CartLine `json:"cart_lines"`
	DiscountCode         string     `json:"discount_code,omitempty"`
	DeliverySlotID       string     `json:"delivery_slot_id,omitempty"`
	PaymentReference     string     `json:"payment_reference"`
	DeliveryInstructions string     `json:"delivery_instructions,omitempty"`
	SpecialRequests      string     `json:"special_requests,omitempty"`
}

type OrderStatusUpdateRequest struct {
	Status string `json:"status"`
}

const (
	DeliveryTypeInternal = "internal"
	DeliveryTypeExternal = "external"
	DeliveryTypePickup   = "pickup"
	DeliveryTypeBoth     = "Both Available"
)

func IsDeliveryType(s string) bool {
	switch s {
	case DeliveryTypeInternal, DeliveryTypeExternal, DeliveryTypePickup, DeliveryTypeBoth:
		return true
	}
	return false
}

// DeliveryTemplate describes a recurring weekly slot. DayOfWeek is 0 for
// Monday through 6 for Sunday. ExcludeDates is a comma separated list of
// YYYY-MM-DD dates.
type DeliveryTemplate struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	DayOfWeek    int       `json:"day_of_week"`
	TimeSlot     string    `json:"time_slot"`
	Capacity     int       `json:"capacity"`
	DeliveryType string    `json:"delivery_type"`
	Active       bool      `json:"is_active"`
	Notes        string    `json:"notes,omitempty"`
	ExcludeDates string    `json:"exclude_dates,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type DeliverySlot struct {
	ID            string    `json:"id"`
	Date          time.Time `json:"date"`
	TimeSlot      string    `json:"time_slot"`
	Capacity      int       `json:"capacity"`
	Available     bool      `json:"is_available"`
	DeliveryType  string    `json:"delivery_type"`
	Notes         string    `json:"notes,omitempty"`
	CreatedBy     string    `json:"created_by,omitempty"`
	TemplateID    string    `json:"template_id,omitempty"`
	TemplateName  string    `json:"template_name,omitempty"`
	AutoGenerated bool      `json:"is_auto_generated"`
	OrdersCount   int       `json:"orders_count"`
	CreatedAt     time.Time `json:"created_at"`
}

type SlotView struct {
	ID                string `json:"id"`
	Date              string `json:"date"`
	TimeSlot          string `json:"time_slot"`
	AvailableCapacity int    `json:"available_capacity"`
	DeliveryType      string `json:"delivery_type"`
	Capacity          int    `json:"capacity"`
	OrdersCount       int    `json:"orders_count"`
	AutoGenerated     bool   `json:"is_auto_generated"`
	TemplateName      string `json:"template_name,omitempty"`
}

type SlotListResponse struct {
	Slots      []SlotView `json:"slots"`
	TotalFound int        `json:"total_found"`
	StartDate  string     `json:"start_date"`
	EndDate    string     `json:"end_date"`
}

type SlotGenerationRequest struct {
	Days        int  `json:"days"`
	CleanupPast bool `json:"cleanup_past"`
}

type SlotGenerationResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Cleaned int `json:"cleaned"`
}

type ZoneQuote struct {
	Zone             string          `json:"zone"`
	Fee              decimal.Decimal `json:"delivery_cost"`
	POA              bool            `json:"is_poa"`
	NeedsManualQuote bool            `json:"needs_manual_quote"`
}

type DeliveryQuoteRequest struct {
	Postcode string `json:"postcode"`
	IsSteel  bool   `json:"is_steel"`
}

const (
	QuoteStatusPending  = "pending"
	QuoteStatusApproved = "approved"
	QuoteStatusPaid     = "paid"
	QuoteStatusDeclined = "declined"
)

type QuoteRequest struct {
	ID               string              `json:"id"`
	CustomerName     string              `json:"customer_name"`
	CustomerEmail    string              `json:"customer_email"`
	Phone            string              `json:"phone"`
	DeliveryAddress  string              `json:"delivery_address"`
	DeliveryPostcode string              `json:"delivery_postcode,omitempty"`
	PreferredDate    string              `json:"preferred_date"`
	CalculatorType   string              `json:"calculator_type,omitempty"`
	Notes            string              `json:"notes,omitempty"`
	Status           string              `json:"status"`
	EstimatedCost    decimal.NullDecimal `json:"estimated_cost"`
	DeliveryZone     string              `json:"delivery_zone"`
	DeliveryCost     decimal.Decimal     `json:"delivery_cost"`
	NeedsManualQuote bool                `json:"needs_manual_quote"`
	CreatedAt        time.Time           `json:"created_at"`
}

type QuoteRequestCreate struct {
	CustomerName     string              `json:"customer_name"`
	CustomerEmail    string              `json:"customer_email"`
	Phone            string              `json:"phone"`
	DeliveryAddress  string              `json:"delivery_address"`
	DeliveryPostcode string              `json:"delivery_postcode"`
	PreferredDate    string              `json:"preferred_date"`
	CalculatorType   string              `json:"calculator_type"`
	Notes            string              `json:"notes"`
	EstimatedCost    decimal.NullDecimal `json:"estimated_cost"`
}

type DiscountCodeToggleRequest struct {
	Active bool `json:"is_active"`
}

type SlotAvailabilityRequest struct {
	Available bool `json:"is_available"`
}

type DeliveryTemplateCreateRequest struct {
	Name         string `json:"name"`
	DayOfWeek    int    `json:"day_of_week"`
	TimeSlot     string `json:"time_slot"`
	Capacity     int    `json:"capacity"`
	DeliveryType string `json:"delivery_type"`
	Notes        string `json:"notes"`
	ExcludeDates string `json:"exclude_dates"`
}

// OrderSummary adds the derived load metadata staff see next to an order.
type OrderSummary struct {
	Order
	TotalItems     int    `json:"total_items"`
	VolumeEstimate string `json:"volume_estimate"`
}

func (o Order) Summary() OrderSummary {
	return OrderSummary{Order: o, TotalItems: o.TotalItems(), VolumeEstimate: o.VolumeEstimate()}
}

// TransportOutcome is the carrier portal result recorded against an order.
// Sent moves the delivery status to outsourced.
type TransportOutcome struct {
	Sent     bool
	SentAt   time.Time
	Response string
}

type PublicOrderLine struct {
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// PublicOrder is the confirmation view served without authentication. It
// carries no contact, payment or carrier details.
type PublicOrder struct {
	Number           string            `json:"order_number"`
	Status           string            `json:"status"`
	Lines            []PublicOrderLine `json:"lines"`
	Subtotal         decimal.Decimal   `json:"subtotal"`
	DeliveryCost     decimal.Decimal   `json:"delivery_cost"`
	DiscountAmount   decimal.Decimal   `json:"discount_amount"`
	TaxAmount        decimal.Decimal   `json:"tax_amount"`
	TotalAmount      decimal.Decimal   `json:"total_amount"`
	DiscountCode     string            `json:"discount_code,omitempty"`
	DeliveryZone     string            `json:"delivery_zone"`
	NeedsManualQuote bool              `json:"needs_manual_quote"`
	DeliveryDate     *time.Time        `json:"delivery_date,omitempty"`
	DeliveryTimeSlot string            `json:"delivery_time_slot,omitempty"`
	DeliveryStatus   string            `json:"delivery_status"`
	TotalItems       int               `json:"total_items"`
	VolumeEstimate   string            `json:"volume_estimate"`
	CreatedAt        time.Time         `json:"created_at"`
}

func (o Order) Public() PublicOrder {
	lines := make([]PublicOrderLine, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, PublicOrderLine{
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			LineTotal:   l.LineTotal,
		})
	}
	return PublicOrder{
		Number:           o.Number,
		Status:           o.Status,
		Lines:            lines,
		Subtotal:         o.Subtotal,
		DeliveryCost:     o.DeliveryCost,
		DiscountAmount:   o.DiscountAmount,
		TaxAmount:        o.TaxAmount,
		TotalAmount:      o.TotalAmount,
		DiscountCode:     o.DiscountCode,
		DeliveryZone:     o.DeliveryZone,
		NeedsManualQuote: o.NeedsManualQuote,
		DeliveryDate:     o.DeliveryDate,
		DeliveryTimeSlot: o.DeliveryTimeSlot,
		DeliveryStatus:   o.DeliveryStatus,
		TotalItems:       o.TotalItems(),
		VolumeEstimate:   o.VolumeEstimate(),
		CreatedAt:        o.CreatedAt,
	}
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

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
