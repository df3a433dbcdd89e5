package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"wallquote/backend/internal/booking"
	"wallquote/backend/internal/cache"
	"wallquote/backend/internal/domain"
	"wallquote/backend/internal/metrics"
	"wallquote/backend/internal/pricing"
	"wallquote/backend/internal/slots"
	"wallquote/backend/internal/store"
	"wallquote/backend/internal/xid"
)

// ErrAdminRequired is returned by operations reserved for the admin role.
var ErrAdminRequired = errors.New("admin role required")

const (
	defaultZoneCacheTTL = 6 * time.Hour
	maxGenerationDays   = 90
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Zones        *pricing.ZoneResolver
	ZoneCache    cache.ZoneCache
	ZoneCacheTTL time.Duration
	Dispatcher   *booking.Dispatcher
	Logger       *slog.Logger
	Now          func() time.Time
}

type Service struct {
	repo         store.Repository
	zones        *pricing.ZoneResolver
	zoneCache    cache.ZoneCache
	zoneCacheTTL time.Duration
	discounts    *pricing.DiscountEngine
	dispatcher   *booking.Dispatcher
	logger       *slog.Logger
	now          func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Zones == nil {
		opts.Zones = pricing.NewZoneResolver(nil)
	}
	if opts.ZoneCache == nil {
		opts.ZoneCache = cache.NoopZoneCache{}
	}
	if opts.ZoneCacheTTL <= 0 {
		opts.ZoneCacheTTL = defaultZoneCacheTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = booking.NewDispatcher(booking.NoopBooker{}, booking.DefaultTimeout, opts.Logger)
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &Service{
		repo:         repo,
		zones:        opts.Zones,
		zoneCache:    opts.ZoneCache,
		zoneCacheTTL: opts.ZoneCacheTTL,
		discounts:    pricing.NewDiscountEngine(opts.Now),
		dispatcher:   opts.Dispatcher,
		logger:       opts.Logger,
		now:          opts.Now,
	}
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return ErrAdminRequired
	}
	return nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || !req.Price.IsPositive() || req.Weight.IsNegative() {
		return domain.Product{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		SKU:      req.SKU,
		Name:     req.Name,
		Category: domain.ResolveCategory(req.Category),
		Color:    strings.TrimSpace(req.Color),
		Price:    pricing.Round2(req.Price),
		Weight:   req.Weight,
		Active:   true,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,category=%s,price=%s", created.Name, created.Category.Tag, created.Price.StringFixed(2)))
	return *created, nil
}

// QuoteDelivery resolves a postcode or address to a zone and fee. Results are
// memoised per table; a cache failure only costs a recomputation.
func (s *Service) QuoteDelivery(ctx context.Context, req domain.DeliveryQuoteRequest) (domain.ZoneQuote, error) {
	if strings.TrimSpace(req.Postcode) == "" {
		return domain.ZoneQuote{}, store.ErrInvalidInput
	}
	return s.resolveZone(ctx, req.Postcode, req.IsSteel), nil
}

func (s *Service) resolveZone(ctx context.Context, input string, steel bool) domain.ZoneQuote {
	table := "numbered"
	if steel {
		table = "steel"
	}
	if strings.TrimSpace(input) == "" {
		quote := s.zones.Resolve("", steel)
		metrics.ZoneLookups.WithLabelValues(table, quote.Zone).Inc()
		return quote
	}

	key := cache.ZoneKey(s.zones.Version(), input, steel)
	if cached, ok, err := s.zoneCache.Get(ctx, key); err != nil {
		s.logger.Warn("zone cache get failed", "key", key, "error", err)
	} else if ok {
		return *cached
	}

	quote := s.zones.Resolve(input, steel)
	metrics.ZoneLookups.WithLabelValues(table, quote.Zone).Inc()
	if err := s.zoneCache.Set(ctx, key, &quote, s.zoneCacheTTL); err != nil {
		s.logger.Warn("zone cache set failed", "key", key, "error", err)
	}
	return quote
}

// CheckCartSteel reports whether any resolvable line in the cart ships on the
// steel delivery table.
func (s *Service) CheckCartSteel(ctx context.Context, cart []domain.CartLine) (bool, error) {
	lines, err := s.resolveCart(ctx, cart)
	if err != nil {
		return false, err
	}
	return pricing.IsSteelOrder(foundProducts(lines)), nil
}

func (s *Service) resolveCart(ctx context.Context, cart []domain.CartLine) ([]pricing.Line, error) {
	ids := lo.Uniq(lo.Map(cart, func(c domain.CartLine, _ int) string { return strings.TrimSpace(c.ProductID) }))
	catalog, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	trimmed := lo.Map(cart, func(c domain.CartLine, _ int) domain.CartLine {
		c.ProductID = strings.TrimSpace(c.ProductID)
		return c
	})
	return pricing.ResolveLines(trimmed, catalog), nil
}

func foundProducts(lines []pricing.Line) []domain.Product {
	return lo.Map(pricing.FoundLines(lines), func(l pricing.Line, _ int) domain.Product { return l.Product })
}

func orderLines(lines []pricing.Line) []domain.OrderLine {
	return lo.Map(lines, func(l pricing.Line, _ int) domain.OrderLine {
		return domain.OrderLine{
			ProductID:   l.Product.ID,
			SKU:         l.Product.SKU,
			ProductName: l.Product.Name,
			Category:    l.Product.Category,
			Thickness:   strings.TrimSpace(l.Thickness),
			UnitPrice:   l.Product.Price,
			Quantity:    l.Quantity,
			LineTotal:   l.Total(),
		}
	})
}

// ApplyDiscount previews a code against a cart. A refused code is a normal
// response carrying the customer-facing message; only infrastructure
// failures are returned as errors.
func (s *Service) ApplyDiscount(ctx context.Context, req domain.ApplyDiscountRequest) (domain.ApplyDiscountResponse, error) {
	code := pricing.NormalizeCode(req.Code)
	if code == "" {
		return rejected(pricing.Reject(pricing.ReasonEmptyCode)), nil
	}
	if len(req.CartLines) == 0 {
		return rejected(pricing.Reject(pricing.ReasonEmptyCart)), nil
	}

	dc, err := s.repo.GetDiscountCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return rejected(pricing.Reject(pricing.ReasonUnknownCode)), nil
	}
	if err != nil {
		return domain.ApplyDiscountResponse{}, err
	}

	lines, err := s.resolveCart(ctx, req.CartLines)
	if err != nil {
		return domain.ApplyDiscountResponse{}, err
	}

	deliveryCost := decimal.Zero
	switch {
	case strings.TrimSpace(req.Postcode) != "":
		deliveryCost = s.resolveZone(ctx, req.Postcode, pricing.IsSteelOrder(foundProducts(lines))).Fee
	case req.DeliveryCost != nil:
		deliveryCost = *req.DeliveryCost
	}

	usage, err := s.repo.CountDiscountUsage(ctx, dc.ID, req.Email)
	if err != nil {
		return domain.ApplyDiscountResponse{}, err
	}

	eval, err := s.discounts.Evaluate(*dc, pricing.Usage(usage), req.Email, lines, deliveryCost)
	if err != nil {
		var rej *pricing.RejectionError
		if errors.As(err, &rej) {
			return rejected(rej), nil
		}
		return domain.ApplyDiscountResponse{}, err
	}

	totals := pricing.CalculateTotals(orderLines(pricing.FoundLines(lines)), eval.Amount, dc.Type, deliveryCost)
	return domain.ApplyDiscountResponse{
		Success: true,
		Discount: &domain.AppliedDiscount{
			Code:        dc.Code,
			Description: dc.Description,
			Amount:      totals.DiscountAmount,
			Type:        dc.Type,
		},
		Totals: &totals,
	}, nil
}

func rejected(rej *pricing.RejectionError) domain.ApplyDiscountResponse {
	metrics.DiscountRejections.WithLabelValues(string(rej.Reason)).Inc()
	return domain.ApplyDiscountResponse{Error: rej.Error(), Reason: string(rej.Reason)}
}

func validateCustomer(c domain.Customer) error {
	if strings.TrimSpace(c.FirstName) == "" || strings.TrimSpace(c.LastName) == "" {
		return fmt.Errorf("customer name required: %w", store.ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(c.Email)); err != nil {
		return fmt.Errorf("customer email invalid: %w", store.ErrInvalidInput)
	}
	return nil
}

// PlaceOrder prices the cart from the catalog and hands the order to the
// store, which re-validates the discount and reserves the slot atomically.
func (s *Service) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.Order, error) {
	if err := validateCustomer(req.Customer); err != nil {
		return domain.Order{}, err
	}
	if len(req.CartLines) == 0 {
		return domain.Order{}, pricing.Reject(pricing.ReasonEmptyCart)
	}
	for _, line := range req.CartLines {
		if line.Quantity < 1 {
			return domain.Order{}, fmt.Errorf("quantity for %s must be positive: %w", line.ProductID, store.ErrInvalidInput)
		}
	}

	lines, err := s.resolveCart(ctx, req.CartLines)
	if err != nil {
		return domain.Order{}, err
	}
	for i, line := range lines {
		if !line.Found {
			return domain.Order{}, fmt.Errorf("product %q unavailable: %w", req.CartLines[i].ProductID, store.ErrInvalidInput)
		}
	}

	estimator, err := s.weightEstimator(ctx)
	if err != nil {
		return domain.Order{}, err
	}

	customer := req.Customer
	customer.Email = strings.TrimSpace(customer.Email)
	steel := pricing.IsSteelOrder(foundProducts(lines))
	quote := s.resolveZone(ctx, customer.DeliveryPostcode, steel)
	now := s.now()

	order := domain.Order{
		ID:                   xid.New("ord"),
		Number:               xid.OrderNumber(now),
		Status:               domain.OrderStatusProcessing,
		Customer:             customer,
		Lines:                orderLines(lines),
		DeliveryZone:         quote.Zone,
		ZoneFee:              quote.Fee,
		NeedsManualQuote:     quote.NeedsManualQuote,
		SteelOrder:           steel,
		PaymentReference:     strings.TrimSpace(req.PaymentReference),
		DeliverySlotID:       strings.TrimSpace(req.DeliverySlotID),
		DeliveryStatus:       domain.DeliveryStatusPending,
		DeliveryInstructions: strings.TrimSpace(req.DeliveryInstructions),
		SpecialRequests:      strings.TrimSpace(req.SpecialRequests),
		CreatedAt:            now,
	}
	order.TotalWeightKg = estimator.TotalWeight(order.Lines)
	if order.PaymentReference != "" {
		order.PaidAt = &now
	}

	code := pricing.NormalizeCode(req.DiscountCode)
	placed, err := s.repo.PlaceOrder(ctx, store.OrderPlacement{
		Order:        order,
		DiscountCode: code,
		Finalize: func(o *domain.Order, dc *domain.DiscountCode, usage store.DiscountUsageCount) error {
			return s.finalizeOrder(o, code, dc, usage)
		},
	})
	if err != nil {
		s.recordPlacementFailure(order, err)
		return domain.Order{}, err
	}

	if placed.DeliverySlotID != "" {
		metrics.SlotReservations.WithLabelValues("reserved").Inc()
	}
	if placed.DiscountCodeID != "" {
		metrics.DiscountRedemptions.WithLabelValues(string(placed.DiscountType)).Inc()
	}
	s.logger.Info("order placed",
		"order_number", placed.Number,
		"total", placed.TotalAmount.StringFixed(2),
		"zone", placed.DeliveryZone,
		"steel", placed.SteelOrder,
		"discount_code", placed.DiscountCode,
	)
	return *placed, nil
}

// finalizeOrder runs inside the store's critical section with the current
// code row and usage counts.
func (s *Service) finalizeOrder(o *domain.Order, entered string, dc *domain.DiscountCode, usage store.DiscountUsageCount) error {
	o.DiscountCodeID, o.DiscountCode, o.DiscountType = "", "", ""
	o.DiscountAmount = decimal.Zero

	if entered != "" {
		if dc == nil {
			return pricing.Reject(pricing.ReasonUnknownCode)
		}
		lines := lo.Map(o.Lines, func(l domain.OrderLine, _ int) pricing.Line {
			return pricing.Line{
				Product:   domain.Product{ID: l.ProductID, SKU: l.SKU, Name: l.ProductName, Category: l.Category, Price: l.UnitPrice, Active: true},
				Found:     true,
				Quantity:  l.Quantity,
				Thickness: l.Thickness,
			}
		})
		eval, err := s.discounts.Evaluate(*dc, pricing.Usage(usage), o.Customer.Email, lines, o.ZoneFee)
		if err != nil {
			return err
		}
		o.DiscountCodeID = dc.ID
		o.DiscountCode = dc.Code
		o.DiscountType = dc.Type
		o.DiscountAmount = eval.Amount
	}

	totals := pricing.CalculateTotals(o.Lines, o.DiscountAmount, o.DiscountType, o.ZoneFee)
	if err := pricing.VerifyTotals(totals, o.DiscountType, o.ZoneFee); err != nil {
		return fmt.Errorf("order totals: %w", err)
	}
	o.Subtotal = totals.Subtotal
	o.DiscountAmount = totals.DiscountAmount
	o.DeliveryCost = totals.DeliveryCost
	o.TaxAmount = totals.TaxAmount
	o.TotalAmount = totals.TotalAmount
	return nil
}

func (s *Service) recordPlacementFailure(order domain.Order, err error) {
	var rej *pricing.RejectionError
	switch {
	case errors.As(err, &rej):
		metrics.DiscountRejections.WithLabelValues(string(rej.Reason)).Inc()
	case errors.Is(err, store.ErrSlotFull):
		metrics.SlotReservations.WithLabelValues("full").Inc()
	case errors.Is(err, store.ErrSlotUnavailable):
		metrics.SlotReservations.WithLabelValues("unavailable").Inc()
	case order.DeliverySlotID != "" && errors.Is(err, store.ErrNotFound):
		metrics.SlotReservations.WithLabelValues("not_found").Inc()
	default:
		s.logger.Error("order placement failed", "order_number", order.Number, "error", err)
	}
}

func (s *Service) weightEstimator(ctx context.Context) (*pricing.WeightEstimator, error) {
	catalog, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	return pricing.NewWeightEstimator(catalog, s.logger), nil
}

func (s *Service) GetOrder(ctx context.Context, number string) (domain.OrderSummary, error) {
	order, err := s.orderByNumber(ctx, number)
	if err != nil {
		return domain.OrderSummary{}, err
	}
	return order.Summary(), nil
}

// LookupOrder is the customer confirmation lookup.
func (s *Service) LookupOrder(ctx context.Context, number string) (domain.PublicOrder, error) {
	order, err := s.orderByNumber(ctx, number)
	if err != nil {
		return domain.PublicOrder{}, err
	}
	return order.Public(), nil
}

func (s *Service) orderByNumber(ctx context.Context, number string) (*domain.Order, error) {
	number = strings.ToUpper(strings.TrimSpace(number))
	if number == "" {
		return nil, store.ErrInvalidInput
	}
	return s.repo.GetOrderByNumber(ctx, number)
}

func (s *Service) ListOrders(ctx context.Context, status string, limit int) ([]domain.OrderSummary, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status != "" && !domain.IsOrderStatus(status) {
		return nil, store.ErrInvalidInput
	}
	if limit < 1 {
		limit = 50
	}
	orders, err := s.repo.ListOrders(ctx, status, limit)
	if err != nil {
		return nil, err
	}
	return lo.Map(orders, func(o domain.Order, _ int) domain.OrderSummary { return o.Summary() }), nil
}

func (s *Service) UpdateOrderStatus(ctx context.Context, number string, status string) (domain.OrderSummary, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if !domain.IsOrderStatus(status) {
		return domain.OrderSummary{}, store.ErrInvalidInput
	}
	order, err := s.repo.GetOrderByNumber(ctx, strings.ToUpper(strings.TrimSpace(number)))
	if err != nil {
		return domain.OrderSummary{}, err
	}
	updated, err := s.repo.SetOrderStatus(ctx, order.ID, status)
	if err != nil {
		return domain.OrderSummary{}, err
	}
	s.logAudit(ctx, "order_status", "order", updated.Number, fmt.Sprintf("from=%s,to=%s", order.Status, status))
	return updated.Summary(), nil
}

// SetDeliveryStatus moves the delivery workflow, e.g. staff accepting or
// rejecting an internal delivery.
func (s *Service) SetDeliveryStatus(ctx context.Context, number string, status string) (domain.OrderSummary, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if !domain.IsDeliveryStatus(status) {
		return domain.OrderSummary{}, store.ErrInvalidInput
	}
	order, err := s.repo.GetOrderByNumber(ctx, strings.ToUpper(strings.TrimSpace(number)))
	if err != nil {
		return domain.OrderSummary{}, err
	}
	updated, err := s.repo.SetDeliveryStatus(ctx, order.ID, status)
	if err != nil {
		return domain.OrderSummary{}, err
	}
	s.logAudit(ctx, "delivery_status", "order", updated.Number, fmt.Sprintf("from=%s,to=%s", order.DeliveryStatus, status))
	return updated.Summary(), nil
}

// RecalculateOrder re-derives line totals, money fields and weight from the
// stored lines, discount and zone fee.
func (s *Service) RecalculateOrder(ctx context.Context, number string) (domain.OrderSummary, error) {
	order, err := s.repo.GetOrderByNumber(ctx, strings.ToUpper(strings.TrimSpace(number)))
	if err != nil {
		return domain.OrderSummary{}, err
	}
	estimator, err := s.weightEstimator(ctx)
	if err != nil {
		return domain.OrderSummary{}, err
	}

	before := order.TotalAmount
	pricing.ApplyTotals(order)
	order.TotalWeightKg = estimator.TotalWeight(order.Lines)

	updated, err := s.repo.SetOrderTotals(ctx, *order)
	if err != nil {
		return domain.OrderSummary{}, err
	}
	s.logAudit(ctx, "order_recalculate", "order", updated.Number, fmt.Sprintf("total_before=%s,total_after=%s", before.StringFixed(2), updated.TotalAmount.StringFixed(2)))
	return updated.Summary(), nil
}

// SendToTransport submits the order to the outsourced carrier portal. The
// order is claimed first, so only one submission per order is ever in
// flight. The booking outcome is always persisted and releases the claim; a
// failed booking is not an error.
func (s *Service) SendToTransport(ctx context.Context, number string) (domain.OrderSummary, error) {
	order, err := s.repo.GetOrderByNumber(ctx, strings.ToUpper(strings.TrimSpace(number)))
	if err != nil {
		return domain.OrderSummary{}, err
	}
	claimed, err := s.repo.ClaimTransport(ctx, order.ID)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.OrderSummary{}, fmt.Errorf("order %s already sent or being sent to transport: %w", order.Number, err)
		}
		return domain.OrderSummary{}, err
	}

	outcome := s.dispatcher.Submit(ctx, booking.SnapshotOf(*claimed))

	updated, err := s.repo.RecordTransportOutcome(context.WithoutCancel(ctx), claimed.ID, outcome.Record())
	if err != nil {
		s.logger.Error("transport outcome not recorded", "order", claimed.Number, "success", outcome.Success, "error", err)
		return domain.OrderSummary{}, err
	}
	s.logAudit(ctx, "transport_booking", "order", updated.Number, fmt.Sprintf("success=%t,response=%s", outcome.Success, outcome.Response))
	return updated.Summary(), nil
}

func (s *Service) CreateDiscountCode(ctx context.Context, req domain.DiscountCodeCreateRequest) (domain.DiscountCode, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.DiscountCode{}, err
	}

	code := domain.DiscountCode{
		Code:                 pricing.NormalizeCode(req.Code),
		Name:                 strings.TrimSpace(req.Name),
		Description:          strings.TrimSpace(req.Description),
		Type:                 req.Type,
		Value:                req.Value,
		MaxUses:              req.MaxUses,
		MaxUsesPerCustomer:   req.MaxUsesPerCustomer,
		MinimumOrderAmount:   req.MinimumOrderAmount,
		ValidUntil:           req.ValidUntil,
		Active:               true,
		ApplicableProducts:   cleanList(req.ApplicableProducts),
		ExcludeProducts:      cleanList(req.ExcludeProducts),
		ApplicableCategories: domain.ParseCategoryList(req.ApplicableCategories),
		ExcludeCategories:    domain.ParseCategoryList(req.ExcludeCategories),
	}
	if err := validateDiscountCode(&code, req.ValidFrom, s.now()); err != nil {
		return domain.DiscountCode{}, err
	}

	created, err := s.repo.CreateDiscountCode(ctx, code)
	if err != nil {
		return domain.DiscountCode{}, err
	}
	s.logAudit(ctx, "discount_create", "discount_code", created.ID, fmt.Sprintf("code=%s,type=%s,value=%s", created.Code, created.Type, created.Value.String()))
	return *created, nil
}

func validateDiscountCode(code *domain.DiscountCode, validFrom *time.Time, now time.Time) error {
	if code.Code == "" || strings.ContainsAny(code.Code, " \t") {
		return fmt.Errorf("discount code must be a single word: %w", store.ErrInvalidInput)
	}
	if code.Name == "" {
		code.Name = code.Code
	}
	switch code.Type {
	case domain.DiscountPercentage:
		if !code.Value.IsPositive() || code.Value.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("percentage must be within (0, 100]: %w", store.ErrInvalidInput)
		}
	case domain.DiscountFixedAmount:
		if !code.Value.IsPositive() {
			return fmt.Errorf("fixed amount must be positive: %w", store.ErrInvalidInput)
		}
	case domain.DiscountFreeShipping:
		code.Value = decimal.Zero
	default:
		return fmt.Errorf("unknown discount type %q: %w", code.Type, store.ErrInvalidInput)
	}
	if code.MaxUses != nil && *code.MaxUses < 1 {
		return fmt.Errorf("max uses must be at least 1: %w", store.ErrInvalidInput)
	}
	if code.MaxUsesPerCustomer < 1 {
		code.MaxUsesPerCustomer = 1
	}
	if code.MinimumOrderAmount.Valid && code.MinimumOrderAmount.Decimal.IsNegative() {
		return fmt.Errorf("minimum order amount must not be negative: %w", store.ErrInvalidInput)
	}
	code.ValidFrom = now
	if validFrom != nil {
		code.ValidFrom = validFrom.UTC()
	}
	if code.ValidUntil != nil {
		until := code.ValidUntil.UTC()
		if !until.After(code.ValidFrom) {
			return fmt.Errorf("valid until must be after valid from: %w", store.ErrInvalidInput)
		}
		code.ValidUntil = &until
	}
	return nil
}

func cleanList(values []string) []string {
	out := lo.Uniq(lo.FilterMap(values, func(v string, _ int) (string, bool) {
		v = strings.TrimSpace(v)
		return v, v != ""
	}))
	if len(out) == 0 {
		return nil
	}
	return out
}

func (s *Service) ListDiscountCodes(ctx context.Context) ([]domain.DiscountCodeSummary, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	codes, err := s.repo.ListDiscountCodes(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range codes {
		codes[i].Status = string(pricing.Status(codes[i].DiscountCode, codes[i].TimesUsed, now))
	}
	return codes, nil
}

func (s *Service) SetDiscountCodeActive(ctx context.Context, id string, active bool) (domain.DiscountCode, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.DiscountCode{}, err
	}
	updated, err := s.repo.SetDiscountCodeActive(ctx, strings.TrimSpace(id), active)
	if err != nil {
		return domain.DiscountCode{}, err
	}
	s.logAudit(ctx, "discount_toggle", "discount_code", updated.ID, fmt.Sprintf("code=%s,active=%t", updated.Code, active))
	return *updated, nil
}

func (s *Service) CreateDeliveryTemplate(ctx context.Context, req domain.DeliveryTemplateCreateRequest) (domain.DeliveryTemplate, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.DeliveryTemplate{}, err
	}
	created, err := s.repo.CreateDeliveryTemplate(ctx, domain.DeliveryTemplate{
		Name:         strings.TrimSpace(req.Name),
		DayOfWeek:    req.DayOfWeek,
		TimeSlot:     strings.TrimSpace(req.TimeSlot),
		Capacity:     req.Capacity,
		DeliveryType: strings.TrimSpace(req.DeliveryType),
		Active:       true,
		Notes:        strings.TrimSpace(req.Notes),
		ExcludeDates: strings.TrimSpace(req.ExcludeDates),
	})
	if err != nil {
		return domain.DeliveryTemplate{}, err
	}
	s.logAudit(ctx, "template_create", "delivery_template", created.ID, fmt.Sprintf("day=%d,slot=%s,type=%s,capacity=%d", created.DayOfWeek, created.TimeSlot, created.DeliveryType, created.Capacity))
	return *created, nil
}

func (s *Service) ListDeliveryTemplates(ctx context.Context) ([]domain.DeliveryTemplate, error) {
	return s.repo.ListDeliveryTemplates(ctx, false)
}

// ListDeliverySlots is the customer listing: bookable slots of the requested
// kind from tomorrow through the following week.
func (s *Service) ListDeliverySlots(ctx context.Context, kind string) (domain.SlotListResponse, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		kind = slots.KindDelivery
	}
	if kind != slots.KindDelivery && kind != slots.KindPickup {
		return domain.SlotListResponse{}, store.ErrInvalidInput
	}

	now := s.now()
	start, end := slots.Window(now)
	all, err := s.repo.ListDeliverySlots(ctx, start, end)
	if err != nil {
		return domain.SlotListResponse{}, err
	}
	visible := slots.Visible(all, kind, now)
	return domain.SlotListResponse{
		Slots:      visible,
		TotalFound: len(visible),
		StartDate:  start.Format(slots.DateLayout),
		EndDate:    end.Format(slots.DateLayout),
	}, nil
}

// GenerateDeliverySlots materialises template slots from tomorrow for the
// requested number of days. Re-running it creates nothing new.
func (s *Service) GenerateDeliverySlots(ctx context.Context, req domain.SlotGenerationRequest) (domain.SlotGenerationResult, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.SlotGenerationResult{}, err
	}
	result, err := s.generateSlots(ctx, req)
	if err != nil {
		return domain.SlotGenerationResult{}, err
	}
	s.logAudit(ctx, "slot_generate", "delivery_slot", "", fmt.Sprintf("days=%d,created=%d,skipped=%d,cleaned=%d", req.Days, result.Created, result.Skipped, result.Cleaned))
	return result, nil
}

// GenerateScheduledSlots is the unattended entry point used by the slot
// generator command.
func (s *Service) GenerateScheduledSlots(ctx context.Context, req domain.SlotGenerationRequest) (domain.SlotGenerationResult, error) {
	return s.generateSlots(WithActor(ctx, domain.Actor{Username: "slotgen", Role: "system"}), req)
}

func (s *Service) generateSlots(ctx context.Context, req domain.SlotGenerationRequest) (domain.SlotGenerationResult, error) {
	if req.Days <= 0 {
		req.Days = slots.DefaultDays
	}
	if req.Days > maxGenerationDays {
		return domain.SlotGenerationResult{}, fmt.Errorf("days must be at most %d: %w", maxGenerationDays, store.ErrInvalidInput)
	}

	now := s.now()
	today := slots.Day(now)
	var result domain.SlotGenerationResult
	if req.CleanupPast {
		cleaned, err := s.repo.DeleteAutoGeneratedSlotsBefore(ctx, today)
		if err != nil {
			return result, err
		}
		result.Cleaned = cleaned
	}

	templates, err := s.repo.ListDeliveryTemplates(ctx, true)
	if err != nil {
		return result, err
	}
	from := today.AddDate(0, 0, 1)
	existing, err := s.repo.ListDeliverySlots(ctx, from, from.AddDate(0, 0, req.Days))
	if err != nil {
		return result, err
	}
	keys := make(map[slots.Key]struct{}, len(existing))
	for _, slot := range existing {
		keys[slots.KeyOf(slot)] = struct{}{}
	}

	plan := slots.Generate(templates, keys, from, req.Days, now)
	created, err := s.repo.CreateDeliverySlots(ctx, plan.Slots)
	if err != nil {
		return result, err
	}
	result.Created = created
	result.Skipped = plan.Skipped + len(plan.Slots) - created
	s.logger.Info("delivery slots generated", "days", req.Days, "created", result.Created, "skipped", result.Skipped, "cleaned", result.Cleaned)
	return result, nil
}

func (s *Service) SetSlotAvailability(ctx context.Context, id string, available bool) (domain.SlotView, error) {
	slot, err := s.repo.SetSlotAvailability(ctx, strings.TrimSpace(id), available)
	if err != nil {
		return domain.SlotView{}, err
	}
	s.logAudit(ctx, "slot_availability", "delivery_slot", slot.ID, fmt.Sprintf("available=%t", available))
	return slots.ToView(*slot), nil
}

// CreateQuoteRequest records a customer's manual quote request with the
// delivery priced on the numbered zone table.
func (s *Service) CreateQuoteRequest(ctx context.Context, req domain.QuoteRequestCreate) (domain.QuoteRequest, error) {
	if strings.TrimSpace(req.CustomerName) == "" {
		return domain.QuoteRequest{}, fmt.Errorf("customer name required: %w", store.ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(req.CustomerEmail)); err != nil {
		return domain.QuoteRequest{}, fmt.Errorf("customer email invalid: %w", store.ErrInvalidInput)
	}

	lookup := strings.TrimSpace(req.DeliveryPostcode)
	if lookup == "" {
		lookup = strings.TrimSpace(req.DeliveryAddress)
	}
	quote := s.resolveZone(ctx, lookup, false)

	created, err := s.repo.CreateQuoteRequest(ctx, domain.QuoteRequest{
		CustomerName:     strings.TrimSpace(req.CustomerName),
		CustomerEmail:    strings.TrimSpace(req.CustomerEmail),
		Phone:            strings.TrimSpace(req.Phone),
		DeliveryAddress:  strings.TrimSpace(req.DeliveryAddress),
		DeliveryPostcode: strings.TrimSpace(req.DeliveryPostcode),
		PreferredDate:    strings.TrimSpace(req.PreferredDate),
		CalculatorType:   strings.TrimSpace(req.CalculatorType),
		Notes:            strings.TrimSpace(req.Notes),
		Status:           domain.QuoteStatusPending,
		EstimatedCost:    req.EstimatedCost,
		DeliveryZone:     quote.Zone,
		DeliveryCost:     quote.Fee,
		NeedsManualQuote: quote.NeedsManualQuote,
	})
	if err != nil {
		return domain.QuoteRequest{}, err
	}
	s.logger.Info("quote request received", "quote_id", created.ID, "zone", created.DeliveryZone)
	return *created, nil
}

func (s *Service) ListQuoteRequests(ctx context.Context, limit int) ([]domain.QuoteRequest, error) {
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListQuoteRequests(ctx, limit)
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.now().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse(slots.DateLayout, date)
		if err != nil {
			return nil, store.ErrInvalidInput
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(context.WithoutCancel(ctx), domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		s.logger.Warn("failed to write audit log", "action", action, "entity_type", entityType, "entity_id", entityID, "error", err)
	}
}
