package service

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallquote/backend/internal/booking"
	"wallquote/backend/internal/cache"
	"wallquote/backend/internal/domain"
	"wallquote/backend/internal/pricing"
	"wallquote/backend/internal/store"
	"wallquote/backend/internal/store/memory"
)

type stubBooker struct {
	ok    bool
	err   error
	calls int
}

func (b *stubBooker) SubmitBooking(context.Context, booking.Snapshot) (bool, error) {
	b.calls++
	return b.ok, b.err
}

// gatedBooker blocks each submission until release is closed.
type gatedBooker struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func newGatedBooker() *gatedBooker {
	return &gatedBooker{started: make(chan struct{}, 4), release: make(chan struct{})}
}

func (b *gatedBooker) SubmitBooking(ctx context.Context, _ booking.Snapshot) (bool, error) {
	b.calls.Add(1)
	b.started <- struct{}{}
	select {
	case <-b.release:
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func newTestService(t *testing.T, booker booking.Booker) (*Service, *memory.Store) {
	t.Helper()
	repo := memory.NewSeeded()
	svc := New(repo, Options{
		ZoneCache:  cache.NewMemoryZoneCache(),
		Dispatcher: booking.NewDispatcher(booker, time.Second, nil),
	})
	return svc, repo
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func staffCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "staff", Role: domain.RoleStaff})
}

func customer(email string, postcode string) domain.Customer {
	return domain.Customer{
		Email:                email,
		FirstName:            "Jamie",
		LastName:             "Nguyen",
		Phone:                "0400 000 000",
		DeliveryAddressLine1: "12 Example Street",
		DeliveryCity:         "Adelaide",
		DeliveryState:        "SA",
		DeliveryPostcode:     postcode,
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertMoney(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "%s: want %s got %s", field, want, got.StringFixed(2))
}

func TestPlaceOrderWithPercentageDiscount(t *testing.T) {
	svc, _ := newTestService(t, nil)

	order, err := svc.PlaceOrder(context.Background(), domain.PlaceOrderRequest{
		Customer:         customer("jamie@example.com", "5000"),
		CartLines:        []domain.CartLine{{ProductID: "prod-ashwood-100", Quantity: 3, Thickness: "100mm"}},
		DiscountCode:     " save20 ",
		PaymentReference: "pay_123",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusProcessing, order.Status)
	assert.Equal(t, domain.DeliveryStatusPending, order.DeliveryStatus)
	assert.Equal(t, "Zone 1", order.DeliveryZone)
	assert.Equal(t, "SAVE20", order.DiscountCode)
	assert.False(t, order.SteelOrder)
	assert.NotNil(t, order.PaidAt)
	assertMoney(t, "237.00", order.Subtotal, "subtotal")
	assertMoney(t, "47.40", order.DiscountAmount, "discount")
	assertMoney(t, "143.50", order.DeliveryCost, "delivery")
	assertMoney(t, "33.31", order.TaxAmount, "tax")
	assertMoney(t, "366.41", order.TotalAmount, "total")
	assertMoney(t, "240", order.TotalWeightKg, "weight")
}

func TestPlaceOrderFreeShippingZeroesDelivery(t *testing.T) {
	svc, _ := newTestService(t, nil)

	order, err := svc.PlaceOrder(context.Background(), domain.PlaceOrderRequest{
		Customer:     customer("free@example.com", "5000"),
		CartLines:    []domain.CartLine{{ProductID: "prod-ashwood-100", Quantity: 7}},
		DiscountCode: "FREESHIP",
	})
	require.NoError(t, err)

	assertMoney(t, "553.00", order.Subtotal, "subtotal")
	assertMoney(t, "143.50", order.DiscountAmount, "discount")
	assertMoney(t, "0", order.DeliveryCost, "delivery")
	assertMoney(t, "55.30", order.TaxAmount, "tax")
	assertMoney(t, "608.30", order.TotalAmount, "total")
	assert.Equal(t, domain.DiscountFreeShipping, order.DiscountType)
}

func TestPlaceOrderUsesSteelTable(t *testing.T) {
	svc, _ := newTestService(t, nil)

	order, err := svc.PlaceOrder(context.Background(), domain.PlaceOrderRequest{
		Customer:  customer("steel@example.com", "5000"),
		CartLines: []domain.CartLine{{ProductID: "prod-hpost-1800", Quantity: 2}},
	})
	require.NoError(t, err)

	assert.True(t, order.SteelOrder)
	assert.Equal(t, pricing.ZoneMetro, order.DeliveryZone)
	assertMoney(t, "68.18", order.DeliveryCost, "delivery")
	assertMoney(t, "15.82", order.TaxAmount, "tax")
	assertMoney(t, "174.00", order.TotalAmount, "total")
	assert.Empty(t, order.DiscountCodeID)
}

func TestPlaceOrderUnknownPostcodeNeedsManualQuote(t *testing.T) {
	svc, _ := newTestService(t, nil)

	order, err := svc.PlaceOrder(context.Background(), domain.PlaceOrderRequest{
		Customer:  customer("far@example.com", "9999"),
		CartLines: []domain.CartLine{{ProductID: "prod-wheelstop", Quantity: 1}},
	})
	require.NoError(t, err)

	assert.Equal(t, pricing.ZoneUnknown, order.DeliveryZone)
	assert.True(t, order.NeedsManualQuote)
	assertMoney(t, "0", order.DeliveryCost, "delivery")
	assertMoney(t, "71.50", order.TotalAmount, "total")
}

func TestPlaceOrderRejectsInvalidInput(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  domain.PlaceOrderRequest
	}{
		{
			name: "bad email",
			req:  domain.PlaceOrderRequest{Customer: customer("not-an-email", "5000"), CartLines: []domain.CartLine{{ProductID: "prod-wheelstop", Quantity: 1}}},
		},
		{
			name: "zero quantity",
			req:  domain.PlaceOrderRequest{Customer: customer("a@example.com", "5000"), CartLines: []domain.CartLine{{ProductID: "prod-wheelstop", Quantity: 0}}},
		},
		{
			name: "unknown product",
			req:  domain.PlaceOrderRequest{Customer: customer("a@example.com", "5000"), CartLines: []domain.CartLine{{ProductID: "prod-gone", Quantity: 1}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.PlaceOrder(ctx, tt.req)
			require.ErrorIs(t, err, store.ErrInvalidInput)
		})
	}

	_, err := svc.PlaceOrder(ctx, domain.PlaceOrderRequest{Customer: customer("a@example.com", "5000")})
	var rej *pricing.RejectionError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, pricing.ReasonEmptyCart, rej.Reason)
}

func TestPlaceOrderEnforcesCustomerLimit(t *testing.T) {
	svc, repo := newTestService(t, nil)
	ctx := context.Background()
	req := domain.PlaceOrderRequest{
		Customer:     customer("Repeat@Example.com", "5000"),
		CartLines:    []domain.CartLine{{ProductID: "prod-step-1200", Quantity: 1}},
		DiscountCode: "SAVE20",
	}

	_, err := svc.PlaceOrder(ctx, req)
	require.NoError(t, err)

	req.Customer.Email = "repeat@example.com"
	_, err = svc.PlaceOrder(ctx, req)
	var rej *pricing.RejectionError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, pricing.ReasonCustomerLimit, rej.Reason)

	preview, err := svc.ApplyDiscount(ctx, domain.ApplyDiscountRequest{
		Code:      "save20",
		Email:     "REPEAT@example.com",
		CartLines: req.CartLines,
	})
	require.NoError(t, err)
	assert.False(t, preview.Success)
	assert.Equal(t, string(pricing.ReasonCustomerLimit), preview.Reason)

	usage, err := repo.CountDiscountUsage(ctx, "dc-save20", "repeat@example.com")
	require.NoError(t, err)
	assert.Equal(t, store.DiscountUsageCount{Total: 1, Customer: 1}, usage)
}

func TestApplyDiscountPreview(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	cart := []domain.CartLine{{ProductID: "prod-ashwood-100", Quantity: 3}}

	resp, err := svc.ApplyDiscount(ctx, domain.ApplyDiscountRequest{Code: "SAVE20", CartLines: cart, Postcode: "5000"})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.NotNil(t, resp.Discount)
	assertMoney(t, "47.40", resp.Discount.Amount, "discount")
	assertMoney(t, "366.41", resp.Totals.TotalAmount, "total")

	fee := dec("80")
	resp, err = svc.ApplyDiscount(ctx, domain.ApplyDiscountRequest{Code: "TAKE50", CartLines: cart, DeliveryCost: &fee})
	require.NoError(t, err)
	require.True(t, resp.Success)
	assertMoney(t, "50", resp.Discount.Amount, "discount")
	assertMoney(t, "80", resp.Totals.DeliveryCost, "delivery")
}

func TestApplyDiscountRejections(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	cart := []domain.CartLine{{ProductID: "prod-wheelstop", Quantity: 1}}

	tests := []struct {
		name       string
		req        domain.ApplyDiscountRequest
		wantReason pricing.Reason
		wantError  string
	}{
		{name: "empty code", req: domain.ApplyDiscountRequest{Code: "  ", CartLines: cart}, wantReason: pricing.ReasonEmptyCode},
		{name: "empty cart", req: domain.ApplyDiscountRequest{Code: "SAVE20"}, wantReason: pricing.ReasonEmptyCart},
		{name: "unknown code", req: domain.ApplyDiscountRequest{Code: "NOPE", CartLines: cart}, wantReason: pricing.ReasonUnknownCode, wantError: "Invalid discount code"},
		{
			name:       "minimum order",
			req:        domain.ApplyDiscountRequest{Code: "FREESHIP", CartLines: cart, Postcode: "5000"},
			wantReason: pricing.ReasonMinimumOrder,
			wantError:  "Minimum order amount of $500.00 required for this discount",
		},
		{
			name:       "category mismatch",
			req:        domain.ApplyDiscountRequest{Code: "SLEEPERS10", CartLines: cart},
			wantReason: pricing.ReasonNotApplicable,
		},
		{
			name:       "only inactive products",
			req:        domain.ApplyDiscountRequest{Code: "SAVE20", CartLines: []domain.CartLine{{ProductID: "prod-gone", Quantity: 1}}},
			wantReason: pricing.ReasonNoValidProducts,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := svc.ApplyDiscount(ctx, tt.req)
			require.NoError(t, err)
			assert.False(t, resp.Success)
			assert.Equal(t, string(tt.wantReason), resp.Reason)
			assert.NotEmpty(t, resp.Error)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, resp.Error)
			}
		})
	}
}

func TestQuoteDeliveryUsesCache(t *testing.T) {
	zoneCache := cache.NewMemoryZoneCache()
	svc := New(memory.NewSeeded(), Options{ZoneCache: zoneCache})
	ctx := context.Background()

	quote, err := svc.QuoteDelivery(ctx, domain.DeliveryQuoteRequest{Postcode: "5211"})
	require.NoError(t, err)
	assert.Equal(t, "Zone 4", quote.Zone)
	assertMoney(t, "302.50", quote.Fee, "fee")

	pinned := domain.ZoneQuote{Zone: "Pinned", Fee: dec("1.00")}
	require.NoError(t, zoneCache.Set(ctx, cache.ZoneKey(svc.zones.Version(), "5211", true), &pinned, time.Minute))
	quote, err = svc.QuoteDelivery(ctx, domain.DeliveryQuoteRequest{Postcode: " 5211 ", IsSteel: true})
	require.NoError(t, err)
	assert.Equal(t, "Pinned", quote.Zone)

	_, err = svc.QuoteDelivery(ctx, domain.DeliveryQuoteRequest{Postcode: ""})
	require.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestCheckCartSteel(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	steel, err := svc.CheckCartSteel(ctx, []domain.CartLine{{ProductID: "prod-ashwood-75", Quantity: 4}, {ProductID: "prod-cpost-1200", Quantity: 2}})
	require.NoError(t, err)
	assert.True(t, steel)

	steel, err = svc.CheckCartSteel(ctx, []domain.CartLine{{ProductID: "prod-ashwood-75", Quantity: 4}})
	require.NoError(t, err)
	assert.False(t, steel)
}

func TestGenerateAndListDeliverySlots(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.GenerateDeliverySlots(staffCtx(), domain.SlotGenerationRequest{})
	require.ErrorIs(t, err, ErrAdminRequired)

	result, err := svc.GenerateDeliverySlots(adminCtx(), domain.SlotGenerationRequest{Days: 7, CleanupPast: true})
	require.NoError(t, err)
	assert.Equal(t, 8, result.Created)
	assert.Equal(t, 0, result.Skipped)

	again, err := svc.GenerateDeliverySlots(adminCtx(), domain.SlotGenerationRequest{Days: 7})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Created)
	assert.Equal(t, 8, again.Skipped)

	pickup, err := svc.ListDeliverySlots(context.Background(), "pickup")
	require.NoError(t, err)
	require.Len(t, pickup.Slots, 1)
	assert.Equal(t, domain.DeliveryTypePickup, pickup.Slots[0].DeliveryType)
	assert.Equal(t, 10, pickup.Slots[0].AvailableCapacity)

	delivery, err := svc.ListDeliverySlots(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 7, delivery.TotalFound)

	_, err = svc.ListDeliverySlots(context.Background(), "teleport")
	require.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestPlaceOrderReservesSlot(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	_, err := svc.GenerateDeliverySlots(adminCtx(), domain.SlotGenerationRequest{Days: 7})
	require.NoError(t, err)

	listing, err := svc.ListDeliverySlots(ctx, "pickup")
	require.NoError(t, err)
	require.NotEmpty(t, listing.Slots)
	slot := listing.Slots[0]

	order, err := svc.PlaceOrder(ctx, domain.PlaceOrderRequest{
		Customer:       customer("slot@example.com", "5000"),
		CartLines:      []domain.CartLine{{ProductID: "prod-bracket-kit", Quantity: 2}},
		DeliverySlotID: slot.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, order.DeliveryDate)
	assert.Equal(t, slot.Date, order.DeliveryDate.Format("2006-01-02"))
	assert.Equal(t, slot.TimeSlot, order.DeliveryTimeSlot)

	after, err := svc.ListDeliverySlots(ctx, "pickup")
	require.NoError(t, err)
	assert.Equal(t, slot.AvailableCapacity-1, after.Slots[0].AvailableCapacity)

	_, err = svc.SetSlotAvailability(staffCtx(), slot.ID, false)
	require.NoError(t, err)
	_, err = svc.PlaceOrder(ctx, domain.PlaceOrderRequest{
		Customer:       customer("late@example.com", "5000"),
		CartLines:      []domain.CartLine{{ProductID: "prod-bracket-kit", Quantity: 1}},
		DeliverySlotID: slot.ID,
	})
	require.ErrorIs(t, err, store.ErrSlotUnavailable)
}

func TestDiscountCodeAdministration(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.CreateDiscountCode(context.Background(), domain.DiscountCodeCreateRequest{Code: "X"})
	require.ErrorIs(t, err, ErrAdminRequired)

	created, err := svc.CreateDiscountCode(adminCtx(), domain.DiscountCodeCreateRequest{
		Code:                 "  spring15 ",
		Type:                 domain.DiscountPercentage,
		Value:                dec("15"),
		ApplicableCategories: "Sleepers, Steps",
	})
	require.NoError(t, err)
	assert.Equal(t, "SPRING15", created.Code)
	assert.Equal(t, 1, created.MaxUsesPerCustomer)
	assert.Equal(t, []string{"Sleepers", "Steps"}, created.ApplicableCategories)

	_, err = svc.CreateDiscountCode(adminCtx(), domain.DiscountCodeCreateRequest{Code: "SPRING15", Type: domain.DiscountPercentage, Value: dec("5")})
	require.ErrorIs(t, err, store.ErrConflict)

	_, err = svc.CreateDiscountCode(adminCtx(), domain.DiscountCodeCreateRequest{Code: "TOOMUCH", Type: domain.DiscountPercentage, Value: dec("150")})
	require.ErrorIs(t, err, store.ErrInvalidInput)

	_, err = svc.SetDiscountCodeActive(adminCtx(), "dc-take50", false)
	require.NoError(t, err)

	codes, err := svc.ListDiscountCodes(adminCtx())
	require.NoError(t, err)
	statuses := map[string]string{}
	for _, c := range codes {
		statuses[c.Code] = c.Status
	}
	assert.Equal(t, string(pricing.StatusInactive), statuses["TAKE50"])
	assert.Equal(t, string(pricing.StatusActive), statuses["SPRING15"])

	logs, err := svc.ListAuditLogs(adminCtx(), "", 10)
	require.NoError(t, err)
	actions := map[string]bool{}
	for _, entry := range logs {
		actions[entry.Action] = true
	}
	assert.True(t, actions["discount_create"])
	assert.True(t, actions["discount_toggle"])
}

func TestSendToTransport(t *testing.T) {
	t.Run("success marks order outsourced", func(t *testing.T) {
		booker := &stubBooker{ok: true}
		svc, _ := newTestService(t, booker)
		order := placeSimpleOrder(t, svc)

		sent, err := svc.SendToTransport(staffCtx(), order.Number)
		require.NoError(t, err)
		assert.True(t, sent.TransportSent)
		assert.NotNil(t, sent.TransportSentAt)
		assert.Equal(t, domain.DeliveryStatusOutsourced, sent.DeliveryStatus)
		assert.Equal(t, booking.ResponseSuccess, sent.TransportResponse)

		_, err = svc.SendToTransport(staffCtx(), order.Number)
		require.ErrorIs(t, err, store.ErrConflict)
		assert.Equal(t, 1, booker.calls)
	})

	t.Run("failure is recorded without error", func(t *testing.T) {
		svc, _ := newTestService(t, &stubBooker{err: errors.New("portal login failed")})
		order := placeSimpleOrder(t, svc)

		sent, err := svc.SendToTransport(staffCtx(), order.Number)
		require.NoError(t, err)
		assert.False(t, sent.TransportSent)
		assert.Equal(t, domain.DeliveryStatusPending, sent.DeliveryStatus)
		assert.Equal(t, "Automation error: portal login failed", sent.TransportResponse)
	})
}

func sendInBackground(svc *Service, number string) <-chan error {
	done := make(chan error, 1)
	go func() {
		_, err := svc.SendToTransport(staffCtx(), number)
		done <- err
	}()
	return done
}

func TestSendToTransportSubmitsOnceWhileInFlight(t *testing.T) {
	booker := newGatedBooker()
	svc, _ := newTestService(t, booker)
	order := placeSimpleOrder(t, svc)

	done := sendInBackground(svc, order.Number)
	<-booker.started

	_, err := svc.SendToTransport(staffCtx(), order.Number)
	require.ErrorIs(t, err, store.ErrConflict)

	close(booker.release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), booker.calls.Load())

	sent, err := svc.GetOrder(staffCtx(), order.Number)
	require.NoError(t, err)
	assert.True(t, sent.TransportSent)
	assert.False(t, sent.TransportPending)
}

func TestSendToTransportKeepsConcurrentStatusChange(t *testing.T) {
	booker := newGatedBooker()
	svc, _ := newTestService(t, booker)
	order := placeSimpleOrder(t, svc)

	done := sendInBackground(svc, order.Number)
	<-booker.started

	cancelled, err := svc.UpdateOrderStatus(staffCtx(), order.Number, domain.OrderStatusCancelled)
	require.NoError(t, err)
	assert.True(t, cancelled.TransportPending)

	close(booker.release)
	require.NoError(t, <-done)

	final, err := svc.GetOrder(staffCtx(), order.Number)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, final.Status)
	assert.Equal(t, domain.DeliveryStatusOutsourced, final.DeliveryStatus)
	assert.True(t, final.TransportSent)
}

func TestSendToTransportRetryAfterFailure(t *testing.T) {
	booker := &stubBooker{ok: false}
	svc, _ := newTestService(t, booker)
	order := placeSimpleOrder(t, svc)

	first, err := svc.SendToTransport(staffCtx(), order.Number)
	require.NoError(t, err)
	assert.False(t, first.TransportSent)
	assert.False(t, first.TransportPending)

	booker.ok = true
	second, err := svc.SendToTransport(staffCtx(), order.Number)
	require.NoError(t, err)
	assert.True(t, second.TransportSent)
	assert.Equal(t, 2, booker.calls)
}

func TestLookupOrderHidesPrivateFields(t *testing.T) {
	svc, _ := newTestService(t, nil)
	order := placeSimpleOrder(t, svc)

	view, err := svc.LookupOrder(context.Background(), " "+strings.ToLower(order.Number)+" ")
	require.NoError(t, err)
	assert.Equal(t, order.Number, view.Number)
	assert.Equal(t, 6, view.TotalItems)
	assert.True(t, order.TotalAmount.Equal(view.TotalAmount))
	require.Len(t, view.Lines, 1)
	assert.Equal(t, 6, view.Lines[0].Quantity)

	_, err = svc.LookupOrder(context.Background(), "  ")
	require.ErrorIs(t, err, store.ErrInvalidInput)
}

func placeSimpleOrder(t *testing.T, svc *Service) domain.Order {
	t.Helper()
	order, err := svc.PlaceOrder(context.Background(), domain.PlaceOrderRequest{
		Customer:  customer("transport@example.com", "5108"),
		CartLines: []domain.CartLine{{ProductID: "prod-ufp-2380", Quantity: 6}},
	})
	require.NoError(t, err)
	return order
}

func TestOrderStatusWorkflow(t *testing.T) {
	svc, _ := newTestService(t, nil)
	order := placeSimpleOrder(t, svc)

	_, err := svc.UpdateOrderStatus(staffCtx(), order.Number, "lost")
	require.ErrorIs(t, err, store.ErrInvalidInput)

	updated, err := svc.UpdateOrderStatus(staffCtx(), order.Number, "Shipped")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, updated.Status)
	assert.Equal(t, 6, updated.TotalItems)
	assert.Equal(t, "Medium load (small truck required)", updated.VolumeEstimate)

	accepted, err := svc.SetDeliveryStatus(staffCtx(), order.Number, " Accepted ")
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusAccepted, accepted.DeliveryStatus)

	_, err = svc.UpdateOrderStatus(staffCtx(), "WQ00000000FFFFFF", domain.OrderStatusShipped)
	require.ErrorIs(t, err, store.ErrNotFound)

	listed, err := svc.ListOrders(staffCtx(), domain.OrderStatusShipped, 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, order.Number, listed[0].Number)
}

func TestRecalculateOrderIsStable(t *testing.T) {
	svc, _ := newTestService(t, nil)
	order := placeSimpleOrder(t, svc)

	recalculated, err := svc.RecalculateOrder(staffCtx(), order.Number)
	require.NoError(t, err)
	assert.True(t, order.TotalAmount.Equal(recalculated.TotalAmount))
	assert.True(t, order.TaxAmount.Equal(recalculated.TaxAmount))
	assert.True(t, order.TotalWeightKg.Equal(recalculated.TotalWeightKg))
}

func TestCreateQuoteRequestPricesDelivery(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	quote, err := svc.CreateQuoteRequest(ctx, domain.QuoteRequestCreate{
		CustomerName:     "Sam Lee",
		CustomerEmail:    "sam@example.com",
		DeliveryAddress:  "1 Beach Rd, Victor Harbor",
		DeliveryPostcode: "5211",
		PreferredDate:    "2025-07-01",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.QuoteStatusPending, quote.Status)
	assert.Equal(t, "Zone 4", quote.DeliveryZone)
	assertMoney(t, "302.50", quote.DeliveryCost, "delivery")

	_, err = svc.CreateQuoteRequest(ctx, domain.QuoteRequestCreate{CustomerName: "Sam", CustomerEmail: "nope"})
	require.ErrorIs(t, err, store.ErrInvalidInput)

	quotes, err := svc.ListQuoteRequests(staffCtx(), 0)
	require.NoError(t, err)
	assert.Len(t, quotes, 1)
}

func TestCreateProductResolvesCategory(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.CreateProduct(staffCtx(), domain.ProductCreateRequest{Name: "X", Price: dec("1")})
	require.ErrorIs(t, err, ErrAdminRequired)

	p, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		SKU:      " ub-150 ",
		Name:     "150UB Universal Beam 2400",
		Category: "Structural Steel",
		Price:    dec("189.999"),
		Weight:   dec("34"),
	})
	require.NoError(t, err)
	assert.Equal(t, "UB-150", p.SKU)
	assert.Equal(t, domain.CategorySteel, p.Category.Tag)
	assertMoney(t, "190.00", p.Price, "price")
}

func TestQuoteDeliveryIgnoresQuotesFromAnotherZoneTable(t *testing.T) {
	zoneCache := cache.NewMemoryZoneCache()
	ctx := context.Background()

	old := New(memory.NewSeeded(), Options{ZoneCache: zoneCache})
	_, err := old.QuoteDelivery(ctx, domain.DeliveryQuoteRequest{Postcode: "5211"})
	require.NoError(t, err)

	moved := pricing.NewZoneResolver(pricing.NewZoneTable([]pricing.ZoneEntry{
		{Postcode: "5211", Suburb: "Victor Harbor", SteelZone: "regional", Zone: "3"},
	}))
	reloaded := New(memory.NewSeeded(), Options{ZoneCache: zoneCache, Zones: moved})
	quote, err := reloaded.QuoteDelivery(ctx, domain.DeliveryQuoteRequest{Postcode: "5211"})
	require.NoError(t, err)
	assert.Equal(t, "Zone 3", quote.Zone)
	assertMoney(t, "242.00", quote.Fee, "fee")
}
