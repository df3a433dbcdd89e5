package memory

import (
	"context"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"wallquote/backend/internal/domain"
	"wallquote/backend/internal/slots"
	"wallquote/backend/internal/store"
	"wallquote/backend/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	products         map[string]domain.Product
	discountsByCode  map[string]domain.DiscountCode
	discountCodeByID map[string]string
	usages           []domain.DiscountUsage
	templates        map[string]domain.DeliveryTemplate
	slots            map[string]domain.DeliverySlot
	slotOrders       map[string]int
	ordersByID       map[string]*domain.Order
	orderIDByNumber  map[string]string
	quotes           []domain.QuoteRequest
	auditLogs        []domain.AuditLog
	usersByUsername  map[string]domain.UserAccount
	now              func() time.Time
}

func New() *Store {
	return &Store{
		products:         make(map[string]domain.Product),
		discountsByCode:  make(map[string]domain.DiscountCode),
		discountCodeByID: make(map[string]string),
		usages:           make([]domain.DiscountUsage, 0, 64),
		templates:        make(map[string]domain.DeliveryTemplate),
		slots:            make(map[string]domain.DeliverySlot),
		slotOrders:       make(map[string]int),
		ordersByID:       make(map[string]*domain.Order),
		orderIDByNumber:  make(map[string]string),
		quotes:           make([]domain.QuoteRequest, 0, 16),
		auditLogs:        make([]domain.AuditLog, 0, 128),
		usersByUsername:  make(map[string]domain.UserAccount),
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// seedUsers builds the dev/demo accounts. Passwords come from
// SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD; the hardcoded fallbacks are
// only ever used by the in-memory store.
func seedUsers(now time.Time) map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		slog.Warn("memory store using default dev credentials, set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override")
	}

	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"staff", staffPwd, domain.RoleStaff},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			panic("memory store: hash seed password: " + err.Error())
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func NewSeeded() *Store {
	s := New()
	now := s.now()

	products := []struct {
		id, sku, name, category, price, weight string
	}{
		{"prod-ashwood-75", "ASH-2000-75", "Ashwood Sleeper 2000x200x75", "Concrete Sleepers", "49.50", "60"},
		{"prod-ashwood-100", "ASH-2400-100", "Ashwood Sleeper 2400x200x100", "Concrete Sleepers", "79.00", "80"},
		{"prod-blackwood-75", "BLK-2400-75", "Blackwood Sleeper 2400x200x75", "Concrete Sleepers", "62.00", "62"},
		{"prod-cove-75", "COV-2000-75", "Cove Sleeper 2000x200x75", "Concrete Sleepers", "55.00", "58"},
		{"prod-hpost-1800", "HP-1800", "Galv Steel H Post 1800", "Steel Posts & Hardware", "45.00", "20"},
		{"prod-cpost-1200", "CP-1200", "Galv Steel C Post 1200", "Steel Posts & Hardware", "32.00", "16"},
		{"prod-corner-1800", "CNR-1800", "Galv Steel Corner Post 1800", "Steel Posts & Hardware", "52.00", "22"},
		{"prod-ufp-2380", "UFP-2380", "UFP 2380 Under Fence Plinth", "Plinths", "38.00", "40"},
		{"prod-step-1200", "STP-1200", "Concrete Step 1200", "Steps", "120.00", "80"},
		{"prod-wheelstop", "WS-1650", "Wheel Stop 1650", "Edging", "65.00", "45"},
		{"prod-bracket-kit", "BRK-KIT", "Sleeper Bracket Kit", "Hardware", "12.50", "2"},
	}
	for _, p := range products {
		s.products[p.id] = domain.Product{
			ID:        p.id,
			SKU:       p.sku,
			Name:      p.name,
			Category:  domain.ResolveCategory(p.category),
			Price:     dec(p.price),
			Weight:    dec(p.weight),
			Active:    true,
			CreatedAt: now,
		}
	}

	validFrom := now.AddDate(0, -1, 0)
	codes := []domain.DiscountCode{
		{ID: "dc-save20", Code: "SAVE20", Name: "20% off", Type: domain.DiscountPercentage, Value: dec("20"), MaxUsesPerCustomer: 1},
		{ID: "dc-freeship", Code: "FREESHIP", Name: "Free delivery over $500", Type: domain.DiscountFreeShipping, MaxUsesPerCustomer: 1, MinimumOrderAmount: decimal.NewNullDecimal(dec("500"))},
		{ID: "dc-sleepers10", Code: "SLEEPERS10", Name: "10% off sleepers", Type: domain.DiscountPercentage, Value: dec("10"), MaxUsesPerCustomer: 3, ApplicableCategories: []string{"sleeper"}},
		{ID: "dc-take50", Code: "TAKE50", Name: "$50 off", Type: domain.DiscountFixedAmount, Value: dec("50"), MaxUses: intPtr(100), MaxUsesPerCustomer: 1},
	}
	for _, c := range codes {
		c.ValidFrom = validFrom
		c.Active = true
		c.CreatedAt = now
		s.discountsByCode[c.Code] = c
		s.discountCodeByID[c.ID] = c.Code
	}

	templates := []domain.DeliveryTemplate{
		{Name: "Weekday morning run", TimeSlot: "7:00 AM - 12:00 PM", Capacity: 5, DeliveryType: domain.DeliveryTypeInternal},
		{Name: "Partner afternoon", TimeSlot: "12:00 PM - 5:00 PM", Capacity: 3, DeliveryType: domain.DeliveryTypeExternal},
		{Name: "Saturday yard pickup", DayOfWeek: 5, TimeSlot: "8:00 AM - 12:00 PM", Capacity: 10, DeliveryType: domain.DeliveryTypePickup},
	}
	for day := 0; day < 5; day++ {
		t := templates[0]
		t.DayOfWeek = day
		s.seedTemplate(t, now)
	}
	for _, day := range []int{1, 3} {
		t := templates[1]
		t.DayOfWeek = day
		s.seedTemplate(t, now)
	}
	s.seedTemplate(templates[2], now)

	s.usersByUsername = seedUsers(now)
	return s
}

func (s *Store) seedTemplate(t domain.DeliveryTemplate, now time.Time) {
	t.ID = xid.New("tpl")
	t.Active = true
	t.CreatedAt = now
	s.templates[t.ID] = t
}

func intPtr(v int) *int { return &v }

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.Active {
			products = append(products, p)
		}
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if c := strings.Compare(a.Category.Label, b.Category.Label); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

// GetProductsByIDs includes inactive products; callers decide what to skip.
func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || !product.Price.IsPositive() || product.Weight.IsNegative() {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if product.SKU != "" {
		for _, existing := range s.products {
			if existing.SKU == product.SKU {
				return nil, store.ErrConflict
			}
		}
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = s.now()
	}
	product.Active = true
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) CreateDiscountCode(_ context.Context, code domain.DiscountCode) (*domain.DiscountCode, error) {
	if code.Code == "" || code.Value.IsNegative() {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.discountsByCode[code.Code]; exists {
		return nil, store.ErrConflict
	}
	if code.ID == "" {
		code.ID = xid.New("dc")
	}
	if code.CreatedAt.IsZero() {
		code.CreatedAt = s.now()
	}
	s.discountsByCode[code.Code] = code
	s.discountCodeByID[code.ID] = code.Code
	created := cloneDiscountCode(code)
	return &created, nil
}

func (s *Store) GetDiscountCode(_ context.Context, code string) (*domain.DiscountCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.discountsByCode[code]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := cloneDiscountCode(c)
	return &found, nil
}

func (s *Store) ListDiscountCodes(_ context.Context) ([]domain.DiscountCodeSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	used := make(map[string]int, len(s.discountsByCode))
	for _, u := range s.usages {
		used[u.DiscountCodeID]++
	}
	result := make([]domain.DiscountCodeSummary, 0, len(s.discountsByCode))
	for _, c := range s.discountsByCode {
		result = append(result, domain.DiscountCodeSummary{DiscountCode: cloneDiscountCode(c), TimesUsed: used[c.ID]})
	}
	slices.SortFunc(result, func(a, b domain.DiscountCodeSummary) int {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return b.CreatedAt.Compare(a.CreatedAt)
		}
		return strings.Compare(a.Code, b.Code)
	})
	return result, nil
}

func (s *Store) SetDiscountCodeActive(_ context.Context, id string, active bool) (*domain.DiscountCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code, ok := s.discountCodeByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := s.discountsByCode[code]
	c.Active = active
	s.discountsByCode[code] = c
	updated := cloneDiscountCode(c)
	return &updated, nil
}

func (s *Store) CountDiscountUsage(_ context.Context, codeID string, customerEmail string) (store.DiscountUsageCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countUsageLocked(codeID, customerEmail), nil
}

func (s *Store) countUsageLocked(codeID string, customerEmail string) store.DiscountUsageCount {
	email := normalizeEmail(customerEmail)
	var count store.DiscountUsageCount
	for _, u := range s.usages {
		if u.DiscountCodeID != codeID {
			continue
		}
		count.Total++
		if email != "" && normalizeEmail(u.CustomerEmail) == email {
			count.Customer++
		}
	}
	return count
}

func (s *Store) CreateDeliveryTemplate(_ context.Context, template domain.DeliveryTemplate) (*domain.DeliveryTemplate, error) {
	if strings.TrimSpace(template.Name) == "" || strings.TrimSpace(template.TimeSlot) == "" ||
		template.DayOfWeek < 0 || template.DayOfWeek > 6 || template.Capacity < 1 || !domain.IsDeliveryType(template.DeliveryType) {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.templates {
		if t.DayOfWeek == template.DayOfWeek && t.TimeSlot == template.TimeSlot && t.DeliveryType == template.DeliveryType {
			return nil, store.ErrConflict
		}
	}
	if template.ID == "" {
		template.ID = xid.New("tpl")
	}
	if template.CreatedAt.IsZero() {
		template.CreatedAt = s.now()
	}
	s.templates[template.ID] = template
	created := template
	return &created, nil
}

func (s *Store) ListDeliveryTemplates(_ context.Context, activeOnly bool) ([]domain.DeliveryTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.DeliveryTemplate, 0, len(s.templates))
	for _, t := range s.templates {
		if activeOnly && !t.Active {
			continue
		}
		result = append(result, t)
	}
	slices.SortFunc(result, func(a, b domain.DeliveryTemplate) int {
		if a.DayOfWeek != b.DayOfWeek {
			return a.DayOfWeek - b.DayOfWeek
		}
		if c := strings.Compare(a.TimeSlot, b.TimeSlot); c != 0 {
			return c
		}
		return strings.Compare(a.DeliveryType, b.DeliveryType)
	})
	return result, nil
}

// ListDeliverySlots returns slots dated within [from, to], both inclusive,
// with their current order counts.
func (s *Store) ListDeliverySlots(_ context.Context, from time.Time, to time.Time) ([]domain.DeliverySlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from, to = slots.Day(from), slots.Day(to)
	result := make([]domain.DeliverySlot, 0, len(s.slots))
	for _, slot := range s.slots {
		d := slots.Day(slot.Date)
		if d.Before(from) || d.After(to) {
			continue
		}
		slot.OrdersCount = s.slotOrders[slot.ID]
		result = append(result, slot)
	}
	slices.SortFunc(result, func(a, b domain.DeliverySlot) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		if c := strings.Compare(a.TimeSlot, b.TimeSlot); c != 0 {
			return c
		}
		return strings.Compare(a.DeliveryType, b.DeliveryType)
	})
	return result, nil
}

// CreateDeliverySlots inserts slots whose key is not taken yet and reports
// how many were inserted.
func (s *Store) CreateDeliverySlots(_ context.Context, newSlots []domain.DeliverySlot) (int, error) {
	for _, slot := range newSlots {
		if slot.TimeSlot == "" || slot.Capacity < 1 || !domain.IsDeliveryType(slot.DeliveryType) {
			return 0, store.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	taken := make(map[slots.Key]struct{}, len(s.slots))
	for _, slot := range s.slots {
		taken[slots.KeyOf(slot)] = struct{}{}
	}
	inserted := 0
	for _, slot := range newSlots {
		slot.Date = slots.Day(slot.Date)
		key := slots.KeyOf(slot)
		if _, ok := taken[key]; ok {
			continue
		}
		if slot.ID == "" {
			slot.ID = xid.New("slot")
		}
		if slot.CreatedAt.IsZero() {
			slot.CreatedAt = s.now()
		}
		slot.OrdersCount = 0
		s.slots[slot.ID] = slot
		taken[key] = struct{}{}
		inserted++
	}
	return inserted, nil
}

func (s *Store) DeleteAutoGeneratedSlotsBefore(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before = slots.Day(before)
	deleted := 0
	for id, slot := range s.slots {
		if slot.AutoGenerated && slots.Day(slot.Date).Before(before) {
			delete(s.slots, id)
			delete(s.slotOrders, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) SetSlotAvailability(_ context.Context, id string, available bool) (*domain.DeliverySlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	slot.Available = available
	s.slots[id] = slot
	slot.OrdersCount = s.slotOrders[id]
	return &slot, nil
}

// PlaceOrder holds the write lock across the slot check, discount decision,
// usage insert and order insert so concurrent placements serialise.
func (s *Store) PlaceOrder(_ context.Context, placement store.OrderPlacement) (*domain.Order, error) {
	if placement.Finalize == nil || len(placement.Order.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order := cloneOrder(&placement.Order)
	now := s.now()
	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if order.Number == "" {
		order.Number = xid.OrderNumber(now)
	}
	if _, exists := s.orderIDByNumber[order.Number]; exists {
		return nil, store.ErrConflict
	}

	if order.DeliverySlotID != "" {
		slot, ok := s.slots[order.DeliverySlotID]
		if !ok {
			return nil, store.ErrNotFound
		}
		if !slot.Available {
			return nil, store.ErrSlotUnavailable
		}
		if slots.IsFull(slot.Capacity, s.slotOrders[slot.ID]) {
			return nil, store.ErrSlotFull
		}
		date := slot.Date
		order.DeliveryDate = &date
		order.DeliveryTimeSlot = slot.TimeSlot
	}

	var code *domain.DiscountCode
	var usage store.DiscountUsageCount
	if placement.DiscountCode != "" {
		if c, ok := s.discountsByCode[placement.DiscountCode]; ok {
			found := cloneDiscountCode(c)
			code = &found
			usage = s.countUsageLocked(c.ID, order.Customer.Email)
		}
	}
	if err := placement.Finalize(order, code, usage); err != nil {
		return nil, err
	}

	for i := range order.Lines {
		if order.Lines[i].ID == "" {
			order.Lines[i].ID = xid.New("line")
		}
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	if code != nil && order.DiscountCodeID == code.ID && order.DiscountAmount.IsPositive() {
		s.usages = append(s.usages, domain.DiscountUsage{
			ID:             xid.New("use"),
			DiscountCodeID: code.ID,
			Code:           code.Code,
			CustomerEmail:  normalizeEmail(order.Customer.Email),
			OrderNumber:    order.Number,
			Amount:         order.DiscountAmount,
			UsedAt:         now,
		})
	}
	if order.DeliverySlotID != "" {
		s.slotOrders[order.DeliverySlotID]++
	}
	s.ordersByID[order.ID] = order
	s.orderIDByNumber[order.Number] = order.ID
	return cloneOrder(order), nil
}

func (s *Store) GetOrderByNumber(_ context.Context, number string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.orderIDByNumber[number]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneOrder(s.ordersByID[id]), nil
}

func (s *Store) ListOrders(_ context.Context, status string, limit int) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0, len(s.ordersByID))
	for _, o := range s.ordersByID {
		if status != "" && o.Status != status {
			continue
		}
		result = append(result, *cloneOrder(o))
	}
	slices.SortFunc(result, func(a, b domain.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.Number, a.Number)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// updateOrder applies fn to a copy of the stored order under the lock.
func (s *Store) updateOrder(id string, fn func(o *domain.Order) error) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	updated := cloneOrder(existing)
	if err := fn(updated); err != nil {
		return nil, err
	}
	updated.UpdatedAt = s.now()
	s.ordersByID[id] = updated
	return cloneOrder(updated), nil
}

func (s *Store) SetOrderStatus(_ context.Context, id string, status string) (*domain.Order, error) {
	return s.updateOrder(id, func(o *domain.Order) error {
		o.Status = status
		return nil
	})
}

func (s *Store) SetDeliveryStatus(_ context.Context, id string, status string) (*domain.Order, error) {
	return s.updateOrder(id, func(o *domain.Order) error {
		o.DeliveryStatus = status
		return nil
	})
}

// SetOrderTotals leaves lines, customer and slot as placed; only line totals
// may change.
func (s *Store) SetOrderTotals(_ context.Context, order domain.Order) (*domain.Order, error) {
	return s.updateOrder(order.ID, func(o *domain.Order) error {
		o.Subtotal = order.Subtotal
		o.DeliveryCost = order.DeliveryCost
		o.DiscountAmount = order.DiscountAmount
		o.TaxAmount = order.TaxAmount
		o.TotalAmount = order.TotalAmount
		o.TotalWeightKg = order.TotalWeightKg
		for i := range o.Lines {
			if i < len(order.Lines) && order.Lines[i].ID == o.Lines[i].ID {
				o.Lines[i].LineTotal = order.Lines[i].LineTotal
			}
		}
		return nil
	})
}

func (s *Store) ClaimTransport(_ context.Context, id string) (*domain.Order, error) {
	return s.updateOrder(id, func(o *domain.Order) error {
		if o.TransportSent || o.TransportPending {
			return store.ErrConflict
		}
		o.TransportPending = true
		return nil
	})
}

func (s *Store) RecordTransportOutcome(_ context.Context, id string, outcome domain.TransportOutcome) (*domain.Order, error) {
	return s.updateOrder(id, func(o *domain.Order) error {
		o.TransportPending = false
		o.TransportResponse = outcome.Response
		if outcome.Sent {
			sentAt := outcome.SentAt
			o.TransportSent = true
			o.TransportSentAt = &sentAt
			o.DeliveryStatus = domain.DeliveryStatusOutsourced
		}
		return nil
	})
}

func (s *Store) CreateQuoteRequest(_ context.Context, quote domain.QuoteRequest) (*domain.QuoteRequest, error) {
	if strings.TrimSpace(quote.CustomerName) == "" || strings.TrimSpace(quote.CustomerEmail) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if quote.ID == "" {
		quote.ID = xid.New("quote")
	}
	if quote.Status == "" {
		quote.Status = domain.QuoteStatusPending
	}
	if quote.CreatedAt.IsZero() {
		quote.CreatedAt = s.now()
	}
	s.quotes = append(s.quotes, quote)
	created := quote
	return &created, nil
}

func (s *Store) ListQuoteRequests(_ context.Context, limit int) ([]domain.QuoteRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := slices.Clone(s.quotes)
	slices.SortFunc(result, func(a, b domain.QuoteRequest) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneDiscountCode(src domain.DiscountCode) domain.DiscountCode {
	dst := src
	if src.MaxUses != nil {
		v := *src.MaxUses
		dst.MaxUses = &v
	}
	dst.ValidUntil = cloneTime(src.ValidUntil)
	dst.ApplicableProducts = slices.Clone(src.ApplicableProducts)
	dst.ExcludeProducts = slices.Clone(src.ExcludeProducts)
	dst.ApplicableCategories = slices.Clone(src.ApplicableCategories)
	dst.ExcludeCategories = slices.Clone(src.ExcludeCategories)
	return dst
}

func cloneOrder(src *domain.Order) *domain.Order {
	dst := *src
	dst.Lines = slices.Clone(src.Lines)
	dst.PaidAt = cloneTime(src.PaidAt)
	dst.DeliveryDate = cloneTime(src.DeliveryDate)
	dst.TransportSentAt = cloneTime(src.TransportSentAt)
	return &dst
}
