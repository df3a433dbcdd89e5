package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"wallquote/backend/internal/domain"
	"wallquote/backend/internal/store"
	"wallquote/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

// placeOrderAttempts bounds retries of a placement that lost a serialization
// race against another checkout.
const placeOrderAttempts = 3

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates missing tables and indexes. It is safe to run on every
// start.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const productColumns = `id, sku, name, category_tag, category_label, color, price, weight, active, created_at`

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	var sku sql.NullString
	var tag string
	if err := row.Scan(&p.ID, &sku, &p.Name, &tag, &p.Category.Label, &p.Color, &p.Price, &p.Weight, &p.Active, &p.CreatedAt); err != nil {
		return domain.Product{}, err
	}
	p.SKU = sku.String
	p.Category.Tag = domain.CategoryTag(tag)
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true
		ORDER BY category_label, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || !product.Price.IsPositive() || product.Weight.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = s.now()
	}
	product.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, category_tag, category_label, color, price, weight, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, product.ID, nullIfEmpty(product.SKU), product.Name, string(product.Category.Tag), product.Category.Label,
		product.Color, product.Price, product.Weight, product.Active, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &product, nil
}

const discountColumns = `id, code, name, description, discount_type, discount_value, max_uses, max_uses_per_customer,
	minimum_order_amount, valid_from, valid_until, active, applicable_products, exclude_products,
	applicable_categories, exclude_categories, created_at`

func scanDiscountCode(row rowScanner) (domain.DiscountCode, error) {
	var c domain.DiscountCode
	var discountType string
	var maxUses sql.NullInt64
	var validUntil sql.NullTime
	var products, excludeProducts, categories, excludeCategories []byte
	if err := row.Scan(
		&c.ID, &c.Code, &c.Name, &c.Description, &discountType, &c.Value, &maxUses, &c.MaxUsesPerCustomer,
		&c.MinimumOrderAmount, &c.ValidFrom, &validUntil, &c.Active, &products, &excludeProducts,
		&categories, &excludeCategories, &c.CreatedAt,
	); err != nil {
		return domain.DiscountCode{}, err
	}
	c.Type = domain.DiscountType(discountType)
	if maxUses.Valid {
		v := int(maxUses.Int64)
		c.MaxUses = &v
	}
	if validUntil.Valid {
		v := validUntil.Time.UTC()
		c.ValidUntil = &v
	}
	c.ValidFrom = c.ValidFrom.UTC()
	c.CreatedAt = c.CreatedAt.UTC()

	for _, list := range []struct {
		raw []byte
		dst *[]string
	}{
		{products, &c.ApplicableProducts},
		{excludeProducts, &c.ExcludeProducts},
		{categories, &c.ApplicableCategories},
		{excludeCategories, &c.ExcludeCategories},
	} {
		if len(list.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(list.raw, list.dst); err != nil {
			return domain.DiscountCode{}, fmt.Errorf("decode discount %s lists: %w", c.Code, err)
		}
		if len(*list.dst) == 0 {
			*list.dst = nil
		}
	}
	return c, nil
}

func jsonList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (s *Store) CreateDiscountCode(ctx context.Context, code domain.DiscountCode) (*domain.DiscountCode, error) {
	if code.Code == "" || code.Value.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if code.ID == "" {
		code.ID = xid.New("dc")
	}
	if code.CreatedAt.IsZero() {
		code.CreatedAt = s.now()
	}

	lists := make([]string, 0, 4)
	for _, values := range [][]string{code.ApplicableProducts, code.ExcludeProducts, code.ApplicableCategories, code.ExcludeCategories} {
		raw, err := jsonList(values)
		if err != nil {
			return nil, err
		}
		lists = append(lists, raw)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO discount_codes (
			id, code, name, description, discount_type, discount_value, max_uses, max_uses_per_customer,
			minimum_order_amount, valid_from, valid_until, active, applicable_products, exclude_products,
			applicable_categories, exclude_categories, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, code.ID, code.Code, code.Name, code.Description, string(code.Type), code.Value, nullInt(code.MaxUses),
		code.MaxUsesPerCustomer, code.MinimumOrderAmount, code.ValidFrom, nullTime(code.ValidUntil), code.Active,
		lists[0], lists[1], lists[2], lists[3], code.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &code, nil
}

func (s *Store) GetDiscountCode(ctx context.Context, code string) (*domain.DiscountCode, error) {
	c, err := scanDiscountCode(s.db.QueryRowContext(ctx, `
		SELECT `+discountColumns+`
		FROM discount_codes
		WHERE code = $1
	`, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListDiscountCodes(ctx context.Context) ([]domain.DiscountCodeSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+discountColumns+`,
			(SELECT COUNT(*) FROM discount_usages u WHERE u.discount_code_id = discount_codes.id)
		FROM discount_codes
		ORDER BY created_at DESC, code ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.DiscountCodeSummary, 0, 16)
	for rows.Next() {
		var timesUsed int
		c, err := scanDiscountCode(scanWithTail{rows, &timesUsed})
		if err != nil {
			return nil, err
		}
		result = append(result, domain.DiscountCodeSummary{DiscountCode: c, TimesUsed: timesUsed})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// scanWithTail appends extra destinations after the ones a scan helper asks
// for, so aggregate columns can ride along with a shared column list.
type scanWithTail struct {
	row  rowScanner
	tail *int
}

func (s scanWithTail) Scan(dest ...any) error {
	return s.row.Scan(append(dest, s.tail)...)
}

func (s *Store) SetDiscountCodeActive(ctx context.Context, id string, active bool) (*domain.DiscountCode, error) {
	c, err := scanDiscountCode(s.db.QueryRowContext(ctx, `
		UPDATE discount_codes
		SET active = $2
		WHERE id = $1
		RETURNING `+discountColumns,
		id, active))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) CountDiscountUsage(ctx context.Context, codeID string, customerEmail string) (store.DiscountUsageCount, error) {
	return countUsage(ctx, s.db, codeID, customerEmail)
}

func countUsage(ctx context.Context, q querier, codeID string, customerEmail string) (store.DiscountUsageCount, error) {
	var count store.DiscountUsageCount
	err := q.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE $2 <> '' AND lower(customer_email) = $2)
		FROM discount_usages
		WHERE discount_code_id = $1
	`, codeID, normalizeEmail(customerEmail)).Scan(&count.Total, &count.Customer)
	return count, err
}

const templateColumns = `id, name, day_of_week, time_slot, capacity, delivery_type, active, notes, exclude_dates, created_at`

func scanTemplate(row rowScanner) (domain.DeliveryTemplate, error) {
	var t domain.DeliveryTemplate
	if err := row.Scan(&t.ID, &t.Name, &t.DayOfWeek, &t.TimeSlot, &t.Capacity, &t.DeliveryType, &t.Active, &t.Notes, &t.ExcludeDates, &t.CreatedAt); err != nil {
		return domain.DeliveryTemplate{}, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

func (s *Store) CreateDeliveryTemplate(ctx context.Context, template domain.DeliveryTemplate) (*domain.DeliveryTemplate, error) {
	if strings.TrimSpace(template.Name) == "" || strings.TrimSpace(template.TimeSlot) == "" ||
		template.DayOfWeek < 0 || template.DayOfWeek > 6 || template.Capacity < 1 || !domain.IsDeliveryType(template.DeliveryType) {
		return nil, store.ErrInvalidInput
	}
	if template.ID == "" {
		template.ID = xid.New("tpl")
	}
	if template.CreatedAt.IsZero() {
		template.CreatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO delivery_templates (id, name, day_of_week, time_slot, capacity, delivery_type, active, notes, exclude_dates, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, template.ID, template.Name, template.DayOfWeek, template.TimeSlot, template.Capacity, template.DeliveryType,
		template.Active, template.Notes, template.ExcludeDates, template.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &template, nil
}

func (s *Store) ListDeliveryTemplates(ctx context.Context, activeOnly bool) ([]domain.DeliveryTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+templateColumns+`
		FROM delivery_templates
		WHERE ($1 = false OR active = true)
		ORDER BY day_of_week, time_slot, delivery_type
	`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.DeliveryTemplate, 0, 16)
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

const slotColumns = `s.id, s.slot_date, s.time_slot, s.capacity, s.available, s.delivery_type, s.notes, s.created_by,
	s.template_id, s.template_name, s.auto_generated, s.created_at`

func scanSlot(row rowScanner, extra ...any) (domain.DeliverySlot, error) {
	var slot domain.DeliverySlot
	var templateID sql.NullString
	dest := []any{
		&slot.ID, &slot.Date, &slot.TimeSlot, &slot.Capacity, &slot.Available, &slot.DeliveryType, &slot.Notes,
		&slot.CreatedBy, &templateID, &slot.TemplateName, &slot.AutoGenerated, &slot.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return domain.DeliverySlot{}, err
	}
	slot.Date = nowDateUTC(slot.Date)
	slot.TemplateID = templateID.String
	slot.CreatedAt = slot.CreatedAt.UTC()
	return slot, nil
}

func (s *Store) ListDeliverySlots(ctx context.Context, from time.Time, to time.Time) ([]domain.DeliverySlot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+slotColumns+`, COUNT(o.id)
		FROM delivery_slots s
		LEFT JOIN orders o ON o.delivery_slot_id = s.id
		WHERE s.slot_date BETWEEN $1 AND $2
		GROUP BY s.id
		ORDER BY s.slot_date, s.time_slot, s.delivery_type
	`, nowDateUTC(from), nowDateUTC(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.DeliverySlot, 0, 32)
	for rows.Next() {
		var ordersCount int
		slot, err := scanSlot(rows, &ordersCount)
		if err != nil {
			return nil, err
		}
		slot.OrdersCount = ordersCount
		result = append(result, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateDeliverySlots inserts slots whose (date, time slot, type) key is free
// and reports how many rows were inserted.
func (s *Store) CreateDeliverySlots(ctx context.Context, newSlots []domain.DeliverySlot) (int, error) {
	for _, slot := range newSlots {
		if slot.TimeSlot == "" || slot.Capacity < 1 || !domain.IsDeliveryType(slot.DeliveryType) {
			return 0, store.ErrInvalidInput
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	inserted := 0
	now := s.now()
	for _, slot := range newSlots {
		if slot.ID == "" {
			slot.ID = xid.New("slot")
		}
		if slot.CreatedAt.IsZero() {
			slot.CreatedAt = now
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO delivery_slots (
				id, slot_date, time_slot, capacity, available, delivery_type, notes, created_by,
				template_id, template_name, auto_generated, created_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			ON CONFLICT (slot_date, time_slot, delivery_type) DO NOTHING
		`, slot.ID, nowDateUTC(slot.Date), slot.TimeSlot, slot.Capacity, slot.Available, slot.DeliveryType, slot.Notes,
			slot.CreatedBy, nullIfEmpty(slot.TemplateID), slot.TemplateName, slot.AutoGenerated, slot.CreatedAt)
		if err != nil {
			return 0, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(affected)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

func (s *Store) DeleteAutoGeneratedSlotsBefore(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM delivery_slots
		WHERE auto_generated = true AND slot_date < $1
	`, nowDateUTC(before))
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *Store) SetSlotAvailability(ctx context.Context, id string, available bool) (*domain.DeliverySlot, error) {
	var ordersCount int
	slot, err := scanSlot(s.db.QueryRowContext(ctx, `
		UPDATE delivery_slots s
		SET available = $2
		WHERE s.id = $1
		RETURNING `+slotColumns+`, (SELECT COUNT(*) FROM orders o WHERE o.delivery_slot_id = s.id)
	`, id, available), &ordersCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	slot.OrdersCount = ordersCount
	return &slot, nil
}

// PlaceOrder runs the slot reservation, discount decision, usage insert and
// order insert in one serializable transaction. The slot and code rows are
// locked so concurrent checkouts cannot both take the last seat or use.
func (s *Store) PlaceOrder(ctx context.Context, placement store.OrderPlacement) (*domain.Order, error) {
	if placement.Finalize == nil || len(placement.Order.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}

	var lastErr error
	for attempt := 0; attempt < placeOrderAttempts; attempt++ {
		order, err := s.placeOrder(ctx, placement)
		if err == nil {
			return order, nil
		}
		if !isSerializationFailure(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("place order: %w", lastErr)
}

func (s *Store) placeOrder(ctx context.Context, placement store.OrderPlacement) (*domain.Order, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	order := cloneOrder(placement.Order)
	now := s.now()
	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if order.Number == "" {
		order.Number = xid.OrderNumber(now)
	}

	if order.DeliverySlotID != "" {
		var slotDate time.Time
		var timeSlot string
		var capacity int
		var available bool
		err := pgTx.QueryRowContext(ctx, `
			SELECT slot_date, time_slot, capacity, available
			FROM delivery_slots
			WHERE id = $1
			FOR UPDATE
		`, order.DeliverySlotID).Scan(&slotDate, &timeSlot, &capacity, &available)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		if !available {
			return nil, store.ErrSlotUnavailable
		}
		var booked int
		if err := pgTx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM orders WHERE delivery_slot_id = $1
		`, order.DeliverySlotID).Scan(&booked); err != nil {
			return nil, err
		}
		if booked >= capacity {
			return nil, store.ErrSlotFull
		}
		date := nowDateUTC(slotDate)
		order.DeliveryDate = &date
		order.DeliveryTimeSlot = timeSlot
	}

	var code *domain.DiscountCode
	var usage store.DiscountUsageCount
	if placement.DiscountCode != "" {
		c, err := scanDiscountCode(pgTx.QueryRowContext(ctx, `
			SELECT `+discountColumns+`
			FROM discount_codes
			WHERE code = $1
			FOR UPDATE
		`, placement.DiscountCode))
		switch {
		case err == nil:
			code = &c
			usage, err = countUsage(ctx, pgTx, c.ID, order.Customer.Email)
			if err != nil {
				return nil, err
			}
		case !errors.Is(err, sql.ErrNoRows):
			return nil, err
		}
	}

	if err := placement.Finalize(&order, code, usage); err != nil {
		return nil, err
	}

	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	if err := insertOrder(ctx, pgTx, &order); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	if code != nil && order.DiscountCodeID == code.ID && order.DiscountAmount.IsPositive() {
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO discount_usages (id, discount_code_id, customer_email, order_number, discount_amount, used_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, xid.New("use"), code.ID, normalizeEmail(order.Customer.Email), order.Number, order.DiscountAmount, now); err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &order, nil
}

func insertOrder(ctx context.Context, q querier, order *domain.Order) error {
	customer, err := json.Marshal(order.Customer)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO orders (
			id, order_number, status, customer, subtotal, delivery_cost, discount_amount, tax_amount, total_amount,
			discount_code_id, discount_code, discount_type, delivery_zone, zone_fee, needs_manual_quote, steel_order,
			total_weight_kg, payment_reference, paid_at, delivery_slot_id, delivery_date, delivery_time_slot,
			delivery_status, delivery_instructions, special_requests, transport_sent, transport_sent_at,
			transport_response, created_at, updated_at
		)
		VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
			$21,$22,$23,$24,$25,$26,$27,$28,$29,$30
		)
	`, order.ID, order.Number, order.Status, string(customer), order.Subtotal, order.DeliveryCost, order.DiscountAmount,
		order.TaxAmount, order.TotalAmount, nullIfEmpty(order.DiscountCodeID), order.DiscountCode, string(order.DiscountType),
		order.DeliveryZone, order.ZoneFee, order.NeedsManualQuote, order.SteelOrder, order.TotalWeightKg,
		nullIfEmpty(order.PaymentReference), nullTime(order.PaidAt), nullIfEmpty(order.DeliverySlotID),
		nullDate(order.DeliveryDate), order.DeliveryTimeSlot, order.DeliveryStatus, order.DeliveryInstructions,
		order.SpecialRequests, order.TransportSent, nullTime(order.TransportSentAt), order.TransportResponse,
		order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return err
	}

	for i := range order.Lines {
		line := &order.Lines[i]
		if line.ID == "" {
			line.ID = xid.New("line")
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO order_lines (
				id, order_id, position, product_id, sku, product_name, category_tag, category_label,
				thickness, unit_price, quantity, line_total
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		`, line.ID, order.ID, i, line.ProductID, line.SKU, line.ProductName, string(line.Category.Tag),
			line.Category.Label, line.Thickness, line.UnitPrice, line.Quantity, line.LineTotal); err != nil {
			return err
		}
	}
	return nil
}

const orderColumns = `id, order_number, status, customer, subtotal, delivery_cost, discount_amount, tax_amount,
	total_amount, discount_code_id, discount_code, discount_type, delivery_zone, zone_fee, needs_manual_quote,
	steel_order, total_weight_kg, payment_reference, paid_at, delivery_slot_id, delivery_date, delivery_time_slot,
	delivery_status, delivery_instructions, special_requests, transport_sent, transport_sent_at, transport_response,
	transport_pending, created_at, updated_at`

func scanOrder(row rowScanner) (domain.Order, error) {
	var o domain.Order
	var customer []byte
	var discountType string
	var discountCodeID, paymentReference, slotID sql.NullString
	var paidAt, deliveryDate, transportSentAt sql.NullTime
	if err := row.Scan(
		&o.ID, &o.Number, &o.Status, &customer, &o.Subtotal, &o.DeliveryCost, &o.DiscountAmount, &o.TaxAmount,
		&o.TotalAmount, &discountCodeID, &o.DiscountCode, &discountType, &o.DeliveryZone, &o.ZoneFee, &o.NeedsManualQuote,
		&o.SteelOrder, &o.TotalWeightKg, &paymentReference, &paidAt, &slotID, &deliveryDate, &o.DeliveryTimeSlot,
		&o.DeliveryStatus, &o.DeliveryInstructions, &o.SpecialRequests, &o.TransportSent, &transportSentAt,
		&o.TransportResponse, &o.TransportPending, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	if err := json.Unmarshal(customer, &o.Customer); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s customer: %w", o.Number, err)
	}
	o.DiscountType = domain.DiscountType(discountType)
	o.DiscountCodeID = discountCodeID.String
	o.PaymentReference = paymentReference.String
	o.DeliverySlotID = slotID.String
	o.PaidAt = timePtr(paidAt)
	o.TransportSentAt = timePtr(transportSentAt)
	if deliveryDate.Valid {
		d := nowDateUTC(deliveryDate.Time)
		o.DeliveryDate = &d
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, nil
}

// loadLines fills Lines for every order in place.
func loadLines(ctx context.Context, q querier, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	index := make(map[string]int, len(orders))
	ids := make([]string, 0, len(orders))
	for i, o := range orders {
		index[o.ID] = i
		ids = append(ids, o.ID)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT order_id, id, product_id, sku, product_name, category_tag, category_label, thickness,
			unit_price, quantity, line_total
		FROM order_lines
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var orderID, tag string
		var line domain.OrderLine
		if err := rows.Scan(&orderID, &line.ID, &line.ProductID, &line.SKU, &line.ProductName, &tag, &line.Category.Label,
			&line.Thickness, &line.UnitPrice, &line.Quantity, &line.LineTotal); err != nil {
			return err
		}
		line.Category.Tag = domain.CategoryTag(tag)
		i := index[orderID]
		orders[i].Lines = append(orders[i].Lines, line)
	}
	return rows.Err()
}

func getOrder(ctx context.Context, q querier, column string, value string) (*domain.Order, error) {
	o, err := scanOrder(q.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE `+column+` = $1
	`, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	orders := []domain.Order{o}
	if err := loadLines(ctx, q, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (s *Store) GetOrderByNumber(ctx context.Context, number string) (*domain.Order, error) {
	return getOrder(ctx, s.db, "order_number", number)
}

func (s *Store) ListOrders(ctx context.Context, status string, limit int) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, order_number DESC
		LIMIT $2
	`, status, nullLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, 32)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	_ = rows.Close()

	if err := loadLines(ctx, s.db, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) SetOrderStatus(ctx context.Context, id string, status string) (*domain.Order, error) {
	return s.updateOrderColumns(ctx, id, `status = $3`, status)
}

func (s *Store) SetDeliveryStatus(ctx context.Context, id string, status string) (*domain.Order, error) {
	return s.updateOrderColumns(ctx, id, `delivery_status = $3`, status)
}

// updateOrderColumns runs a single-row UPDATE whose SET clause uses $3 onward;
// $1 is the order id and $2 the update time.
func (s *Store) updateOrderColumns(ctx context.Context, id string, set string, args ...any) (*domain.Order, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET `+set+`, updated_at = $2 WHERE id = $1
	`, append([]any{id, s.now()}, args...)...)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return getOrder(ctx, s.db, "id", id)
}

// SetOrderTotals writes money fields, weight and line totals. Lines, customer
// and slot are fixed at placement.
func (s *Store) SetOrderTotals(ctx context.Context, order domain.Order) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET subtotal = $2,
			delivery_cost = $3,
			discount_amount = $4,
			tax_amount = $5,
			total_amount = $6,
			total_weight_kg = $7,
			updated_at = $8
		WHERE id = $1
	`, order.ID, order.Subtotal, order.DeliveryCost, order.DiscountAmount, order.TaxAmount, order.TotalAmount,
		order.TotalWeightKg, s.now())
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	for _, line := range order.Lines {
		if line.ID == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE order_lines SET line_total = $3 WHERE id = $1 AND order_id = $2
		`, line.ID, order.ID, line.LineTotal); err != nil {
			return nil, err
		}
	}

	updated, err := getOrder(ctx, tx, "id", order.ID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) ClaimTransport(ctx context.Context, id string) (*domain.Order, error) {
	var claimed string
	err := s.db.QueryRowContext(ctx, `
		UPDATE orders
		SET transport_pending = true, updated_at = $2
		WHERE id = $1 AND transport_sent = false AND transport_pending = false
		RETURNING id
	`, id, s.now()).Scan(&claimed)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := getOrder(ctx, s.db, "id", id); err != nil {
			return nil, err
		}
		return nil, store.ErrConflict
	}
	if err != nil {
		return nil, err
	}
	return getOrder(ctx, s.db, "id", id)
}

func (s *Store) RecordTransportOutcome(ctx context.Context, id string, outcome domain.TransportOutcome) (*domain.Order, error) {
	if !outcome.Sent {
		return s.updateOrderColumns(ctx, id, `transport_pending = false, transport_response = $3`, outcome.Response)
	}
	return s.updateOrderColumns(ctx, id, `
		transport_pending = false,
		transport_response = $3,
		transport_sent = true,
		transport_sent_at = $4,
		delivery_status = $5`,
		outcome.Response, outcome.SentAt, domain.DeliveryStatusOutsourced)
}

func (s *Store) CreateQuoteRequest(ctx context.Context, quote domain.QuoteRequest) (*domain.QuoteRequest, error) {
	if strings.TrimSpace(quote.CustomerName) == "" || strings.TrimSpace(quote.CustomerEmail) == "" {
		return nil, store.ErrInvalidInput
	}
	if quote.ID == "" {
		quote.ID = xid.New("quote")
	}
	if quote.Status == "" {
		quote.Status = domain.QuoteStatusPending
	}
	if quote.CreatedAt.IsZero() {
		quote.CreatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quote_requests (
			id, customer_name, customer_email, phone, delivery_address, delivery_postcode, preferred_date,
			calculator_type, notes, status, estimated_cost, delivery_zone, delivery_cost, needs_manual_quote, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, quote.ID, quote.CustomerName, quote.CustomerEmail, quote.Phone, quote.DeliveryAddress, quote.DeliveryPostcode,
		quote.PreferredDate, quote.CalculatorType, quote.Notes, quote.Status, quote.EstimatedCost, quote.DeliveryZone,
		quote.DeliveryCost, quote.NeedsManualQuote, quote.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

func (s *Store) ListQuoteRequests(ctx context.Context, limit int) ([]domain.QuoteRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_name, customer_email, phone, delivery_address, delivery_postcode, preferred_date,
			calculator_type, notes, status, estimated_cost, delivery_zone, delivery_cost, needs_manual_quote, created_at
		FROM quote_requests
		ORDER BY created_at DESC
		LIMIT $1
	`, nullLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	quotes := make([]domain.QuoteRequest, 0, 16)
	for rows.Next() {
		var q domain.QuoteRequest
		if err := rows.Scan(&q.ID, &q.CustomerName, &q.CustomerEmail, &q.Phone, &q.DeliveryAddress, &q.DeliveryPostcode,
			&q.PreferredDate, &q.CalculatorType, &q.Notes, &q.Status, &q.EstimatedCost, &q.DeliveryZone, &q.DeliveryCost,
			&q.NeedsManualQuote, &q.CreatedAt); err != nil {
			return nil, err
		}
		q.CreatedAt = q.CreatedAt.UTC()
		quotes = append(quotes, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return quotes, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, from, to, nullLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.AuditLog, 0, 64)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType,
			&entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,true,$4,$4)
	`, user.Username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Lines = append([]domain.OrderLine(nil), src.Lines...)
	return dst
}

func nowDateUTC(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}

func timePtr(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	t := val.Time.UTC()
	return &t
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullInt(val *int) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullLimit(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

func nullDate(val *time.Time) any {
	if val == nil {
		return nil
	}
	return nowDateUTC(*val)
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

var _ store.Repository = (*Store)(nil)
