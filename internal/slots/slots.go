package slots

import (
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"wallquote/backend/internal/domain"
	"wallquote/backend/internal/xid"
)

const (
	DateLayout = "2006-01-02"

	// DefaultDays is how far ahead generation and listing look.
	DefaultDays = 7

	KindPickup   = "pickup"
	KindDelivery = "delivery"

	autoCreatedBy = "Auto-generated"
)

// Key identifies a slot. At most one slot exists per key.
type Key struct {
	Date         string
	TimeSlot     string
	DeliveryType string
}

func KeyOf(s domain.DeliverySlot) Key {
	return Key{Date: s.Date.Format(DateLayout), TimeSlot: s.TimeSlot, DeliveryType: s.DeliveryType}
}

// Day truncates t to its calendar date, expressed as midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Available is the remaining capacity, never negative.
func Available(capacity int, booked int) int {
	return max(capacity-booked, 0)
}

func IsFull(capacity int, booked int) bool {
	return Available(capacity, booked) == 0
}

// Weekday maps a date onto the template convention of 0 = Monday.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// ParseExcludedDates reads a comma separated YYYY-MM-DD list. Malformed
// entries are ignored.
func ParseExcludedDates(raw string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.Parse(DateLayout, part)
		if err != nil {
			continue
		}
		out[d.Format(DateLayout)] = struct{}{}
	}
	return out
}

// Plan is the outcome of a generation run. Skipped counts both excluded
// dates and keys that already exist.
type Plan struct {
	Slots   []domain.DeliverySlot
	Skipped int
}

// Generate plans slots for each day in [from, from+days) whose weekday matches
// an active template. Running it again with the produced keys in existing
// creates nothing.
func Generate(templates []domain.DeliveryTemplate, existing map[Key]struct{}, from time.Time, days int, now time.Time) Plan {
	if days <= 0 {
		days = DefaultDays
	}
	seen := make(map[Key]struct{}, len(existing))
	for k := range existing {
		seen[k] = struct{}{}
	}

	active := lo.Filter(templates, func(t domain.DeliveryTemplate, _ int) bool { return t.Active })
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].DayOfWeek != active[j].DayOfWeek {
			return active[i].DayOfWeek < active[j].DayOfWeek
		}
		return active[i].TimeSlot < active[j].TimeSlot
	})

	excluded := lo.Map(active, func(t domain.DeliveryTemplate, _ int) map[string]struct{} {
		return ParseExcludedDates(t.ExcludeDates)
	})

	var plan Plan
	start := Day(from)
	for offset := 0; offset < days; offset++ {
		date := start.AddDate(0, 0, offset)
		weekday := Weekday(date)
		for i, tpl := range active {
			if tpl.DayOfWeek != weekday {
				continue
			}
			if _, skip := excluded[i][date.Format(DateLayout)]; skip {
				plan.Skipped++
				continue
			}
			key := Key{Date: date.Format(DateLayout), TimeSlot: tpl.TimeSlot, DeliveryType: tpl.DeliveryType}
			if _, ok := seen[key]; ok {
				plan.Skipped++
				continue
			}
			seen[key] = struct{}{}
			plan.Slots = append(plan.Slots, domain.DeliverySlot{
				ID:            xid.New("slot"),
				Date:          date,
				TimeSlot:      tpl.TimeSlot,
				Capacity:      tpl.Capacity,
				Available:     true,
				DeliveryType:  tpl.DeliveryType,
				Notes:         tpl.Notes,
				CreatedBy:     autoCreatedBy,
				TemplateID:    tpl.ID,
				TemplateName:  tpl.Name,
				AutoGenerated: true,
				CreatedAt:     now.UTC(),
			})
		}
	}
	return plan
}

// TypesFor lists the slot delivery types offered for a fulfilment kind.
func TypesFor(kind string) []string {
	if strings.EqualFold(strings.TrimSpace(kind), KindPickup) {
		return []string{domain.DeliveryTypePickup, domain.DeliveryTypeBoth}
	}
	return []string{domain.DeliveryTypeInternal, domain.DeliveryTypeExternal, domain.DeliveryTypeBoth}
}

// Window is the listing range: tomorrow through tomorrow plus seven days,
// both inclusive.
func Window(now time.Time) (start time.Time, end time.Time) {
	start = Day(now).AddDate(0, 0, 1)
	return start, start.AddDate(0, 0, DefaultDays)
}

// Bookable reports whether a slot may be offered to a customer.
func Bookable(s domain.DeliverySlot) bool {
	return s.Available && Available(s.Capacity, s.OrdersCount) > 0
}

// Visible filters slots down to the listing for kind at now, ordered by
// date then time slot.
func Visible(all []domain.DeliverySlot, kind string, now time.Time) []domain.SlotView {
	start, end := Window(now)
	types := TypesFor(kind)

	picked := lo.Filter(all, func(s domain.DeliverySlot, _ int) bool {
		d := Day(s.Date)
		return !d.Before(start) && !d.After(end) && lo.Contains(types, s.DeliveryType) && Bookable(s)
	})
	sort.SliceStable(picked, func(i, j int) bool {
		if !picked[i].Date.Equal(picked[j].Date) {
			return picked[i].Date.Before(picked[j].Date)
		}
		return picked[i].TimeSlot < picked[j].TimeSlot
	})

	return lo.Map(picked, func(s domain.DeliverySlot, _ int) domain.SlotView {
		return ToView(s)
	})
}

func ToView(s domain.DeliverySlot) domain.SlotView {
	return domain.SlotView{
		ID:                s.ID,
		Date:              s.Date.Format(DateLayout),
		TimeSlot:          s.TimeSlot,
		AvailableCapacity: Available(s.Capacity, s.OrdersCount),
		DeliveryType:      s.DeliveryType,
		Capacity:          s.Capacity,
		OrdersCount:       s.OrdersCount,
		AutoGenerated:     s.AutoGenerated,
		TemplateName:      s.TemplateName,
	}
}
