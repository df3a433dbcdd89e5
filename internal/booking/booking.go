package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"wallquote/backend/internal/domain"
	"wallquote/backend/internal/metrics"
)

const (
	ResponseSuccess = "Successfully submitted via automation portal"
	ResponseFailed  = "Automation failed - form submission unsuccessful"

	DefaultTimeout = 2 * time.Minute
)

// Booker submits a transport booking. A false result without an error means
// the portal did not accept the form.
type Booker interface {
	SubmitBooking(ctx context.Context, snap Snapshot) (bool, error)
}

type Item struct {
	Quantity int
	Name     string
}

// Snapshot is the part of an order the transport portal needs. It is copied
// so the booker never touches shared order state.
type Snapshot struct {
	OrderNumber   string
	DeliveryDate  *time.Time
	TotalItems    int
	TotalWeightKg decimal.Decimal
	TotalAmount   decimal.Decimal
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	AddressLine1  string
	City          string
	State         string
	Postcode      string
	Instructions  string
	Items         []Item
}

func SnapshotOf(o domain.Order) Snapshot {
	snap := Snapshot{
		OrderNumber:   o.Number,
		TotalItems:    o.TotalItems(),
		TotalWeightKg: o.TotalWeightKg,
		TotalAmount:   o.TotalAmount,
		CustomerName:  o.Customer.FullName(),
		CustomerEmail: o.Customer.Email,
		CustomerPhone: o.Customer.Phone,
		AddressLine1:  o.Customer.DeliveryAddressLine1,
		City:          o.Customer.DeliveryCity,
		State:         o.Customer.DeliveryState,
		Postcode:      o.Customer.DeliveryPostcode,
		Instructions:  o.DeliveryInstructions,
		Items:         make([]Item, 0, len(o.Lines)),
	}
	if o.DeliveryDate != nil {
		d := *o.DeliveryDate
		snap.DeliveryDate = &d
	}
	for _, line := range o.Lines {
		snap.Items = append(snap.Items, Item{Quantity: line.Quantity, Name: line.ProductName})
	}
	return snap
}

// Outcome is what a dispatch run records on the order.
type Outcome struct {
	Success  bool
	Response string
	SentAt   time.Time
	Elapsed  time.Duration
}

// Record converts the outcome into what the store persists. Only a
// successful booking counts as sent.
func (o Outcome) Record() domain.TransportOutcome {
	return domain.TransportOutcome{Sent: o.Success, SentAt: o.SentAt, Response: o.Response}
}

// NoopBooker stands in when automation is disabled.
type NoopBooker struct{}

func (NoopBooker) SubmitBooking(context.Context, Snapshot) (bool, error) {
	return false, nil
}

type Dispatcher struct {
	booker  Booker
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

func NewDispatcher(booker Booker, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if booker == nil {
		booker = NoopBooker{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{booker: booker, timeout: timeout, now: time.Now, logger: logger}
}

type result struct {
	ok  bool
	err error
}

// Submit runs the booker under the dispatcher timeout and converts every
// failure into an Outcome. It returns once the booker finishes or the
// timeout expires, whichever comes first.
func (d *Dispatcher) Submit(ctx context.Context, snap Snapshot) Outcome {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	started := d.now()
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("booker panic: %v", r)}
			}
		}()
		ok, err := d.booker.SubmitBooking(ctx, snap)
		done <- result{ok: ok, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		res = result{err: ctx.Err()}
	}

	outcome := Outcome{SentAt: d.now().UTC(), Elapsed: time.Since(started)}
	label := "success"
	switch {
	case res.err != nil:
		label = "error"
		if errors.Is(res.err, context.DeadlineExceeded) {
			label = "timeout"
		}
		outcome.Response = "Automation error: " + res.err.Error()
		d.logger.Error("transport booking error", "order_number", snap.OrderNumber, "error", res.err)
	case !res.ok:
		label = "failed"
		outcome.Response = ResponseFailed
		d.logger.Warn("transport booking unsuccessful", "order_number", snap.OrderNumber)
	default:
		outcome.Success = true
		outcome.Response = ResponseSuccess
		d.logger.Info("transport booking submitted", "order_number", snap.OrderNumber, "elapsed_ms", outcome.Elapsed.Milliseconds())
	}
	metrics.BookingOutcomes.WithLabelValues(label).Inc()
	return outcome
}
