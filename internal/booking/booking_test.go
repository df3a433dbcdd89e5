package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"wallquote/backend/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeBooker struct {
	ok    bool
	err   error
	delay time.Duration
	panic bool
	got   chan Snapshot
}

func (f *fakeBooker) SubmitBooking(ctx context.Context, snap Snapshot) (bool, error) {
	if f.got != nil {
		f.got <- snap
	}
	if f.panic {
		panic("portal exploded")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return f.ok, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatcherSuccessRecordsSentOutcome(t *testing.T) {
	fake := &fakeBooker{ok: true, got: make(chan Snapshot, 1)}
	d := NewDispatcher(fake, time.Second, quietLogger())
	sentAt := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return sentAt }

	order := domain.Order{
		Number:         "WQ20250610ABC123",
		DeliveryStatus: domain.DeliveryStatusAccepted,
		Customer:       domain.Customer{FirstName: "Jo", LastName: "Citizen"},
		Lines:          []domain.OrderLine{{ProductName: "Ashwood Sleeper", Quantity: 3}},
		TotalWeightKg:  decimal.NewFromInt(240),
	}
	outcome := d.Submit(context.Background(), SnapshotOf(order))
	recorded := outcome.Record()

	snap := <-fake.got
	assert.Equal(t, "Jo Citizen", snap.CustomerName)
	assert.Equal(t, 3, snap.TotalItems)

	assert.True(t, outcome.Success)
	assert.Equal(t, domain.TransportOutcome{Sent: true, SentAt: sentAt, Response: ResponseSuccess}, recorded)
}

func TestDispatcherFailureOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		booker   Booker
		response string
	}{
		{name: "portal rejected", booker: &fakeBooker{ok: false}, response: ResponseFailed},
		{name: "noop booker", booker: NoopBooker{}, response: ResponseFailed},
		{name: "booker error", booker: &fakeBooker{err: errors.New("chrome not found")}, response: "Automation error: chrome not found"},
		{name: "booker panic", booker: &fakeBooker{panic: true}, response: "Automation error: booker panic: portal exploded"},
		{name: "timeout", booker: &fakeBooker{ok: true, delay: time.Minute}, response: "Automation error: context deadline exceeded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher(tt.booker, 50*time.Millisecond, quietLogger())
			order := domain.Order{Number: "WQ1", DeliveryStatus: domain.DeliveryStatusAccepted}

			started := time.Now()
			outcome := d.Submit(context.Background(), SnapshotOf(order))
			recorded := outcome.Record()

			assert.Less(t, time.Since(started), 5*time.Second)
			assert.False(t, outcome.Success)
			assert.False(t, recorded.Sent)
			assert.Equal(t, tt.response, recorded.Response)
		})
	}
}

func TestDispatcherHonoursCallerCancellation(t *testing.T) {
	d := NewDispatcher(&fakeBooker{ok: true, delay: time.Minute}, time.Minute, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := d.Submit(ctx, Snapshot{OrderNumber: "WQ2"})

	assert.False(t, outcome.Success)
	assert.Equal(t, "Automation error: context canceled", outcome.Response)
}

func TestSnapshotCopiesDeliveryDate(t *testing.T) {
	date := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	order := domain.Order{DeliveryDate: &date}

	snap := SnapshotOf(order)
	date = date.AddDate(0, 0, 1)

	require.NotNil(t, snap.DeliveryDate)
	assert.Equal(t, 1, snap.DeliveryDate.Day())
}
