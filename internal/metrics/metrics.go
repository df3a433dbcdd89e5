package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallquote_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wallquote_http_request_duration_ms",
			Help:    "Duration of HTTP requests in ms",
			Buckets: []float64{5, 10, 25, 50, 100, 200, 400, 800, 1600},
		},
		[]string{"method", "route"},
	)

	DiscountRedemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallquote_discount_redemptions_total",
			Help: "Discount codes recorded against placed orders",
		},
		[]string{"discount_type"},
	)

	DiscountRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallquote_discount_rejections_total",
			Help: "Discount evaluations rejected, by reason",
		},
		[]string{"reason"},
	)

	BookingOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallquote_transport_booking_total",
			Help: "Transport booking submissions by outcome",
		},
		[]string{"outcome"},
	)

	WeightFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallquote_weight_fallback_total",
			Help: "Line weights resolved from the fallback table instead of the catalog",
		},
		[]string{"rule"},
	)

	SlotReservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallquote_slot_reservations_total",
			Help: "Delivery slot reservation attempts by result",
		},
		[]string{"result"},
	)

	ZoneLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallquote_zone_lookups_total",
			Help: "Delivery zone lookups by resolved zone",
		},
		[]string{"table", "zone"},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTP records one finished request.
func ObserveHTTP(method string, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(float64(elapsed.Milliseconds()))
}
