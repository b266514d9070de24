package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	BookingsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bookings_created_total",
			Help: "Number of bookings persisted",
		},
	)

	BookingsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookings_rejected_total",
			Help: "Number of booking attempts rejected before or by the store",
		},
		[]string{"reason"},
	)

	BookingsRemoved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bookings_removed_total",
			Help: "Number of bookings deleted from the cart",
		},
	)

	CartLoadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "cart_load_duration_seconds",
			Help: "Time taken to load and join all bookings",
		},
	)

	SnapshotsEmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "store_subscription_snapshots_total",
			Help: "Number of snapshots delivered to subscribers",
		},
	)

	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_events_published_total",
			Help: "Number of booking events published",
		},
		[]string{"type"},
	)
)

func Register() {
	prometheus.MustRegister(
		BookingsCreated,
		BookingsRejected,
		BookingsRemoved,
		CartLoadDuration,
		SnapshotsEmitted,
		EventsPublished,
	)
}
