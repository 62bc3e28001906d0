package mid

import (
	"context"
	"net/http"

	"github.com/ardanlabs/blockforest/foundation/web"
	"github.com/prometheus/client_golang/prometheus"
)

// m contains the global program counters for the application.
var m = struct {
	requests prometheus.Counter
	errors   prometheus.Counter
	panics   prometheus.Counter
	inflight prometheus.Gauge
}{
	requests: prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "blockforest",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Number of requests handled.",
	}),
	errors: prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "blockforest",
		Subsystem: "http",
		Name:      "errors_total",
		Help:      "Number of requests that returned an error.",
	}),
	panics: prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "blockforest",
		Subsystem: "http",
		Name:      "panics_total",
		Help:      "Number of handler panics recovered.",
	}),
	inflight: prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "blockforest",
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "Number of requests being handled.",
	}),
}

// Collectors returns the metrics the middleware records so the application
// can register them.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.requests, m.errors, m.panics, m.inflight}
}

// Metrics updates program counters.
func Metrics() web.Middleware {

	// This is the actual middleware function to be executed.
	mw := func(handler web.Handler) web.Handler {

		// Create the handler that will be attached in the middleware chain.
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			m.inflight.Inc()
			defer m.inflight.Dec()

			// Call the next handler.
			err := handler(ctx, w, r)

			// Increment the request and errors counters.
			m.requests.Inc()
			if err != nil {
				m.errors.Inc()
			}

			// Return the error so it can be handled further up the chain.
			return err
		}

		return h
	}

	return mw
}
