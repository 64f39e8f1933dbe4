package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	IPNReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "amazonpay_ipn_received_total",
			Help: "Total number of IPN deliveries received",
		},
	)

	IPNRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amazonpay_ipn_rejected_total",
			Help: "Total number of IPN deliveries rejected, by error class",
		},
		[]string{"class"},
	)

	IPNIgnoredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "amazonpay_ipn_ignored_total",
			Help: "Total number of valid notifications dropped as not actionable",
		},
	)

	CertificateFetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "amazonpay_certificate_fetch_duration_seconds",
			Help:    "Duration of signing certificate fetches",
			Buckets: prometheus.DefBuckets,
		},
	)

	CertificateCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "amazonpay_certificate_cache_hits_total",
			Help: "Total number of signing certificate cache hits",
		},
	)

	StatusTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amazonpay_status_transitions_total",
			Help: "Total number of cached status transitions applied",
		},
		[]string{"object_type", "status"},
	)

	PollJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amazonpay_poll_jobs_total",
			Help: "Total number of poll job operations",
		},
		[]string{"object_type", "action"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "amazonpay_api_request_duration_seconds",
			Help:    "Duration of payment API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(IPNReceivedTotal)
		prometheus.MustRegister(IPNRejectedTotal)
		prometheus.MustRegister(IPNIgnoredTotal)
		prometheus.MustRegister(CertificateFetchDuration)
		prometheus.MustRegister(CertificateCacheHitsTotal)
		prometheus.MustRegister(StatusTransitionsTotal)
		prometheus.MustRegister(PollJobsTotal)
		prometheus.MustRegister(APIRequestDuration)
		prometheus.MustRegister(HTTPRequestsTotal)
		prometheus.MustRegister(HTTPRequestDuration)
	})
}

// ObserveAPIRequest records one payment API call; status 0 means no response.
func ObserveAPIRequest(operation string, status int, started time.Time) {
	APIRequestDuration.WithLabelValues(operation, strconv.Itoa(status)).Observe(time.Since(started).Seconds())
}

// Middleware records request counts and latency per matched route.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)

			status := ctx.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			route := ctx.Path()
			if route == "" {
				route = "unmatched"
			}
			method := ctx.Request().Method
			HTTPRequestDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
			HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
			return err
		}
	}
}
