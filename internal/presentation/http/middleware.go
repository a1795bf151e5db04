package httptransport

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/shippingkart/backend/internal/pkg/logging"
)

// HTTPMetrics are registered in main and shared with the middleware.
type HTTPMetrics struct {
	Requests *prometheus.CounterVec   // http_requests_total{method,route,status}
	Duration *prometheus.HistogramVec // http_request_duration_seconds{method,route}
}

// Observability extracts W3C trace context, injects a request-scoped logger,
// and records RED metrics per route template.
func Observability(base *zap.Logger, m HTTPMetrics) func(http.Handler) http.Handler {
	prop := otel.GetTextMapPropagator()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			reqID := middleware.GetReqID(ctx)
			fields := []zap.Field{zap.String("request_id", reqID)}
			if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
				fields = append(fields,
					zap.String("trace_id", sc.TraceID().String()),
					zap.String("span_id", sc.SpanID().String()),
				)
			}
			reqLogger := base.With(fields...)
			ctx = logging.ContextWithLogger(ctx, reqLogger)
			w.Header().Set("X-Request-Id", reqID)

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			route := routePattern(r)
			status := strconv.Itoa(ww.Status())
			if m.Requests != nil {
				m.Requests.WithLabelValues(r.Method, route, status).Inc()
			}
			if m.Duration != nil {
				m.Duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			}
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
