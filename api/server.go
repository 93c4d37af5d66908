/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind a proxy
  3. AccessLog:  zap request logging (method, path, status, bytes, duration)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the front desk UI

ROUTE GROUPS:
  /api/reservations/*   Reservation queries and lifecycle commands
  /api/tax-rules/*      Tax rule administration
  /api/admin/*          Operational triggers
  /api/scenarios/*      Demo scenarios
  /metrics              Prometheus metrics
  /healthz              Liveness

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/warp/stay-engine/logging"
	"go.uber.org/zap"
)

type RouterOptions struct {
	CORSOrigins []string
	Metrics     *Metrics // nil disables /metrics
	Logger      *zap.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	logger := logging.OrNop(opts.Logger)
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/reservations", func(r chi.Router) {
			r.Get("/", h.ListReservations)
			r.Post("/", h.Book)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetReservation)
				r.Get("/preview", h.PreviewPrice)
				r.Get("/folio", h.GetFolio)

				r.Post("/confirm", h.Confirm)
				r.Post("/assign-room", h.AssignRoom)
				r.Post("/check-in", h.CheckIn)
				r.Post("/check-out", h.CheckOut)
				r.Post("/payments", h.RecordPayment)
				r.Post("/charges", h.AddCharge)
				r.Post("/cancel", h.Cancel)
				r.Post("/no-show", h.MarkNoShow)
			})
		})

		r.Route("/tax-rules", func(r chi.Router) {
			r.Get("/", h.ListTaxRules)
			r.Post("/", h.SaveTaxRule)
			r.Get("/{id}", h.GetTaxRule)
			r.Put("/{id}", h.SaveTaxRule)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/no-shows", h.RunNoShows)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}

// AccessLog logs one line per request once the response is written.
func AccessLog(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				fields := []zap.Field{
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", status),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				}
				if status >= http.StatusInternalServerError {
					logger.Error("http request", fields...)
					return
				}
				logger.Info("http request", fields...)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
