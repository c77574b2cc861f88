package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"studiosync/pkg/types"
)

// NewMux builds the HTTP surface. ws, when non-nil, serves the WebSocket
// upgrade at /ws.
func NewMux(svc Service, ws http.Handler, opts Options) http.Handler {
	opts = opts.withDefaults()
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(requestLogger)
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: opts.CORSMethods,
			AllowedHeaders: opts.CORSHeaders,
			MaxAge:         300,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	if ws != nil {
		r.Get("/ws", ws.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		// Compression for JSON endpoints only; the upgrade above must stay unwrapped.
		r.Use(middleware.Compress(5))

		r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, types.ModelsResponse{Models: svc.Models()})
		})

		r.Get("/models/{id}", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "id")
			snap, ok := svc.Model(id)
			if !ok {
				writeJSONError(w, http.StatusNotFound, "model not found: "+id)
				return
			}
			writeJSON(w, snap)
		})

		r.Post("/models/{id}", func(w http.ResponseWriter, r *http.Request) {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
				writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, opts.MaxBodyBytes)
			var req types.UpdateModelRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
				return
			}
			if len(req.Values) == 0 {
				writeJSONError(w, http.StatusBadRequest, "values is required")
				return
			}

			// Shutdown cancels the broadcast as well as client disconnects.
			ctx, cancel := withShutdown(opts.BaseContext, r.Context())
			defer cancel()
			id := chi.URLParam(r, "id")
			changed, err := svc.UpdateModel(ctx, id, req.Values)
			if err != nil {
				if zlog != nil {
					zlog.Debug().Err(err).Str("model", id).Msg("model update rejected")
				}
				writeJSONError(w, statusFor(err), err.Error())
				return
			}
			writeJSON(w, types.UpdateModelResponse{ModelID: id, Changed: changed})
		})

		r.Get("/tools", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, types.ToolsResponse{Tools: svc.Tools()})
		})

		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, svc.Status())
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("draining"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
