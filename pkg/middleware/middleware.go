package middleware

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shepherdhq/shepherd/pkg/composables"
	"github.com/shepherdhq/shepherd/pkg/configuration"
)

// WithPool makes the database pool available to everything downstream.
func WithPool(pool *pgxpool.Pool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := composables.WithPool(r.Context(), pool)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestParams captures per-request metadata (client IP, user agent) used
// by audit records and denial logs.
func RequestParams() mux.MiddlewareFunc {
	conf := configuration.Use()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			params := &composables.Params{
				IP:        realIP(r, conf),
				UserAgent: r.UserAgent(),
				Request:   r,
				Writer:    w,
			}
			ctx := composables.WithParams(r.Context(), params)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func realIP(r *http.Request, conf *configuration.Configuration) string {
	if ip := r.Header.Get(conf.RealIPHeader); ip != "" {
		return ip
	}
	return r.RemoteAddr
}
