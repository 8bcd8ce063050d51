package database

import (
	"net/http"
)

// WithPool creates middleware that makes the pool available to repositories.
// No connection is taken here; each statement or transaction checks one out for
// its own duration, so routes that never touch the database never wait on the pool.
func WithPool(db *DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(SetPool(r.Context(), db.Pool)))
		})
	}
}
