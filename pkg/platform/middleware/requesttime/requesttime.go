// Package requesttime pins one clock reading per request, so a check-in near
// midnight lands on a single visit date from handler to store.
package requesttime

import (
	"net/http"
	"time"

	"entrypass/pkg/requestcontext"
)

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(requestcontext.WithTime(r.Context(), time.Now().UTC())))
	})
}
