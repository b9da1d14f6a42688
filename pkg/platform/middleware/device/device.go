// Package device labels the calling device from its User-Agent. Check-in entries
// record the label so supervisors can tell which gate scanner logged an entry.
package device

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"entrypass/pkg/requestcontext"
)

// Middleware stores a device label derived from the User-Agent header.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithDevice(r.Context(), Label(r.Header.Get("User-Agent")))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Label renders a short "<browser> on <os>" description. Empty or unparseable
// agents yield "unknown device"; bots keep their raw name.
func Label(userAgent string) string {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return "unknown device"
	}
	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	if ua.Bot() {
		return browser
	}
	os := ua.OSInfo().Name
	switch {
	case browser != "" && os != "":
		label := browser + " on " + os
		if ua.Mobile() {
			label += " (mobile)"
		}
		return label
	case browser != "":
		return browser
	case os != "":
		return os
	default:
		return "unknown device"
	}
}
