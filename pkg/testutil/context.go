package testutil

import "net/http"

// WithBearer authenticates req the way a client of the identity provider does.
func WithBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}
