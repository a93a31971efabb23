package middleware

import "net/http"

// DefaultMaxRequestSize caps request bodies at 1 MiB
const DefaultMaxRequestSize int64 = 1 << 20

// MaxRequestSize rejects requests whose declared length exceeds the cap and
// wraps the body in a MaxBytesReader so undeclared bodies hit the same limit
// when read.
func MaxRequestSize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestSize
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
