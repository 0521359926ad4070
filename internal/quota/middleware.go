package quota

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/manishnupt/mynx-file-hive/internal/metrics"
	"github.com/manishnupt/mynx-file-hive/pkg/protocol"
)

// KeyFunc identifies the caller a request is charged to. An empty key
// exempts the request.
type KeyFunc func(r *http.Request) string

// RateLimitMiddleware returns middleware that allows rpm requests per
// minute to each caller. rpm=0 disables limiting.
func RateLimitMiddleware(limiter *RateLimiter, rpm int, keyFunc KeyFunc) func(http.Handler) http.Handler {
	if keyFunc == nil {
		keyFunc = ClientIP
	}
	return func(next http.Handler) http.Handler {
		if rpm <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !limiter.Allow(key, rpm) {
				metrics.RecordRateLimitHit()
				w.Header().Set("Retry-After", strconv.Itoa(limiter.RetryAfter(key, rpm)))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(protocol.ErrorResponse{
					Status:    http.StatusTooManyRequests,
					Error:     http.StatusText(http.StatusTooManyRequests),
					Message:   "rate limit exceeded",
					Timestamp: time.Now().UTC(),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP keys a request by its remote address without the port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
