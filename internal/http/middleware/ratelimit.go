package middleware

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/reviewhub/media-service/internal/ratelimit"
	"github.com/reviewhub/media-service/internal/utils/response"
)

type RateLimitConfig struct {
	redisClient *redis.Client
	limiters    map[string]*ratelimit.TokenBucket
}

func NewRateLimitConfig(redisClient *redis.Client) *RateLimitConfig {
	config := &RateLimitConfig{
		redisClient: redisClient,
		limiters:    make(map[string]*ratelimit.TokenBucket),
	}

	// Configure rate limits for different actions
	// POST /media: 10/min per caller; transcoding is expensive
	config.limiters["upload"] = ratelimit.NewTokenBucket(redisClient, 10, 10)

	// DELETE /media/{id}: 30/min per caller
	config.limiters["delete"] = ratelimit.NewTokenBucket(redisClient, 30, 30)

	return config
}

func (rlc *RateLimitConfig) RateLimitMiddleware(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Authenticated callers are limited per user, anonymous ones per
			// remote address.
			callerID, ok := GetUserIDFromContext(r.Context())
			if !ok {
				callerID = "addr:" + remoteAddr(r)
			}

			// Get the appropriate rate limiter
			limiter, exists := rlc.limiters[action]
			if !exists {
				// If no rate limiter configured for this action, allow the request
				next.ServeHTTP(w, r)
				return
			}

			allowed, remaining, err := limiter.Allow(r.Context(), callerID, action)
			if err != nil {
				response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(
					fmt.Errorf("rate limit check failed: %w", err)))
				return
			}

			// Set rate limit headers
			w.Header().Set("X-RateLimit-Limit", getLimitForAction(action))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			w.Header().Set("X-RateLimit-Reset", "60") // Reset in 60 seconds (1 minute window)

			if !allowed {
				response.WriteJSON(w, http.StatusTooManyRequests, response.GeneralError(
					errors.New("rate limit exceeded")))
				return
			}

			// Allow the request to proceed
			next.ServeHTTP(w, r)
		})
	}
}

// Helper function to get the limit for display in headers
func getLimitForAction(action string) string {
	switch action {
	case "upload":
		return "10"
	case "delete":
		return "30"
	default:
		return "100" // default fallback
	}
}

// RateLimitedHandler wraps a handler with rate limiting for a specific action
func (rlc *RateLimitConfig) RateLimitedHandler(action string, handler http.HandlerFunc) http.Handler {
	return rlc.RateLimitMiddleware(action)(http.HandlerFunc(handler))
}

func remoteAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
