package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const visitorTTL = 3 * time.Minute

// RateLimit applies a token bucket per client IP. Idle buckets expire after a
// few minutes.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		rps = 2
	}
	if burst <= 0 {
		burst = 5
	}
	visitors := gocache.New(visitorTTL, time.Minute)

	limiterFor := func(ip string) *rate.Limiter {
		if v, ok := visitors.Get(ip); ok {
			visitors.SetDefault(ip, v)
			return v.(*rate.Limiter)
		}
		l := rate.NewLimiter(rate.Limit(rps), burst)
		if err := visitors.Add(ip, l, gocache.DefaultExpiration); err != nil {
			// lost a race with another request from the same ip
			if v, ok := visitors.Get(ip); ok {
				return v.(*rate.Limiter)
			}
		}
		return l
	}

	return func(c *gin.Context) {
		if !limiterFor(c.ClientIP()).Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    "RATE_LIMITED",
					"message": "Too many requests",
				},
				"request_id": GetRequestID(c),
			})
			return
		}
		c.Next()
	}
}
