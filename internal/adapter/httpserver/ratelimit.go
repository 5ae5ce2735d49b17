package httpserver

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	apperrors "github.com/pscheid92/wardwatch/internal/platform/errors"
	"golang.org/x/time/rate"
)

const apiLimiterExpiry = 5 * time.Minute

// newAPIRateLimiter throttles the REST surface per client IP. Echo hands the
// deny handler's result to c.Error rather than returning it through the chain,
// so the 429 body is written here. errorsTotal may be nil.
func newAPIRateLimiter(ratePerSecond float64, burst int, errorsTotal *prometheus.CounterVec) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(ratePerSecond),
		Burst:     burst,
		ExpiresIn: apiLimiterExpiry,
	})

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, ip string, _ error) error {
			return apperrors.Respond(c, apperrors.RateLimitedError("rate limit exceeded").WithContext("ip", ip), errorsTotal)
		},
	})
}
