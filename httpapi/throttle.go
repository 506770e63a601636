package httpapi

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/goliatone/go-iam"
)

const defaultThrottleRate = "10-M"

// Throttle limits public endpoints per client IP. It sits in front of the
// per email reset cooldown so one client cannot sweep many addresses.
func Throttle(rate string, logger iam.Logger) (fiber.Handler, error) {
	if rate == "" {
		rate = defaultThrottleRate
	}

	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, err
	}

	instance := limiter.New(memory.NewStore(), r)

	return func(c *fiber.Ctx) error {
		lctx, err := instance.Get(c.UserContext(), c.IP())
		if err != nil {
			// fail open, the per email cooldown still applies
			logger.Warn("throttle store failed for %s: %v", c.IP(), err)
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			return fiber.NewError(fiber.StatusTooManyRequests, "too many requests")
		}

		return c.Next()
	}, nil
}
