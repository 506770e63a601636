package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"

	"github.com/goliatone/go-iam"
)

// ErrorHandler renders errors as {"error": {"code", "message"}}. Rich errors
// keep their code and message; anything else becomes a generic 500 so
// internal detail never reaches the caller.
func ErrorHandler(logger iam.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, code, message := classify(err)

		if status >= fiber.StatusInternalServerError {
			logger.Error("%s %s failed: %v", c.Method(), c.Path(), err)
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				logger.Debug("error detail: %s", print.MaybePrettyJSON(richErr))
			}
		}

		return c.Status(status).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    code,
				"message": message,
			},
		})
	}
}

func classify(err error) (int, string, string) {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code, "HTTP_ERROR", fe.Message
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Code >= 400 && richErr.Code < 600 {
		if richErr.Code >= fiber.StatusInternalServerError {
			return richErr.Code, iam.TextCodeOperationFailed, iam.ErrOperationFailed.Message
		}
		code := richErr.TextCode
		if code == "" {
			code = "REQUEST_FAILED"
		}
		return richErr.Code, code, richErr.Message
	}

	return fiber.StatusInternalServerError, iam.TextCodeOperationFailed, iam.ErrOperationFailed.Message
}
