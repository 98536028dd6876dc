package http

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/observability"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// RegisterMiddlewares attaches global middlewares such as tracing, timeouts and logging.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) {
	app.Use(observability.RequestLogger(logger, metrics))
	app.Use(recoverMiddleware(logger))
	app.Use(tracingMiddleware())
	if timeout > 0 {
		app.Use(requestTimeoutMiddleware(timeout))
	}
}

// ErrorHandler renders every returned error as the JSON error envelope.
// It is installed as fiber.Config.ErrorHandler.
func ErrorHandler(logger *zap.Logger, metrics *observability.Metrics) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			err = apperrors.NewDomainError(fiberCode(fiberErr.Code), fiberErr.Message, fiberErr.Code, nil)
		}
		domainErr := apperrors.ToDomainError(err)
		if metrics != nil {
			metrics.RecordError(c.Path(), c.Method(), domainErr.Code)
		}

		body := fiber.Map{
			"code":    domainErr.Code,
			"message": domainErr.Message,
		}
		if len(domainErr.Details) > 0 {
			body["details"] = domainErr.Details
		}
		if domainErr.HTTPStatus >= 500 {
			logger.Error("request failed",
				zap.String("path", c.Path()),
				zap.String("method", c.Method()),
				zap.Error(err))
		}
		return c.Status(domainErr.HTTPStatus).JSON(fiber.Map{"error": body})
	}
}

func fiberCode(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return apperrors.CodeNotFound
	case fiber.StatusMethodNotAllowed, fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
		return apperrors.CodeValidation
	case fiber.StatusUnauthorized:
		return apperrors.CodeUnauthorized
	case fiber.StatusForbidden:
		return apperrors.CodeForbidden
	}
	return apperrors.CodeInternal
}

func recoverMiddleware(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(nil)
			}
		}()
		return c.Next()
	}
}

func tracingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, span := observability.Tracer().Start(c.UserContext(), c.Method()+" "+c.Path(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("http.method", c.Method())))
		defer span.End()
		c.SetUserContext(ctx)

		err := c.Next()
		if route := c.Route(); route != nil {
			span.SetName(c.Method() + " " + route.Path)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, apperrors.CodeOf(err))
		}
		return err
	}
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}
