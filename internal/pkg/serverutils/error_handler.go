package serverutils

import (
	"errors"
	"log"

	"realtime-chat-be/pkg/chat/chaterr"

	"github.com/gofiber/fiber/v2"
)

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, chaterr.ErrValidation):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, chaterr.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, chaterr.ErrNotActive):
		return fiber.StatusConflict
	case errors.Is(err, chaterr.ErrPartialFailure), errors.Is(err, chaterr.ErrPersistence):
		return fiber.StatusBadGateway
	case errors.Is(err, chaterr.ErrSubscription), errors.Is(err, chaterr.ErrSessionClosed):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		status := StatusFor(err)
		message := err.Error()
		if status == fiber.StatusInternalServerError {
			log.Printf("[ERROR] %s %s: %v", ctx.Method(), ctx.Path(), err)
			message = "Internal server error"
		}
		return ctx.Status(status).JSON(ErrorResponse(message))
	}
}
