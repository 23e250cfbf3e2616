// Package response provides the standard API response envelope.
package response

import (
	"github.com/gofiber/fiber/v2"

	"triage_server/pkg/apperr"
)

// Response is the standard API response structure.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo contains error details.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OK returns a successful response.
func OK(c *fiber.Ctx, data interface{}) error {
	return c.JSON(Response{Success: true, Data: data})
}

// Created returns a 201 created response.
func Created(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(Response{Success: true, Data: data})
}

// Accepted returns a 202 accepted response, used when the webhook handler
// has durably queued the event for asynchronous processing.
func Accepted(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusAccepted).JSON(Response{Success: true, Data: data})
}

// Error returns an error response from an AppError.
func Error(c *fiber.Ctx, err *apperr.AppError) error {
	return c.Status(err.HTTPStatus()).JSON(Response{
		Success: false,
		Error:   &ErrorInfo{Code: err.Code, Message: err.Message},
	})
}
