package services

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Machine-readable reason codes returned in the "error" field of failure
// responses. Clients branch on these, the message is for humans.
const (
	CodeValidation         = "validation_error"
	CodeUnauthorized       = "unauthorized"
	CodeForbidden          = "forbidden"
	CodeNotFound           = "not_found"
	CodeConflict           = "conflict"
	CodeRegistrationClosed = "registration_closed"
	CodeFull               = "tournament_full"
	CodeDuplicateJoin      = "duplicate_join"
	CodeTeamNotAllowed     = "team_not_allowed"
	CodeTypeMismatch       = "team_type_mismatch"
	CodeNotLeader          = "not_team_leader"
	CodeIncompleteRoster   = "incomplete_roster"
	CodeIncompleteProfile  = "incomplete_profile"
	CodeAlreadyRegistered  = "already_registered"
	CodeInsufficientFunds  = "insufficient_funds"
	CodeBelowMinimum       = "below_minimum"
	CodeSignatureMismatch  = "signature_mismatch"
	CodeUnknownOrFinalized = "unknown_or_finalized"
	CodeMissingPayout      = "missing_payout_details"
	CodeCodeSpaceExhausted = "code_space_exhausted"
	CodeGatewayError       = "gateway_error"
	CodeGatewayTimeout     = "gateway_timeout"
	CodeInvariantViolation = "invariant_violation"
)

// AppError carries a stable reason code, the HTTP status it maps to, and an
// optional field-level error map for validation failures.
type AppError struct {
	Code    string            `json:"error"`
	Status  int               `json:"-"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func ErrValidation(msg string, fields map[string]string) *AppError {
	return &AppError{Code: CodeValidation, Status: 400, Message: msg, Fields: fields}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: CodeUnauthorized, Status: 401, Message: msg}
}

func ErrForbidden(msg string) *AppError {
	return &AppError{Code: CodeForbidden, Status: 403, Message: msg}
}

func ErrNotFound(msg string) *AppError {
	return &AppError{Code: CodeNotFound, Status: 404, Message: msg}
}

func ErrConflict(code, msg string) *AppError {
	return &AppError{Code: code, Status: 409, Message: msg}
}

func ErrInsufficientFunds(msg string) *AppError {
	return &AppError{Code: CodeInsufficientFunds, Status: 402, Message: msg}
}

// ErrGateway wraps a payment-gateway failure. The raw gateway payload stays in
// the server log — clients only ever see the generic message.
func ErrGateway(msg string) *AppError {
	return &AppError{Code: CodeGatewayError, Status: 502, Message: msg}
}

func ErrGatewayTimeout() *AppError {
	return &AppError{Code: CodeGatewayTimeout, Status: 504, Message: "payment gateway timed out, try again"}
}

// ErrInvariant marks a stuck internal state (e.g. a compensation credit that
// itself failed). These must always be logged with full context before being
// returned — they are the manual-reconciliation queue.
func ErrInvariant(msg string) *AppError {
	return &AppError{Code: CodeInvariantViolation, Status: 500, Message: msg}
}

// respondErr renders any error as the standard failure envelope:
// {"success": false, "error": <code>, "message": ..., "fields": {...}}.
func respondErr(c *fiber.Ctx, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		body := fiber.Map{"success": false, "error": appErr.Code, "message": appErr.Message}
		if len(appErr.Fields) > 0 {
			body["fields"] = appErr.Fields
		}
		return c.Status(appErr.Status).JSON(body)
	}
	return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "something went wrong"})
}
