// Package api implements the HTTP REST API layer of the authentication
// service. It uses Chi as the router and exposes all resources under
// /api/v1. Authorization is not a middleware concern here: every operation
// hands the caller's bearer token to the engine, which owns all policy, so
// the handlers only translate requests and errors.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/authgate-io/authgate/internal/domain"
)

// envelope is the standard JSON response wrapper for all API responses.
//
// Success:  {"data": <payload>}
// Error:    {"error": {"message": "...", "code": "..."}}
type envelope map[string]any

// JSON writes a JSON-encoded response with the given status code.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Ok writes a 200 OK response with the payload wrapped in {"data": payload}.
func Ok(w http.ResponseWriter, payload any) {
	JSON(w, http.StatusOK, envelope{"data": payload})
}

// Created writes a 201 Created response with the payload wrapped in
// {"data": payload}.
func Created(w http.ResponseWriter, payload any) {
	JSON(w, http.StatusCreated, envelope{"data": payload})
}

// NoContent writes a 204 No Content response with no body.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// errorResponse is the shape of the "error" object in error responses. Code
// is the engine's stable error code (e.g. "INVALID_TOKEN") so clients never
// need to match messages.
type errorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func errJSON(w http.ResponseWriter, status int, message, code string) {
	JSON(w, status, envelope{
		"error": errorResponse{
			Message: message,
			Code:    code,
		},
	})
}

// ErrBadRequest writes a 400 Bad Request error response.
func ErrBadRequest(w http.ResponseWriter, message string) {
	errJSON(w, http.StatusBadRequest, message, domain.ErrIllegalParameter.Code())
}

// ErrInternal writes a 500 Internal Server Error response. The internal
// error detail is intentionally not exposed to the client.
func ErrInternal(w http.ResponseWriter) {
	errJSON(w, http.StatusInternalServerError, "an internal error occurred",
		domain.ErrInternal.Code())
}

// writeErr translates an engine error into an HTTP error response. Server
// faults are logged and their details hidden from the client.
func writeErr(w http.ResponseWriter, logger *zap.Logger, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		logger.Error("unclassified error", zap.Error(err))
		ErrInternal(w)
		return
	}
	status := errStatus(de.Kind)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("code", de.Kind.Code()), zap.Error(err))
		errJSON(w, status, "an internal error occurred", de.Kind.Code())
		return
	}
	errJSON(w, status, de.Error(), de.Kind.Code())
}

func errStatus(kind domain.ErrorKind) int {
	switch kind {
	case domain.ErrAuthenticationFailed, domain.ErrInvalidToken,
		domain.ErrNoTokenProvided, domain.ErrDisabled:
		return http.StatusUnauthorized
	case domain.ErrUnauthorized:
		return http.StatusForbidden
	case domain.ErrMissingParameter, domain.ErrIllegalParameter,
		domain.ErrLinkFailed, domain.ErrUnlinkFailed:
		return http.StatusBadRequest
	case domain.ErrNoSuchUser, domain.ErrNoSuchToken,
		domain.ErrNoSuchRole, domain.ErrNoSuchProvider:
		return http.StatusNotFound
	case domain.ErrUserExists, domain.ErrIdentityLinked:
		return http.StatusConflict
	case domain.ErrIdentityRetrieval:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON decodes the request body into dst. Returns false and writes an
// appropriate error response if decoding fails, so callers can
// early-return.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		ErrBadRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}
