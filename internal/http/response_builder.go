// Package http serves cashflow, sales and settlement audit data as JSON.
//
// This file builds JSON responses and maps domain errors to status codes.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"settleflow/internal/core"
)

// ResponseBuilder provides a fluent API for JSON responses.
type ResponseBuilder struct {
	statusCode int
	payload    any
	headers    map[string]string
}

// NewResponse creates a builder with status 200.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets the value encoded as the response body.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	b.payload = v
	return b
}

// Write sends the response. A nil payload writes headers and status only.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.payload == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	body, err := json.Marshal(b.payload)
	if err != nil {
		http.Error(w, `{"error":"encoding response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(body)
	_, _ = w.Write([]byte("\n"))
}

type errorBody struct {
	Error string `json:"error"`
}

// ErrorResponse creates a JSON error body {"error": message}.
func ErrorResponse(statusCode int, message string) *ResponseBuilder {
	return NewResponse().Status(statusCode).JSON(errorBody{Error: message})
}

func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func InternalServerError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

func ServiceUnavailableError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusServiceUnavailable, message)
}

func NotFoundError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func MethodNotAllowedError(allowedMethods string) *ResponseBuilder {
	return ErrorResponse(http.StatusMethodNotAllowed, "method not allowed").
		Header("Allow", allowedMethods)
}

// FromError maps a service error to a response. Caller mistakes are 400,
// store outages 503 and everything else 500 with a generic message.
func FromError(err error) *ResponseBuilder {
	switch {
	case errors.Is(err, core.ErrInvalidRange), errors.Is(err, core.ErrInvalidClass):
		return BadRequestError(err.Error())
	case errors.Is(err, core.ErrStoreUnavailable):
		return ServiceUnavailableError("store unavailable")
	default:
		return InternalServerError("internal error")
	}
}
