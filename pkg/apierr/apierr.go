// Package apierr provides structured API error types and HTTP status mapping
// compatible with the OpenAI error format.
package apierr

import (
	"encoding/json"

	"github.com/valyala/fasthttp"

	"github.com/nulpointcorp/mcp-gateway/internal/mcp"
)

// ErrorType constants.
const (
	TypeProviderError     = "provider_error"
	TypeRateLimitError    = "rate_limit_error"
	TypeInvalidRequest    = "invalid_request_error"
	TypeAuthenticationErr = "authentication_error"
	TypeServerError       = "server_error"
)

// Code constants.
const (
	CodeRateLimitExceeded = "rate_limit_exceeded"
	CodeInvalidAPIKey     = "invalid_api_key"
	CodeInternalError     = "internal_error"
	CodeProviderError     = "provider_error"
	CodeRequestTimeout    = "request_timeout"
	CodeNotImplemented    = "not_implemented"
	CodeInvalidRequest    = "invalid_request"
)

// APIError is the structured error returned to clients.
type (
	APIError struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	}
	envelope struct {
		Error APIError `json:"error"`
	}
)

// Write writes the error as JSON to the fasthttp response with the given HTTP status.
func Write(ctx *fasthttp.RequestCtx, status int, message, errType, code string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(envelope{Error: APIError{
		Message: message,
		Type:    errType,
		Code:    code,
	}})
	ctx.SetBody(body)
}

// WriteProviderError maps a provider HTTP status to the appropriate gateway status.
//
//	Provider 429  → 429 + Retry-After: 60
//	Provider 5xx  → 502
//	Default       → 502
//
// It never writes 504; timeouts are written by WriteTimeout.
func WriteProviderError(ctx *fasthttp.RequestCtx, providerStatus int, msg string) {
	switch {
	case providerStatus == fasthttp.StatusTooManyRequests:
		ctx.Response.Header.Set("Retry-After", "60")
		Write(ctx, fasthttp.StatusTooManyRequests, msg, TypeRateLimitError, CodeRateLimitExceeded)
	case providerStatus >= 500 && providerStatus < 600:
		Write(ctx, fasthttp.StatusBadGateway, msg, TypeProviderError, CodeProviderError)
	default:
		Write(ctx, fasthttp.StatusBadGateway, msg, TypeProviderError, CodeProviderError)
	}
}

// WriteTimeout writes a 504 timeout error.
func WriteTimeout(ctx *fasthttp.RequestCtx) {
	Write(ctx, fasthttp.StatusGatewayTimeout, "provider request timed out", TypeProviderError, CodeRequestTimeout)
}

// mcpErrorType maps an mcp.ErrorKind to the OpenAI-compatible error type
// string used in the response envelope.
func mcpErrorType(kind mcp.ErrorKind) string {
	switch kind {
	case mcp.ErrQueueFull:
		return TypeRateLimitError
	case mcp.ErrTimeout:
		return TypeProviderError
	case mcp.ErrProviderRateLimited:
		return TypeRateLimitError
	case mcp.ErrProviderTransient, mcp.ErrProviderFatal:
		return TypeProviderError
	case mcp.ErrParse:
		return TypeInvalidRequest
	case mcp.ErrConfig:
		return TypeServerError
	default:
		return TypeServerError
	}
}

// mcpErrorCode maps an mcp.ErrorKind to a stable machine-readable code.
func mcpErrorCode(kind mcp.ErrorKind) string {
	switch kind {
	case mcp.ErrQueueFull:
		return "queue_full"
	case mcp.ErrTimeout:
		return CodeRequestTimeout
	case mcp.ErrProviderRateLimited:
		return CodeRateLimitExceeded
	case mcp.ErrProviderTransient, mcp.ErrProviderFatal:
		return CodeProviderError
	case mcp.ErrParse:
		return "parse_error"
	case mcp.ErrConfig:
		return CodeInternalError
	default:
		return CodeInternalError
	}
}

// WriteMCPError writes an mcp.Error as a structured API error, using its
// HTTPStatus and Kind to pick the status code and error envelope fields. A
// QueueFull error also sets Retry-After, matching WriteRateLimit.
func WriteMCPError(ctx *fasthttp.RequestCtx, err *mcp.Error) {
	if err.Kind == mcp.ErrQueueFull || err.Kind == mcp.ErrProviderRateLimited {
		ctx.Response.Header.Set("Retry-After", "60")
	}
	Write(ctx, err.HTTPStatus(), err.Message, mcpErrorType(err.Kind), mcpErrorCode(err.Kind))
}

// WriteRateLimit writes a 429 rate limit error.
func WriteRateLimit(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Retry-After", "60")
	Write(ctx, fasthttp.StatusTooManyRequests, "rate limit exceeded", TypeRateLimitError, CodeRateLimitExceeded)
}
