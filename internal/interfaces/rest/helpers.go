// Package rest implements the sidecar's HTTP surface: one handler per
// aggregate, a shared envelope-response style, and the single SSE endpoint.
// Adapted from the teacher's internal/interfaces/rest package (helpers.go's
// BindJSON/RespondAppError/envelope helpers), generalized around the
// Command Handler Harness instead of a direct service-method call.
package rest

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Liyue-Cheng/cutie-sub002/internal/application/services"
	"github.com/Liyue-Cheng/cutie-sub002/internal/domain/ports"
	cutierr "github.com/Liyue-Cheng/cutie-sub002/pkg/errors"
	"github.com/Liyue-Cheng/cutie-sub002/pkg/logging"
)

// CorrelationHeader is the header a client sets to correlate a command's
// HTTP response with its own SSE echo (spec.md §6).
const CorrelationHeader = "X-Correlation-ID"

// log is the package-wide logger handlers use for server-side (5xx)
// failures. Defaults to a no-op sink so the package is usable before
// SetLogger is called (tests, or a handler exercised in isolation);
// cmd/sidecar/main.go calls SetLogger once at startup with the process's
// real *zap.SugaredLogger.
var log = logging.Nop()

// SetLogger installs the process-wide logger this package's handlers log
// through.
func SetLogger(l *zap.SugaredLogger) {
	log = l
}

// fieldError is the shape a ValidationError's details take in an error
// envelope: which field was rejected, alongside the general message.
type fieldError struct {
	Field string `json:"field"`
}

// errorDetails returns the optional "details" payload for err's error
// envelope (spec.md §6: `{ error: { kind, message, details?, code? } }`),
// or nil when err carries nothing beyond its message.
func errorDetails(err error) interface{} {
	var ve *cutierr.ValidationError
	if errors.As(err, &ve) && ve.Field != "" {
		return fieldError{Field: ve.Field}
	}
	return nil
}

// RespondAppError sends a standardized `{ error: { kind, message, details?,
// code? } }` JSON error response using the pkg/errors taxonomy (spec.md
// §6), logging server-side (5xx) failures. "kind" is the taxonomy code
// (e.g. VALIDATION_ERROR); "code" is left for a future finer-grained
// business code and is omitted while none exists.
func RespondAppError(c *gin.Context, err error) {
	status := cutierr.GetHTTPStatus(err)
	kind := cutierr.GetErrorCode(err)

	if status >= 500 {
		log.Errorw("request failed", "status", status, "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
	}

	body := gin.H{
		"kind":    kind,
		"message": err.Error(),
	}
	if details := errorDetails(err); details != nil {
		body["details"] = details
	}
	c.JSON(status, gin.H{"error": body})
}

// BindJSON decodes the request body into obj, responding with a 422
// ValidationError and returning false on failure.
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		RespondAppError(c, cutierr.NewValidationError("body", err.Error()))
		return false
	}
	return true
}

// correlationID returns the client-supplied correlation id, or "" to let
// the harness generate one.
func correlationID(c *gin.Context) string {
	return c.GetHeader(CorrelationHeader)
}

// respondData writes the standard `{ data, timestamp, request_id }` success
// envelope (spec.md §6).
func respondData(c *gin.Context, status int, data interface{}, requestID string) {
	c.JSON(status, gin.H{
		"data":       data,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		"request_id": requestID,
	})
}

// RunCommand binds the request body into req (skipped if req is nil, for
// commands with no body), then runs build(req)'s BusinessFunc through the
// Command Handler Harness, writing the resulting body as the standard
// success envelope. The correlation id the harness threaded through
// (client-supplied, or freshly generated if the client sent none) doubles
// as this response's request_id and is echoed back in the X-Correlation-ID
// response header, per spec.md §6: "if absent the server generates one and
// returns it in the response header." This is every mutating handler's
// entire body — the business closures themselves live in
// internal/application/services.
func RunCommand(c *gin.Context, harness *services.CommandHarness, status int, req interface{}, build func() ports.BusinessFunc) {
	if req != nil {
		if !BindJSON(c, req) {
			return
		}
	}

	result, err := harness.Execute(c.Request.Context(), correlationID(c), build())
	if err != nil {
		RespondAppError(c, err)
		return
	}

	c.Header(CorrelationHeader, result.CorrelationID)
	respondData(c, status, result.Body, result.CorrelationID)
}

// HandleGetEnvelope executes a read action and wraps its result under key in
// the standard success envelope — the read-side counterpart to RunCommand,
// used by the bulk-fetch resync endpoints (spec.md §4.4). Reads carry no
// correlation id, so request_id is a freshly minted one.
func HandleGetEnvelope(c *gin.Context, key string, action func() (interface{}, error)) {
	result, err := action()
	if err != nil {
		RespondAppError(c, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{key: result}, uuid.NewString())
}
