package response

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Additional-Code/palate/pkg/errorbank"
)

// Envelope is the body every endpoint returns.
type Envelope struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *ErrorBody     `json:"error,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Builder accumulates status, payload and meta for one response.
type Builder struct {
	ctx    echo.Context
	status int
	data   any
	err    error
	meta   map[string]any
}

// New starts a 200 response for c.
func New(c echo.Context) *Builder {
	return &Builder{ctx: c, status: http.StatusOK}
}

// WithStatus overrides the status. Non-positive values are ignored, and
// error responses below 400 fall back to the error's own status.
func (b *Builder) WithStatus(status int) *Builder {
	if status > 0 {
		b.status = status
	}
	return b
}

func (b *Builder) WithData(data any) *Builder {
	b.data = data
	return b
}

// WithError switches the response to the error envelope.
func (b *Builder) WithError(err error) *Builder {
	b.err = err
	return b
}

// WithMeta sets meta[key]. An empty key is ignored.
func (b *Builder) WithMeta(key string, value any) *Builder {
	if key == "" {
		return b
	}
	if b.meta == nil {
		b.meta = make(map[string]any)
	}
	b.meta[key] = value
	return b
}

// WithWarnings lists non-fatal problems under meta.warnings.
func (b *Builder) WithWarnings(warnings []string) *Builder {
	if len(warnings) == 0 {
		return b
	}
	return b.WithMeta("warnings", warnings)
}

// Build writes the envelope.
func (b *Builder) Build() error {
	status, env := b.envelope()
	return b.ctx.JSON(status, env)
}

func (b *Builder) envelope() (int, Envelope) {
	if b.err == nil {
		return b.status, Envelope{Success: true, Data: b.data, Meta: b.meta}
	}

	appErr := errorbank.From(b.err)
	status := b.status
	if status < http.StatusBadRequest {
		status = appErr.StatusCode()
	}
	// Request ids only matter when someone has to chase a failure in the logs.
	if id := b.ctx.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		b.WithMeta("request_id", id)
	}
	return status, Envelope{
		Error: &ErrorBody{
			Kind:    string(appErr.Kind()),
			Message: appErr.Message(),
			Details: appErr.Details(),
		},
		Meta: b.meta,
	}
}
