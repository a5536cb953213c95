// Package http provides the admin web server and its handlers.
//
// Mutating endpoints answer htmx with headers rather than markup: toasts and
// fragment refreshes travel in HX-Trigger, navigation in HX-Redirect. The
// builder below assembles those headers.
package http

import (
	"encoding/json"
	"html/template"
	"net/http"
)

// Events understood by web/static/app.js and the hx-trigger attributes of
// the templates.
const (
	eventToast          = "show-notification"
	eventRecordsChanged = "records:changed"
)

// Toast durations in milliseconds.
const (
	successToastMs = 3000
	errorToastMs   = 5000
)

// NotificationType selects the toast style.
type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
)

// Toast is the payload of the show-notification event.
type Toast struct {
	Type     NotificationType `json:"type"`
	Message  string           `json:"message"`
	Duration int              `json:"duration"`
}

// RecordChange is the payload of the records:changed event.
type RecordChange struct {
	ID     int64  `json:"id"`
	Action string `json:"action"`
}

// HTMXResponseBuilder accumulates the status, headers, triggers and body of
// a response to an htmx request.
type HTMXResponseBuilder struct {
	triggers   map[string]any
	statusCode int
	body       []byte
	headers    map[string]string
}

// NewHTMXResponse creates a new response builder with default 200 status.
func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		triggers:   make(map[string]any),
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.statusCode = code
	return b
}

// Trigger adds a named event to HX-Trigger. A later call with the same
// name replaces the earlier payload.
func (b *HTMXResponseBuilder) Trigger(name string, data any) *HTMXResponseBuilder {
	b.triggers[name] = data
	return b
}

// TriggerRecordsChanged makes the list and the dashboard cards reload.
func (b *HTMXResponseBuilder) TriggerRecordsChanged(id int64, action string) *HTMXResponseBuilder {
	return b.Trigger(eventRecordsChanged, RecordChange{ID: id, Action: action})
}

// Notify shows a toast.
func (b *HTMXResponseBuilder) Notify(t Toast) *HTMXResponseBuilder {
	return b.Trigger(eventToast, t)
}

func (b *HTMXResponseBuilder) TriggerSuccessNotification(message string) *HTMXResponseBuilder {
	return b.Notify(Toast{Type: NotificationSuccess, Message: message, Duration: successToastMs})
}

func (b *HTMXResponseBuilder) TriggerErrorNotification(message string) *HTMXResponseBuilder {
	return b.Notify(Toast{Type: NotificationError, Message: message, Duration: errorToastMs})
}

// Redirect asks htmx to navigate to url once the response is handled.
func (b *HTMXResponseBuilder) Redirect(url string) *HTMXResponseBuilder {
	return b.Header("HX-Redirect", url)
}

// Header adds a custom header to the response.
func (b *HTMXResponseBuilder) Header(name, value string) *HTMXResponseBuilder {
	b.headers[name] = value
	return b
}

// BodyHTML sets an HTML body.
func (b *HTMXResponseBuilder) BodyHTML(html string) *HTMXResponseBuilder {
	b.headers["Content-Type"] = "text/html; charset=utf-8"
	b.body = []byte(html)
	return b
}

// Write sends the built response.
func (b *HTMXResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if len(b.triggers) > 0 {
		if triggerJSON, err := json.Marshal(b.triggers); err == nil {
			w.Header().Set("HX-Trigger", string(triggerJSON))
		}
	}
	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// ErrorResponse creates an error response whose body is the escaped message.
func ErrorResponse(statusCode int, message string) *HTMXResponseBuilder {
	return NewHTMXResponse().
		Status(statusCode).
		BodyHTML(`<div class="error">` + template.HTMLEscapeString(message) + `</div>`)
}

// Failure is an ErrorResponse that also raises an error toast with the
// same message.
func Failure(statusCode int, message string) *HTMXResponseBuilder {
	return ErrorResponse(statusCode, message).TriggerErrorNotification(message)
}

// Success answers a completed mutation with a success toast and an escaped
// confirmation body.
func Success(message string) *HTMXResponseBuilder {
	return NewHTMXResponse().
		TriggerSuccessNotification(message).
		BodyHTML(`<div class="success">` + template.HTMLEscapeString(message) + `</div>`)
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}
