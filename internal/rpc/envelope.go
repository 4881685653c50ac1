package rpc

import (
	"encoding/json"
	"net/http"
)

// Envelope is the single response shape of every procedure, success or not.
type Envelope struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`

	cookie *http.Cookie
}

// NullData renders as "data": null where a plain nil would drop the key.
var NullData = json.RawMessage("null")

func OK(status int, message string, data any) Envelope {
	return Envelope{Status: status, Message: message, Data: data}
}

func Fail(status int, message string) Envelope {
	return Envelope{Status: status, Message: message}
}

func BadRequest(message string) Envelope { return Fail(http.StatusBadRequest, message) }

func Unauthorized(message string) Envelope { return Fail(http.StatusUnauthorized, message) }

func Forbidden(message string) Envelope { return Fail(http.StatusForbidden, message) }

func NotFound(message string) Envelope { return Fail(http.StatusNotFound, message) }

func Conflict(message string) Envelope { return Fail(http.StatusConflict, message) }

// StoreFailed is the StoreOperationFailed outcome: the cause stays in the logs.
func StoreFailed(message string) Envelope { return Fail(http.StatusInternalServerError, message) }

func Unavailable(message string) Envelope { return Fail(http.StatusServiceUnavailable, message) }

// WithCookie asks the transport to set c alongside the response.
func (e Envelope) WithCookie(c *http.Cookie) Envelope {
	e.cookie = c
	return e
}

func (e Envelope) Cookie() *http.Cookie { return e.cookie }

func (e Envelope) Succeeded() bool { return e.Status >= 200 && e.Status < 300 }
