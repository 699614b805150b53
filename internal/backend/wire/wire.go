package wire

import (
	"net/http"
	"time"

	"github.com/butterchat/butterchat/internal/backend"
)

// ServerTimestampValue is the on-the-wire encoding of the
// backend.ServerTimestamp sentinel, which does not survive JSON.
const ServerTimestampValue = "__server_timestamp__"

// EncodeFields replaces ServerTimestamp sentinels with their wire
// marker so the field map can be marshalled.
func EncodeFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if v == backend.ServerTimestamp {
			out[k] = ServerTimestampValue
			continue
		}
		out[k] = v
	}
	return out
}

// DecodeFields restores ServerTimestamp sentinels from their wire
// marker.
func DecodeFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if s, ok := v.(string); ok && s == ServerTimestampValue {
			out[k] = backend.ServerTimestamp
			continue
		}
		out[k] = v
	}
	return out
}

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ClientMessage struct {
	BaseMessage
	Create      *Create      `json:"create,omitempty"`
	Subscribe   *Subscribe   `json:"subscribe,omitempty"`
	Unsubscribe *Unsubscribe `json:"unsubscribe,omitempty"`
}

type Create struct {
	Path   string         `json:"path"`
	Fields map[string]any `json:"fields"`
}

type Subscribe struct {
	Path      string `json:"path"`
	OrderBy   string `json:"order_by"`
	Direction string `json:"direction"`
	Limit     int    `json:"limit"`
}

type Unsubscribe struct {
	SubscriptionId string `json:"subscription_id"`
}

type ServerMessage struct {
	BaseMessage
	Response *Response `json:"response,omitempty"`
	Update   *Update   `json:"update,omitempty"`
}

type Response struct {
	ResponseCode   int               `json:"response_code"`
	Error          string            `json:"error,omitempty"`
	Document       *backend.Document `json:"document,omitempty"`
	SubscriptionId string            `json:"subscription_id,omitempty"`
}

type Update struct {
	SubscriptionId string             `json:"subscription_id"`
	Documents      []backend.Document `json:"documents"`
}

func Direction(dir backend.Direction) string {
	return dir.String()
}

func ParseDirection(s string) (backend.Direction, bool) {
	switch s {
	case "asc":
		return backend.Ascending, true
	case "desc":
		return backend.Descending, true
	}
	return backend.Ascending, false
}

func NoErrCreated(id int, doc backend.Document) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusCreated,
			Document:     &doc,
		},
	}
}

func NoErrSubscribed(id int, subscriptionId string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode:   http.StatusOK,
			SubscriptionId: subscriptionId,
		},
	}
}

func NoErrOK(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
		},
	}
}

func ErrInvalidMessage(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid message format",
		},
	}
}

func ErrSubscriptionNotFound(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusNotFound,
			Error:        "subscription not found",
		},
	}
}

func ErrInternalError(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusInternalServerError,
			Error:        "internal server error",
		},
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
