package handler

import "github.com/usezoracle/usezoracle-tg-server/core/model"

// Response is the envelope for operator endpoints.
type Response struct {
	Code    int64       `json:"code"`
	Message string      `json:"msg"`
	Data    interface{} `json:"data"`
}

// WebhookAck is the structured acknowledgement every webhook request
// receives exactly once, whatever the outcome. Ignored events are
// acknowledged too so the sender does not redeliver them.
type WebhookAck struct {
	Message      string           `json:"message"`
	Timestamp    string           `json:"timestamp"`
	EventType    string           `json:"event_type"`
	Network      string           `json:"network"`
	ReceivedData interface{}      `json:"received_data,omitempty"`
	TokenInfo    *model.TokenInfo `json:"token_info,omitempty"`
	TokenType    string           `json:"token_type,omitempty"`
}
