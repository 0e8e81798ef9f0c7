// Package webhook implements the inbound invalidation pipeline.
//
// Change notifications from the commerce backend arrive as signed JSON
// payloads. The pipeline verifies the transport signature, classifies the
// payload by resource type and action, and invalidates the matching tags in
// both the page cache and the domain cache. Side effects beyond invalidation
// (page revalidation, notifications) are fire-and-forget and can never fail
// the webhook response.
package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrBadSignature indicates the payload signature did not match the
	// configured secret. Mapped to 401 by the HTTP handler.
	ErrBadSignature = errors.New("invalid webhook signature")

	// ErrEmptyPayload indicates an empty request body. Mapped to 400.
	ErrEmptyPayload = errors.New("empty webhook payload")

	// ErrMalformedPayload indicates a body that is not valid payload JSON.
	// Mapped to 400.
	ErrMalformedPayload = errors.New("malformed webhook payload")
)

// Payload is an inbound change notification. It is processed and discarded,
// never persisted.
type Payload struct {
	ID           string          `json:"id"`
	ResourceType string          `json:"resourceType"`
	Action       string          `json:"action"`
	Data         json.RawMessage `json:"data,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// ResourceID extracts the changed resource's identifier from the payload
// data, if present.
func (p *Payload) ResourceID() string {
	if len(p.Data) == 0 {
		return ""
	}
	var data struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(p.Data, &data); err != nil {
		return ""
	}
	return data.ID
}

// parsePayload decodes and validates a raw body.
func parsePayload(body []byte) (*Payload, error) {
	if len(body) == 0 {
		return nil, ErrEmptyPayload
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if payload.ResourceType == "" {
		return nil, fmt.Errorf("%w: missing resourceType", ErrMalformedPayload)
	}

	return &payload, nil
}
