package webhook

import (
	"errors"
	"io"
	"net/http"
)

// maxBodySize bounds inbound webhook bodies (1 MiB).
const maxBodySize = 1 << 20

// Handler returns the HTTP endpoint for inbound webhooks.
//
// Responses: 401 on signature failure, 400 on empty or malformed bodies,
// 200 on every successfully routed payload including unknown resource
// types, 500 only on unexpected internal failure.
func (p *Pipeline) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
		if err != nil {
			p.logger.Error().Err(err).Msg("read webhook body failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		err = p.Process(r.Context(), body, r.Header.Get(SignatureHeader))
		switch {
		case err == nil:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"received":true}`))
		case errors.Is(err, ErrBadSignature):
			http.Error(w, "invalid signature", http.StatusUnauthorized)
		case errors.Is(err, ErrEmptyPayload), errors.Is(err, ErrMalformedPayload):
			http.Error(w, "invalid payload", http.StatusBadRequest)
		default:
			p.logger.Error().Err(err).Msg("webhook processing failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
