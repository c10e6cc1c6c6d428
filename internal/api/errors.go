package api

import (
	"encoding/json"
	"io"
	"net/http"

	"tienda-be/internal/apperr"
	"tienda-be/internal/logger"
	"tienda-be/internal/utils"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Success *bool    `json:"success,omitempty"`
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Fields  []string `json:"fields,omitempty"`
	Details any      `json:"details,omitempty"`
}

// writeError renders a classified error. Internal causes are logged and
// never sent to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	body := errorBody{Code: string(kind)}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		body.Error = appErr.Message
		body.Fields = appErr.Fields
		body.Details = appErr.Details
	}

	log := logger.FromCtx(r.Context()).With(
		zap.String("layer", "api"),
		zap.String("path", r.URL.Path),
		zap.String("code", body.Code),
	)
	switch kind {
	case apperr.Internal:
		log.Error("request failed", zap.Error(err))
		body = errorBody{Error: "internal server error", Code: string(apperr.Internal)}
	case apperr.GatewayUnavailable, apperr.InvalidTransition:
		log.Warn("request failed", zap.Error(err))
	case apperr.PaymentRejected:
		success := false
		body.Success = &success
	}
	if body.Error == "" {
		body.Error = http.StatusText(apperr.HTTPStatus(kind))
	}

	utils.WriteJSON(w, apperr.HTTPStatus(kind), body)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.New(apperr.InvalidInput, "request body is required")
		}
		return apperr.Wrap(apperr.InvalidInput, err, "invalid request body")
	}
	return nil
}
