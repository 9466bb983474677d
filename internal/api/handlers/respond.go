// Package handlers provides the HTTP handlers of the intake API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/drfirst/go-intake/internal/domain/intake"
	"github.com/drfirst/go-intake/internal/domain/money"
	"github.com/drfirst/go-intake/internal/domain/pricing"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, message, code string, status int) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	if code, ok := intake.CodeOf(err); ok {
		status := http.StatusBadRequest
		switch code {
		case intake.StatusFailedPrecondition:
			status = http.StatusConflict
		case intake.StatusNotFound:
			status = http.StatusNotFound
		}
		jsonError(w, err.Error(), code.String(), status)
		return
	}
	if errors.Is(err, intake.ErrSubmissionFailed) {
		jsonError(w, err.Error(), "submission_failed", http.StatusBadGateway)
		return
	}
	if errors.Is(err, pricing.ErrQuantityLimit) || errors.Is(err, money.ErrOverflow) {
		jsonError(w, err.Error(), intake.StatusInvalidArgument.String(), http.StatusBadRequest)
		return
	}
	if errors.Is(err, pricing.ErrUnpriced) {
		jsonError(w, err.Error(), "unpriced", http.StatusUnprocessableEntity)
		return
	}
	logger.Error("request failed", zap.Error(err))
	jsonError(w, "internal server error", "internal", http.StatusInternalServerError)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return intake.NewInvalidArgument("invalid request body: " + err.Error())
	}
	return nil
}
