package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/groveops/grove/modules/tenure/services"
)

type apiError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Meta    map[string]string `json:"meta,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		panic(err)
	}
}

func writeAPIError(w http.ResponseWriter, r *http.Request, status int, code string, message string) {
	writeJSON(w, status, apiError{
		Code:    code,
		Message: message,
		Meta:    map[string]string{"request_id": requestID(r)},
	})
}

// writeServiceError translates service errors to their HTTP shape. Execution
// failures carry their cause verbatim: hiding them would leave an operator
// staring at a partial-history mystery.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *services.ServiceError
	if errors.As(err, &svcErr) {
		message := svcErr.Message
		if svcErr.Status >= http.StatusInternalServerError {
			message = svcErr.Error()
		}
		writeAPIError(w, r, svcErr.Status, svcErr.Code, message)
		return
	}
	writeAPIError(w, r, http.StatusInternalServerError, "TENURE_INTERNAL", "internal error")
}

func requestID(r *http.Request) string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw, ok := mux.Vars(r)[name]
	if !ok {
		return uuid.Nil, errors.New(name + " is required")
	}
	return uuid.Parse(raw)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "TENURE_INVALID_BODY", "malformed request body")
		return false
	}
	return true
}
