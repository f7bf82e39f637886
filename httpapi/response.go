package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	goDeliver "github.com/MrEthical07/goDeliver"
	"github.com/MrEthical07/goDeliver/catalog"
	"github.com/MrEthical07/goDeliver/password"
)

const maxJSONBody = 1 << 20

const (
	msgPasswordDenied = "Invalid or expired password. Please complete checkout to get a new password."
	msgLinkDenied     = "Download link expired or invalid"
	msgFileNotFound   = "File not found"
	msgUnavailable    = "Service unavailable."
	msgServerError    = "Server error."
)

type failure struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, failure{Success: false, Message: message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid JSON body.")
		return false
	}
	return true
}

// mapError turns an engine or catalog error into a status and a message safe
// to show the caller.
func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, goDeliver.ErrEmptyCart):
		return http.StatusBadRequest, "Invalid request. Email and cart are required."
	case errors.Is(err, goDeliver.ErrInvalidCart):
		return http.StatusBadRequest, "Invalid cart."
	case errors.Is(err, goDeliver.ErrUnknownAccount):
		return http.StatusNotFound, "User not found."
	case errors.Is(err, goDeliver.ErrDenied):
		return http.StatusForbidden, msgLinkDenied
	case errors.Is(err, goDeliver.ErrFileNotFound):
		return http.StatusNotFound, msgFileNotFound
	case errors.Is(err, password.ErrTooShort):
		msg := err.Error()
		return http.StatusBadRequest, strings.ToUpper(msg[:1]) + msg[1:] + "."
	case errors.Is(err, catalog.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, catalog.ErrAccountExists):
		return http.StatusConflict, "Email already registered."
	case errors.Is(err, catalog.ErrItemExists):
		return http.StatusConflict, "Item already exists."
	case errors.Is(err, catalog.ErrAccountNotFound):
		return http.StatusNotFound, "User not found."
	case errors.Is(err, catalog.ErrItemNotFound):
		return http.StatusNotFound, "Item not found."
	case errors.Is(err, goDeliver.ErrEngineNotReady),
		errors.Is(err, goDeliver.ErrCredentialUnavailable),
		errors.Is(err, goDeliver.ErrAccountLookupFailed),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, msgUnavailable
	default:
		return http.StatusInternalServerError, msgServerError
	}
}
