package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"quizbattle-service/internal/domain"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain sentinels onto HTTP statuses. Unexpected errors are
// logged with context and surfaced as a generic 500 without internals.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		writeJSON(w, status, errorBody{Error: "internal server error"})
		return
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrBattleNotFound),
		errors.Is(err, domain.ErrOpponentNotFound),
		errors.Is(err, domain.ErrFolderNotFound),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrInviteNotFound),
		errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotParticipant):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrAlreadyAnswered),
		errors.Is(err, domain.ErrSelfBattle),
		errors.Is(err, domain.ErrBankTooSmall),
		errors.Is(err, domain.ErrBattleExpired),
		errors.Is(err, domain.ErrUserExists):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
