package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/wonny/notes/backend/internal/contracts"
)

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// errorStatus maps engine sentinels onto HTTP statuses
func errorStatus(err error) int {
	switch {
	case errors.Is(err, contracts.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, contracts.ErrInvalidProduct), errors.Is(err, contracts.ErrInvalidSchedule):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// parseDateParam reads an optional YYYY-MM-DD query parameter; empty means today
func parseDateParam(r *http.Request, name string, now func() time.Time) (time.Time, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return contracts.Day(now()), nil
	}
	return contracts.ParseDate(value)
}
