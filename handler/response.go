package handler

import (
	"casewatch/logger"
	"casewatch/models"
	"casewatch/repository"
	"casewatch/service"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

// respondWithError sends an error response
func respondWithError(w http.ResponseWriter, statusCode int, errorType, message string) {
	response := models.ErrorResponse{
		Error:   errorType,
		Message: message,
		Code:    statusCode,
	}
	respondWithJSON(w, statusCode, response)
}

// respondWithServiceError maps service and repository errors to HTTP statuses
func respondWithServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "Not found", err.Error())
	case errors.Is(err, service.ErrInvalidCase), errors.Is(err, service.ErrInvalidRule):
		respondWithError(w, http.StatusBadRequest, "Invalid request", err.Error())
	case errors.Is(err, service.ErrCaseNotOpen), errors.Is(err, service.ErrInvolvedParty):
		respondWithError(w, http.StatusConflict, "Conflict", err.Error())
	default:
		logger.Component("http").WithError(err).Error("request failed")
		respondWithError(w, http.StatusInternalServerError, "Internal error", "An unexpected error occurred")
	}
}

// pathID reads a positive integer path variable
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return id, err == nil && id > 0
}

// decodeJSON decodes an optional request body; an empty body leaves dst untouched
func decodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
