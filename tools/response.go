package tools

import (
	"encoding/json"
	"errors"
	"net/http"
)

// RespErr writes a structured error response to the ResponseWriter.
func RespErr(w http.ResponseWriter, err error) {
	status, apiErr := BuildAPIError(err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiErr)
}

// RespJSON writes v as a JSON body with the given status.
func RespJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		Logger.Error("failed to encode response", "error", err.Error())
	}
}

// BuildAPIError maps an error to an HTTP status code and structured APIError.
func BuildAPIError(err error) (int, APIError) {
	build := func(status int, code, title, hint string) (int, APIError) {
		return status, APIError{
			Code:   code,
			Error:  err.Error(),
			Status: status,
			Title:  title,
			Hint:   hint,
		}
	}

	switch {
	case errors.Is(err, ErrInvalidQuery):
		return build(http.StatusBadRequest, CodeInvalidQuery, "", "")
	case errors.Is(err, ErrUnknownColumn):
		return build(http.StatusBadRequest, CodeUnknownColumn, "",
			"Use GET /{database}/{table}.json to see the columns this table exposes.")
	case errors.Is(err, ErrQueryInterrupted):
		return build(http.StatusBadRequest, CodeQueryInterrupted, "SQL Interrupted",
			"Add filters to narrow the query, or lower the page size.")
	case errors.Is(err, ErrQueryError):
		return build(http.StatusBadRequest, CodeQueryError, "Invalid SQL", "")
	case errors.Is(err, ErrTableNotFound):
		return build(http.StatusNotFound, CodeTableNotFound, "",
			"Use GET /{database}.json to list available tables.")
	case errors.Is(err, ErrDatabaseNotFound):
		return build(http.StatusNotFound, CodeDatabaseNotFound, "",
			"Use GET /.json to list available databases.")
	case errors.Is(err, ErrRowNotFound):
		return build(http.StatusNotFound, CodeRowNotFound, "", "")
	case errors.Is(err, ErrForbidden):
		return build(http.StatusForbidden, CodeForbidden, "", "")
	case errors.Is(err, ErrInvalidIdentifier), errors.Is(err, ErrEmptyIdentifier):
		return build(http.StatusBadRequest, CodeInvalidQuery, "", "")
	case errors.Is(err, ErrConfiguration):
		Logger.Error("configuration error", "error", err.Error())
		return build(http.StatusInternalServerError, CodeConfiguration, "", "")
	default:
		// Unknown errors are logged; the client gets a generic message.
		Logger.Error("unhandled error", "error", err.Error())
		return http.StatusInternalServerError, APIError{
			Code:   CodeInternalError,
			Error:  "internal server error",
			Status: http.StatusInternalServerError,
			Hint:   "An unexpected error occurred. Check server logs for details.",
		}
	}
}
