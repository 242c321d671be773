package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBuildAPIError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
		wantTitle  string
	}{
		{
			name:       "invalid query keeps message",
			err:        InvalidQueryErr("_size must be a positive integer"),
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeInvalidQuery,
			wantMsg:    "_size must be a positive integer",
		},
		{
			name:       "unknown column",
			err:        UnknownColumnErr("Cannot sort table by badcolumn"),
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeUnknownColumn,
			wantMsg:    "Cannot sort table by badcolumn",
		},
		{
			name:       "table not found",
			err:        TableNotFoundErr("blah"),
			wantStatus: http.StatusNotFound,
			wantCode:   CodeTableNotFound,
			wantMsg:    "Table not found: blah",
		},
		{
			name:       "interrupted has title",
			err:        QueryInterruptedErr("select 1"),
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeQueryInterrupted,
			wantTitle:  "SQL Interrupted",
		},
		{
			name:       "engine error passes through",
			err:        QueryErr(errors.New("no such table: nope")),
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeQueryError,
			wantMsg:    "no such table: nope",
			wantTitle:  "Invalid SQL",
		},
		{
			name:       "wrapped sentinel still matches",
			err:        fmt.Errorf("loading row: %w", RowNotFoundErr([]string{"9"})),
			wantStatus: http.StatusNotFound,
			wantCode:   CodeRowNotFound,
			wantMsg:    "loading row: Record not found: [9]",
		},
		{
			name:       "forbidden",
			err:        ForbiddenErr("sql= is not allowed"),
			wantStatus: http.StatusForbidden,
			wantCode:   CodeForbidden,
		},
		{
			name:       "unknown error is hidden",
			err:        errors.New("disk exploded"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   CodeInternalError,
			wantMsg:    "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, apiErr := BuildAPIError(tt.err)
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
			if apiErr.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", apiErr.Code, tt.wantCode)
			}
			if tt.wantMsg != "" && apiErr.Error != tt.wantMsg {
				t.Errorf("message = %q, want %q", apiErr.Error, tt.wantMsg)
			}
			if apiErr.Title != tt.wantTitle {
				t.Errorf("title = %q, want %q", apiErr.Title, tt.wantTitle)
			}
			if apiErr.OK {
				t.Error("ok should be false")
			}
		})
	}
}

func TestRespErr_WritesJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	RespErr(rec, InvalidQueryErr("Statement must be a SELECT"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %s", ct)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["error"] != "Statement must be a SELECT" || body["ok"] != false || body["status"] != float64(400) {
		t.Errorf("unexpected body: %v", body)
	}
}
