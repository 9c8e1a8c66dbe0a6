// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/switchboard/internal/auth"
	"github.com/tomtom215/switchboard/internal/dispatch"
	"github.com/tomtom215/switchboard/internal/validation"
)

// maxBodyBytes bounds REST request bodies.
const maxBodyBytes = 1 << 20

// defaultPageLimit applies when a list request names no limit.
const defaultPageLimit = 50

// decodeJSON reads a JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, maxBodyBytes)
		}
		return fmt.Errorf("%w: %s", ErrInvalidBody, sanitizeLogValue(err.Error()))
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return fmt.Errorf("%w: empty body", ErrInvalidBody)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidBody, sanitizeLogValue(err.Error()))
	}
	return nil
}

// decodeAndValidate decodes the body into v and runs struct validation.
// It writes the error response and returns false on failure.
func decodeAndValidate(rw *ResponseWriter, w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := decodeJSON(w, r, v); err != nil {
		writeDomainError(rw, err)
		return false
	}
	return validateRequest(rw, v)
}

// validateRequest validates a struct using go-playground/validator and writes
// a VALIDATION_ERROR response on failure.
func validateRequest(rw *ResponseWriter, v interface{}) bool {
	verr := validation.ValidateStruct(v)
	if verr == nil {
		return true
	}
	rw.ValidationError(verr.Summary(), verr.Details())
	return false
}

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", dispatch.ErrInvalidInput, name)
	}
	return id, nil
}

// getIntParam extracts an integer query parameter with a default value.
func getIntParam(r *http.Request, name string, defaultValue int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return v
}

// getBoolParam extracts a boolean query parameter.
func getBoolParam(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

// pageRequest is the validated form of limit and offset.
type pageRequest struct {
	Limit  int `json:"limit" validate:"min=1,max=200"`
	Offset int `json:"offset" validate:"min=0,max=1000000"`
}

func parsePage(r *http.Request) pageRequest {
	return pageRequest{
		Limit:  getIntParam(r, "limit", defaultPageLimit),
		Offset: getIntParam(r, "offset", 0),
	}
}

// pagination builds the meta for a page fetched with limit+1 rows.
func pagination(page pageRequest, count int) (*PaginationMeta, int) {
	hasMore := count > page.Limit
	if hasMore {
		count = page.Limit
	}
	return &PaginationMeta{
		Count:   count,
		Offset:  page.Offset,
		Limit:   page.Limit,
		HasMore: hasMore,
	}, count
}

// claims returns the authenticated caller. Routes using it sit behind
// auth.Middleware.Authenticate, so a miss is a wiring error.
func claims(r *http.Request) *auth.Claims {
	c, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		return &auth.Claims{}
	}
	return c
}

// sanitizeLogValue removes control characters from strings to prevent log injection attacks.
func sanitizeLogValue(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			fmt.Fprintf(&result, "\\x%02x", r)
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// deliveryResponse is the wire form of dispatch.Delivery.
type deliveryResponse struct {
	RecordID   int64  `json:"record_id,omitempty"`
	Pushed     bool   `json:"pushed"`
	PushError  string `json:"push_error,omitempty"`
	Suppressed bool   `json:"suppressed,omitempty"`
}

func newDeliveryResponse(d dispatch.Delivery) deliveryResponse {
	resp := deliveryResponse{
		RecordID:   d.RecordID,
		Pushed:     d.Pushed,
		Suppressed: d.Suppressed,
	}
	if d.PushErr != nil {
		resp.PushError = d.PushErr.Error()
	}
	return resp
}
