package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"fintrack/internal/core"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads a single JSON object from the request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return &core.ValidationError{Field: "body", Message: "is required", Err: err}
		case errors.As(err, &maxErr):
			return &core.ValidationError{Field: "body", Message: "is too large", Err: err}
		default:
			return &core.ValidationError{Field: "body", Message: "must be a valid JSON object", Err: err}
		}
	}
	if dec.More() {
		return &core.ValidationError{Field: "body", Message: "must contain a single JSON object"}
	}
	return nil
}

// queryInt returns the named integer parameter, or nil when absent.
func queryInt(q url.Values, name string) (*int, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, &core.ValidationError{Field: name, Message: "must be an integer", Err: err}
	}
	return &n, nil
}

// queryIntDefault is queryInt with a fallback for absent parameters.
func queryIntDefault(q url.Values, name string, def int) (int, error) {
	n, err := queryInt(q, name)
	if err != nil || n == nil {
		return def, err
	}
	return *n, nil
}

// parseTransactionFilter reads type, category, from and to.
func parseTransactionFilter(q url.Values) (core.TransactionFilter, error) {
	var f core.TransactionFilter
	if v := strings.TrimSpace(q.Get("type")); v != "" {
		f.Type = core.TransactionType(v)
		if !f.Type.IsValid() {
			return f, &core.ValidationError{Field: "type", Message: "must be one of: income expense", Err: core.ErrInvalidType}
		}
	}
	f.Category = strings.TrimSpace(q.Get("category"))

	for _, p := range []struct {
		name string
		dst  *core.Date
	}{{"from", &f.From}, {"to", &f.To}} {
		v := strings.TrimSpace(q.Get(p.name))
		if v == "" {
			continue
		}
		d, err := core.ParseDate(v)
		if err != nil {
			return f, &core.ValidationError{Field: p.name, Message: "must be a date in yyyy-MM-dd format", Err: err}
		}
		*p.dst = d
	}
	return f, nil
}

// requireID returns the path id, falling back to the id query parameter.
func requireID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		id = strings.TrimSpace(r.URL.Query().Get("id"))
	}
	if id == "" {
		return "", &core.ValidationError{Field: "id", Message: "is required"}
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Response encoding failed", "error", err)
	}
}
