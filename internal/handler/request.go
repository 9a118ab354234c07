package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

// MaxValueBytes bounds the JSON document accepted by PutValue.
const MaxValueBytes = 1 << 20

// kvPath holds the path variables of the key routes.
type kvPath struct {
	TenantID string
	Key      string
}

// listKeysRequest holds the query parameters of ListKeys.
type listKeysRequest struct {
	TenantID string
	Pattern  string
	Page     int
	PerPage  int
}

func parseKVPath(r *http.Request) (kvPath, error) {
	vars := mux.Vars(r)

	p := kvPath{TenantID: vars["tenant_id"], Key: vars["key"]}
	if p.TenantID == "" {
		return kvPath{}, fmt.Errorf("tenant_id is required")
	}
	if p.Key == "" {
		return kvPath{}, fmt.Errorf("key is required")
	}
	return p, nil
}

// parseTTL reads the optional ttl query parameter in whole seconds. Absent or
// zero means the value never expires.
func parseTTL(r *http.Request) (time.Duration, error) {
	raw := r.URL.Query().Get("ttl")
	if raw == "" {
		return 0, nil
	}
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("ttl must be an integer number of seconds")
	}
	if seconds < 0 {
		return 0, fmt.Errorf("ttl must not be negative")
	}
	return time.Duration(seconds) * time.Second, nil
}

func readValue(r *http.Request) (json.RawMessage, error) {
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxValueBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if len(body) > MaxValueBytes {
		return nil, fmt.Errorf("request body exceeds %d bytes", MaxValueBytes)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("request body must be a JSON value")
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("failed to parse request body: invalid JSON")
	}
	return json.RawMessage(body), nil
}

func parseListKeysRequest(r *http.Request) (listKeysRequest, error) {
	req := listKeysRequest{
		TenantID: mux.Vars(r)["tenant_id"],
		Pattern:  r.URL.Query().Get("pattern"),
	}
	if req.TenantID == "" {
		return listKeysRequest{}, fmt.Errorf("tenant_id is required")
	}

	var err error
	if req.Page, err = intParam(r, "page", 1); err != nil {
		return listKeysRequest{}, err
	}
	if req.PerPage, err = intParam(r, "per_page", 0); err != nil {
		return listKeysRequest{}, err
	}
	return req, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return v, nil
}
