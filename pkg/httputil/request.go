package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// MaxBodyBytes bounds JSON request bodies
const MaxBodyBytes = 1 << 20

// ParseJSON decodes a JSON request body into dest. Unknown fields are rejected.
func ParseJSON(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// ParseJSONOrError decodes JSON and writes a 400 response on failure
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := ParseJSON(w, r, dest); err != nil {
		WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// ParseQueryInt extracts and parses an integer query parameter
func ParseQueryInt(r *http.Request, key string, defaultVal int) (int, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return defaultVal, nil
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for query param %s: %s", key, str)
	}
	return val, nil
}

// ParseQueryIntOrError extracts an integer query parameter and writes a 400 response on failure
func ParseQueryIntOrError(w http.ResponseWriter, r *http.Request, key string, defaultVal int) (int, bool) {
	val, err := ParseQueryInt(r, key, defaultVal)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return 0, false
	}
	return val, true
}
