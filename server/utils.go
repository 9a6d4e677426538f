package server

import (
	"net/http"
	"os"
	"strconv"
)

// parseIntQuery extracts an int parameter from query string with a default value.
func parseIntQuery(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// pageParams returns sanitized limit/offset pagination values.
func pageParams(r *http.Request, defLimit, maxLimit int) (limit, offset int) {
	limit = parseIntQuery(r, "limit", defLimit)
	if limit <= 0 || limit > maxLimit {
		limit = defLimit
	}
	offset = parseIntQuery(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// getEnvInt returns an integer environment variable value or default if not set or invalid.
func getEnvInt(key string, defaultVal int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return defaultVal
}
