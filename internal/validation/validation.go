package validation

import (
	"net/http"
	"strconv"

	"dis/internal/errors"
)

// MaxHistoryLimit caps how many commits one history request returns.
const MaxHistoryLimit = 1000

// HistoryLimit reads the limit query parameter. Missing means
// MaxHistoryLimit.
func HistoryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return MaxHistoryLimit, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.ValidationError("limit must be a positive integer", map[string]string{"limit": raw})
	}
	return min(n, MaxHistoryLimit), nil
}

// PathDigest returns the {digest} path value.
func PathDigest(r *http.Request) (string, error) {
	d := r.PathValue("digest")
	if d == "" {
		return "", errors.ValidationError("missing digest", nil)
	}
	return d, nil
}
