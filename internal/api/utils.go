package api

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"
	"github.com/go-chi/chi/v5"
)

// ErrorResponse is the body of every JSON error
type ErrorResponse struct {
	Error string `json:"error"`
}

// extractClientIP extracts the client IP from the request, preferring the
// first X-Forwarded-For entry over RemoteAddr.
func extractClientIP(r *http.Request) (string, error) {
	ip := r.Header.Get("X-Forwarded-For")
	if ip != "" {
		ip = strings.TrimSpace(strings.Split(ip, ",")[0])
	} else {
		var err error
		ip, _, err = net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return "", fmt.Errorf("unable to parse remote address: %w", err)
		}
	}
	if net.ParseIP(ip) == nil {
		return "", fmt.Errorf("invalid client address %q", ip)
	}
	return ip, nil
}

// machineID parses the {id} route parameter.
func machineID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid machine ID: %w", errdefs.ErrInvalidArgument)
	}
	return id, nil
}

// statusFor maps an error class to an HTTP status.
func statusFor(err error) int {
	switch {
	case errdefs.IsInvalidArgument(err):
		return http.StatusBadRequest
	case errdefs.IsNotFound(err):
		return http.StatusNotFound
	case errdefs.IsAlreadyExists(err):
		return http.StatusConflict
	case errdefs.IsUnavailable(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.G(r.Context()).WithError(err).Warn("failed to encode response")
	}
}

// writeError logs err and writes it with the status its class maps to.
// Server side failures are reported with msg only.
func writeError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := statusFor(err)
	entry := log.G(r.Context()).WithError(err).WithField("status", status)
	if status >= http.StatusInternalServerError {
		entry.Error(msg)
	} else {
		entry.Debug(msg)
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	writeJSON(w, r, status, ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w: %w", errdefs.ErrInvalidArgument, err)
	}
	return nil
}

func writeText(w http.ResponseWriter, r *http.Request, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.G(r.Context()).WithError(err).Warn("failed to write response")
	}
}
