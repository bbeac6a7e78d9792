package handlerutils

import (
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"
)

// ErrNoClientAddr is returned when the caller's network address cannot be
// determined from the request.
var ErrNoClientAddr = errors.New("client address unavailable")

func JSON(w http.ResponseWriter, statusCode int, obj interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if obj != nil {
		if err := json.NewEncoder(w).Encode(obj); err != nil {
			log.Printf("Error encoding JSON response: %v", err)
		}
	}
}

// Text writes a plain text response.
func Text(w http.ResponseWriter, statusCode int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(statusCode)
	if _, err := w.Write([]byte(msg)); err != nil {
		log.Printf("Error writing response: %v", err)
	}
}

// SetRetryAfter sets the Retry-After header in whole seconds, rounded up.
func SetRetryAfter(w http.ResponseWriter, d time.Duration) {
	if d <= 0 {
		return
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.Seconds()))))
}

// GetClientAddr extracts the client address from the request. RemoteAddr is
// used unless trustProxyHeaders is set, in which case X-Forwarded-For and
// X-Real-IP take precedence in that order.
func GetClientAddr(r *http.Request, trustProxyHeaders bool) (netip.Addr, error) {
	if trustProxyHeaders {
		// First entry is the original client
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if addr, err := parseAddr(first); err == nil {
				return addr, nil
			}
		}

		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			if addr, err := parseAddr(xri); err == nil {
				return addr, nil
			}
		}
	}

	return parseAddr(r.RemoteAddr)
}

// parseAddr accepts either a bare address or host:port.
func parseAddr(s string) (netip.Addr, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.Addr{}, ErrNoClientAddr
	}
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap(), nil
	}
	addr, err := netip.ParseAddr(strings.Trim(s, "[]"))
	if err != nil {
		return netip.Addr{}, ErrNoClientAddr
	}
	return addr.Unmap(), nil
}
