package security

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"trackhub/internal/config"
	"trackhub/internal/logger"
)

var (
	csrfTokens   = make(map[string]time.Time)
	csrfTokensMu sync.Mutex
	csrfTokenTTL = time.Hour * 1
)

// GenerateSessionToken returns a random bearer token. Only its hash is stored.
func GenerateSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// GenerateCSRFToken issues a single-use token valid for an hour.
func GenerateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate CSRF token: %w", err)
	}
	token := base64.StdEncoding.EncodeToString(b)

	csrfTokensMu.Lock()
	csrfTokens[token] = time.Now().Add(csrfTokenTTL)
	csrfTokensMu.Unlock()

	return token, nil
}

// ValidateCSRFToken consumes token and reports whether it was valid.
func ValidateCSRFToken(token string) bool {
	csrfTokensMu.Lock()
	defer csrfTokensMu.Unlock()

	expiry, ok := csrfTokens[token]
	if !ok {
		return false
	}
	delete(csrfTokens, token)
	return time.Now().Before(expiry)
}

// PurgeExpiredCSRFTokens drops expired tokens and returns how many went.
func PurgeExpiredCSRFTokens(now time.Time) int {
	csrfTokensMu.Lock()
	defer csrfTokensMu.Unlock()

	n := 0
	for token, expiry := range csrfTokens {
		if now.After(expiry) {
			delete(csrfTokens, token)
			n++
		}
	}
	return n
}

// CleanExpiredTokens purges CSRF tokens every five minutes until ctx ends.
func CleanExpiredTokens(ctx context.Context) {
	ticker := time.NewTicker(time.Minute * 5)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := PurgeExpiredCSRFTokens(now); n > 0 {
				logger.LogInfo("CSRF token cleanup removed %d tokens", n)
			}
		}
	}
}

// AddCORSHeaders adds CORS headers and answers preflight requests.
func AddCORSHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", config.AllowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
