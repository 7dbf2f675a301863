package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/shiftsec/pinauth"
)

// FingerprintHeader is the request header clients send their device
// fingerprint in.
const FingerprintHeader = "X-Device-Fingerprint"

// LocationHeader carries the verified location identifier, when present.
const LocationHeader = "X-Location-ID"

type validationContextKey struct{}

// ValidationFromContext returns the session validation Guard injected
// into the request context.
func ValidationFromContext(ctx context.Context) (*pinauth.SessionValidation, bool) {
	res, ok := ctx.Value(validationContextKey{}).(*pinauth.SessionValidation)
	return res, ok
}

// Guard validates the bearer access token and device fingerprint on
// every request and injects the result into the request context.
// Read-only sessions (training, audit, or restricted) are limited to
// safe HTTP methods.
func Guard(engine *pinauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			res, err := engine.ValidateSession(r.Context(), pinauth.ValidateSessionRequest{
				AccessToken: token,
				Fingerprint: r.Header.Get(FingerprintHeader),
				LocationID:  r.Header.Get(LocationHeader),
			})
			if err != nil {
				ue := pinauth.UserFacing(err)
				http.Error(w, ue.Message, http.StatusUnauthorized)
				return
			}

			if res.ReadOnly && !safeMethod(r.Method) {
				http.Error(w, "session is read-only", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), validationContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
