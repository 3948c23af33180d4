package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	id "acclaim/pkg/domain"
	"acclaim/pkg/requestcontext"
)

// Actor resolves the caller's identity and installs it into the request
// context. Identity is supplied out-of-band by the platform in front of this
// service: either a trusted header carrying the expert's UUID, or a signed
// bearer token whose subject is that UUID when a signing key is configured.
// Requests without a resolvable actor are rejected before reaching handlers;
// authorization proper (is this actor the assigned evaluator?) stays in the
// services.
func Actor(headerName, signingKey string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(headerName)
			if raw == "" && signingKey != "" {
				if sub, err := bearerSubject(r, signingKey); err == nil {
					raw = sub
				} else if err != errNoBearer {
					logger.WarnContext(r.Context(), "rejected bearer token",
						"error", err.Error(),
						"request_id", requestcontext.RequestID(r.Context()),
					)
				}
			}
			actorID, err := id.ParseExpertID(raw)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			ctx := requestcontext.WithActorID(r.Context(), actorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

var errNoBearer = fmt.Errorf("no bearer token")

func bearerSubject(r *http.Request, signingKey string) (string, error) {
	authHeader := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok {
		return "", errNoBearer
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(signingKey), nil
	})
	if err != nil {
		return "", err
	}
	return parsed.Claims.GetSubject()
}
