package ratelimit

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// KeyFunc devolve a identidade do chamador (IP, API key, usuário).
type KeyFunc func(r *http.Request) string

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				parts := strings.Split(xff, ",")
				if len(parts) > 0 {
					ip := strings.TrimSpace(parts[0])
					if ip != "" {
						return ip
					}
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// JWTKeyFunc identifica usuários autenticados pelo claim "sub" de um bearer
// token HS256 válido ("user:<sub>"). Sem token válido, usa o fallback.
func JWTKeyFunc(secret []byte, fallback KeyFunc) KeyFunc {
	if fallback == nil {
		fallback = DefaultKeyFunc("", false)
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(r *http.Request) string {
		if sub, err := bearerSubject(r, parser, secret); err == nil {
			return "user:" + sub
		}
		return fallback(r)
	}
}

func bearerSubject(r *http.Request, parser *jwt.Parser, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("jwt secret not configured")
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	raw, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return "", errors.New("missing bearer token")
	}

	token, err := parser.Parse(strings.TrimSpace(raw), func(*jwt.Token) (any, error) { return secret, nil })
	if err != nil {
		return "", err
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}
