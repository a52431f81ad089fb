package main

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"ratelimit-gateway/internal/observability"
)

type echoBody struct {
	Method    string `json:"method"`
	Path      string `json:"path"`
	RequestID string `json:"request_id,omitempty"`
	ClientIP  string `json:"client_ip,omitempty"`
}

// Upstream trivial para testar o gateway localmente: devolve o que recebeu.
func main() {
	logger, err := observability.NewLogger("debug", "console")
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.HandleFunc("/*", func(w http.ResponseWriter, r *http.Request) {
		body := echoBody{
			Method:    r.Method,
			Path:      r.URL.Path,
			RequestID: r.Header.Get("X-Request-ID"),
			ClientIP:  r.Header.Get("X-Forwarded-For"),
		}
		logger.Debug("upstream hit",
			zap.String("method", body.Method),
			zap.String("path", body.Path),
			zap.String("request_id", body.RequestID))

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(body)
	})

	addr := ":9000"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	logger.Info("upstream echo listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
