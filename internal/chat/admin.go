package chat

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AdminHandler serves /metrics, /healthz and the WebSocket entry point.
func (s *Server) AdminHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.healthHandler)
	mux.HandleFunc(s.cfg.Admin.WebSocketPath, s.WebSocketHandler)
	return mux
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	n, err := s.reg.Len()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "ok peers=%d\n", n)
}
