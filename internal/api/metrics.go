package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricsHandler serves the Prometheus registry the daemon's collectors
// were registered with.
func (s *Server) metricsHandler() http.Handler {
	return promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{
		ErrorLog: promhttpLogger{s},
	})
}

// promhttpLogger adapts the server logger to promhttp.Logger.
type promhttpLogger struct{ s *Server }

func (l promhttpLogger) Println(v ...any) {
	l.s.logger.Error("metrics handler error", "detail", v)
}
