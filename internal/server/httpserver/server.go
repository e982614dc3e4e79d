package httpserver

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"
)

// Server wraps the HTTP server with sane timeouts. The SSE event stream
// needs an unbounded write window, so WriteTimeout stays zero and the
// stream enforces its own heartbeat.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
}

// New creates a new HTTP server.
func New(addr string, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		handler: handler,
	}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// ListenAndServeTLS starts the HTTPS server.
func (s *Server) ListenAndServeTLS(certFile, keyFile string) error {
	return s.httpServer.ListenAndServeTLS(certFile, keyFile)
}

// ListenAndServeTLSDynamic starts the HTTPS server with a certificate
// getter, so certs can be rotated without a restart.
func (s *Server) ListenAndServeTLSDynamic(getCert func(*tls.ClientHelloInfo) (*tls.Certificate, error)) error {
	s.httpServer.TLSConfig = &tls.Config{
		GetCertificate: getCert,
		MinVersion:     tls.VersionTLS12,
	}
	return s.httpServer.ListenAndServeTLS("", "")
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
