// Package web provides an HTTP status server for the display-powerd daemon.
package web

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/display-powerd/internal/status"
)

// StandbyDumper renders the standby diagnostic dump.
type StandbyDumper interface {
	DumpStandby(ctx context.Context, w io.Writer) error
}

const dumpTimeout = 2 * time.Second

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	dumper     StandbyDumper
	log        logrus.FieldLogger
}

// New creates a Server that reads state from the given tracker. dumper may be
// nil, in which case /standby is not served.
func New(addr string, tracker *status.Tracker, dumper StandbyDumper, log logrus.FieldLogger) *Server {
	s := &Server{
		tracker: tracker,
		dumper:  dumper,
		log:     log.WithField("component", "web"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/standby", s.handleStandby)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.log.WithError(err).Warn("render status page")
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleStandby(w http.ResponseWriter, r *http.Request) {
	if s.dumper == nil {
		http.NotFound(w, r)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), dumpTimeout)
	defer cancel()

	var buf bytes.Buffer
	if err := s.dumper.DumpStandby(ctx, &buf); err != nil {
		s.log.WithError(err).Warn("standby dump")
		http.Error(w, "standby dump unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(buf.Bytes())
}
