package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/NYTimes/gziphandler"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/NashedShahRoni22/nsr-tools/packages/config"
	"github.com/NashedShahRoni22/nsr-tools/packages/session"
	"github.com/NashedShahRoni22/nsr-tools/packages/spreadsheet"
	"github.com/NashedShahRoni22/nsr-tools/packages/store"
)

// Server serves one session over websocket and plain HTTP
type Server struct {
	cfg    config.ServerConfig
	hub    *Hub
	store  store.Store
	logger *zap.Logger

	shutdownTimeout time.Duration
}

// New creates a server for the session. st may be nil, it is only used to
// watch the document for external edits
func New(cfg *config.Config, sess *session.Session, st store.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:             cfg.Server,
		hub:             NewHub(sess, logger.Named("hub")),
		store:           st,
		logger:          logger,
		shutdownTimeout: cfg.GetShutdownTimeout(),
	}
}

// Hub returns the hub serializing access to the session
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler routes /ws, /document and /export.csv
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(s.hub, w, r)
	})
	mux.Handle("/document", gziphandler.GzipHandler(http.HandlerFunc(s.handleDocument)))
	mux.Handle("/export.csv", gziphandler.GzipHandler(http.HandlerFunc(s.handleCSV)))
	return mux
}

// Run listens on the configured address and serves until ctx is done
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the hub, the HTTP server and the optional file watch on ln.
// it returns when ctx is done or any of them fails
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.hub.Run(gctx)
	})

	g.Go(func() error {
		s.logger.Info("listening", zap.String("addr", ln.Addr().String()))
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if s.cfg.Watch {
		if err := s.startWatch(gctx, g); err != nil {
			s.logger.Warn("document watch disabled", zap.Error(err))
		}
	}

	err := g.Wait()
	s.logger.Info("server stopped")
	return err
}

// startWatch imports external edits of the session's document file
func (s *Server) startWatch(ctx context.Context, g *errgroup.Group) error {
	fileStore, ok := s.store.(*store.FileStore)
	if !ok {
		return errors.New("watching needs the file storage driver")
	}

	var name string
	if err := s.hub.View(ctx, func(sess *session.Session) error {
		name = sess.Name()
		return nil
	}); err != nil {
		return err
	}

	watcher, err := fileStore.NewWatcher(name, func(doc *spreadsheet.Document) {
		err := s.hub.Apply(ctx, func(sess *session.Session) error {
			return sess.Load(doc)
		})
		if err != nil {
			s.logger.Warn("failed to apply external edit", zap.String("document", name), zap.Error(err))
			return
		}
		s.logger.Info("reloaded external edit", zap.String("document", name))
	})
	if err != nil {
		return err
	}

	g.Go(func() error {
		return watcher.Run(ctx)
	})
	return nil
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		var doc *spreadsheet.Document
		if err := s.hub.View(r.Context(), func(sess *session.Session) error {
			doc = sess.Snapshot()
			return nil
		}); err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := doc.Encode(w); err != nil {
			s.logger.Debug("failed to write document", zap.Error(err))
		}

	case http.MethodPut, http.MethodPost:
		doc, err := spreadsheet.DecodeDocument(http.MaxBytesReader(w, r.Body, maxMessageSize*16))
		if err != nil {
			writeError(w, err)
			return
		}
		if err := s.hub.Apply(r.Context(), func(sess *session.Session) error {
			return sess.Load(doc)
		}); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.Header().Set("Allow", "GET, PUT, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	encoding := r.URL.Query().Get("encoding")

	var (
		name string
		buf  bytes.Buffer
	)
	if err := s.hub.View(r.Context(), func(sess *session.Session) error {
		name = sess.Name()
		return sess.ExportCSV(&buf, encoding)
	}); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset="+csvCharset(encoding))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".csv"))
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Debug("failed to write csv", zap.Error(err))
	}
}

func csvCharset(encoding string) string {
	if encoding == "" {
		return "utf-8"
	}
	return encoding
}

// writeError maps application errors onto HTTP status codes
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case spreadsheet.IsAppErrorCode(err, spreadsheet.InvalidArgument):
		status = http.StatusBadRequest
	case spreadsheet.IsAppErrorCode(err, spreadsheet.OutOfRange):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrHubStopped):
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}
