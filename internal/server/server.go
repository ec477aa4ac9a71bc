package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mverdi/goILRouter/internal/config"
	"github.com/mverdi/goILRouter/internal/core/routing"
)

// Server exposes the routing table composer over JSON-RPC (POST /) and
// pushes snapshots to WebSocket subscribers (/ws). A background sweeper
// removes expired routes on the configured interval.
type Server struct {
	cfg         *config.Config
	handler     *Handler
	broadcaster *broadcaster
	log         *logrus.Entry

	httpServer *http.Server
}

// New builds a server around tables using cfg.
func New(cfg *config.Config, tables *routing.RoutingTables, log *logrus.Entry) (*Server, error) {
	handler, err := NewHandler(tables, cfg.Routing.BroadcastCurveMaxPoints, cfg.Server.QuoteCacheSize, log)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:         cfg,
		handler:     handler,
		broadcaster: newBroadcaster(handler, log),
		log:         log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.serveRPC)
	mux.Handle("/ws", s.broadcaster)

	s.httpServer = &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s, nil
}

// Handler returns the RPC handler, mainly for tests.
func (s *Server) Handler() *Handler {
	return s.handler
}

// Run serves until ctx is cancelled. It runs the HTTP listener, the
// snapshot broadcaster and the expiry sweeper, and shuts the listener down
// cleanly on cancellation.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Server.ListenAddr)
	if err != nil {
		return err
	}
	s.log.WithField("addr", listener.Addr().String()).Info("rpc listener started")

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		return s.broadcaster.run(groupCtx)
	})

	group.Go(func() error {
		return s.sweepLoop(groupCtx)
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	})

	err = group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// sweepLoop removes expired routes on the configured interval. Sweeping is
// disabled when no hold-down is configured since nothing can expire.
func (s *Server) sweepLoop(ctx context.Context) error {
	interval := s.cfg.Routing.ExpirySweepDuration()
	if s.cfg.Routing.RouteExpiryDuration() == 0 || interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if lost := s.handler.RemoveExpiredRoutes(); len(lost) > 0 {
				s.log.WithFields(logrus.Fields{
					"lost":  strings.Join(lost, ","),
					"epoch": s.handler.Epoch(),
				}).Info("expired routes removed")
				s.broadcaster.notify()
			}
		}
	}
}

// serveRPC answers a single JSON-RPC 2.0 request.
func (s *Server) serveRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResponse(w, rpcResponse{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: codeParseError, Message: err.Error()},
		})
		return
	}

	result, rpcErr := s.handler.Handle(req.Method, req.Params)

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		resp.Result = result
	}
	writeResponse(w, resp)
}

func writeResponse(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "encoding failed", http.StatusInternalServerError)
	}
}

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
