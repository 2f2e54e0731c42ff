package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"

	"github.com/ephemeral-labs/vrf-oracle/accounts"
	"github.com/ephemeral-labs/vrf-oracle/node"
	"github.com/ephemeral-labs/vrf-oracle/oracle/pull"
	"github.com/ephemeral-labs/vrf-oracle/security"
)

// Server exposes the worker's operational state over HTTP: liveness,
// fulfillment counters, latency percentiles and the current item count
// of every configured queue.
type Server struct {
	collector *Collector
	latency   *pull.LatencyTracker
	rpc       node.RPCClient
	queues    []node.QueueConfig
	router    *mux.Router
	limiter   *security.KeyedLimiter
	port      string
}

// NewServer wires a Server over an already-running worker's shared
// state. port is the bind port, e.g. "8090".
func NewServer(collector *Collector, latency *pull.LatencyTracker, rpc node.RPCClient, queues []node.QueueConfig, port string) *Server {
	s := &Server{
		collector: collector,
		latency:   latency,
		rpc:       rpc,
		queues:    queues,
		router:    mux.NewRouter(),
		limiter:   security.NewKeyedLimiter(120, time.Minute),
		port:      port,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/healthz", s.healthHandler).Methods("GET")
	s.router.HandleFunc("/stats", s.statsHandler).Methods("GET")
	s.router.HandleFunc("/queues", s.queuesHandler).Methods("GET")
	s.router.Use(s.corsMiddleware)
	s.router.Use(s.limiter.Middleware)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start runs the HTTP server until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: ":" + s.port, Handler: s.router}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("port", s.port).Msg("starting oracle api server")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	latencies := make(map[string]pull.Stats, len(s.queues))
	for _, q := range s.queues {
		key := base58.Encode(q.Addr[:])
		latencies[key] = s.latency.Stats(key)
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"counters":           s.collector.Snapshot(),
		"latency":            latencies,
		"avg_response_slots": s.latency.AllAverages(),
	})
}

func (s *Server) queuesHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	ctx := r.Context()

	type queueStatus struct {
		Address   string `json:"address"`
		Index     uint8  `json:"index"`
		ItemCount uint32 `json:"item_count"`
		Error     string `json:"error,omitempty"`
	}

	out := make([]queueStatus, 0, len(s.queues))
	for _, q := range s.queues {
		status := queueStatus{Address: base58.Encode(q.Addr[:]), Index: q.Index}

		data, err := s.rpc.GetAccountInfo(ctx, [32]byte(q.Addr))
		if err != nil {
			status.Error = err.Error()
			out = append(out, status)
			continue
		}
		view, err := accounts.QueueView(data)
		if err != nil {
			status.Error = err.Error()
			out = append(out, status)
			continue
		}
		status.ItemCount = view.ItemCount()
		out = append(out, status)
	}

	json.NewEncoder(w).Encode(out)
}
