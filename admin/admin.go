// Package admin serves the operator HTTP endpoints next to a game server:
//
//	GET /healthz   liveness and open session count
//	GET /metrics   Prometheus exposition
//	GET /codecs    compiled wire codecs and the opcode catalog
package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gamewire/message"
	"gamewire/wire"
)

// Source is what the admin endpoints report on. *server.Server satisfies
// it.
type Source interface {
	Catalog() *message.Catalog
	WireRegistry() *wire.Registry
	Sessions() int
}

type Options struct {
	Source   Source
	Gatherer prometheus.Gatherer // defaults to prometheus.DefaultGatherer
	Logger   *zap.Logger
}

// CodecInfo is one row of GET /codecs.
type CodecInfo struct {
	Type     string `json:"type"`
	Shape    string `json:"shape"`
	Strategy string `json:"strategy"`
}

// OpcodeInfo is one catalog entry of GET /codecs.
type OpcodeInfo struct {
	Opcode string `json:"opcode"`
	Name   string `json:"name"`
}

type codecsResponse struct {
	Sealed  bool         `json:"sealed"`
	Codecs  []CodecInfo  `json:"codecs"`
	Opcodes []OpcodeInfo `json:"opcodes"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// NewRouter returns the admin routes.
func NewRouter(opts Options) http.Handler {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, opts.Logger, healthResponse{Status: "ok", Sessions: opts.Source.Sessions()})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/codecs", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, opts.Logger, describe(opts.Source))
	})
	return r
}

func describe(src Source) codecsResponse {
	reg := src.WireRegistry()
	resp := codecsResponse{Sealed: reg.Sealed(), Codecs: []CodecInfo{}, Opcodes: []OpcodeInfo{}}
	for _, e := range reg.Entries() {
		resp.Codecs = append(resp.Codecs, CodecInfo{
			Type:     e.Descriptor.String(),
			Shape:    e.Shape.String(),
			Strategy: e.Strategy,
		})
	}
	catalog := src.Catalog()
	for _, op := range catalog.Opcodes() {
		resp.Opcodes = append(resp.Opcodes, OpcodeInfo{Opcode: op.String(), Name: catalog.Name(op)})
	}
	return resp
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("admin response failed", zap.Error(err))
	}
}

// Serve runs the admin router on addr until the server fails or is shut
// down. It returns the *http.Server so the caller can Shutdown it.
func Serve(addr string, opts Options) (*http.Server, <-chan error) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(opts),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()
	return srv, errc
}
