// Package monitor reports on a running receiver: packet statistics,
// Prometheus metrics and an HTTP surface for the read API.
package monitor

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"tailscale.com/tsweb"

	"github.com/banshee-data/facecap/internal/mocap"
	"github.com/banshee-data/facecap/internal/monitoring"
	"github.com/banshee-data/facecap/internal/version"
)

//go:embed status.html
var statusHTML embed.FS

var statusTemplate = template.Must(template.New("status.html").
	Funcs(template.FuncMap{"commas": FormatWithCommas}).
	ParseFS(statusHTML, "status.html"))

// Source is the read API the web server reports on. receiver.Receiver
// implements it.
type Source interface {
	IsReceiving() bool
	LocalAddress() string
	Port() int
	Session() string
	HeadPose() mocap.HeadPose
	Weight(name string) float64
	AllWeights() map[string]float64
	WeightCount() int
	Snapshot() mocap.Snapshot
	Version() uint64
}

// WebServer serves the status page, the JSON read API, the live stream,
// Prometheus metrics and debug pages.
type WebServer struct {
	address        string
	source         Source
	stats          *PacketStats
	registry       *prometheus.Registry
	streamInterval time.Duration
	forwardAddress string
	log            *zap.Logger

	server *http.Server
	done   chan struct{}
	once   sync.Once
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address        string
	Source         Source
	Stats          *PacketStats
	Registry       *prometheus.Registry // nil creates a private registry
	StreamInterval time.Duration
	ForwardAddress string // shown on the status page when forwarding
	Logger         *zap.Logger
}

const defaultStreamInterval = 33 * time.Millisecond

// NewWebServer creates a web server. Call Start to serve.
func NewWebServer(config WebServerConfig) *WebServer {
	if config.Stats == nil {
		config.Stats = NewPacketStats(nil)
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}
	if config.StreamInterval <= 0 {
		config.StreamInterval = defaultStreamInterval
	}
	if config.Logger == nil {
		config.Logger = monitoring.Named("http")
	}

	ws := &WebServer{
		address:        config.Address,
		source:         config.Source,
		stats:          config.Stats,
		registry:       config.Registry,
		streamInterval: config.StreamInterval,
		forwardAddress: config.ForwardAddress,
		log:            config.Logger,
		done:           make(chan struct{}),
	}
	ws.registerGauges()

	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           ws.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ws
}

func (ws *WebServer) registerGauges() {
	receiving := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "facecap_receiving",
		Help: "1 while the UDP receive loop is running",
	}, func() float64 {
		if ws.source.IsReceiving() {
			return 1
		}
		return 0
	})
	weights := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "facecap_expression_weights",
		Help: "Number of distinct expression weights received",
	}, func() float64 {
		return float64(len(ws.source.AllWeights()))
	})
	for _, c := range []prometheus.Collector{receiving, weights} {
		if err := ws.registry.Register(c); err != nil {
			ws.log.Warn("metric registration failed", zap.Error(err))
		}
	}
}

// Handler returns the HTTP routes.
func (ws *WebServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", ws.handleHealth)
	r.Get("/", ws.handleStatus)
	r.Route("/api/mocap", func(r chi.Router) {
		r.Get("/status", ws.handleMocapStatus)
		r.Get("/head", ws.handleHead)
		r.Get("/weights", ws.handleWeights)
		r.Get("/stream", ws.handleStream)
	})
	r.Handle("/metrics", promhttp.HandlerFor(ws.registry, promhttp.HandlerOpts{Registry: ws.registry}))

	debugMux := http.NewServeMux()
	ws.attachDebugRoutes(debugMux)
	r.Handle("/debug/*", debugMux)
	return r
}

// attachDebugRoutes mounts the tsweb debug index plus the weight chart.
// tsweb only serves loopback and tailnet clients.
func (ws *WebServer) attachDebugRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.KVFunc("Receiving", func() any { return ws.source.IsReceiving() })
	debug.KVFunc("Local address", func() any { return ws.source.LocalAddress() })
	debug.KVFunc("UDP port", func() any { return ws.source.Port() })
	debug.KVFunc("Session", func() any { return ws.source.Session() })
	debug.HandleFunc("weights", "Expression weight chart", ws.handleWeightsChart)
}

// Start serves until ctx is done, then shuts the server down. It returns a
// listen error, or nil after a clean shutdown.
func (ws *WebServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", ws.address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", ws.address, err)
	}
	return ws.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (ws *WebServer) Serve(ctx context.Context, ln net.Listener) error {
	errc := make(chan error, 1)
	go func() {
		ws.log.Info("starting HTTP server", zap.Stringer("addr", ln.Addr()))
		errc <- ws.server.Serve(ln)
	}()

	select {
	case err := <-errc:
		ws.closeStreams()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	ws.log.Info("shutting down HTTP server")
	ws.closeStreams()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		ws.log.Warn("HTTP server shutdown error", zap.Error(err))
		if err := ws.server.Close(); err != nil {
			ws.log.Warn("HTTP server force close error", zap.Error(err))
		}
	}
	<-errc
	ws.log.Info("HTTP server stopped")
	return nil
}

// closeStreams ends every websocket stream; hijacked connections are not
// closed by Shutdown.
func (ws *WebServer) closeStreams() {
	ws.once.Do(func() { close(ws.done) })
}

// Close shuts down the web server immediately.
func (ws *WebServer) Close() error {
	ws.closeStreams()
	return ws.server.Close()
}

func (ws *WebServer) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		ws.log.Debug("write response", zap.Error(err))
	}
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ws.writeJSON(w, map[string]string{
		"status":    "ok",
		"service":   "facecap",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	forwardingStatus := "disabled"
	if ws.forwardAddress != "" {
		forwardingStatus = "enabled (" + ws.forwardAddress + ")"
	}

	data := struct {
		UDPPort          int
		LocalAddress     string
		Receiving        bool
		Session          string
		HTTPAddress      string
		ForwardingStatus string
		Uptime           string
		Version          string
		Stats            *StatsSnapshot
		Totals           Totals
		WeightCount      int
	}{
		UDPPort:          ws.source.Port(),
		LocalAddress:     ws.source.LocalAddress(),
		Receiving:        ws.source.IsReceiving(),
		Session:          ws.source.Session(),
		HTTPAddress:      ws.address,
		ForwardingStatus: forwardingStatus,
		Uptime:           ws.stats.GetUptime().Round(time.Second).String(),
		Version:          version.Version,
		Stats:            ws.stats.GetLatestSnapshot(),
		Totals:           ws.stats.Totals(),
		WeightCount:      ws.source.WeightCount(),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := statusTemplate.Execute(w, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
	}
}

type statusResponse struct {
	Receiving      bool           `json:"receiving"`
	LocalAddress   string         `json:"local_address"`
	Port           int            `json:"port"`
	SessionID      string         `json:"session_id"`
	ForwardAddress string         `json:"forward_address,omitempty"`
	WeightCount    int            `json:"weight_count"`
	Uptime         string         `json:"uptime"`
	Totals         Totals         `json:"totals"`
	Stats          *StatsSnapshot `json:"stats"`
}

func (ws *WebServer) handleMocapStatus(w http.ResponseWriter, r *http.Request) {
	ws.writeJSON(w, statusResponse{
		Receiving:      ws.source.IsReceiving(),
		LocalAddress:   ws.source.LocalAddress(),
		Port:           ws.source.Port(),
		SessionID:      ws.source.Session(),
		ForwardAddress: ws.forwardAddress,
		WeightCount:    ws.source.WeightCount(),
		Uptime:         ws.stats.GetUptime().Round(time.Second).String(),
		Totals:         ws.stats.Totals(),
		Stats:          ws.stats.GetLatestSnapshot(),
	})
}

// Quaternion is the JSON form of a unit quaternion.
type Quaternion struct {
	W float64 `json:"w"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type headResponse struct {
	Position    mocap.Vec3 `json:"position"`
	Rotation    mocap.Vec3 `json:"rotation"`
	Orientation Quaternion `json:"orientation"`
	Forward     mocap.Vec3 `json:"forward"` // unit +Z rotated by the head
	Updates     uint64     `json:"updates"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

func newHeadResponse(snap mocap.Snapshot) headResponse {
	q := snap.Head.Orientation()
	resp := headResponse{
		Position:    snap.Head.Position,
		Rotation:    snap.Head.Rotation,
		Orientation: Quaternion{W: q.Real, X: q.Imag, Y: q.Jmag, Z: q.Kmag},
		Forward:     mocap.Rotate(q, mocap.Vec3{Z: 1}),
		Updates:     snap.HeadUpdates,
	}
	if !snap.HeadUpdatedAt.IsZero() {
		t := snap.HeadUpdatedAt
		resp.UpdatedAt = &t
	}
	return resp
}

func (ws *WebServer) handleHead(w http.ResponseWriter, r *http.Request) {
	ws.writeJSON(w, newHeadResponse(ws.source.Snapshot()))
}

func (ws *WebServer) handleWeights(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("name"); name != "" {
		ws.writeJSON(w, mocap.Weight{Name: name, Value: ws.source.Weight(name)})
		return
	}
	if _, ok := r.URL.Query()["name"]; ok {
		ws.writeJSONError(w, http.StatusBadRequest, "empty 'name' parameter")
		return
	}
	ws.writeJSON(w, ws.source.AllWeights())
}
