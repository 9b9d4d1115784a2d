// Package receiver attaches a UDP listener to a fresh pose/weight store and
// exposes the read API consumers poll.
package receiver

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/num/quat"

	"github.com/banshee-data/facecap/internal/mocap"
	"github.com/banshee-data/facecap/internal/mocap/network"
	"github.com/banshee-data/facecap/internal/mocap/parse"
	"github.com/banshee-data/facecap/internal/mocap/store"
	"github.com/banshee-data/facecap/internal/monitoring"
)

// DefaultPort is the port iFacialMocap sends to.
const DefaultPort = 49983

// Config holds the receiver settings. Zero values select defaults.
type Config struct {
	Port        int
	BindAddress string // empty listens on all interfaces
	RcvBuf      int
	LogInterval time.Duration

	Forwarder     *network.PacketForwarder
	Stats         network.PacketStatsInterface
	SocketFactory network.UDPSocketFactory
	Logger        *zap.Logger

	// AddrResolver returns the address shown to the user. Defaults to
	// LocalIPv4.
	AddrResolver func() string
}

// Receiver owns the listener lifecycle and the store it writes to.
type Receiver struct {
	config Config
	log    *zap.Logger

	mu       sync.Mutex // serialises Attach and Detach
	listener *network.UDPListener

	store     atomic.Pointer[store.Store]
	active    atomic.Pointer[network.UDPListener]
	localAddr atomic.Pointer[string]
}

// New returns a detached receiver. Reads return defaults until Attach.
func New(config Config) *Receiver {
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.AddrResolver == nil {
		config.AddrResolver = LocalIPv4
	}
	if config.Logger == nil {
		config.Logger = monitoring.Named("receiver")
	}

	r := &Receiver{config: config, log: config.Logger}
	r.store.Store(store.New())
	unresolved := AddressUnavailable
	r.localAddr.Store(&unresolved)
	return r
}

// Attach resolves the display address, creates an empty store and starts
// the listener. A bind failure is logged and returned as *network.BindError;
// the receiver then stays detached. Attach on a receiving receiver is a
// no-op. A listener whose loop already ended, for example because the
// Attach context was cancelled, is released and replaced.
func (r *Receiver) Attach(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.listener != nil {
		if r.listener.Running() {
			return nil
		}
		r.listener.Stop()
		r.listener = nil
		r.active.Store(nil)
		r.log.Info("previous listener had stopped, restarting")
	}

	addr := r.config.AddrResolver()
	r.localAddr.Store(&addr)

	s := store.New()
	l := network.NewUDPListener(network.UDPListenerConfig{
		Address:       net.JoinHostPort(r.config.BindAddress, strconv.Itoa(r.config.Port)),
		RcvBuf:        r.config.RcvBuf,
		LogInterval:   r.config.LogInterval,
		Stats:         r.config.Stats,
		Forwarder:     r.config.Forwarder,
		Parser:        parse.NewDecoder(),
		Sink:          s,
		SocketFactory: r.config.SocketFactory,
		Logger:        r.log.Named("listener"),
	})
	r.store.Store(s)

	if err := l.Start(ctx); err != nil {
		var bindErr *network.BindError
		if errors.As(err, &bindErr) {
			r.log.Error("could not bind UDP port, not receiving",
				zap.Int("port", r.config.Port), zap.Error(err))
		}
		return err
	}

	r.listener = l
	r.active.Store(l)
	r.log.Info("receiver attached",
		zap.String("local_address", addr),
		zap.Int("port", r.config.Port))
	return nil
}

// Detach stops the listener and discards the store. It is idempotent.
func (r *Receiver) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.listener == nil {
		return
	}
	r.listener.Stop()
	r.listener = nil
	r.active.Store(nil)
	r.store.Store(store.New())
	r.log.Info("receiver detached")
}

// IsReceiving reports whether the receive loop is running.
func (r *Receiver) IsReceiving() bool {
	l := r.active.Load()
	return l != nil && l.Running()
}

// LocalAddress returns the advisory address to enter into the sender app.
func (r *Receiver) LocalAddress() string {
	return *r.localAddr.Load()
}

// Port returns the configured UDP port.
func (r *Receiver) Port() int {
	return r.config.Port
}

// Session returns the ID of the running listener, or "" when detached.
func (r *Receiver) Session() string {
	l := r.active.Load()
	if l == nil {
		return ""
	}
	return l.Session()
}

// BoundAddr returns the socket address while attached, or nil.
func (r *Receiver) BoundAddr() net.Addr {
	l := r.active.Load()
	if l == nil {
		return nil
	}
	return l.LocalAddr()
}

func (r *Receiver) HeadPose() mocap.HeadPose {
	return r.store.Load().HeadPose()
}

func (r *Receiver) HeadPosition() mocap.Vec3 {
	return r.HeadPose().Position
}

// HeadRotation returns the head orientation as a unit quaternion.
func (r *Receiver) HeadRotation() quat.Number {
	return r.HeadPose().Orientation()
}

// Weight returns the named expression weight, or 0 if it was never received.
func (r *Receiver) Weight(name string) float64 {
	return r.store.Load().Weight(name)
}

// AllWeights returns a copy of every received expression weight.
func (r *Receiver) AllWeights() map[string]float64 {
	return r.store.Load().AllWeights()
}

// WeightCount returns the number of distinct weight names received.
func (r *Receiver) WeightCount() int {
	return r.store.Load().Len()
}

func (r *Receiver) Snapshot() mocap.Snapshot {
	return r.store.Load().Snapshot()
}

// Version changes whenever the store is written.
func (r *Receiver) Version() uint64 {
	return r.store.Load().Version()
}
