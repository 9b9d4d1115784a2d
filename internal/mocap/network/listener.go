package network

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/banshee-data/facecap/internal/monitoring"
)

// MaxDatagramSize bounds the per-datagram receive buffer. iFacialMocap
// blend-shape messages are around 1.3KB; larger datagrams are truncated
// by the kernel and then fail to decode or lose trailing pairs.
const MaxDatagramSize = 2048

// Delay bounds between consecutive failed reads.
const (
	minReadBackoff = time.Millisecond
	maxReadBackoff = 100 * time.Millisecond
)

// UDPListener receives capture datagrams on a dedicated goroutine and
// feeds each one through the parser into the frame sink.
type UDPListener struct {
	address       string
	rcvBuf        int
	logInterval   time.Duration
	stats         PacketStatsInterface
	forwarder     *PacketForwarder
	parser        Parser
	sink          FrameSink
	socketFactory UDPSocketFactory
	log           *zap.Logger

	mu      sync.Mutex // guards conn, cancel, wg and session across Start/Stop
	conn    UDPSocket
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
	session string

	running atomic.Bool
}

// UDPListenerConfig contains configuration options for the UDP listener.
type UDPListenerConfig struct {
	Address       string // host:port; empty host listens on all interfaces
	RcvBuf        int
	LogInterval   time.Duration
	Stats         PacketStatsInterface
	Forwarder     *PacketForwarder
	Parser        Parser
	Sink          FrameSink
	SocketFactory UDPSocketFactory // optional, for tests
	Logger        *zap.Logger
}

// NewUDPListener creates a new UDP listener with the provided configuration.
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	var stats PacketStatsInterface = noopStats{}
	if config.Stats != nil {
		stats = config.Stats
	}

	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}

	socketFactory := config.SocketFactory
	if socketFactory == nil {
		socketFactory = NewRealUDPSocketFactory()
	}

	logger := config.Logger
	if logger == nil {
		logger = monitoring.Named("listener")
	}

	return &UDPListener{
		address:       config.Address,
		rcvBuf:        config.RcvBuf,
		logInterval:   logInterval,
		stats:         stats,
		forwarder:     config.Forwarder,
		parser:        config.Parser,
		sink:          config.Sink,
		socketFactory: socketFactory,
		log:           logger,
	}
}

// Start binds the UDP endpoint and starts the receive loop in the
// background. A bind failure is returned as *BindError and nothing is
// started. Cancelling ctx has the same effect as Stop, except that it does
// not wait for the loop to exit.
func (l *UDPListener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		return ErrAlreadyStarted
	}

	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return &BindError{Address: l.address, Err: err}
	}

	conn, err := l.socketFactory.ListenUDP("udp", addr)
	if err != nil {
		return &BindError{Address: l.address, Err: err}
	}

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			l.log.Warn("failed to set UDP receive buffer size", zap.Int("bytes", l.rcvBuf), zap.Error(err))
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	// Closing the socket is what unblocks ReadFromUDP.
	context.AfterFunc(loopCtx, func() { _ = conn.Close() })

	session := uuid.NewString()
	in := &ingest{
		parser:    l.parser,
		sink:      l.sink,
		stats:     l.stats,
		forwarder: l.forwarder,
		log:       l.log.With(zap.String("session", session)),
	}

	wg := &sync.WaitGroup{}
	l.conn = conn
	l.cancel = cancel
	l.wg = wg
	l.session = session
	l.running.Store(true)

	if l.forwarder != nil {
		wg.Go(func() { l.forwarder.Run(loopCtx) })
	}
	wg.Go(func() { l.logStatsPeriodically(loopCtx) })
	wg.Go(func() {
		defer l.running.Store(false)
		l.receive(loopCtx, conn, in)
	})

	l.log.Info("UDP listener started",
		zap.Stringer("addr", conn.LocalAddr()),
		zap.Int("rcvbuf", l.rcvBuf),
		zap.String("session", session))
	return nil
}

// receive is the listener loop. It blocks in ReadFromUDP, backs off
// between consecutive read errors, and exits when the socket is closed.
func (l *UDPListener) receive(ctx context.Context, conn UDPSocket, in *ingest) {
	buffer := make([]byte, MaxDatagramSize)
	failures := 0
	backoff := minReadBackoff
	for {
		n, from, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				in.log.Info("UDP listener stopped")
				return
			}
			failures++
			if failures == 1 {
				l.log.Warn("UDP read error, backing off", zap.Error(err))
			} else {
				l.log.Debug("UDP read error", zap.Int("consecutive", failures), zap.Error(err))
			}
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				in.log.Info("UDP listener stopped")
				return
			case <-timer.C:
			}
			backoff = min(backoff*2, maxReadBackoff)
			continue
		}
		if failures > 0 {
			l.log.Info("UDP reads recovered", zap.Int("failed_reads", failures))
			failures, backoff = 0, minReadBackoff
		}

		if ce := l.log.Check(zap.DebugLevel, "datagram"); ce != nil {
			ce.Write(zap.Stringer("from", from), zap.Int("bytes", n))
		}
		in.handlePacket(buffer[:n])
	}
}

// logStatsPeriodically logs packet statistics until ctx is done.
func (l *UDPListener) logStatsPeriodically(ctx context.Context) {
	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.LogStats()
		}
	}
}

// Stop closes the socket and waits for the receive loop to exit. After
// Stop returns the listener makes no further writes to its sink. Stop is
// idempotent and safe to call on a listener that was never started. It
// must not be called from the sink.
func (l *UDPListener) Stop() {
	l.mu.Lock()
	cancel, wg, conn := l.cancel, l.wg, l.conn
	l.cancel, l.wg, l.conn = nil, nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if conn != nil {
		_ = conn.Close()
	}
	wg.Wait()
}

// Running reports whether the receive loop is active.
func (l *UDPListener) Running() bool {
	return l.running.Load()
}

// Session returns the ID assigned by the most recent Start.
func (l *UDPListener) Session() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

// LocalAddr returns the bound address while running, or nil.
func (l *UDPListener) LocalAddr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}
