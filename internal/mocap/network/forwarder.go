package network

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/banshee-data/facecap/internal/monitoring"
)

// PacketStats is the subset of statistics the forwarder reports into.
type PacketStats interface {
	AddDropped()
}

// forwardQueueSize is the number of datagrams buffered for relay.
const forwardQueueSize = 256

// PacketForwarder relays raw datagrams to another receiver without
// blocking the listener loop.
type PacketForwarder struct {
	conn        net.Conn
	channel     chan []byte
	stats       PacketStats
	logInterval time.Duration
	address     string
	log         *zap.Logger
}

// NewPacketForwarder creates a forwarder that sends datagrams to addr:port.
func NewPacketForwarder(addr string, port int, stats PacketStats, logInterval time.Duration) (*PacketForwarder, error) {
	forwardAddress := net.JoinHostPort(addr, fmt.Sprint(port))
	forwardUDPAddr, err := net.ResolveUDPAddr("udp", forwardAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve forward address: %w", err)
	}

	conn, err := net.DialUDP("udp", nil, forwardUDPAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create forward connection: %w", err)
	}

	if stats == nil {
		stats = noopStats{}
	}
	if logInterval <= 0 {
		logInterval = time.Minute
	}

	return &PacketForwarder{
		conn:        conn,
		channel:     make(chan []byte, forwardQueueSize),
		stats:       stats,
		logInterval: logInterval,
		address:     forwardAddress,
		log:         monitoring.Named("forwarder"),
	}, nil
}

// Address returns the relay destination.
func (f *PacketForwarder) Address() string {
	return f.address
}

// Run writes queued datagrams until ctx is done. Write failures are
// summarised once per log interval.
func (f *PacketForwarder) Run(ctx context.Context) {
	f.log.Info("forwarding datagrams", zap.String("to", f.address))

	failed := 0
	var lastError error
	ticker := time.NewTicker(f.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case packet := <-f.channel:
			if _, err := f.conn.Write(packet); err != nil {
				failed++
				lastError = err
			}
		case <-ticker.C:
			if failed > 0 {
				f.log.Warn("failed to forward datagrams", zap.Int("count", failed), zap.Error(lastError))
				failed = 0
				lastError = nil
			}
		}
	}
}

// ForwardAsync queues a copy of packet. If the queue is full the packet is
// dropped and counted.
func (f *PacketForwarder) ForwardAsync(packet []byte) {
	packetCopy := make([]byte, len(packet))
	copy(packetCopy, packet)

	select {
	case f.channel <- packetCopy:
	default:
		f.stats.AddDropped()
	}
}

// Close releases the relay socket. Run must have returned.
func (f *PacketForwarder) Close() error {
	return f.conn.Close()
}
