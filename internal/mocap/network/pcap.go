package network

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"go.uber.org/zap"

	"github.com/banshee-data/facecap/internal/monitoring"
)

// pcapngMagic is the section header block type that starts every pcapng file.
var pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

// ReplayConfig configures PCAP replay.
type ReplayConfig struct {
	// Port selects UDP datagrams by destination port. Zero accepts all.
	Port int

	// Speed paces replay by capture timestamps (1.0 = real time, 2.0 = twice
	// as fast). Zero or negative replays as fast as possible.
	Speed float64

	Forwarder *PacketForwarder
	Logger    *zap.Logger
}

// ReplayResult summarises a replay run.
type ReplayResult struct {
	Packets   int // capture records read
	Datagrams int // UDP payloads fed to the parser
	Duration  time.Duration
}

type packetDataSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

func openCapture(r io.Reader) (packetDataSource, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("read capture header: %w", err)
	}
	if bytes.Equal(magic, pcapngMagic) {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, err
		}
		return ng, nil
	}
	pr, err := pcapgo.NewReader(br)
	if err != nil {
		return nil, err
	}
	return pr, nil
}

// ReadPCAPFile replays the UDP payloads in a pcap or pcapng capture through
// the same decode-and-apply path as the live listener.
func ReadPCAPFile(ctx context.Context, path string, config ReplayConfig, parser Parser, sink FrameSink, stats PacketStatsInterface) (ReplayResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("failed to open PCAP file %s: %w", path, err)
	}
	defer f.Close()

	src, err := openCapture(f)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("failed to read PCAP file %s: %w", path, err)
	}
	return replay(ctx, src, config, parser, sink, stats)
}

func replay(ctx context.Context, src packetDataSource, config ReplayConfig, parser Parser, sink FrameSink, stats PacketStatsInterface) (ReplayResult, error) {
	if stats == nil {
		stats = noopStats{}
	}
	logger := config.Logger
	if logger == nil {
		logger = monitoring.Named("replay")
	}

	in := &ingest{parser: parser, sink: sink, stats: stats, forwarder: config.Forwarder, log: logger}
	if config.Forwarder != nil {
		fctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go config.Forwarder.Run(fctx)
	}

	var result ReplayResult
	start := time.Now()
	var firstCapture time.Time

	for {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}

		data, ci, err := src.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			result.Duration = time.Since(start)
			return result, fmt.Errorf("read packet %d: %w", result.Packets+1, err)
		}
		result.Packets++

		packet := gopacket.NewPacket(data, src.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		if config.Port != 0 && int(udp.DstPort) != config.Port {
			continue
		}

		if config.Speed > 0 {
			if firstCapture.IsZero() {
				firstCapture = ci.Timestamp
			}
			due := time.Duration(float64(ci.Timestamp.Sub(firstCapture)) / config.Speed)
			if wait := due - time.Since(start); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					result.Duration = time.Since(start)
					return result, ctx.Err()
				case <-timer.C:
				}
			}
		}

		result.Datagrams++
		in.handlePacket(udp.Payload)
	}

	result.Duration = time.Since(start)
	logger.Info("PCAP replay complete",
		zap.Int("packets", result.Packets),
		zap.Int("datagrams", result.Datagrams),
		zap.Duration("elapsed", result.Duration))
	return result, nil
}
