package network

import (
	"errors"

	"go.uber.org/zap"

	"github.com/banshee-data/facecap/internal/mocap"
	"github.com/banshee-data/facecap/internal/mocap/parse"
)

// PacketStatsInterface provides packet statistics management.
type PacketStatsInterface interface {
	AddPacket(bytes int)
	AddDropped()
	AddDecodeError(kind parse.ErrorKind)
	AddFrame(kind mocap.FrameKind, weights int)
	AddSkipped(count int)
	LogStats()
}

// Parser decodes one datagram into a frame.
type Parser interface {
	Decode(packet []byte) (mocap.Frame, error)
}

// FrameSink receives successfully decoded frames. store.Store implements it.
type FrameSink interface {
	ApplyFrame(f mocap.Frame)
}

// noopStats is a PacketStatsInterface implementation that does nothing.
// It is used as a safe default when no stats collector is provided.
type noopStats struct{}

func (noopStats) AddPacket(int)                  {}
func (noopStats) AddDropped()                    {}
func (noopStats) AddDecodeError(parse.ErrorKind) {}
func (noopStats) AddFrame(mocap.FrameKind, int)  {}
func (noopStats) AddSkipped(int)                 {}
func (noopStats) LogStats()                      {}

// ingest is the per-datagram path shared by the live listener and PCAP
// replay: count, forward, decode, apply.
type ingest struct {
	parser    Parser
	sink      FrameSink
	stats     PacketStatsInterface
	forwarder *PacketForwarder
	log       *zap.Logger
}

func (in *ingest) handlePacket(packet []byte) {
	in.stats.AddPacket(len(packet))

	if in.forwarder != nil {
		in.forwarder.ForwardAsync(packet)
	}

	frame, err := in.parser.Decode(packet)
	if err != nil {
		kind := parse.ErrorKind(0)
		var de *parse.DecodeError
		if errors.As(err, &de) {
			kind = de.Kind
		}
		in.stats.AddDecodeError(kind)
		in.log.Debug("dropped datagram", zap.Stringer("kind", kind), zap.Error(err), zap.Int("bytes", len(packet)))
		return
	}

	if len(frame.Skipped) > 0 {
		in.stats.AddSkipped(len(frame.Skipped))
		if ce := in.log.Check(zap.DebugLevel, "skipped blend shape fields"); ce != nil {
			ce.Write(zap.Any("fields", frame.Skipped))
		}
	}

	in.sink.ApplyFrame(frame)
	switch frame.Kind {
	case mocap.FrameHead:
		in.stats.AddFrame(frame.Kind, 0)
		if ce := in.log.Check(zap.DebugLevel, "head"); ce != nil {
			ce.Write(zap.Any("position", frame.Head.Position), zap.Any("rotation", frame.Head.Rotation))
		}
	case mocap.FrameWeights:
		in.stats.AddFrame(frame.Kind, len(frame.Weights))
		in.log.Debug("blend shapes", zap.Int("count", len(frame.Weights)))
	}
}
