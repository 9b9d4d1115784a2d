package monitor

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/banshee-data/facecap/internal/mocap"
	"github.com/banshee-data/facecap/internal/mocap/parse"
	"github.com/banshee-data/facecap/internal/monitoring"
)

// StatsSnapshot is the rate summary computed at the last LogStats call.
type StatsSnapshot struct {
	PacketsPerSec float64          `json:"packets_per_sec"`
	KBPerSec      float64          `json:"kb_per_sec"`
	HeadPerSec    float64          `json:"head_per_sec"`
	WeightsPerSec float64          `json:"weights_per_sec"`
	DroppedCount  int64            `json:"dropped"`
	SkippedCount  int64            `json:"skipped_pairs"`
	DecodeErrors  map[string]int64 `json:"decode_errors"`
	Timestamp     time.Time        `json:"timestamp"`
}

// Totals are counts since the stats were created.
type Totals struct {
	Packets      int64            `json:"packets"`
	Bytes        int64            `json:"bytes"`
	HeadFrames   int64            `json:"head_frames"`
	WeightFrames int64            `json:"weight_frames"`
	Dropped      int64            `json:"dropped"`
	Skipped      int64            `json:"skipped_pairs"`
	DecodeErrors map[string]int64 `json:"decode_errors"`
}

type counters struct {
	packets      int64
	bytes        int64
	headFrames   int64
	weightFrames int64
	weightValues int64
	dropped      int64
	skipped      int64
	decodeErrors map[parse.ErrorKind]int64
}

func (c *counters) reset() {
	*c = counters{decodeErrors: make(map[parse.ErrorKind]int64)}
}

// PacketStats tracks receiver statistics with thread-safe operations. It
// satisfies network.PacketStatsInterface and network.PacketStats.
type PacketStats struct {
	mu             sync.Mutex
	window         counters
	total          counters
	lastReset      time.Time
	startTime      time.Time
	latestSnapshot *StatsSnapshot

	metrics *Metrics
	log     *zap.Logger
	now     func() time.Time
}

// NewPacketStats creates a PacketStats. metrics may be nil.
func NewPacketStats(metrics *Metrics) *PacketStats {
	ps := &PacketStats{
		metrics: metrics,
		log:     monitoring.Named("stats"),
		now:     time.Now,
	}
	ps.window.reset()
	ps.total.reset()
	ps.lastReset = ps.now()
	ps.startTime = ps.lastReset
	return ps
}

// AddPacket counts one received datagram.
func (ps *PacketStats) AddPacket(bytes int) {
	ps.mu.Lock()
	ps.window.packets++
	ps.window.bytes += int64(bytes)
	ps.total.packets++
	ps.total.bytes += int64(bytes)
	ps.mu.Unlock()

	if ps.metrics != nil {
		ps.metrics.Datagrams.Inc()
		ps.metrics.Bytes.Add(float64(bytes))
	}
}

// AddDropped counts a datagram the forwarder could not queue.
func (ps *PacketStats) AddDropped() {
	ps.mu.Lock()
	ps.window.dropped++
	ps.total.dropped++
	ps.mu.Unlock()

	if ps.metrics != nil {
		ps.metrics.ForwardDropped.Inc()
	}
}

func (ps *PacketStats) AddDecodeError(kind parse.ErrorKind) {
	ps.mu.Lock()
	ps.window.decodeErrors[kind]++
	ps.total.decodeErrors[kind]++
	ps.mu.Unlock()

	if ps.metrics != nil {
		ps.metrics.DecodeErrors.WithLabelValues(kind.String()).Inc()
	}
}

// AddFrame counts a frame applied to the store. weights is the number of
// values a blend-shape frame carried.
func (ps *PacketStats) AddFrame(kind mocap.FrameKind, weights int) {
	ps.mu.Lock()
	switch kind {
	case mocap.FrameHead:
		ps.window.headFrames++
		ps.total.headFrames++
	case mocap.FrameWeights:
		ps.window.weightFrames++
		ps.total.weightFrames++
		ps.window.weightValues += int64(weights)
		ps.total.weightValues += int64(weights)
	}
	ps.mu.Unlock()

	if ps.metrics != nil {
		ps.metrics.Frames.WithLabelValues(kind.String()).Inc()
		ps.metrics.WeightValues.Add(float64(weights))
	}
}

func (ps *PacketStats) AddSkipped(count int) {
	ps.mu.Lock()
	ps.window.skipped += int64(count)
	ps.total.skipped += int64(count)
	ps.mu.Unlock()

	if ps.metrics != nil {
		ps.metrics.SkippedPairs.Add(float64(count))
	}
}

// getAndReset returns the window counters and starts a new window.
func (ps *PacketStats) getAndReset() (counters, time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := ps.now()
	duration := now.Sub(ps.lastReset)
	c := ps.window
	ps.window.reset()
	ps.lastReset = now
	return c, duration
}

// LogStats logs the rates since the previous call and stores a snapshot for
// the web interface. Nothing is logged for an idle window.
func (ps *PacketStats) LogStats() {
	c, duration := ps.getAndReset()
	var decodeErrors int64
	for _, n := range c.decodeErrors {
		decodeErrors += n
	}
	if c.packets == 0 && c.dropped == 0 {
		return
	}

	secs := duration.Seconds()
	if secs <= 0 {
		secs = 1
	}
	snap := &StatsSnapshot{
		PacketsPerSec: float64(c.packets) / secs,
		KBPerSec:      float64(c.bytes) / secs / 1024,
		HeadPerSec:    float64(c.headFrames) / secs,
		WeightsPerSec: float64(c.weightFrames) / secs,
		DroppedCount:  c.dropped,
		SkippedCount:  c.skipped,
		DecodeErrors:  errorsByName(c.decodeErrors),
		Timestamp:     ps.now(),
	}

	ps.mu.Lock()
	ps.latestSnapshot = snap
	ps.mu.Unlock()

	fields := []zap.Field{
		zap.String("packets/s", fmt.Sprintf("%.1f", snap.PacketsPerSec)),
		zap.String("KB/s", fmt.Sprintf("%.2f", snap.KBPerSec)),
		zap.String("head/s", fmt.Sprintf("%.1f", snap.HeadPerSec)),
		zap.String("blendshapes/s", fmt.Sprintf("%.1f", snap.WeightsPerSec)),
	}
	if decodeErrors > 0 {
		fields = append(fields, zap.Int64("decode_errors", decodeErrors))
	}
	if c.skipped > 0 {
		fields = append(fields, zap.Int64("skipped_pairs", c.skipped))
	}
	if c.dropped > 0 {
		fields = append(fields, zap.Int64("dropped_on_forward", c.dropped))
	}
	ps.log.Info("mocap stats", fields...)
}

// GetUptime returns the time since the stats were created.
func (ps *PacketStats) GetUptime() time.Duration {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.now().Sub(ps.startTime)
}

// GetLatestSnapshot returns a copy of the most recent rate snapshot, or nil
// before the first non-idle LogStats.
func (ps *PacketStats) GetLatestSnapshot() *StatsSnapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.latestSnapshot == nil {
		return nil
	}
	snapshot := *ps.latestSnapshot
	snapshot.DecodeErrors = make(map[string]int64, len(ps.latestSnapshot.DecodeErrors))
	for k, v := range ps.latestSnapshot.DecodeErrors {
		snapshot.DecodeErrors[k] = v
	}
	return &snapshot
}

// Totals returns counts accumulated since creation.
func (ps *PacketStats) Totals() Totals {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return Totals{
		Packets:      ps.total.packets,
		Bytes:        ps.total.bytes,
		HeadFrames:   ps.total.headFrames,
		WeightFrames: ps.total.weightFrames,
		Dropped:      ps.total.dropped,
		Skipped:      ps.total.skipped,
		DecodeErrors: errorsByName(ps.total.decodeErrors),
	}
}

func errorsByName(m map[parse.ErrorKind]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k.String()] = v
	}
	return out
}

// FormatWithCommas formats a number with thousands separators.
func FormatWithCommas(n int64) string {
	str := fmt.Sprintf("%d", n)
	neg := false
	if n < 0 {
		neg = true
		str = str[1:]
	}
	if len(str) <= 3 {
		if neg {
			return "-" + str
		}
		return str
	}

	out := make([]byte, 0, len(str)+len(str)/3)
	for i := range len(str) {
		if i > 0 && (len(str)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, str[i])
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}
