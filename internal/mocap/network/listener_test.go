package network

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/banshee-data/facecap/internal/mocap"
	"github.com/banshee-data/facecap/internal/mocap/parse"
	"github.com/banshee-data/facecap/internal/mocap/store"
)

// MockFullPacketStats implements PacketStatsInterface for testing.
type MockFullPacketStats struct {
	mu           sync.Mutex
	packetCount  int
	droppedCnt   int
	decodeErrors map[parse.ErrorKind]int
	heads        int
	weights      int
	skipped      int
	logCalls     int
}

func newMockStats() *MockFullPacketStats {
	return &MockFullPacketStats{decodeErrors: map[parse.ErrorKind]int{}}
}

func (m *MockFullPacketStats) AddPacket(bytes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packetCount++
}

func (m *MockFullPacketStats) AddDropped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.droppedCnt++
}

func (m *MockFullPacketStats) AddDecodeError(kind parse.ErrorKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decodeErrors[kind]++
}

func (m *MockFullPacketStats) AddFrame(kind mocap.FrameKind, weights int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if kind == mocap.FrameHead {
		m.heads++
	} else {
		m.weights += weights
	}
}

func (m *MockFullPacketStats) AddSkipped(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipped += count
}

func (m *MockFullPacketStats) LogStats() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logCalls++
}

func (m *MockFullPacketStats) packets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.packetCount
}

func (m *MockFullPacketStats) errorsOf(kind parse.ErrorKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decodeErrors[kind]
}

// countingSink records how many writes it received.
type countingSink struct {
	mu     sync.Mutex
	writes int
}

func (c *countingSink) ApplyFrame(mocap.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
}

func (c *countingSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

func newTestListener(t *testing.T, socket *MockUDPSocket, sink FrameSink, stats PacketStatsInterface) *UDPListener {
	t.Helper()
	return NewUDPListener(UDPListenerConfig{
		Address:       ":49983",
		RcvBuf:        1 << 20,
		Stats:         stats,
		Parser:        parse.NewDecoder(),
		Sink:          sink,
		SocketFactory: NewMockUDPSocketFactory(socket),
		Logger:        zaptest.NewLogger(t),
	})
}

func TestNewUDPListener_Defaults(t *testing.T) {
	l := NewUDPListener(UDPListenerConfig{Address: ":49983"})

	if l.logInterval != time.Minute {
		t.Errorf("Expected default log interval 1 minute, got %v", l.logInterval)
	}
	if l.stats == nil {
		t.Error("Expected default noop stats, got nil")
	}
	if _, ok := l.socketFactory.(*RealUDPSocketFactory); !ok {
		t.Errorf("Expected real socket factory, got %T", l.socketFactory)
	}
	if l.Running() {
		t.Error("new listener should not be running")
	}
	if l.LocalAddr() != nil {
		t.Error("LocalAddr should be nil before Start")
	}
}

func TestUDPListener_AppliesFrames(t *testing.T) {
	socket := NewMockUDPSocket([]MockUDPPacket{
		{Data: []byte("iFacialMocap_blendShapes|eyeBlinkLeft&0.8|eyeBlinkRight&0.3")},
		{Data: []byte("iFacialMocap_head|10|20|30|0.1|0.2|0.3")},
	})
	s := store.New()
	stats := newMockStats()
	l := newTestListener(t, socket, s, stats)

	require.NoError(t, l.Start(context.Background()))
	defer l.Stop()

	require.Eventually(t, func() bool { return s.HeadPose().Position.Z == 0.3 }, time.Second, 5*time.Millisecond)

	assert.True(t, l.Running())
	assert.NotEmpty(t, l.Session())
	assert.Equal(t, 1<<20, socket.ReadBufferSize())
	assert.Equal(t, 0.8, s.Weight("eyeBlinkLeft"))
	assert.Equal(t, 0.3, s.Weight("eyeBlinkRight"))
	assert.Equal(t, mocap.HeadPose{
		Rotation: mocap.Vec3{X: 10, Y: 20, Z: 30},
		Position: mocap.Vec3{X: 0.1, Y: 0.2, Z: 0.3},
	}, s.HeadPose())
}

func TestUDPListener_BadDatagramsDoNotStopLoop(t *testing.T) {
	socket := NewMockUDPSocket([]MockUDPPacket{
		{Data: []byte("iFacialMocap_head|1|2|3|4|5|6")},
		{Data: []byte("iFacialMocap_head|x|0|0|0|0|0")},
		{Data: []byte("unknown|1|2")},
		{Data: []byte("short")},
		{Data: []byte{0xff, 0xfe, '|', 0x00}},
		{Data: []byte("iFacialMocap_blendShapes|ok&1|broken")},
	})
	s := store.New()
	stats := newMockStats()
	l := newTestListener(t, socket, s, stats)

	require.NoError(t, l.Start(context.Background()))
	defer l.Stop()

	require.Eventually(t, func() bool { return s.Weight("ok") == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 6, stats.packets())

	// The malformed head left the previous pose intact.
	assert.Equal(t, 1.0, s.HeadPose().Rotation.X)
	assert.Equal(t, 6.0, s.HeadPose().Position.Z)
	assert.True(t, l.Running())

	assert.Equal(t, 1, stats.errorsOf(parse.ErrKindBadNumber))
	assert.Equal(t, 1, stats.errorsOf(parse.ErrKindUnknownType))
	assert.Equal(t, 1, stats.errorsOf(parse.ErrKindTooShort))
	assert.Equal(t, 1, stats.errorsOf(parse.ErrKindEncoding))
	stats.mu.Lock()
	assert.Equal(t, 1, stats.skipped)
	stats.mu.Unlock()
}

func TestUDPListener_ReadErrorIsNotFatal(t *testing.T) {
	socket := NewMockUDPSocket(nil)
	socket.InjectReadError(errors.New("connection refused"))
	s := store.New()
	stats := newMockStats()
	l := newTestListener(t, socket, s, stats)

	require.NoError(t, l.Start(context.Background()))
	defer l.Stop()

	socket.Send([]byte("iFacialMocap_blendShapes|jawOpen&0.5"))
	require.Eventually(t, func() bool { return s.Weight("jawOpen") == 0.5 }, time.Second, 5*time.Millisecond)
	assert.True(t, l.Running())
}

func TestUDPListener_RepeatedReadErrorsBackOff(t *testing.T) {
	socket := NewMockUDPSocket(nil)
	for range 5 {
		socket.InjectReadError(errors.New("connection refused"))
	}
	core, logs := observer.New(zap.DebugLevel)
	s := store.New()
	l := NewUDPListener(UDPListenerConfig{
		Address:       ":49983",
		Parser:        parse.NewDecoder(),
		Sink:          s,
		SocketFactory: NewMockUDPSocketFactory(socket),
		Logger:        zap.New(core),
	})

	start := time.Now()
	require.NoError(t, l.Start(context.Background()))
	defer l.Stop()

	socket.Send([]byte("iFacialMocap_blendShapes|jawOpen&0.5"))
	require.Eventually(t, func() bool { return s.Weight("jawOpen") == 0.5 }, 2*time.Second, 5*time.Millisecond)

	// 1+2+4+8+16 ms of backoff before the datagram is read.
	assert.GreaterOrEqual(t, time.Since(start), 31*time.Millisecond)
	assert.Equal(t, 1, logs.FilterMessage("UDP read error, backing off").Len())
	assert.Equal(t, 4, logs.FilterMessage("UDP read error").Len())

	recovered := logs.FilterMessage("UDP reads recovered").All()
	require.Len(t, recovered, 1)
	assert.Equal(t, int64(5), recovered[0].ContextMap()["failed_reads"])
}

func TestUDPListener_StopDuringBackoff(t *testing.T) {
	socket := NewMockUDPSocket(nil)
	for range 20 {
		socket.InjectReadError(errors.New("network is unreachable"))
	}
	l := newTestListener(t, socket, store.New(), nil)
	require.NoError(t, l.Start(context.Background()))

	time.Sleep(300 * time.Millisecond)
	start := time.Now()
	l.Stop()
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.False(t, l.Running())
}

func TestUDPListener_BindError(t *testing.T) {
	l := NewUDPListener(UDPListenerConfig{
		Address:       ":49983",
		Parser:        parse.NewDecoder(),
		Sink:          store.New(),
		SocketFactory: NewFailingUDPSocketFactory(errors.New("address already in use")),
		Logger:        zaptest.NewLogger(t),
	})

	err := l.Start(context.Background())
	var bindErr *BindError
	require.ErrorAs(t, err, &bindErr)
	assert.Equal(t, ":49983", bindErr.Address)
	assert.Contains(t, err.Error(), "address already in use")
	assert.False(t, l.Running())

	// Nothing was started, so Stop is a no-op.
	l.Stop()
}

func TestUDPListener_ResolveError(t *testing.T) {
	l := NewUDPListener(UDPListenerConfig{
		Address: "not a valid address",
		Parser:  parse.NewDecoder(),
		Sink:    store.New(),
		Logger:  zaptest.NewLogger(t),
	})
	var bindErr *BindError
	require.ErrorAs(t, l.Start(context.Background()), &bindErr)
	assert.False(t, l.Running())
}

func TestUDPListener_StopIdempotent(t *testing.T) {
	l := newTestListener(t, NewMockUDPSocket(nil), store.New(), nil)

	// Before Start.
	l.Stop()
	l.Stop()
	assert.False(t, l.Running())

	require.NoError(t, l.Start(context.Background()))
	l.Stop()
	l.Stop()
	assert.False(t, l.Running())
}

func TestUDPListener_StopUnblocksRead(t *testing.T) {
	socket := NewMockUDPSocket(nil)
	l := newTestListener(t, socket, store.New(), nil)
	require.NoError(t, l.Start(context.Background()))
	require.True(t, l.Running())

	stopped := make(chan struct{})
	go func() {
		l.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return while the loop was blocked in ReadFromUDP")
	}
	assert.True(t, socket.Closed())
	assert.False(t, l.Running())
}

func TestUDPListener_NoWritesAfterStop(t *testing.T) {
	socket := NewMockUDPSocket(nil)
	sink := &countingSink{}
	l := newTestListener(t, socket, sink, nil)
	require.NoError(t, l.Start(context.Background()))

	socket.Send([]byte("iFacialMocap_blendShapes|a&1"))
	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)

	l.Stop()
	socket.Send([]byte("iFacialMocap_blendShapes|a&2"))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, sink.count())
}

func TestUDPListener_StartTwice(t *testing.T) {
	l := newTestListener(t, NewMockUDPSocket(nil), store.New(), nil)
	require.NoError(t, l.Start(context.Background()))
	defer l.Stop()

	assert.ErrorIs(t, l.Start(context.Background()), ErrAlreadyStarted)
}

func TestUDPListener_RestartAfterStop(t *testing.T) {
	first := NewMockUDPSocket(nil)
	factory := NewMockUDPSocketFactory(first)
	s := store.New()
	l := NewUDPListener(UDPListenerConfig{
		Address:       ":49983",
		Parser:        parse.NewDecoder(),
		Sink:          s,
		SocketFactory: factory,
		Logger:        zaptest.NewLogger(t),
	})

	require.NoError(t, l.Start(context.Background()))
	firstSession := l.Session()
	l.Stop()

	factory.socket = NewMockUDPSocket([]MockUDPPacket{{Data: []byte("iFacialMocap_blendShapes|b&2")}})
	require.NoError(t, l.Start(context.Background()))
	defer l.Stop()

	require.Eventually(t, func() bool { return s.Weight("b") == 2 }, time.Second, 5*time.Millisecond)
	assert.NotEqual(t, firstSession, l.Session())
	assert.Len(t, factory.ListenCalls(), 2)
}

func TestUDPListener_ContextCancelClosesSocket(t *testing.T) {
	socket := NewMockUDPSocket(nil)
	l := newTestListener(t, socket, store.New(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Start(ctx))
	cancel()

	require.Eventually(t, func() bool { return !l.Running() }, time.Second, 5*time.Millisecond)
	assert.True(t, socket.Closed())
	l.Stop()
}

func TestUDPListener_SetReadBufferFailureIsWarning(t *testing.T) {
	socket := NewMockUDPSocket(nil)
	socket.FailSetReadBuffer(errors.New("not permitted"))
	l := newTestListener(t, socket, store.New(), nil)

	require.NoError(t, l.Start(context.Background()))
	defer l.Stop()
	assert.True(t, l.Running())
}

func TestUDPListener_LogsStatsPeriodically(t *testing.T) {
	stats := newMockStats()
	l := NewUDPListener(UDPListenerConfig{
		Address:       ":49983",
		LogInterval:   5 * time.Millisecond,
		Stats:         stats,
		Parser:        parse.NewDecoder(),
		Sink:          store.New(),
		SocketFactory: NewMockUDPSocketFactory(NewMockUDPSocket(nil)),
		Logger:        zaptest.NewLogger(t),
	})
	require.NoError(t, l.Start(context.Background()))
	defer l.Stop()

	require.Eventually(t, func() bool {
		stats.mu.Lock()
		defer stats.mu.Unlock()
		return stats.logCalls >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestUDPListener_RealSocket(t *testing.T) {
	s := store.New()
	l := NewUDPListener(UDPListenerConfig{
		Address: "127.0.0.1:0",
		Parser:  parse.NewDecoder(),
		Sink:    s,
		Logger:  zaptest.NewLogger(t),
	})
	require.NoError(t, l.Start(context.Background()))
	defer l.Stop()

	addr, ok := l.LocalAddr().(*net.UDPAddr)
	require.True(t, ok)

	conn, err := net.DialUDP("udp", nil, addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("iFacialMocap_blendShapes|eyeBlinkLeft&0.8|eyeBlinkRight&0.3"))
	require.NoError(t, err)
	_, err = conn.Write([]byte("iFacialMocap_head|10|20|30|0.1|0.2|0.3"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return s.Weight("eyeBlinkRight") == 0.3 && s.HeadPose().Position.Z == 0.3
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0.8, s.Weight("eyeBlinkLeft"))
	assert.Equal(t, mocap.Vec3{X: 10, Y: 20, Z: 30}, s.HeadPose().Rotation)
}

func TestUDPListener_RealSocketPortInUse(t *testing.T) {
	taken, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer taken.Close()

	l := NewUDPListener(UDPListenerConfig{
		Address: taken.LocalAddr().String(),
		Parser:  parse.NewDecoder(),
		Sink:    store.New(),
		Logger:  zaptest.NewLogger(t),
	})
	var bindErr *BindError
	require.ErrorAs(t, l.Start(context.Background()), &bindErr)
	assert.False(t, l.Running())
}
