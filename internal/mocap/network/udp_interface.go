package network

import (
	"net"
	"sync"
)

// UDPSocket defines the socket operations the listener needs.
// This abstraction enables unit testing without real network connections.
type UDPSocket interface {
	// ReadFromUDP blocks until a datagram arrives or the socket is closed.
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)

	// SetReadBuffer sets the size of the operating system's receive buffer.
	SetReadBuffer(bytes int) error

	// Close closes the socket. A blocked ReadFromUDP returns net.ErrClosed.
	Close() error

	// LocalAddr returns the bound address.
	LocalAddr() net.Addr
}

// UDPSocketFactory creates UDP sockets.
type UDPSocketFactory interface {
	ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error)
}

// RealUDPSocketFactory implements UDPSocketFactory using net.ListenUDP.
// *net.UDPConn satisfies UDPSocket directly.
type RealUDPSocketFactory struct{}

// NewRealUDPSocketFactory creates a new RealUDPSocketFactory.
func NewRealUDPSocketFactory() *RealUDPSocketFactory {
	return &RealUDPSocketFactory{}
}

// ListenUDP creates a new UDP socket.
func (f *RealUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// MockUDPPacket is a datagram delivered by MockUDPSocket.
type MockUDPPacket struct {
	Data []byte
	Addr *net.UDPAddr
}

// MockUDPSocket implements UDPSocket for tests. ReadFromUDP blocks like a
// real socket until a packet is sent or the socket is closed. It is safe
// for concurrent use.
type MockUDPSocket struct {
	packets   chan MockUDPPacket
	closed    chan struct{}
	closeOnce sync.Once

	mu                 sync.Mutex
	readErrors         []error
	readBufferSize     int
	setReadBufferError error
	localAddress       *net.UDPAddr
}

// NewMockUDPSocket creates a mock socket pre-loaded with packets.
func NewMockUDPSocket(packets []MockUDPPacket) *MockUDPSocket {
	m := &MockUDPSocket{
		packets: make(chan MockUDPPacket, len(packets)+256),
		closed:  make(chan struct{}),
		localAddress: &net.UDPAddr{
			IP:   net.ParseIP("127.0.0.1"),
			Port: 49983,
		},
	}
	for _, p := range packets {
		m.packets <- p
	}
	return m
}

// Send queues a datagram for the next ReadFromUDP.
func (m *MockUDPSocket) Send(data []byte) {
	m.packets <- MockUDPPacket{Data: data, Addr: &net.UDPAddr{IP: net.ParseIP("192.0.2.10"), Port: 50000}}
}

// InjectReadError makes the next ReadFromUDP return err.
func (m *MockUDPSocket) InjectReadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErrors = append(m.readErrors, err)
}

// FailSetReadBuffer makes SetReadBuffer return err.
func (m *MockUDPSocket) FailSetReadBuffer(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setReadBufferError = err
}

// ReadFromUDP returns the next queued packet, blocking until one is
// available or the socket is closed.
func (m *MockUDPSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	select {
	case <-m.closed:
		return 0, nil, net.ErrClosed
	default:
	}

	m.mu.Lock()
	if len(m.readErrors) > 0 {
		err := m.readErrors[0]
		m.readErrors = m.readErrors[1:]
		m.mu.Unlock()
		return 0, nil, err
	}
	m.mu.Unlock()

	select {
	case <-m.closed:
		return 0, nil, net.ErrClosed
	case pkt := <-m.packets:
		n := copy(b, pkt.Data)
		return n, pkt.Addr, nil
	}
}

// SetReadBuffer records the buffer size.
func (m *MockUDPSocket) SetReadBuffer(bytes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setReadBufferError != nil {
		return m.setReadBufferError
	}
	m.readBufferSize = bytes
	return nil
}

// ReadBufferSize returns the last size passed to SetReadBuffer.
func (m *MockUDPSocket) ReadBufferSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readBufferSize
}

// Close unblocks pending reads. It is safe to call more than once.
func (m *MockUDPSocket) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

// Closed reports whether Close has been called.
func (m *MockUDPSocket) Closed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

// LocalAddr returns the mock local address.
func (m *MockUDPSocket) LocalAddr() net.Addr {
	return m.localAddress
}

// MockUDPSocketFactory implements UDPSocketFactory for tests.
type MockUDPSocketFactory struct {
	mu          sync.Mutex
	socket      *MockUDPSocket
	err         error
	listenCalls []MockListenCall
}

// MockListenCall records a call to ListenUDP.
type MockListenCall struct {
	Network string
	Addr    *net.UDPAddr
}

// NewMockUDPSocketFactory returns a factory that hands out socket.
func NewMockUDPSocketFactory(socket *MockUDPSocket) *MockUDPSocketFactory {
	return &MockUDPSocketFactory{socket: socket}
}

// NewFailingUDPSocketFactory returns a factory whose ListenUDP fails with err.
func NewFailingUDPSocketFactory(err error) *MockUDPSocketFactory {
	return &MockUDPSocketFactory{err: err}
}

// ListenUDP returns the configured mock socket or error.
func (f *MockUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listenCalls = append(f.listenCalls, MockListenCall{Network: network, Addr: laddr})
	if f.err != nil {
		return nil, f.err
	}
	return f.socket, nil
}

// ListenCalls returns a copy of the recorded calls.
func (f *MockUDPSocketFactory) ListenCalls() []MockListenCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]MockListenCall(nil), f.listenCalls...)
}
