package network

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/banshee-data/facecap/internal/mocap"
	"github.com/banshee-data/facecap/internal/mocap/parse"
	"github.com/banshee-data/facecap/internal/mocap/store"
)

type capturedDatagram struct {
	port    int
	payload string
	at      time.Duration
}

func serializeUDP(t *testing.T, port int, payload string) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(192, 168, 1, 20),
		DstIP:    net.IPv4(192, 168, 1, 10),
	}
	udp := &layers.UDP{SrcPort: 50000, DstPort: layers.UDPPort(port)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)))
	return buf.Bytes()
}

func writePcap(t *testing.T, datagrams []capturedDatagram) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, d := range datagrams {
		data := serializeUDP(t, d.port, d.payload)
		ci := gopacket.CaptureInfo{Timestamp: base.Add(d.at), CaptureLength: len(data), Length: len(data)}
		require.NoError(t, w.WritePacket(ci, data))
	}
	return path
}

func writePcapng(t *testing.T, datagrams []capturedDatagram) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.pcapng")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w, err := pcapgo.NewNgWriter(f, layers.LinkTypeEthernet)
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, d := range datagrams {
		data := serializeUDP(t, d.port, d.payload)
		ci := gopacket.CaptureInfo{Timestamp: base.Add(d.at), CaptureLength: len(data), Length: len(data)}
		require.NoError(t, w.WritePacket(ci, data))
	}
	require.NoError(t, w.Flush())
	return path
}

var replayFixture = []capturedDatagram{
	{port: 49983, payload: "iFacialMocap_blendShapes|eyeBlinkLeft&0.8|eyeBlinkRight&0.3"},
	{port: 49983, payload: "iFacialMocap_head|10|20|30|0.1|0.2|0.3", at: 10 * time.Millisecond},
	{port: 5353, payload: "iFacialMocap_blendShapes|eyeBlinkLeft&0.1"},
	{port: 49983, payload: "garbage", at: 20 * time.Millisecond},
}

func TestReadPCAPFile(t *testing.T) {
	path := writePcap(t, replayFixture)
	s := store.New()
	stats := newMockStats()

	result, err := ReadPCAPFile(context.Background(), path, ReplayConfig{Port: 49983, Logger: zaptest.NewLogger(t)}, parse.NewDecoder(), s, stats)
	require.NoError(t, err)

	assert.Equal(t, 4, result.Packets)
	assert.Equal(t, 3, result.Datagrams)
	assert.Equal(t, 0.8, s.Weight("eyeBlinkLeft"))
	assert.Equal(t, 0.3, s.Weight("eyeBlinkRight"))
	assert.Equal(t, mocap.Vec3{X: 0.1, Y: 0.2, Z: 0.3}, s.HeadPose().Position)
	assert.Equal(t, 1, stats.errorsOf(parse.ErrKindTooShort))
}

func TestReadPCAPFile_AllPorts(t *testing.T) {
	path := writePcap(t, replayFixture)
	s := store.New()

	result, err := ReadPCAPFile(context.Background(), path, ReplayConfig{Logger: zaptest.NewLogger(t)}, parse.NewDecoder(), s, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, result.Datagrams)
	// The 5353 datagram came later and overwrote the value.
	assert.Equal(t, 0.1, s.Weight("eyeBlinkLeft"))
}

func TestReadPCAPFile_Pcapng(t *testing.T) {
	path := writePcapng(t, replayFixture)
	s := store.New()

	result, err := ReadPCAPFile(context.Background(), path, ReplayConfig{Port: 49983, Logger: zaptest.NewLogger(t)}, parse.NewDecoder(), s, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Datagrams)
	assert.Equal(t, 10.0, s.HeadPose().Rotation.X)
}

func TestReadPCAPFile_Paced(t *testing.T) {
	path := writePcap(t, []capturedDatagram{
		{port: 49983, payload: "iFacialMocap_blendShapes|a&1"},
		{port: 49983, payload: "iFacialMocap_blendShapes|a&2", at: 40 * time.Millisecond},
	})

	result, err := ReadPCAPFile(context.Background(), path, ReplayConfig{Speed: 2, Logger: zaptest.NewLogger(t)}, parse.NewDecoder(), store.New(), nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.Duration, 20*time.Millisecond)
}

func TestReadPCAPFile_Cancelled(t *testing.T) {
	path := writePcap(t, replayFixture)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ReadPCAPFile(ctx, path, ReplayConfig{Logger: zaptest.NewLogger(t)}, parse.NewDecoder(), store.New(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadPCAPFile_Missing(t *testing.T) {
	_, err := ReadPCAPFile(context.Background(), filepath.Join(t.TempDir(), "nope.pcap"), ReplayConfig{}, parse.NewDecoder(), store.New(), nil)
	assert.Error(t, err)
}

func TestReadPCAPFile_NotACapture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pcap")
	require.NoError(t, os.WriteFile(path, []byte("this is not a pcap file"), 0o644))

	_, err := ReadPCAPFile(context.Background(), path, ReplayConfig{}, parse.NewDecoder(), store.New(), nil)
	assert.Error(t, err)
}
