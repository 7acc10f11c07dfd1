package trace

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bsdphk/ntimed/internal/tstamp"
	"github.com/bsdphk/ntimed/internal/wire"
)

func TestWriteThenReadHeader(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Header("sim-client", []PeerID{{Hostname: "a.example.com", IP: "10.0.0.1"}})
	w.Now(tstamp.FromDouble(1700000000), "init")
	require.NoError(t, w.Flush())

	r, err := NewReader(&buf)
	require.NoError(t, err)
	require.Equal(t, "sim-client", r.Format)
	require.Len(t, r.PeerIDs, 1)
	require.Equal(t, "a.example.com", r.PeerIDs[0].Hostname)
	require.Equal(t, "10.0.0.1", r.PeerIDs[0].IP)

	line, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "Now", line.Kind)
	require.Equal(t, "init", line.Fields[1])

	_, err = r.Next()
	require.ErrorIs(t, err, io.EOF)
}

type fakeInjector struct {
	advanced []string
	polled   []string
}

func (f *fakeInjector) AdvanceTo(t, label string) error {
	f.advanced = append(f.advanced, t)
	return nil
}

func (f *fakeInjector) InjectPoll(hostname, ip string, fields []string) error {
	f.polled = append(f.polled, hostname+" "+ip)
	return nil
}

func TestPlayerDrivesInjector(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Header("sim-client", []PeerID{{Hostname: "a.example.com", IP: "10.0.0.1"}})
	w.Now(tstamp.FromDouble(1000000), "start")
	w.Poll("Poll", "a.example.com", "10.0.0.1", PacketFields{})
	w.Now(tstamp.FromDouble(1000064), "tick")
	require.NoError(t, w.Flush())

	inj := &fakeInjector{}
	p, err := NewPlayer(&buf, inj)
	require.NoError(t, err)
	require.NoError(t, p.Run())

	require.Len(t, inj.advanced, 2)
	require.Len(t, inj.polled, 1)
	require.Equal(t, "a.example.com 10.0.0.1", inj.polled[0])
}

func TestReaderRejectsBadHeader(t *testing.T) {
	_, err := NewReader(bytes.NewBufferString("garbage\n"))
	require.Error(t, err)
}

func TestFieldsFromPacketDerivesRelativeOffsets(t *testing.T) {
	origin := tstamp.FromDouble(1_700_000_000)
	receive := tstamp.Add(origin, 0.1)
	transmit := tstamp.Add(origin, 0.3)
	rx := tstamp.Add(origin, 0.4)

	pkt := &wire.Packet{
		Leap: wire.LeapNoWarning, Version: 4, Mode: wire.ModeServer,
		Stratum: 1, Poll: 6, Precision: -20,
		RefID:     [4]byte{'G', 'P', 'S', 0},
		Reference: origin, Origin: origin, Receive: receive, Transmit: transmit,
	}

	f := FieldsFromPacket(pkt, rx)

	require.EqualValues(t, 1, f.Stratum)
	require.InDelta(t, 0.0, f.RefMinusOrig, 1e-9)
	require.InDelta(t, 0.1, f.RecvMinusOrig, 1e-9)
	require.InDelta(t, 0.2, f.XmitMinusRecv, 1e-9)
	require.InDelta(t, 0.1, f.RxMinusXmit, 1e-9)
	require.Equal(t, uint32(0x47505300), f.RefID)
}
