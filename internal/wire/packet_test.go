package wire

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bsdphk/ntimed/internal/tstamp"
)

func samplePacket() *Packet {
	return &Packet{
		Leap:           LeapNoWarning,
		Version:        4,
		Mode:           ModeServer,
		Stratum:        2,
		Poll:           6,
		Precision:      -20,
		RootDelay:      tstamp.FromDouble(0.01),
		RootDispersion: tstamp.FromDouble(0.005),
		RefID:          [4]byte{1, 2, 3, 4},
		Reference:      tstamp.FromDouble(1700000000),
		Origin:         tstamp.FromDouble(1700000010),
		Receive:        tstamp.FromDouble(1700000010.5),
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	p := samplePacket()
	buf := make([]byte, Size)
	now := tstamp.FromDouble(1700000011)
	require.NoError(t, p.Pack(buf, now))

	got, err := Unpack(buf)
	require.NoError(t, err)

	require.Equal(t, p.Leap, got.Leap)
	require.Equal(t, p.Version, got.Version)
	require.Equal(t, p.Mode, got.Mode)
	require.Equal(t, p.Stratum, got.Stratum)
	require.Equal(t, p.Poll, got.Poll)
	require.Equal(t, p.Precision, got.Precision)
	require.Equal(t, p.RefID, got.RefID)
	require.InDelta(t, 0.0, tstamp.Diff(p.Reference, got.Reference), 1e-9)
	require.InDelta(t, 0.0, tstamp.Diff(p.Origin, got.Origin), 1e-9)
	require.InDelta(t, 0.0, tstamp.Diff(p.Receive, got.Receive), 1e-9)
	require.InDelta(t, 0.0, tstamp.Diff(p.Transmit, got.Transmit), 1e-9)
}

func TestUnpackRejectsWrongLength(t *testing.T) {
	_, err := Unpack(make([]byte, 10))
	require.Error(t, err)
}

func TestPackRejectsOutOfRangeFields(t *testing.T) {
	p := samplePacket()
	p.Version = 8
	require.Error(t, p.Pack(make([]byte, Size), tstamp.FromDouble(1)))

	p2 := samplePacket()
	p2.Stratum = 15
	require.Error(t, p2.Pack(make([]byte, Size), tstamp.FromDouble(1)))
}

func TestValidSettingsFormat(t *testing.T) {
	p := &Packet{Leap: LeapNoWarning, Version: 3, Mode: ModeClient}
	require.True(t, p.ValidSettingsFormat())

	p.Mode = ModeServer
	require.False(t, p.ValidSettingsFormat())
}
