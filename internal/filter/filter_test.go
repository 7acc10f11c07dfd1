package filter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bsdphk/ntimed/internal/tstamp"
	"github.com/bsdphk/ntimed/internal/wire"
)

func goodPacket(origin, receive, transmit, rx float64) *wire.Packet {
	return &wire.Packet{
		Leap:      wire.LeapNoWarning,
		Version:   4,
		Mode:      wire.ModeServer,
		Stratum:   2,
		Reference: tstamp.FromDouble(1700000000),
		Origin:    tstamp.FromDouble(origin),
		Receive:   tstamp.FromDouble(receive),
		Transmit:  tstamp.FromDouble(transmit),
		RxTime:    tstamp.FromDouble(rx),
	}
}

func TestUpdateRejectsBadMode(t *testing.T) {
	f := New()
	p := goodPacket(1700000010, 1700000010.1, 1700000010.2, 1700000010.3)
	p.Mode = wire.ModeClient
	_, err := f.Update(1, p, 20, 3.0)
	require.Error(t, err)
}

func TestUpdateRejectsReceiveAfterTransmit(t *testing.T) {
	f := New()
	p := goodPacket(1700000010, 1700000010.1, 1700000010.05, 1700000010.3)
	_, err := f.Update(1, p, 20, 3.0)
	require.Error(t, err)
}

func TestUpdateTrustByStratum(t *testing.T) {
	f := New()
	p := goodPacket(1700000010, 1700000010.1, 1700000010.2, 1700000010.3)
	p.Stratum = 4
	s, err := f.Update(1, p, 20, 3.0)
	require.NoError(t, err)
	require.InDelta(t, 0.25, s.Trust, 1e-9)
	require.GreaterOrEqual(t, s.Trust, 0.0)
	require.LessOrEqual(t, s.Trust, 1.0)
}

func TestUpdateTrustZeroAtStratum15(t *testing.T) {
	f := New()
	p := goodPacket(1700000010, 1700000010.1, 1700000010.2, 1700000010.3)
	p.Stratum = 15
	s, err := f.Update(1, p, 20, 3.0)
	require.NoError(t, err)
	require.Zero(t, s.Trust)
}

func TestNavgCapsAtParameter(t *testing.T) {
	f := New()
	for i := 0; i < 50; i++ {
		base := 1700000000.0 + float64(i)
		p := goodPacket(base, base+0.1, base+0.2, base+0.3)
		_, err := f.Update(1, p, 5, 3.0)
		require.NoError(t, err)
		require.LessOrEqual(t, f.Navg(), 5.0)
	}
	require.Equal(t, 5.0, f.Navg())
}

func TestGenerationChangeResetsAverages(t *testing.T) {
	f := New()
	for i := 0; i < 10; i++ {
		base := 1700000000.0 + float64(i)
		p := goodPacket(base, base+0.1, base+0.2, base+0.3)
		_, err := f.Update(1, p, 20, 3.0)
		require.NoError(t, err)
	}
	require.Greater(t, f.Navg(), 1.0)

	p := goodPacket(1700000100, 1700000100.1, 1700000100.2, 1700000100.3)
	_, err := f.Update(2, p, 20, 3.0)
	require.NoError(t, err)
	require.Equal(t, 1.0, f.Navg())
}

func TestOutlierStillAccepted(t *testing.T) {
	f := New()
	for i := 0; i < 10; i++ {
		base := 1700000000.0 + float64(i)
		p := goodPacket(base, base+0.1, base+0.2, base+0.3)
		_, err := f.Update(1, p, 20, 3.0)
		require.NoError(t, err)
	}
	base := 1700000010.0
	outlier := goodPacket(base, base+5.0, base+5.1, base+0.3)
	s, err := f.Update(1, outlier, 20, 3.0)
	require.NoError(t, err)
	require.NotEqual(t, 4, s.Branch)
}
