package peer

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bsdphk/ntimed/internal/combiner"
	"github.com/bsdphk/ntimed/internal/wire"
)

func newTestSet() *Set {
	return NewSet(combiner.New())
}

func (s *Set) addFake(ip string) *Peer {
	key := ip
	g := &group{hostname: ip}
	p := newPeer(ip, &net.UDPAddr{IP: net.ParseIP(ip), Port: 123}, g)
	p.Source = s.combiner.AddSource()
	if s.seen[key] {
		p.State = StateDuplicate
	} else {
		s.seen[key] = true
		s.uf.add(key)
	}
	s.peers = append(s.peers, p)
	return p
}

func TestNextIntervalRampsThenSettles(t *testing.T) {
	s := newTestSet()
	s.addFake("10.0.0.1")

	var total float64
	var last float64
	for i := 0; i < 20; i++ {
		last = s.NextInterval()
		total += last
		require.Greater(t, last, 0.0)
	}
	// once ramped past InitDuration, spacing should equal the steady
	// PollPeriod/activeCount.
	require.InDelta(t, s.PollPeriod/1.0, last, 1e-6)
}

func TestNextIntervalScalesWithPeerCount(t *testing.T) {
	s := newTestSet()
	s.addFake("10.0.0.1")
	s.addFake("10.0.0.2")

	for i := 0; i < 2; i++ {
		s.NextInterval()
	}
	for i := 0; i < 50; i++ {
		s.NextInterval()
	}
	d := s.NextInterval()
	require.InDelta(t, s.PollPeriod/2.0, d, 1e-6)
}

func TestDuplicateDetectionBySameAddress(t *testing.T) {
	s := newTestSet()
	a := s.addFake("10.0.0.1")
	b := s.addFake("10.0.0.1")

	require.NotEqual(t, StateDuplicate, a.State)
	require.Equal(t, StateDuplicate, b.State)
	require.Equal(t, 1, s.activeCount())
}

func TestNextActiveSkipsDuplicates(t *testing.T) {
	s := newTestSet()
	a := s.addFake("10.0.0.1")
	s.addFake("10.0.0.1") // duplicate

	p := s.nextActive()
	require.Same(t, a, p)
	p2 := s.nextActive()
	require.Same(t, a, p2)
}

func TestAddKnownRegistersByLiteralAddress(t *testing.T) {
	s := newTestSet()
	p := s.AddKnown("b.example.com", "10.0.0.2")

	require.Equal(t, "b.example.com", p.Hostname)
	require.Equal(t, "10.0.0.2", p.IP)
	require.NotEqual(t, StateDuplicate, p.State)
	require.Len(t, s.Peers(), 1)
}

func TestAddKnownDetectsDuplicateAddress(t *testing.T) {
	s := newTestSet()
	a := s.AddKnown("a.example.com", "10.0.0.1")
	b := s.AddKnown("b.example.com", "10.0.0.1")

	require.NotEqual(t, StateDuplicate, a.State)
	require.Equal(t, StateDuplicate, b.State)
}

func TestReportsUnsynchronized(t *testing.T) {
	good := &wire.Packet{Leap: wire.LeapNoWarning, Stratum: 2}
	require.False(t, reportsUnsynchronized(good))

	unknownLeap := &wire.Packet{Leap: wire.LeapUnknown, Stratum: 2}
	require.True(t, reportsUnsynchronized(unknownLeap))

	kissOfDeath := &wire.Packet{Leap: wire.LeapNoWarning, Stratum: 0}
	require.True(t, reportsUnsynchronized(kissOfDeath))

	badStratum := &wire.Packet{Leap: wire.LeapNoWarning, Stratum: 16}
	require.True(t, reportsUnsynchronized(badStratum))
}
