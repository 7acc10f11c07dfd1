package pll

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bsdphk/ntimed/internal/timebase"
)

func testConfig() Config {
	return Config{
		PInit:       0.33,
		IInit:       60,
		CaptureTime: 300,
		StiffenRate: 0.999,
		PLimit:      3e-2,
	}
}

func TestModeProgression(t *testing.T) {
	sim := timebase.NewSimBackend()
	p := New(sim)
	cfg := testConfig()

	r := p.Update(0.01, 10, cfg)
	require.Equal(t, ModeWaitStep, r.Mode)

	sim.Sleep(3)
	r = p.Update(0.01, 10, cfg)
	require.Equal(t, ModeWaitTrack, r.Mode)

	sim.Sleep(7)
	r = p.Update(0.01, 10, cfg)
	require.Equal(t, ModeTrack, r.Mode)
}

func TestGrossOffsetTriggersStep(t *testing.T) {
	sim := timebase.NewSimBackend()
	p := New(sim)
	cfg := testConfig()

	p.Update(0.5, 10, cfg)
	sim.Sleep(3)
	before := sim.Generation()
	p.Update(0.5, 10, cfg)
	require.Greater(t, sim.Generation(), before)
}

func TestSmallOffsetSkipsStep(t *testing.T) {
	sim := timebase.NewSimBackend()
	p := New(sim)
	cfg := testConfig()

	p.Update(1e-5, 10, cfg)
	sim.Sleep(3)
	before := sim.Generation()
	r := p.Update(1e-5, 10, cfg)
	require.Equal(t, before, sim.Generation())
	require.Equal(t, ModeWaitTrack, r.Mode)
}

func TestTrackModeClampsPTerm(t *testing.T) {
	sim := timebase.NewSimBackend()
	p := New(sim)
	cfg := testConfig()

	p.Update(0.5, 10, cfg)
	sim.Sleep(3)
	p.Update(0.5, 10, cfg)
	sim.Sleep(7)
	p.Update(0.0, 10, cfg)

	sim.Sleep(1)
	r := p.Update(100.0, 200, cfg)
	require.Equal(t, ModeTrack, r.Mode)
	require.LessOrEqual(t, r.PTerm, r.Dur*500e-6+1e-12)
	require.GreaterOrEqual(t, r.PTerm, -r.Dur*500e-6-1e-12)
}

func TestGenerationChangeResetsToStartup(t *testing.T) {
	sim := timebase.NewSimBackend()
	p := New(sim)
	cfg := testConfig()

	p.Update(0.01, 10, cfg)
	sim.Sleep(3)
	p.Update(0.01, 10, cfg)
	require.Equal(t, ModeWaitTrack, p.Mode())

	sim.Step(0.2)
	r := p.Update(0.01, 10, cfg)
	require.Equal(t, ModeWaitStep, r.Mode)
}

func TestLowWeightUsesConservativeGains(t *testing.T) {
	sim := timebase.NewSimBackend()
	p := New(sim)
	cfg := testConfig()

	p.Update(0.0, 10, cfg)
	sim.Sleep(3)
	p.Update(0.0, 10, cfg)
	sim.Sleep(7)
	p.Update(0.0, 10, cfg)

	sim.Sleep(1)
	r := p.Update(0.01, 10, cfg)
	require.InDelta(t, 3e-2, r.UsedA, 1e-12)
	require.InDelta(t, 5e-4, r.UsedB, 1e-12)
}
