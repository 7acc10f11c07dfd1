package params

// Defaults holds the float64 storage cells for every built-in
// parameter, bound into a Table by NewDefaultTable.
type Defaults struct {
	NTPFilterAverage   float64
	NTPFilterThreshold float64

	PLLStdPInit        float64
	PLLStdIInit        float64
	PLLStdCaptureTime  float64
	PLLStdStiffenRate  float64
	PLLStdPLimit       float64

	CombinerQuorum float64

	PollPeriod   float64
	InitDuration float64
	InitPackets  float64
}

// NewDefaultTable builds the parameter table the driver installs at
// startup, with every built-in parameter registered against a backing
// Defaults struct.
func NewDefaultTable() (*Table, *Defaults) {
	t := NewTable()
	d := &Defaults{}

	t.Register("ntp_filter_average", 3, 1e3, 20,
		"Exponential average divisor for average packet delays. The value "+
			"chosen is a compromise between gliding through congestion of "+
			"common durations and reacting to large-scale routing changes "+
			"in a timely manner.",
		&d.NTPFilterAverage)

	t.Register("ntp_filter_threshold", 0.01, 10.0, 3.00,
		"Packet delays exceeding the average by this factor are "+
			"untrustworthy. Setting this too high increases noise from "+
			"(mild) congestion. Setting it too low throws away adequate "+
			"timestamps.",
		&d.NTPFilterThreshold)

	t.Register("pll_std_p_init", 1e-3, 0.50, 0.33,
		"Proportional term when the PLL starts. Reducing this makes the "+
			"PLL more resistant to measurement noise and jitter, but also "+
			"makes it converge slower. Increasing it will almost certainly "+
			"cause oscillation.",
		&d.PLLStdPInit)

	t.Register("pll_std_i_init", 10, 1000, 60,
		"Initial P/I ratio when the PLL starts. Reducing this speeds up "+
			"convergence but risks overshoot. Increasing it slows "+
			"convergence and reduces the impact of noise.",
		&d.PLLStdIInit)

	t.Register("pll_std_capture_time", 20, 1e6, 300,
		"Capture time before stiffening the PLL. After this many seconds "+
			"the PLL starts to stiffen the P and I terms to gain noise "+
			"immunity.",
		&d.PLLStdCaptureTime)

	t.Register("pll_std_stiffen_rate", 0.5, 1.0, 0.999,
		"Exponential per-second stiffening rate of the P and I terms once "+
			"capture time has elapsed.",
		&d.PLLStdStiffenRate)

	t.Register("pll_std_p_limit", 1e-6, 0.50, 3e-2,
		"Lower limit for the proportional term below which stiffening "+
			"stops.",
		&d.PLLStdPLimit)

	t.Register("ntp_combiner_quorum", 1, 64, 1,
		"Minimum number of peer intervals that must contain the combiner's "+
			"chosen offset for it to be published.",
		&d.CombinerQuorum)

	t.Register("poll_period", 1, 3600, 64,
		"Steady-state total poll period spread across all active peers.",
		&d.PollPeriod)

	t.Register("init_duration", 1, 3600, 64,
		"Duration of the startup polling ramp, in seconds.",
		&d.InitDuration)

	t.Register("init_packets", 1, 100, 6,
		"Approximate number of packets per peer to send during the "+
			"startup polling ramp.",
		&d.InitPackets)

	return t, d
}
