package sim

// SplitMix64 is a small, fast, deterministic PRNG. The grid holds no
// SplitMix64 stream: its per-component per-tick draws come from
// componentDraw, which starts from mix64(seed_root XOR simulation_id) and
// derives fresh states with mix64, so draws are independent of iteration
// order.
type SplitMix64 struct {
	state uint64
}

func NewSplitMix64(seed uint64) *SplitMix64 {
	return &SplitMix64{state: seed}
}

func (r *SplitMix64) Next() uint64 {
	r.state += 0x9e3779b97f4a7c15
	z := r.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Float64 returns a uniform value in [0, 1).
func (r *SplitMix64) Float64() float64 {
	return float64(r.Next()>>11) / (1 << 53)
}

// mix64 finalizes a 64-bit value (SplitMix64 finalizer).
func mix64(z uint64) uint64 {
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// componentDraw returns the deterministic [0,1) draw for one component at one
// tick. The value depends only on (seedRoot, simulationID, componentID,
// tickNumber, salt), never on iteration order or wall time.
func componentDraw(seedRoot, simID uint64, componentID int64, tick uint64, salt uint64) float64 {
	s := mix64(seedRoot ^ simID)
	s = mix64(s ^ uint64(componentID)*0x9e3779b97f4a7c15)
	s = mix64(s ^ tick*0xd1b54a32d192ed03)
	s = mix64(s ^ salt)
	return float64(s>>11) / (1 << 53)
}
