package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// ratioSampler lets num out of every den events through. The ratio is packed
// into one atomic word so Allow stays lock-free on the hot path.
type ratioSampler struct {
	state atomic.Uint64
	tick  atomic.Uint64
}

func newRatioSampler(num, den int) *ratioSampler {
	s := &ratioSampler{}
	s.Set(num, den)
	return s
}

// Set configures the ratio. Non-positive values disable sampling, which
// means every event passes.
func (s *ratioSampler) Set(num, den int) {
	if num <= 0 || den <= 0 {
		s.state.Store(0)
		s.tick.Store(0)
		return
	}
	if num > den {
		num = den
	}
	s.state.Store(uint64(num)<<32 | uint64(uint32(den)))
	s.tick.Store(0)
}

// Allow reports whether the current event passes the sampling ratio.
func (s *ratioSampler) Allow() bool {
	packed := s.state.Load()
	den := uint64(uint32(packed))
	if den == 0 {
		return true
	}
	num := packed >> 32
	n := s.tick.Add(1)
	return (n-1)%den < num
}

// parseRatioSpec reads "N/M", a bare denominator "M" (meaning 1/M), or the
// disabling words "off"/"none". Unparseable input reads as disabled.
func parseRatioSpec(spec string) (int, int) {
	spec = strings.ToLower(strings.TrimSpace(spec))
	switch spec {
	case "", "off", "none":
		return 0, 0
	}
	if numStr, denStr, ok := strings.Cut(spec, "/"); ok {
		num, err1 := strconv.Atoi(strings.TrimSpace(numStr))
		den, err2 := strconv.Atoi(strings.TrimSpace(denStr))
		if err1 != nil || err2 != nil {
			return 0, 0
		}
		return num, den
	}
	v, err := strconv.Atoi(spec)
	if err != nil || v <= 0 {
		return 0, 0
	}
	return 1, v
}
