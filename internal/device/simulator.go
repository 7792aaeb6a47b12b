package device

import (
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/radangel/radangel/internal/errors"
	"github.com/radangel/radangel/internal/spectrum"
)

const (
	// Cs-137 photopeak and the lower discriminator of a RadAngel, in
	// channels of its stock energy calibration.
	photopeakChannel = 1050
	photopeakSigma   = 30
	lldChannel       = 402
	continuumScale   = 250
	photopeakShare   = 0.35

	// SimulatorPath is reported as the path of a simulated detector.
	SimulatorPath = "simulator"
)

// Simulator emits Poisson distributed events with a Cs-137 like spectrum.
// It implements the same Poll contract as Device.
type Simulator struct {
	interarrival distuv.Exponential
	peak         distuv.Normal
	continuum    distuv.Exponential
	pick         distuv.Uniform
	nibble       *rand.Rand

	next  time.Time
	now   func() time.Time
	sleep func(time.Duration)
}

// NewSimulator returns a source averaging rate events per second.
func NewSimulator(rate float64, seed uint64) (*Simulator, error) {
	errFactory := errors.New()

	if rate <= 0 || math.IsInf(rate, 0) || math.IsNaN(rate) {
		return nil, errFactory.WithData(errors.ErrInvalidArgument, rate)
	}

	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)

	return &Simulator{
		interarrival: distuv.Exponential{Rate: rate, Src: src},
		peak:         distuv.Normal{Mu: photopeakChannel, Sigma: photopeakSigma, Src: src},
		continuum:    distuv.Exponential{Rate: 1.0 / continuumScale, Src: src},
		pick:         distuv.Uniform{Min: 0, Max: 1, Src: src},
		nibble:       rand.New(src),
		now:          time.Now,
		sleep:        time.Sleep,
	}, nil
}

// Poll waits for the next simulated event, at most timeout.
func (s *Simulator) Poll(timeout time.Duration) ([]byte, error) {
	now := s.now()
	if s.next.IsZero() {
		s.next = now.Add(s.draw())
	}

	wait := s.next.Sub(now)
	if wait > timeout {
		s.sleep(timeout)
		return nil, nil
	}
	if wait > 0 {
		s.sleep(wait)
	}

	s.next = s.next.Add(s.draw())

	return s.report(s.channel()), nil
}

func (s *Simulator) draw() time.Duration {
	return time.Duration(s.interarrival.Rand() * float64(time.Second))
}

func (s *Simulator) channel() spectrum.Channel {
	var ch float64
	if s.pick.Rand() < photopeakShare {
		ch = s.peak.Rand()
	} else {
		ch = lldChannel + s.continuum.Rand()
	}

	return spectrum.Channel(min(max(int(ch), 0), spectrum.NumChannels-1))
}

// report packs ch the way the detector does: 12 bits of channel followed
// by 4 bits of sub-channel noise in bytes 1 and 2.
func (s *Simulator) report(ch spectrum.Channel) []byte {
	v := int(ch)<<4 | s.nibble.IntN(16)

	r := make([]byte, ReportSize)
	r[1] = byte(v >> 8)
	r[2] = byte(v)

	return r
}
