// Package spectrum holds the 4096-channel energy spectrum types and the
// concurrent window accumulator fed by the ingestion path.
package spectrum

// NumChannels is the number of energy bins of a 12-bit detector.
const NumChannels = 4096

// minEventLen is the shortest raw report carrying a channel value.
const minEventLen = 3

// Channel is an energy bin index in [0, NumChannels).
type Channel int

// Valid reports whether c is a bin of the spectrum.
func (c Channel) Valid() bool {
	return c >= 0 && c < NumChannels
}

// ChannelFromEvent extracts the 12-bit channel packed in bytes 1 and 2 of a
// raw event report. It returns false when the report is too short.
func ChannelFromEvent(raw []byte) (Channel, bool) {
	if len(raw) < minEventLen {
		return 0, false
	}

	ch := Channel((int(raw[1])*256 + int(raw[2])) / 16)

	return ch, ch.Valid()
}

// Spectrum is a dense count vector, one counter per channel.
type Spectrum [NumChannels]uint64

// Add folds o into s element-wise.
func (s *Spectrum) Add(o *Spectrum) {
	for i := range s {
		s[i] += o[i]
	}
}

// Total returns the sum of all channel counts.
func (s *Spectrum) Total() uint64 {
	var sum uint64
	for _, n := range s {
		sum += n
	}

	return sum
}

// Cumulative is the running union of every window folded into it. It is
// owned by the control loop and is not safe for concurrent use.
type Cumulative struct {
	spectrum Spectrum
	folds    int
}

// Fold adds a window snapshot to the running total.
func (c *Cumulative) Fold(window *Spectrum) {
	c.spectrum.Add(window)
	c.folds++
}

// Spectrum returns a copy of the cumulative counts.
func (c *Cumulative) Spectrum() Spectrum {
	return c.spectrum
}

// Total returns the number of events folded so far.
func (c *Cumulative) Total() uint64 {
	return c.spectrum.Total()
}

// Folds returns how many windows were folded.
func (c *Cumulative) Folds() int {
	return c.folds
}
