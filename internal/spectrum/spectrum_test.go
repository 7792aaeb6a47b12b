package spectrum_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radangel/radangel/internal/spectrum"
)

func TestChannelFromEvent(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want spectrum.Channel
		ok   bool
	}{
		{"high byte only", []byte{0x00, 0x10, 0x00}, 256, true},
		{"low nibble floors to zero", []byte{0x00, 0x00, 0x0F}, 0, true},
		{"upper boundary", []byte{0x00, 0xFF, 0xFF}, 4095, true},
		{"first nonzero channel", []byte{0x00, 0x00, 0x10}, 1, true},
		{"full report", append([]byte{0x01, 0x80, 0x00}, make([]byte, 59)...), 2048, true},
		{"too short", []byte{0x00, 0x10}, 0, false},
		{"empty", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch, ok := spectrum.ChannelFromEvent(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, ch)
			}
		})
	}
}

func TestChannelValid(t *testing.T) {
	assert.True(t, spectrum.Channel(0).Valid())
	assert.True(t, spectrum.Channel(4095).Valid())
	assert.False(t, spectrum.Channel(4096).Valid())
	assert.False(t, spectrum.Channel(-1).Valid())
}

func TestSpectrumAddAndTotal(t *testing.T) {
	var a, b spectrum.Spectrum
	a[0], a[4095] = 3, 4
	b[0], b[10] = 1, 2

	a.Add(&b)

	assert.Equal(t, uint64(4), a[0])
	assert.Equal(t, uint64(2), a[10])
	assert.Equal(t, uint64(4), a[4095])
	assert.Equal(t, uint64(10), a.Total())
}

func TestCumulativeFold(t *testing.T) {
	var c spectrum.Cumulative

	var w1, w2 spectrum.Spectrum
	w1[100] = 5
	w2[100] = 2
	w2[200] = 1

	c.Fold(&w1)
	before := c.Spectrum()
	c.Fold(&w2)
	after := c.Spectrum()

	require.Equal(t, 2, c.Folds())
	assert.Equal(t, uint64(8), c.Total())
	for i := range after {
		assert.GreaterOrEqual(t, after[i], before[i], "channel %d decreased", i)
	}
}
