package device

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radangel/radangel/internal/errors"
	"github.com/radangel/radangel/internal/spectrum"
)

type fakeHandle struct {
	reports [][]byte
	readErr error
	closed  bool
}

func (h *fakeHandle) ReadWithTimeout(p []byte, _ time.Duration) (int, error) {
	if h.readErr != nil {
		return 0, h.readErr
	}
	if len(h.reports) == 0 {
		return 0, nil
	}

	n := copy(p, h.reports[0])
	h.reports = h.reports[1:]

	return n, nil
}

func (h *fakeHandle) GetMfrStr() (string, error)     { return "Kromek", nil }
func (h *fakeHandle) GetProductStr() (string, error) { return "RadAngel", nil }

func (h *fakeHandle) Close() error {
	h.closed = true
	return nil
}

type fakeBackend struct {
	refs     int
	devices  []Info
	handle   *fakeHandle
	openErr  error
	openedBy string
}

func (b *fakeBackend) Init() error { b.refs++; return nil }
func (b *fakeBackend) Exit() error { b.refs--; return nil }

func (b *fakeBackend) Enumerate(vendorID, _ uint16) ([]Info, error) {
	var out []Info
	for _, d := range b.devices {
		if d.VendorID == vendorID {
			out = append(out, d)
		}
	}

	return out, nil
}

func (b *fakeBackend) Open(_, _ uint16) (hidHandle, error) {
	b.openedBy = "id"
	if b.openErr != nil {
		return nil, b.openErr
	}

	return b.handle, nil
}

func (b *fakeBackend) OpenPath(path string) (hidHandle, error) {
	b.openedBy = path
	if b.openErr != nil {
		return nil, b.openErr
	}

	return b.handle, nil
}

func TestEnumerateFiltersVendor(t *testing.T) {
	b := &fakeBackend{devices: []Info{
		{Path: "/dev/hidraw0", VendorID: VendorID, ProductID: ProductID},
		{Path: "/dev/hidraw1", VendorID: 0x046d, ProductID: 0xc52b},
		{Path: "/dev/hidraw2", VendorID: VendorID, ProductID: ProductID},
	}}

	devices, err := enumerate(b)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "/dev/hidraw0", devices[0].Path)
	assert.Equal(t, "/dev/hidraw2", devices[1].Path)
	assert.Zero(t, b.refs, "library must be released after enumeration")
}

func TestOpenByPathAndPoll(t *testing.T) {
	h := &fakeHandle{reports: [][]byte{{0x00, 0x10, 0x00}, {0x00, 0xFF, 0xFF}}}
	b := &fakeBackend{handle: h}

	d, err := open(b, "/dev/hidraw0")
	require.NoError(t, err)
	assert.Equal(t, "/dev/hidraw0", b.openedBy)
	assert.Equal(t, "Kromek", d.Manufacturer())
	assert.Equal(t, "RadAngel", d.Product())
	assert.Equal(t, "/dev/hidraw0", d.Path())

	r, err := d.Poll(50 * time.Millisecond)
	require.NoError(t, err)
	ch, ok := spectrum.ChannelFromEvent(r)
	require.True(t, ok)
	assert.Equal(t, spectrum.Channel(256), ch)

	second, err := d.Poll(50 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xFF, 0xFF}, second)
	assert.Equal(t, byte(0x10), r[1], "reports must not share the read buffer")

	r, err = d.Poll(50 * time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, r, "timeout yields no report")

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	assert.True(t, h.closed)
	assert.Zero(t, b.refs)

	_, err = d.Poll(50 * time.Millisecond)
	assert.True(t, errors.HasCode(err, ErrDeviceFailure))
}

func TestOpenFirstDevice(t *testing.T) {
	b := &fakeBackend{handle: &fakeHandle{}}

	d, err := open(b, "")
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, "id", b.openedBy)
}

func TestOpenNotFound(t *testing.T) {
	b := &fakeBackend{openErr: stderrors.New("no such device")}

	_, err := open(b, "/dev/hidraw9")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrDeviceNotFound))
	assert.Zero(t, b.refs)
}

func TestPollReadErrorIsDeviceFailure(t *testing.T) {
	b := &fakeBackend{handle: &fakeHandle{readErr: stderrors.New("device disconnected")}}

	d, err := open(b, "/dev/hidraw0")
	require.NoError(t, err)
	defer d.Close()

	_, err = d.Poll(50 * time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrDeviceFailure))
}

// fakeClock advances only when the simulator sleeps.
type fakeClock struct {
	now   time.Time
	slept []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
}

func TestSimulatorRate(t *testing.T) {
	sim, err := NewSimulator(1000, 42)
	require.NoError(t, err)

	clock := &fakeClock{now: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	sim.now, sim.sleep = clock.Now, clock.Sleep

	start := clock.now
	timeout := 50 * time.Millisecond

	var events, peak int
	for clock.now.Sub(start) < 10*time.Second {
		r, err := sim.Poll(timeout)
		require.NoError(t, err)
		if r == nil {
			continue
		}

		require.Len(t, r, ReportSize)
		ch, ok := spectrum.ChannelFromEvent(r)
		require.True(t, ok)
		if ch > photopeakChannel-3*photopeakSigma && ch < photopeakChannel+3*photopeakSigma {
			peak++
		}
		events++
	}

	assert.InDelta(t, 10000, events, 500)
	assert.Greater(t, peak, events/4, "photopeak must stand out of the continuum")
	for _, d := range clock.slept {
		assert.LessOrEqual(t, d, timeout)
	}
}

func TestSimulatorTimeout(t *testing.T) {
	sim, err := NewSimulator(0.001, 7)
	require.NoError(t, err)

	clock := &fakeClock{now: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	sim.now, sim.sleep = clock.Now, clock.Sleep
	sim.next = clock.now.Add(time.Hour)

	r, err := sim.Poll(50 * time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, r)
	assert.Equal(t, []time.Duration{50 * time.Millisecond}, clock.slept)
}

func TestSimulatorInvalidRate(t *testing.T) {
	_, err := NewSimulator(0, 1)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidArgument))
}
