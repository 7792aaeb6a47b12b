package export

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/radangel/radangel/internal/errors"
	"github.com/radangel/radangel/internal/logger"
	"github.com/radangel/radangel/internal/spectrum"
)

// radAngelCalibration is the stock RadAngel energy calibration and detector
// description appended to every SPE file.
const radAngelCalibration = `$ENER_FIT:
-357.199955175409 0.969844070381318
$ENER_DATA:
2
494.1 122
1050.47809878844 661.6
$KROMEK_INFO:
LLD:
402
SCO:
off
PRODUCT_FAMILY:
RADANGEL
DETECTOR_TYPE:
RA4S
DETECTOR_TYPE_ID:
256
`

// SPE is the content of an SPE spectrum file.
type SPE struct {
	Timestamp  time.Time
	DeviceID   string
	RealTime   float64
	LiveTime   float64
	TotalCount uint64
	Spectrum   spectrum.Spectrum
}

// WriteSPE writes s to path, replacing any existing file.
func WriteSPE(path string, s *SPE) error {
	errFactory := errors.New()

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errFactory.Wrap(ErrOpenFailed, err)
	}

	w := bufio.NewWriter(f)
	writeSPE(w, s)

	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errFactory.Wrap(ErrWriteFailed, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errFactory.Wrap(ErrSyncFailed, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errFactory.Wrap(ErrWriteFailed, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errFactory.Wrap(ErrWriteFailed, err)
	}

	logger.Info().
		Str("path", path).
		Uint64("total_count", s.TotalCount).
		Msg("Spectrum exported")

	return nil
}

func writeSPE(w *bufio.Writer, s *SPE) {
	fmt.Fprintln(w, "$SPEC_REM:")
	fmt.Fprintln(w, "#timestamp,device_ID,realtime,livetime,totalcount")
	fmt.Fprintf(w, "%s,%s,%0.3f,%0.3f,%d\n",
		s.Timestamp.UTC().Format(TimestampFormat), s.DeviceID, s.RealTime, s.LiveTime, s.TotalCount)
	fmt.Fprintln(w, "$MEAS_TIM:")
	fmt.Fprintf(w, "%d %d\n", int64(s.LiveTime), int64(s.RealTime))
	fmt.Fprintln(w, "$DATA:")
	fmt.Fprintf(w, "0 %d\n", spectrum.NumChannels-1)
	for _, n := range s.Spectrum {
		fmt.Fprintf(w, "%d\n", n)
	}
	w.WriteString(radAngelCalibration)
}
