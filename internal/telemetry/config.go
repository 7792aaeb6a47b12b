package telemetry

import (
	"net"

	"github.com/radangel/radangel/internal/errors"
)

const defaultNamespace = "radangel"

type Config struct {
	// Addr is the listen address of the /metrics endpoint, empty disables
	// the exporter.
	Addr      string
	Namespace string
	DeviceID  string
}

func DefaultConfig() Config {
	return Config{
		Namespace: defaultNamespace,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.Addr == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return errFactory.Wrap(ErrInvalidAddr, err)
	}

	return nil
}
