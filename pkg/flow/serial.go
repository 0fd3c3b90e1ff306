package flow

import (
	"fmt"
	"io"
	"time"

	"github.com/albenik/go-serial/v2"
)

// SerialOpener opens the baseband's telemetry UART
func SerialOpener(device string, baud int, readTimeout time.Duration) Opener {
	return func() (io.ReadCloser, error) {
		port, err := serial.Open(device,
			serial.WithBaudrate(baud),
			serial.WithDataBits(8),
			serial.WithParity(serial.NoParity),
			serial.WithStopBits(serial.OneStopBit),
			serial.WithReadTimeout(int(readTimeout/time.Millisecond)),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", device, err)
		}
		if err := port.ResetInputBuffer(); err != nil {
			port.Close()
			return nil, fmt.Errorf("failed to flush %s: %w", device, err)
		}
		return port, nil
	}
}
