// Package serialport opens the P1 port of a smart meter.
package serialport

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Settings describes the line parameters. DSMR 4 and 5 meters use 115200 8N1,
// DSMR 2.2 and 3 meters use 9600 7E1.
type Settings struct {
	Name        string
	BaudRate    int
	DataBits    int
	Parity      string
	ReadTimeout time.Duration
}

// Mode converts the settings into a serial.Mode.
func (s Settings) Mode() (*serial.Mode, error) {
	if s.BaudRate <= 0 {
		return nil, fmt.Errorf("invalid baud rate %d", s.BaudRate)
	}
	if s.DataBits != 7 && s.DataBits != 8 {
		return nil, fmt.Errorf("invalid data bits %d (want 7 or 8)", s.DataBits)
	}
	parity, err := ParseParity(s.Parity)
	if err != nil {
		return nil, err
	}
	return &serial.Mode{
		BaudRate: s.BaudRate,
		DataBits: s.DataBits,
		Parity:   parity,
		StopBits: serial.OneStopBit,
	}, nil
}

// ParseParity maps "none", "even" and "odd" (case-insensitive, empty means
// none) to the serial package constants.
func ParseParity(s string) (serial.Parity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "n":
		return serial.NoParity, nil
	case "even", "e":
		return serial.EvenParity, nil
	case "odd", "o":
		return serial.OddParity, nil
	default:
		return serial.NoParity, fmt.Errorf("unknown parity %q", s)
	}
}

// Open opens and configures the port. A positive ReadTimeout makes Read
// return with no data once the line stays quiet, which lets the caller notice
// idle periods.
func Open(s Settings) (serial.Port, error) {
	mode, err := s.Mode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(s.Name, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.Name, err)
	}
	if s.ReadTimeout > 0 {
		if err := port.SetReadTimeout(s.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("set read timeout on %s: %w", s.Name, err)
		}
	}
	return port, nil
}
