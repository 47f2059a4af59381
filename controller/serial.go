package controller

import (
	"io"

	"github.com/tarm/serial"
)

// openSerial opens the command port. Reads block until data arrives.
func openSerial(port string, baud int) (io.ReadWriteCloser, error) {
	c := &serial.Config{Name: port, Baud: baud}
	s, err := serial.OpenPort(c)
	if err != nil {
		return nil, err
	}
	return s, nil
}
