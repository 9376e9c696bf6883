package viperwolf

/*------------------------------------------------------------------
 *
 * Purpose:   	Act as a virtual KISS TNC for use by other packet radio
 *		applications.  This file provides the service by good
 *		old fashioned serial port.
 *
 * Description:	This implements the KISS TNC protocol as described in
 *		http://www.ka9q.net/papers/kiss.html
 *
 *		Typical usage would be a Bluetooth serial port to a
 *		phone or tablet, or a null modem cable to another computer.
 *
 *---------------------------------------------------------------*/

import (
	"github.com/charmbracelet/log"
	"github.com/pkg/term"
)

type KissSerial struct {
	*kissStreamPort

	fd *term.Term
}

func OpenKissSerial(device string, speed int, logger *log.Logger) (*KissSerial, error) {
	logger = defaultLogger(logger).With("kiss", "serial")

	var fd, err = OpenSerialPort(device, speed, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("opened serial port for KISS", "device", device, "speed", speed)

	return &KissSerial{
		kissStreamPort: newKissStreamPort(fd, logger),
		fd:             fd,
	}, nil
}

func (k *KissSerial) Close() error {
	k.stop()

	return k.fd.Close()
}
