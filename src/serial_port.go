package viperwolf

/*------------------------------------------------------------------
 *
 * Purpose:   	Interface to serial port, hiding operating system differences.
 *
 *---------------------------------------------------------------*/

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/pkg/term"
)

/*-------------------------------------------------------------------
 *
 * Name:	OpenSerialPort
 *
 * Purpose:	Open serial port.
 *
 * Inputs:	devicename	- Usually like /dev/ttyUSB0.
 *				  "COMn" also allowed and converted to /dev/ttyS(n-1)
 *				  Could be /dev/rfcomm0 for Bluetooth.
 *
 *		baud		- Speed.  1200, 4800, 9600 bps, etc.
 *				  If 0, leave it alone.
 *
 *---------------------------------------------------------------*/

func OpenSerialPort(devicename string, baud int, logger *log.Logger) (*term.Term, error) {
	logger = defaultLogger(logger)

	var name = devicename

	/* Translate Windows device name into Linux name. */
	/* COM1 -> /dev/ttyS0, etc. */
	if len(name) > 3 && strings.EqualFold(name[:3], "COM") {
		if n, err := strconv.Atoi(name[3:]); err == nil {
			name = "/dev/ttyS" + strconv.Itoa(max(n, 1)-1)
			logger.Info("converted serial port name", "from", devicename, "to", name)
		}
	}

	var fd, err = term.Open(name, term.RawMode)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open serial port %s", name)
	}

	switch baud {
	case 0: /* Leave it alone. */
	case 1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200:
		err = fd.SetSpeed(baud)
	default:
		logger.Warn("unsupported serial port speed, using 4800", "speed", baud)
		err = fd.SetSpeed(4800)
	}

	if err != nil {
		fd.Close()

		return nil, errors.Wrapf(err, "set speed of %s", name)
	}

	return fd, nil
}
