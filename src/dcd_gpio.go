package viperwolf

/*------------------------------------------------------------------
 *
 * Purpose:   	Show the data carrier detect state on a GPIO line,
 *		e.g. to light an LED.
 *
 * Description:	Uses the Linux GPIO character device, /dev/gpiochipN,
 *		rather than the old /sys/class/gpio interface so no
 *		special permissions dance is needed beyond access to
 *		the chip device.
 *
 *---------------------------------------------------------------*/

import (
	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
)

// What we need from a requested GPIO line.  *gpiocdev.Line in real life.
type gpioOutputLine interface {
	SetValue(v int) error
	Close() error
}

type DCDIndicator struct {
	line   gpioOutputLine
	logger *log.Logger
}

/*-------------------------------------------------------------------
 *
 * Name:	OpenDCDIndicator
 *
 * Inputs:	chip		- e.g. "gpiochip0".
 *		offset		- Line number on that chip.
 *		activeLow	- Output is low when DCD is on.
 *
 *--------------------------------------------------------------------*/

func OpenDCDIndicator(chip string, offset int, activeLow bool, logger *log.Logger) (*DCDIndicator, error) {
	logger = defaultLogger(logger).With("gpio", chip, "line", offset)

	var opts = []gpiocdev.LineReqOption{
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer("viperwolf"),
	}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	var line, err = gpiocdev.RequestLine(chip, offset, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "request GPIO %s line %d for DCD", chip, offset)
	}

	logger.Info("DCD indicator ready")

	return &DCDIndicator{line: line, logger: logger}, nil
}

// Set is suitable for Channel.OnDCDChange.
func (d *DCDIndicator) Set(on bool) {
	var v = 0
	if on {
		v = 1
	}

	if err := d.line.SetValue(v); err != nil {
		d.logger.Warn("can't set DCD GPIO", "err", err)
	}
}

func (d *DCDIndicator) Close() error {
	d.line.SetValue(0) //nolint:errcheck

	return d.line.Close()
}
