package viperwolf

// Message classes and logger setup.

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// ColorClass is the kind of message, which decides how it is shown.
type ColorClass int

const (
	ColorInfo    ColorClass = iota /* black */
	ColorError                     /* red */
	ColorRec                       /* green */
	ColorDecoded                   /* blue */
	ColorXmit                      /* magenta */
	ColorDebug                     /* dark_green */
)

func (c ColorClass) String() string {
	switch c {
	case ColorInfo:
		return "info"
	case ColorError:
		return "error"
	case ColorRec:
		return "rec"
	case ColorDecoded:
		return "decoded"
	case ColorXmit:
		return "xmit"
	case ColorDebug:
		return "debug"
	}

	return "unknown"
}

// Level is the log level used for messages of this class.
func (c ColorClass) Level() log.Level {
	switch c {
	case ColorError:
		return log.ErrorLevel
	case ColorDebug:
		return log.DebugLevel
	}

	return log.InfoLevel
}

// Print logs msg at the level for class.  Received and decoded messages
// carry a "kind" key so they can be picked out.
func Print(logger *log.Logger, class ColorClass, msg string, keyvals ...any) {
	if class == ColorRec || class == ColorDecoded || class == ColorXmit {
		keyvals = append([]any{"kind", class.String()}, keyvals...)
	}

	logger.Log(class.Level(), msg, keyvals...)
}

/*-------------------------------------------------------------------
 *
 * Name:	NewLogger
 *
 * Purpose:	Logger for the whole application.
 *
 * Inputs:	w	- Usually stderr so stdout stays clean for output.
 *		level	- debug, info, warn, error.  Empty is info.
 *
 *--------------------------------------------------------------------*/

func NewLogger(w io.Writer, level string) *log.Logger {
	var logger = log.NewWithOptions(w, log.Options{ //nolint:exhaustruct
		ReportTimestamp: true,
		Prefix:          "viperwolf",
	})

	var lvl, err = log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = log.InfoLevel
	}

	logger.SetLevel(lvl)

	return logger
}

// Something to use when the caller doesn't supply a logger.
func defaultLogger(logger *log.Logger) *log.Logger {
	if logger != nil {
		return logger
	}

	return NewLogger(os.Stderr, "warn")
}
