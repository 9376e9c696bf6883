package viperwolf

/*------------------------------------------------------------------
 *
 * Purpose:	Save received frames to a log file.
 *
 * Description: Write separated properties into CSV format for easy
 *		reading and later processing.
 *
 *		There are two alternatives here.
 *
 *		Dir		Daily names will be created here.
 *
 *		File		Specify full file path.
 *
 *		Use one or the other but not both.
 *
 *------------------------------------------------------------------*/

import (
	"encoding/csv"
	"encoding/hex"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
	"github.com/pkg/errors"
)

var frameLogHeader = []string{"chan", "utime", "isotime", "rec", "mark", "space", "len", "hex"}

const dailyLogName = "%Y-%m-%d.log"

type FrameLog struct {
	mu sync.Mutex

	dailyNames bool
	path       string // Directory for daily names, otherwise the file.

	isoFormat *strftime.Strftime
	nameFmt   *strftime.Strftime

	file      *os.File
	w         *csv.Writer
	openFname string

	logger *log.Logger
	now    func() time.Time
}

/*------------------------------------------------------------------
 *
 * Function:	NewFrameLog
 *
 * Purpose:	Set up the log.  Nothing is opened until the first frame.
 *
 * Inputs:	dir		- Directory for automatic daily file names.
 *		file		- Otherwise a single file.
 *		isoFormat	- strftime format for the isotime column.
 *
 * Returns:	nil, without error, if neither dir nor file is given.
 *
 *------------------------------------------------------------------*/

func NewFrameLog(dir, file, isoFormat string, logger *log.Logger) (*FrameLog, error) {
	if dir != "" && file != "" {
		return nil, errors.New("log directory and log file can't both be used")
	}

	if dir == "" && file == "" {
		return nil, nil //nolint:nilnil
	}

	if isoFormat == "" {
		isoFormat = "%Y-%m-%dT%H:%M:%SZ"
	}

	var iso, err = strftime.New(isoFormat)
	if err != nil {
		return nil, errors.Wrapf(err, "log timestamp format %q", isoFormat)
	}

	var names, _ = strftime.New(dailyLogName)

	var l = &FrameLog{ //nolint:exhaustruct
		isoFormat: iso,
		nameFmt:   names,
		logger:    defaultLogger(logger),
		now:       time.Now,
	}

	if dir != "" {
		// Automatic daily file names.
		if info, statErr := os.Stat(dir); statErr == nil {
			if !info.IsDir() {
				return nil, errors.Errorf("log file location %q is not a directory", dir)
			}
		} else {
			// Doesn't exist.  Try to create it.
			// We don't create multiple levels like "mkdir -p"
			if err := os.Mkdir(dir, 0o755); err != nil {
				return nil, errors.Wrapf(err, "failed to create log file location %q", dir)
			}
			l.logger.Info("log file location has been created", "dir", dir)
		}

		l.dailyNames = true
		l.path = dir
	} else {
		// Single file.
		// Typically logrotate would be used to keep size under control.
		l.path = file
	}

	return l, nil
}

// The file name to use for something heard at t.
func (l *FrameLog) fileName(t time.Time) string {
	if !l.dailyNames {
		return l.path
	}

	// Generate the file name from current date, UTC.
	return filepath.Join(l.path, l.nameFmt.FormatString(t.UTC()))
}

func (l *FrameLog) open(t time.Time) error {
	var fname = l.fileName(t)

	// Close current file if name has changed
	if l.file != nil && fname != l.openFname {
		l.closeFile()
	}

	if l.file != nil {
		return nil
	}

	// Used later to write a header if it did not exist already.
	var info, statErr = os.Stat(fname)
	var alreadyThere = statErr == nil && info.Size() > 0

	var f, err = os.OpenFile(fname, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return errors.Wrapf(err, "can't open log file %q for write", fname)
	}

	l.logger.Info("opening log file", "file", fname)

	l.file = f
	l.w = csv.NewWriter(f)
	l.openFname = fname

	// Write a header suitable for importing into a spreadsheet
	// only if this will be the first line.
	if !alreadyThere {
		if err := l.w.Write(frameLogHeader); err != nil {
			return errors.Wrap(err, "write log header")
		}
	}

	return nil
}

func (l *FrameLog) writeRecord(channel int, t time.Time, level AudioLevel, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.open(t); err != nil {
		return err
	}

	var utc = t.UTC()
	var record = []string{
		strconv.Itoa(channel),
		strconv.FormatInt(utc.Unix(), 10),
		l.isoFormat.FormatString(utc),
		strconv.Itoa(level.Rec),
		strconv.Itoa(level.Mark),
		strconv.Itoa(level.Space),
		strconv.Itoa(len(data)),
		hex.EncodeToString(data),
	}

	if err := l.w.Write(record); err != nil {
		return errors.Wrap(err, "write log")
	}

	l.w.Flush()

	return errors.Wrap(l.w.Error(), "write log")
}

// SendFrame adds a line for a received frame.
func (l *FrameLog) SendFrame(rf ReceivedFrame) error {
	var t = rf.Time
	if t.IsZero() {
		t = l.now()
	}

	return l.writeRecord(rf.Channel, t, rf.Level, rf.Data)
}

// WriteBeacon adds a line for a beacon message.  There is no audio level
// for those.
func (l *FrameLog) WriteBeacon(msg BeaconMessage) error {
	var t = msg.Time
	if t.IsZero() {
		t = l.now()
	}

	return l.writeRecord(msg.Channel, t, AudioLevel{Rec: -1, Mark: -1, Space: -1}, []byte(msg.Text))
}

func (l *FrameLog) closeFile() {
	if l.file != nil {
		l.w.Flush()
		l.file.Close()
	}

	l.file = nil
	l.w = nil
	l.openFname = ""
}

func (l *FrameLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closeFile()

	return nil
}
