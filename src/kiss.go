package viperwolf

/*------------------------------------------------------------------
 *
 * Purpose:   	Act as a virtual KISS TNC for use by other packet radio
 *		applications, through a pseudo terminal.
 *
 * Description:	This provides a pseudo terminal for communication with
 *		a client application.  The device name is not the same
 *		every time so a symlink, /tmp/kisstnc, points to it.
 *
 *		The same byte stream handling is used for a real serial
 *		port in kissserial.go.
 *
 *---------------------------------------------------------------*/

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/creack/pty"
	"github.com/pkg/errors"
)

const TmpKissTNCSymlink = "/tmp/kisstnc"

// Frames waiting to be written to a stream port.
const kissStreamBacklog = 32

/*
 * A KISS client at the other end of a byte stream.
 *
 * We had a problem since the beginning.  If no one was reading
 * from the other end of the pseudo terminal, the buffer space
 * would eventually fill up, the write would block, and the receive
 * decode would get stuck.  So writes are done separately and
 * frames are dropped when the backlog is full.
 */
type kissStreamPort struct {
	rw     io.ReadWriter
	out    chan []byte
	done   chan struct{}
	logger *log.Logger
}

func newKissStreamPort(rw io.ReadWriter, logger *log.Logger) *kissStreamPort {
	var p = &kissStreamPort{
		rw:     rw,
		out:    make(chan []byte, kissStreamBacklog),
		done:   make(chan struct{}),
		logger: logger,
	}

	go p.writer()
	go p.reader()

	return p
}

func (p *kissStreamPort) writer() {
	for {
		select {
		case msg := <-p.out:
			if _, err := p.rw.Write(msg); err != nil {
				p.logger.Warn("KISS write failed", "err", err)
			}
		case <-p.done:
			return
		}
	}
}

func (p *kissStreamPort) reader() {
	var decoder = NewKissDecoder()
	var buf = make([]byte, 256)

	for {
		var n, err = p.rw.Read(buf)
		for _, b := range buf[:n] {
			if ev, ok := decoder.Feed(b); ok {
				kissHandleEvent(ev, p.queue, p.logger)
			}
		}

		if err != nil {
			select {
			case <-p.done:
			default:
				p.logger.Warn("KISS read failed", "err", err)
			}

			return
		}
	}
}

func (p *kissStreamPort) queue(msg []byte) {
	select {
	case p.out <- msg:
	default:
		p.logger.Debug("nobody reading KISS, frame discarded")
	}
}

func (p *kissStreamPort) SendFrame(rf ReceivedFrame) error {
	p.queue(KissDataFrame(rf.Channel, rf.Data))

	return nil
}

func (p *kissStreamPort) stop() {
	close(p.done)
}

// KissPTY is the pseudo terminal KISS TNC.
type KissPTY struct {
	*kissStreamPort

	master  *os.File
	slave   *os.File
	symlink string
}

/*-------------------------------------------------------------------
 *
 * Name:        OpenKissPTY
 *
 * Purpose:     Create the pseudo terminal.
 *
 * Inputs:	symlink	- Make this point to the device, usually
 *			  TmpKissTNCSymlink.  Empty for none.
 *
 *--------------------------------------------------------------------*/

func OpenKissPTY(symlink string, logger *log.Logger) (*KissPTY, error) {
	logger = defaultLogger(logger).With("kiss", "pty")

	var ptmx, pts, err = pty.Open()
	if err != nil {
		return nil, errors.Wrap(err, "could not create pseudo terminal for KISS TNC")
	}

	// The slave stays open on our side.  On some systems it disappears
	// after a few seconds if no one has it open.
	var k = &KissPTY{
		kissStreamPort: newKissStreamPort(ptmx, logger),
		master:         ptmx,
		slave:          pts,
	}

	logger.Info("virtual KISS TNC is available", "device", pts.Name())

	if symlink != "" {
		os.Remove(symlink)

		if err := os.Symlink(pts.Name(), symlink); err != nil {
			k.Close()

			return nil, errors.Wrapf(err, "failed to create symlink %s", symlink)
		}

		k.symlink = symlink
		logger.Info("created symlink", "link", symlink, "device", pts.Name())
	}

	return k, nil
}

// Name is the device for the client application to open.
func (k *KissPTY) Name() string {
	return k.slave.Name()
}

func (k *KissPTY) Close() error {
	k.stop()

	if k.symlink != "" {
		os.Remove(k.symlink)
	}

	k.slave.Close()

	return k.master.Close()
}
