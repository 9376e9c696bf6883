package viperwolf

/*------------------------------------------------------------------
 *
 * Purpose:   	Provide service to other applications via "TCP KISS" port.
 *
 * Description:	This provides a TCP socket for communication with a client
 *		application.  It implements the KISS TNC protocol as
 *		described in http://www.ka9q.net/papers/kiss.html
 *
 *		Several clients can be attached at the same time.  Every
 *		frame received over the radio goes to all of them.  The
 *		client can go away and come back again without restarting
 *		this application.
 *
 *		A port can be limited to a single radio channel, for
 *		applications which only know how to talk to single radio
 *		TNCs.  It then shows up as channel 0 to the client.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

const DefaultKISSClients = 3

// Give up on a client that won't take data for this long.
const kissWriteTimeout = 2 * time.Second

type KissServer struct {
	listener net.Listener
	channel  int // -1 for all.

	mu      sync.Mutex
	clients []net.Conn // nil for a free slot.
	freed   chan struct{}

	logger  *log.Logger
	metrics *Metrics
}

/*-------------------------------------------------------------------
 *
 * Name:        ListenKiss
 *
 * Purpose:     Set up a KISS TCP port.
 *
 * Inputs:	addr		- e.g. ":8001".
 *		maxClients	- How many may be attached at once.
 *		channel		- Only this radio channel, or -1 for all.
 *
 * Description:	Call Serve to start taking connections.
 *
 *--------------------------------------------------------------------*/

func ListenKiss(addr string, maxClients, channel int, logger *log.Logger, metrics *Metrics) (*KissServer, error) {
	if maxClients < 1 {
		maxClients = DefaultKISSClients
	}

	var listener, err = net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "KISS TCP listen")
	}

	return &KissServer{ //nolint:exhaustruct
		listener: listener,
		channel:  channel,
		clients:  make([]net.Conn, maxClients),
		freed:    make(chan struct{}, 1),
		logger:   defaultLogger(logger).With("kiss", "tcp"),
		metrics:  metrics,
	}, nil
}

func (s *KissServer) Addr() net.Addr {
	return s.listener.Addr()
}

// Port is the TCP port actually used, handy when ":0" was requested.
func (s *KissServer) Port() int {
	var _, port, _ = net.SplitHostPort(s.listener.Addr().String())
	var n, _ = strconv.Atoi(port)

	return n
}

// NumClients is how many are attached now.
func (s *KissServer) NumClients() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n = 0
	for _, c := range s.clients {
		if c != nil {
			n++
		}
	}

	return n
}

/*-------------------------------------------------------------------
 *
 * Name:        Serve
 *
 * Purpose:     Wait for connection requests from applications.
 *
 * Description:	Runs until the context is done.  When all the client
 *		slots are in use, no more connections are accepted until
 *		one becomes free.
 *
 *--------------------------------------------------------------------*/

func (s *KissServer) Serve(ctx context.Context) error {
	var stop = context.AfterFunc(ctx, func() {
		s.listener.Close()
		s.closeAll()
	})
	defer stop()

	for {
		var slot = s.freeSlot()
		if slot < 0 {
			select {
			case <-s.freed:
				continue
			case <-ctx.Done():
				return nil
			}
		}

		s.logger.Info("ready to accept KISS TCP client application", "client", slot, "addr", s.listener.Addr())

		var conn, err = s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return errors.Wrap(err, "KISS TCP accept")
		}

		s.mu.Lock()
		s.clients[slot] = conn
		s.mu.Unlock()
		s.metrics.setClients(s.NumClients())

		s.logger.Info("attached to KISS TCP client application", "client", slot, "remote", conn.RemoteAddr())

		go s.listen(slot, conn)
	}
}

func (s *KissServer) freeSlot() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range s.clients {
		if c == nil {
			return i
		}
	}

	return -1
}

// Read from one client until it goes away.
func (s *KissServer) listen(slot int, conn net.Conn) {
	var decoder = NewKissDecoder()
	var buf = make([]byte, 256)
	var logger = s.logger.With("client", slot)

	for {
		var n, err = conn.Read(buf)
		for _, b := range buf[:n] {
			if ev, ok := decoder.Feed(b); ok {
				kissHandleEvent(ev, func(reply []byte) { s.sendTo(slot, conn, reply) }, logger)
			}
		}

		if err != nil {
			logger.Info("KISS TCP client application has gone away", "err", err)
			s.drop(slot, conn)

			return
		}
	}
}

func (s *KissServer) drop(slot int, conn net.Conn) {
	s.mu.Lock()
	if s.clients[slot] == conn {
		s.clients[slot] = nil
	}
	s.mu.Unlock()

	conn.Close()
	s.metrics.setClients(s.NumClients())

	select {
	case s.freed <- struct{}{}:
	default:
	}
}

func (s *KissServer) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.clients {
		if c != nil {
			c.Close()
		}
	}
}

func (s *KissServer) sendTo(slot int, conn net.Conn, msg []byte) {
	conn.SetWriteDeadline(time.Now().Add(kissWriteTimeout)) //nolint:errcheck

	if _, err := conn.Write(msg); err != nil {
		s.logger.Warn("KISS TCP write failed, dropping client", "client", slot, "err", err)
		s.drop(slot, conn)
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        SendFrame
 *
 * Purpose:     Send a frame, received over the radio, to all clients.
 *
 * Description:	Any client that can't take it is disconnected.
 *
 *--------------------------------------------------------------------*/

func (s *KissServer) SendFrame(rf ReceivedFrame) error {
	var channel = rf.Channel
	if s.channel >= 0 {
		if rf.Channel != s.channel {
			return nil
		}
		channel = 0
	}

	var msg = KissDataFrame(channel, rf.Data)

	s.mu.Lock()
	var clients = append([]net.Conn(nil), s.clients...)
	s.mu.Unlock()

	for slot, conn := range clients {
		if conn != nil {
			s.sendTo(slot, conn, msg)
		}
	}

	return nil
}

func (s *KissServer) Close() error {
	s.closeAll()

	return s.listener.Close()
}
