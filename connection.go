package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/btcsuite/btcd/wire"
	log "github.com/sirupsen/logrus"
)

// Connection drives one TCP session with one remote node: open, version
// handshake, ask for addresses, harvest the reply. A Connection is used for
// exactly one attempt and is never reused. Whatever it managed to collect
// stays in the result fields even when the session ends in an error.
type Connection struct {
	node    *Node
	cfg     *NetworkConfig
	timeout time.Duration
	sock    net.Conn
	start   time.Time
	log     *log.Entry

	// Results
	PeerVersion     *wire.MsgVersion
	NodesDiscovered []*Node
}

func newConnection(node *Node, cfg *NetworkConfig, timeout time.Duration, lg *log.Entry) *Connection {
	return &Connection{
		node:    node,
		cfg:     cfg,
		timeout: timeout,
		log:     lg,
	}
}

// Open dials the node and runs the receive loop until a qualifying address
// list arrives or the time budget runs out. Hitting the budget is a normal
// way for a session to end and returns nil; anything else that stops the
// loop is returned as an error.
func (c *Connection) Open() error {
	c.start = time.Now()

	c.log.Debugf("Connecting to %s", c.node.Address())

	sock, err := net.DialTimeout("tcp", c.node.Address(), c.timeout)
	if err != nil {
		return fmt.Errorf("cannot connect to remote node: %v", err)
	}
	c.sock = sock

	// one absolute deadline covers every read and write of the session
	if err := sock.SetDeadline(c.start.Add(c.timeout)); err != nil {
		return fmt.Errorf("cannot set connection deadline: %v", err)
	}

	if err := c.send(c.cfg.buildVersionMsg()); err != nil {
		return err
	}

	for c.remainAlive() {
		if err := c.handleMsg(); err != nil {
			if isTimeout(err) {
				// liveness cutoff, not a failure
				return nil
			}
			return err
		}
	}

	return nil
}

// remainAlive reports whether the receive loop should keep going: the time
// budget has not elapsed and no addresses have been discovered yet.
func (c *Connection) remainAlive() bool {
	timedOut := time.Since(c.start) > c.timeout
	return !timedOut && len(c.NodesDiscovered) == 0
}

// handleMsg reads exactly one framed message and dispatches it. Messages
// with no handler are ignored.
func (c *Connection) handleMsg() error {
	msg, _, err := wire.ReadMessage(c.sock, c.cfg.NetVer, c.cfg.ID)
	if err != nil {
		return fmt.Errorf("cannot receive message: %w", err)
	}

	c.log.Debugf("Received a %q from %s", msg.Command(), c.node.Address())

	switch msg := msg.(type) {
	case *wire.MsgVersion:
		return c.handleVersion(msg)
	case *wire.MsgVerAck:
		return c.handleVerAck(msg)
	case *wire.MsgPing:
		return c.handlePing(msg)
	case *wire.MsgAddr:
		c.handleAddr(msg)
		return nil
	default:
		return nil
	}
}

// handleVersion stores the peer's version payload and acknowledges it.
func (c *Connection) handleVersion(msg *wire.MsgVersion) error {
	c.PeerVersion = msg
	return c.send(wire.NewMsgVerAck())
}

// handleVerAck requests the peer's known addresses, the whole point of the
// session.
func (c *Connection) handleVerAck(_ *wire.MsgVerAck) error {
	return c.send(wire.NewMsgGetAddr())
}

// handlePing answers with a pong carrying the same nonce, whatever state the
// session is in.
func (c *Connection) handlePing(msg *wire.MsgPing) error {
	return c.send(wire.NewMsgPong(msg.Nonce))
}

// handleAddr records the advertised addresses. A single-entry list is almost
// always the peer announcing itself and carries no discovery value, so it is
// dropped.
func (c *Connection) handleAddr(msg *wire.MsgAddr) {
	if len(msg.AddrList) <= 1 {
		return
	}

	nodes := make([]*Node, 0, len(msg.AddrList))
	for _, na := range msg.AddrList {
		nodes = append(nodes, nodeFromNetAddress(na))
	}
	c.NodesDiscovered = nodes
}

func (c *Connection) send(msg wire.Message) error {
	if err := wire.WriteMessage(c.sock, msg, c.cfg.NetVer, c.cfg.ID); err != nil {
		return fmt.Errorf("cannot send %s message: %w", msg.Command(), err)
	}
	return nil
}

// Close releases the socket. Safe to call on a connection that never opened
// and safe to call more than once.
func (c *Connection) Close() {
	if c.sock == nil {
		return
	}

	if err := c.sock.Close(); err != nil {
		c.log.Warnf("Error disconnecting from %s: %v", c.node.Address(), err)
	} else {
		c.log.Debugf("Successfully disconnected from %s", c.node.Address())
	}
	c.sock = nil
}

// isTimeout reports whether err is the socket deadline firing, which the
// receive loop treats as the normal end of a session.
func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
