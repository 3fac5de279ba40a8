package main

import (
	"net"
	"testing"
	"time"

	"github.com/btcsuite/btcd/wire"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testConfig() *NetworkConfig {
	return &NetworkConfig{
		Name:   "test",
		ID:     wire.MainNet,
		Port:   8333,
		NetVer: wire.ProtocolVersion,
	}
}

func testLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return log.NewEntry(logger)
}

// scriptedPeer is an in-process peer for exercising the connection state
// machine: it accepts one session, plays a fixed sequence of wire messages
// at the crawler, then records everything the crawler sends until the
// crawler hangs up.
type scriptedPeer struct {
	t      *testing.T
	ln     net.Listener
	cfg    *NetworkConfig
	script []wire.Message

	commands chan string
	pongs    chan uint64
}

func newScriptedPeer(t *testing.T, cfg *NetworkConfig, script ...wire.Message) *scriptedPeer {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	p := &scriptedPeer{
		t:        t,
		ln:       ln,
		cfg:      cfg,
		script:   script,
		commands: make(chan string, 64),
		pongs:    make(chan uint64, 8),
	}

	t.Cleanup(func() { ln.Close() })
	go p.serve()

	return p
}

func (p *scriptedPeer) serve() {
	conn, err := p.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	for _, msg := range p.script {
		if err := wire.WriteMessage(conn, msg, p.cfg.NetVer, p.cfg.ID); err != nil {
			return
		}
	}

	// record what the crawler sends, in order, until it disconnects
	for {
		msg, _, err := wire.ReadMessage(conn, p.cfg.NetVer, p.cfg.ID)
		if err != nil {
			return
		}
		if pong, ok := msg.(*wire.MsgPong); ok {
			p.pongs <- pong.Nonce
		}
		p.commands <- msg.Command()
	}
}

// node returns the peer's listen address as a crawlable node.
func (p *scriptedPeer) node() *Node {
	addr := p.ln.Addr().(*net.TCPAddr)
	return newNode(addr.IP, uint16(addr.Port))
}

// sentCommands waits for the first n commands the crawler sent.
func (p *scriptedPeer) sentCommands(n int) []string {
	var out []string
	for len(out) < n {
		select {
		case c := <-p.commands:
			out = append(out, c)
		case <-time.After(5 * time.Second):
			p.t.Fatalf("timed out waiting for command %d of %d, got %v", len(out)+1, n, out)
		}
	}
	return out
}

func peerVersionMsg() *wire.MsgVersion {
	return wire.NewMsgVersion(&wire.NetAddress{}, &wire.NetAddress{}, 0x1bad1dea, 0)
}

func addrMsg(t *testing.T, n int) *wire.MsgAddr {
	msg := wire.NewMsgAddr()
	for i := 0; i < n; i++ {
		na := wire.NewNetAddressIPPort(net.IPv4(10, 0, 0, byte(i+1)), uint16(8333+i), wire.SFNodeNetwork)
		na.Timestamp = time.Now()
		require.NoError(t, msg.AddAddress(na))
	}
	return msg
}

// unreachableNode grabs a loopback port, closes the listener and returns the
// now-dead address.
func unreachableNode(t *testing.T) *Node {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())
	return newNode(addr.IP, uint16(addr.Port))
}
