package main

import (
	"net"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/wire"
)

// Node is one candidate peer address plus the crawl-scheduling metadata the
// store keeps for it. Scheduling fields are only ever mutated by the store;
// connections and workers treat a Node as read-only.
type Node struct {
	IP   net.IP `json:"ip"`
	Port uint16 `json:"port"`

	NextVisit    time.Time `json:"next_visit"`    // when this node is next due for a crawl
	VisitsMissed uint32    `json:"visits_missed"` // consecutive visits without a completed handshake
	LastSeen     time.Time `json:"last_seen"`     // timestamp the address was last advertised with
	LastVisit    time.Time `json:"last_visit"`    // last time we completed a handshake, zero if never

	// Identity learned from the peer's version payload.
	Services        wire.ServiceFlag `json:"services"`
	ProtocolVersion int32            `json:"protocol_version"`
	UserAgent       string           `json:"user_agent"`
}

// newNode returns a fresh, unvisited node that is immediately eligible for a
// crawl.
func newNode(ip net.IP, port uint16) *Node {
	return &Node{
		IP:        ip,
		Port:      port,
		NextVisit: time.Now(),
		LastSeen:  time.Now(),
	}
}

// nodeFromNetAddress converts a peer-advertised wire address into a fresh
// node, keeping the advertised timestamp so the store can reject stale
// entries.
func nodeFromNetAddress(na *wire.NetAddress) *Node {
	nd := newNode(na.IP, na.Port)
	nd.LastSeen = na.Timestamp
	nd.Services = na.Services
	return nd
}

// Address returns the host:port dial string, which doubles as the node's key
// in the store.
func (n *Node) Address() string {
	return net.JoinHostPort(n.IP.String(), strconv.Itoa(int(n.Port)))
}
