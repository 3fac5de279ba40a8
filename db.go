package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	// prefixes for the two key spaces: node records and the visit index
	// that orders nodes by their next scheduled visit.
	nodePrefix  = "n/"
	visitPrefix = "v/"

	// maxMissedVisits is how many consecutive failed visits a node gets
	// before it is purged at selection time.
	maxMissedVisits = 8

	// retryDelay is the base backoff after a missed visit; it doubles per
	// consecutive miss.
	retryDelay = 5 * time.Minute

	// revisitDelay is how long a successfully visited node rests before it
	// is due again.
	revisitDelay = 30 * time.Minute

	// staleAddrCutoff rejects advertised addresses the network has not
	// seen recently.
	staleAddrCutoff = 24 * time.Hour
)

// nodeStore persists node records in leveldb. Records live under n/<addr>;
// a v/<next-visit>/<addr> index entry per node makes "next nodes to visit" a
// single ordered iteration. The store is the only component that mutates
// scheduling metadata.
type nodeStore struct {
	db  *leveldb.DB
	log *log.Entry

	visited int64
	total   int64
}

// openNodeStore opens (and with wipe set, first destroys) the store at path.
func openNodeStore(path string, wipe bool, lg *log.Entry) (*nodeStore, error) {
	if wipe {
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("cannot wipe store: %v", err)
		}
	}

	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot open store: %v", err)
	}

	s := &nodeStore{db: db, log: lg}

	// seed the counters from whatever survived the last run
	iter := db.NewIterator(util.BytesPrefix([]byte(nodePrefix)), nil)
	for iter.Next() {
		var nd Node
		if err := json.Unmarshal(iter.Value(), &nd); err != nil {
			continue
		}
		s.total++
		if !nd.LastVisit.IsZero() {
			s.visited++
		}
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot scan store: %v", err)
	}

	return s, nil
}

func (s *nodeStore) Close() error {
	return s.db.Close()
}

func nodeKey(addr string) []byte {
	return []byte(nodePrefix + addr)
}

func visitKey(at time.Time, addr string) []byte {
	return []byte(fmt.Sprintf("%s%016x/%s", visitPrefix, at.UnixNano(), addr))
}

// insertNodes writes any nodes not already known, in one batch. Duplicates
// and addresses last seen more than a day ago are skipped. Returns how many
// were added.
func (s *nodeStore) insertNodes(nodes []*Node) (int, error) {
	batch := new(leveldb.Batch)
	seen := make(map[string]bool)
	added := 0

	for _, nd := range nodes {
		if nd.Port == 0 || nd.IP == nil {
			continue
		}

		if !nd.LastSeen.IsZero() && time.Since(nd.LastSeen) > staleAddrCutoff {
			continue
		}

		// an unset schedule means immediately eligible
		if nd.NextVisit.IsZero() {
			nd.NextVisit = time.Now()
		}

		addr := nd.Address()
		if seen[addr] {
			continue
		}
		seen[addr] = true

		ok, err := s.db.Has(nodeKey(addr), nil)
		if err != nil {
			return added, fmt.Errorf("cannot check for node %s: %v", addr, err)
		}
		if ok {
			continue
		}

		data, err := json.Marshal(nd)
		if err != nil {
			return added, fmt.Errorf("cannot encode node %s: %v", addr, err)
		}

		batch.Put(nodeKey(addr), data)
		batch.Put(visitKey(nd.NextVisit, addr), []byte(addr))
		added++
	}

	if err := s.db.Write(batch, nil); err != nil {
		return 0, fmt.Errorf("cannot write nodes: %v", err)
	}

	atomic.AddInt64(&s.total, int64(added))
	return added, nil
}

// nextNodes returns up to n nodes due for a visit, earliest next-visit
// first. Every node handed out has its visit counted as missed and its next
// visit pushed back, so it cannot be handed out twice before its outcome
// lands; a successful outcome undoes both. Nodes past the miss cap are
// purged here instead of being handed out again.
func (s *nodeStore) nextNodes(n int) ([]*Node, error) {
	now := time.Now()
	batch := new(leveldb.Batch)
	var out []*Node

	iter := s.db.NewIterator(util.BytesPrefix([]byte(visitPrefix)), nil)
	for iter.Next() && len(out) < n {
		addr := string(iter.Value())

		nd, err := s.getNode(addr)
		if err != nil {
			// index entry without a record, drop it
			batch.Delete(append([]byte(nil), iter.Key()...))
			continue
		}

		// the index is ordered, so the first node not yet due ends the scan
		if nd.NextVisit.After(now) {
			break
		}

		if nd.VisitsMissed >= maxMissedVisits {
			s.log.Debugf("Purging node %s after %d missed visits", addr, nd.VisitsMissed)
			batch.Delete(append([]byte(nil), iter.Key()...))
			batch.Delete(nodeKey(addr))
			atomic.AddInt64(&s.total, -1)
			if !nd.LastVisit.IsZero() {
				atomic.AddInt64(&s.visited, -1)
			}
			continue
		}

		batch.Delete(append([]byte(nil), iter.Key()...))

		nd.VisitsMissed++
		nd.NextVisit = now.Add(missBackoff(nd.VisitsMissed))

		data, err := json.Marshal(nd)
		if err != nil {
			return nil, fmt.Errorf("cannot encode node %s: %v", addr, err)
		}
		batch.Put(nodeKey(addr), data)
		batch.Put(visitKey(nd.NextVisit, addr), []byte(addr))

		out = append(out, nd)
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("cannot scan visit index: %v", err)
	}

	if err := s.db.Write(batch, nil); err != nil {
		return nil, fmt.Errorf("cannot update selected nodes: %v", err)
	}

	return out, nil
}

// missBackoff doubles the retry delay per consecutive miss.
func missBackoff(missed uint32) time.Duration {
	if missed > 6 {
		missed = 6
	}
	return retryDelay << (missed - 1)
}

// processOutcomes flushes one batch of finished connections. A connection
// that captured a version payload counts as a successful visit: identity
// fields are refreshed, the miss counter resets and the node rests until its
// next revisit. Failed attempts need no write here, selection already pushed
// them back. Addresses discovered along the way are inserted as fresh nodes.
func (s *nodeStore) processOutcomes(conns []*Connection) error {
	now := time.Now()
	batch := new(leveldb.Batch)
	firstVisits := int64(0)
	var discovered []*Node

	for _, conn := range conns {
		discovered = append(discovered, conn.NodesDiscovered...)

		if conn.PeerVersion == nil {
			continue
		}

		addr := conn.node.Address()

		nd, err := s.getNode(addr)
		if err != nil {
			// purged while the visit was in flight
			continue
		}

		if nd.LastVisit.IsZero() {
			firstVisits++
		}

		batch.Delete(visitKey(nd.NextVisit, addr))

		nd.LastVisit = now
		nd.LastSeen = now
		nd.VisitsMissed = 0
		nd.NextVisit = now.Add(revisitDelay)
		nd.Services = conn.PeerVersion.Services
		nd.ProtocolVersion = conn.PeerVersion.ProtocolVersion
		nd.UserAgent = conn.PeerVersion.UserAgent

		data, err := json.Marshal(nd)
		if err != nil {
			return fmt.Errorf("cannot encode node %s: %v", addr, err)
		}
		batch.Put(nodeKey(addr), data)
		batch.Put(visitKey(nd.NextVisit, addr), []byte(addr))
	}

	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("cannot write outcomes: %v", err)
	}

	atomic.AddInt64(&s.visited, firstVisits)

	if len(discovered) > 0 {
		added, err := s.insertNodes(discovered)
		if err != nil {
			return err
		}
		s.log.Debugf("Outcome flush added %d new nodes", added)
	}

	return nil
}

func (s *nodeStore) getNode(addr string) (*Node, error) {
	data, err := s.db.Get(nodeKey(addr), nil)
	if err != nil {
		return nil, err
	}

	nd := &Node{}
	if err := json.Unmarshal(data, nd); err != nil {
		return nil, fmt.Errorf("cannot decode node %s: %v", addr, err)
	}
	return nd, nil
}

// nodesVisited is how many known nodes have ever completed a handshake.
func (s *nodeStore) nodesVisited() int {
	return int(atomic.LoadInt64(&s.visited))
}

// nodesTotal is how many nodes are currently known.
func (s *nodeStore) nodesTotal() int {
	return int(atomic.LoadInt64(&s.total))
}
