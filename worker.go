package main

import (
	"errors"
	"time"

	"github.com/btcsuite/btcd/wire"
	log "github.com/sirupsen/logrus"
)

// Worker turns a stream of nodes into a stream of connection outcomes. One
// bad peer must never take the worker down: every failure is logged and the
// connection is still reported back, carrying whatever it collected.
type Worker struct {
	inputs  *workQueue
	outputs *workQueue
	cfg     *NetworkConfig
	timeout time.Duration
	log     *log.Entry
}

func newWorker(id int, inputs, outputs *workQueue, cfg *NetworkConfig, timeout time.Duration, lg *log.Entry) *Worker {
	return &Worker{
		inputs:  inputs,
		outputs: outputs,
		cfg:     cfg,
		timeout: timeout,
		log:     lg.WithField("worker", id),
	}
}

// run processes nodes forever. It is started once, in its own goroutine, and
// never returns.
func (w *Worker) run() {
	for {
		node := w.inputs.pop().(*Node)

		// The connection must exist before anything can fail so the
		// cleanup below always has something to close.
		conn := newConnection(node, w.cfg, w.timeout, w.log)

		if err := conn.Open(); err != nil {
			var merr *wire.MessageError
			if errors.As(err, &merr) {
				w.log.Debugf("Protocol error from %s: %v", node.Address(), err)
			} else {
				w.log.Debugf("Got error: %v", err)
			}
		}

		conn.Close()

		// report the result back to the crawler, success or not
		w.outputs.push(conn)
	}
}
