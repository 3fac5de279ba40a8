package main

import (
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// batchFactor sizes the refill/drain threshold relative to the pool:
	// each worker gets ten nodes of runway.
	batchFactor = 10

	// reportDelay is the cadence of the orchestrator loop.
	reportDelay = time.Second
)

// Crawler owns the worker pool and the two queues between it and the store.
// It is the only component with a notion of batch size and pacing: it refills
// the input queue from the store, drains finished connections back into the
// store, and reports progress, once per tick. It performs no peer I/O itself.
type Crawler struct {
	cfg     *NetworkConfig
	store   *nodeStore
	timeout time.Duration

	workerInputs  *workQueue
	workerOutputs *workQueue
	workers       []*Worker

	log *log.Entry
}

func newCrawler(cfg *NetworkConfig, store *nodeStore, lg *log.Entry) *Crawler {
	c := &Crawler{
		cfg:           cfg,
		store:         store,
		timeout:       cfg.timeoutDuration(),
		workerInputs:  newWorkQueue(),
		workerOutputs: newWorkQueue(),
		log:           lg,
	}

	for i := 0; i < cfg.NumWorkers; i++ {
		c.workers = append(c.workers, newWorker(i, c.workerInputs, c.workerOutputs, cfg, c.timeout, lg))
	}

	return c
}

// batchSize is the pool's natural unit of concurrent throughput and the
// threshold for both refilling and draining.
func (c *Crawler) batchSize() int {
	return len(c.workers) * batchFactor
}

// seedStore performs the one-shot DNS bootstrap so the first refill has
// something to hand out.
func (c *Crawler) seedStore() error {
	nodes := querySeeds(c.cfg, c.log)

	added, err := c.store.insertNodes(nodes)
	if err != nil {
		return err
	}

	c.log.Infof("Seeded store with %d nodes", added)
	return nil
}

// addWorkerInputs pulls the next batch of due nodes from the store and
// queues them for the pool.
func (c *Crawler) addWorkerInputs() {
	nodes, err := c.store.nextNodes(c.batchSize())
	if err != nil {
		c.log.Errorf("Cannot select next nodes: %v", err)
		return
	}

	for _, nd := range nodes {
		c.workerInputs.push(nd)
	}
}

// processWorkerOutputs drains every finished connection currently queued and
// flushes them to the store in one batched call.
func (c *Crawler) processWorkerOutputs() {
	var conns []*Connection
	for c.workerOutputs.size() > 0 {
		conns = append(conns, c.workerOutputs.pop().(*Connection))
	}

	if len(conns) == 0 {
		return
	}

	if err := c.store.processOutcomes(conns); err != nil {
		c.log.Errorf("Cannot process %d outcomes: %v", len(conns), err)
	}
}

// tick runs one orchestrator pass: refill the input side when it runs low,
// drain the output side when it runs high. Both are strict threshold checks;
// a depth exactly at the batch size triggers neither.
func (c *Crawler) tick() {
	if c.workerInputs.size() < c.batchSize() {
		c.addWorkerInputs()
	}

	if c.workerOutputs.size() > c.batchSize() {
		c.processWorkerOutputs()
	}
}

func (c *Crawler) printReport() {
	c.log.Infof("inputs: %d | outputs: %d | visited: %d | total: %d",
		c.workerInputs.size(), c.workerOutputs.size(),
		c.store.nodesVisited(), c.store.nodesTotal())
}

// mainLoop balances the queues until the done channel closes. Workers are
// daemons and keep running; closing done only stops the balancing so the
// caller can flush and exit.
func (c *Crawler) mainLoop(done <-chan struct{}) {
	ticker := time.NewTicker(reportDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.printReport()
			c.tick()
		case <-done:
			c.log.Info("Shutting down crawler")

			// flush whatever the workers already finished
			c.processWorkerOutputs()
			return
		}
	}
}

// Crawl bootstraps the store, starts the pool and runs the orchestrator loop
// until done closes.
func (c *Crawler) Crawl(done <-chan struct{}) error {
	if err := c.seedStore(); err != nil {
		return err
	}

	// fill the input queue before the first tick so the workers don't idle
	c.addWorkerInputs()

	for _, w := range c.workers {
		go w.run()
	}

	c.mainLoop(done)
	return nil
}
