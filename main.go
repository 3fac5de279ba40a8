package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
)

func main() {
	var (
		netfile  string
		loglevel string
		workers  int
		timeout  int
		dbpath   string
		keep     bool
	)

	flag.StringVar(&netfile, "netfile", "", "yaml network config file to load")
	flag.StringVar(&loglevel, "loglevel", "info", "Log level")
	flag.IntVar(&workers, "workers", 0, "Number of crawl workers, overrides the netfile")
	flag.IntVar(&timeout, "timeout", 0, "Per-connection timeout in seconds, overrides the netfile")
	flag.StringVar(&dbpath, "db", "", "Node store path, overrides the netfile")
	flag.BoolVar(&keep, "keep", false, "Keep the existing node store instead of wiping it")
	flag.Parse()

	level, err := log.ParseLevel(loglevel)
	if err != nil {
		log.SetLevel(log.InfoLevel)
	} else {
		log.SetLevel(level)
	}

	if netfile == "" {
		fmt.Printf("Error - No netfile specified. Please add -netfile=<file> to load it\n")
		os.Exit(1)
	}

	cfg, err := loadNetwork(netfile)
	if err != nil {
		fmt.Printf("Error loading data from netfile %s - %v\n", netfile, err)
		os.Exit(1)
	}

	// flag overrides on top of the netfile
	if workers > 0 {
		cfg.NumWorkers = workers
	}
	if timeout > 0 {
		cfg.Timeout = timeout
	}
	if dbpath != "" {
		cfg.DBPath = dbpath
	}

	logger := log.WithField("network", cfg.Name)
	logger.Infof("status - system is configured for network: %s", cfg.Name)

	store, err := openNodeStore(cfg.DBPath, !keep, logger)
	if err != nil {
		fmt.Printf("Error opening node store %s - %v\n", cfg.DBPath, err)
		os.Exit(1)
	}

	crawler := newCrawler(cfg, store, logger)

	done := make(chan struct{})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Infof("Shutting down on signal: %v", <-sig)
		close(done)
	}()

	if err := crawler.Crawl(done); err != nil {
		logger.Errorf("Crawl failed: %v", err)
	}

	if err := store.Close(); err != nil {
		logger.Errorf("Error closing node store: %v", err)
	}
}
