package main

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/btcsuite/btcd/wire"
	"gopkg.in/yaml.v2"
)

// nounce is sent in our version message so peers can detect a connection to
// themselves. We never listen, so a fixed value is fine.
const nounce = 0x0539a019ca550825

// NetworkConfig holds everything needed to crawl one network, loaded from a
// yaml netfile.
type NetworkConfig struct {
	Name   string          `yaml:"name"`
	ID     wire.BitcoinNet `yaml:"id"` // network magic
	Port   uint16          `yaml:"port"`
	NetVer uint32          `yaml:"network_version"`

	// DNSSeeds are the hostnames queried at bootstrap, against DNSServer
	// when one is set and the system resolver otherwise. InitialIPs are
	// the fallback when every seed fails.
	DNSSeeds   []string `yaml:"dns_seeds"`
	DNSServer  string   `yaml:"dns_server"`
	InitialIPs []string `yaml:"initial_nodes"`

	NumWorkers int    `yaml:"num_workers"`
	Timeout    int    `yaml:"timeout"` // per-connection budget in seconds
	DBPath     string `yaml:"db_path"`
}

// loadNetwork reads and validates a network config file.
func loadNetwork(fName string) (*NetworkConfig, error) {
	f, err := os.Open(fName)
	if err != nil {
		return nil, fmt.Errorf("error opening config file: %v", err)
	}

	defer f.Close()

	cfg := &NetworkConfig{}

	decoder := yaml.NewDecoder(f)
	if err = decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	if cfg.Port == 0 {
		return nil, fmt.Errorf("invalid port supplied: %v", cfg.Port)
	}

	if cfg.ID == 0 {
		return nil, fmt.Errorf("no network magic supplied")
	}

	if len(cfg.DNSSeeds) == 0 && len(cfg.InitialIPs) == 0 {
		return nil, fmt.Errorf("no dns seeds or initial nodes supplied")
	}

	for _, v := range cfg.InitialIPs {
		if net.ParseIP(v) == nil {
			return nil, fmt.Errorf("invalid initial node ip: %s", v)
		}
	}

	// keep the knobs sane when the netfile leaves them out
	if cfg.NetVer == 0 {
		cfg.NetVer = wire.ProtocolVersion
	}

	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 25
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 10
	}

	if cfg.DBPath == "" {
		cfg.DBPath = "nodes.db"
	}

	return cfg, nil
}

func (cfg *NetworkConfig) timeoutDuration() time.Duration {
	return time.Duration(cfg.Timeout) * time.Second
}

// buildVersionMsg constructs the version message that opens every handshake.
func (cfg *NetworkConfig) buildVersionMsg() *wire.MsgVersion {
	msgver := wire.NewMsgVersion(&wire.NetAddress{}, &wire.NetAddress{}, nounce, 0)
	msgver.AddService(wire.SFNodeNetwork | wire.SFNodeWitness | wire.SFNodeBloom)
	return msgver
}
