package main

import (
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
	log "github.com/sirupsen/logrus"
)

// lookupSeed resolves one seed hostname. When a resolver is configured the
// query goes straight to it so we are not at the mercy of a caching system
// resolver; otherwise we fall back to the standard lookup.
func lookupSeed(host, server string) ([]net.IP, error) {
	if server == "" {
		return net.LookupIP(host)
	}

	c := &dns.Client{Timeout: time.Second * 10}

	var ips []net.IP

	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		m := &dns.Msg{}
		m.SetQuestion(dns.Fqdn(host), qtype)

		in, _, err := c.Exchange(m, server)
		if err != nil {
			return nil, fmt.Errorf("seed query failed: %v", err)
		}

		for _, rr := range in.Answer {
			switch a := rr.(type) {
			case *dns.A:
				ips = append(ips, a.A)
			case *dns.AAAA:
				ips = append(ips, a.AAAA)
			}
		}
	}

	if len(ips) == 0 {
		return nil, fmt.Errorf("seed %s returned no addresses", host)
	}

	return ips, nil
}

// querySeeds performs the one-shot DNS bootstrap: every configured seed
// hostname is resolved and each returned ip becomes a fresh node on the
// network's default port. Statically configured initial nodes are used as a
// last resort when every seed fails.
func querySeeds(cfg *NetworkConfig, lg *log.Entry) []*Node {
	var nodes []*Node

	for _, seed := range cfg.DNSSeeds {
		ips, err := lookupSeed(seed, cfg.DNSServer)
		if err != nil {
			lg.Errorf("Unable to do initial lookup to seed %s: %v", seed, err)
			continue
		}

		lg.Infof("Loaded %d addresses from %s", len(ips), seed)

		for _, ip := range ips {
			nodes = append(nodes, newNode(ip, cfg.Port))
		}
	}

	if len(nodes) == 0 && len(cfg.InitialIPs) > 0 {
		for _, v := range cfg.InitialIPs {
			if ip := net.ParseIP(v); ip != nil {
				nodes = append(nodes, newNode(ip, cfg.Port))
			}
		}
	}

	if len(nodes) == 0 {
		lg.Error("No ip addresses found")
	}

	return nodes
}
