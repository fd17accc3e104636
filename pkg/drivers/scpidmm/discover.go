package scpidmm

import (
	"context"
	"strconv"
	"time"

	"github.com/enbility/zeroconf/v3"
)

const (
	// mdnsService is the DNS-SD service type raw-SCPI instruments
	// announce themselves under.
	mdnsService = "_scpi-raw._tcp"
	mdnsDomain  = "local."

	browseTimeout = 2 * time.Second
)

// discover browses mDNS for raw-SCPI instruments and returns their
// dialable addresses. Instruments announcing on several interfaces are
// reported once. An empty result is not an error; the network may
// simply hold no meters.
func discover(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, browseTimeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	done := make(chan []string, 1)
	go func() {
		var addrs []string
		seen := make(map[string]bool)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					done <- addrs
					return
				}
				if entry == nil || seen[entry.Instance] {
					continue
				}
				seen[entry.Instance] = true
				if addr := entryAddr(entry); addr != "" {
					addrs = append(addrs, addr)
				}
			case <-removed:
			case <-ctx.Done():
				done <- addrs
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, mdnsService, mdnsDomain, entries, removed)
	}()

	return <-done, nil
}

// entryAddr picks the first address of a service entry as a
// "tcp/host/port" connection string.
func entryAddr(entry *zeroconf.ServiceEntry) string {
	port := strconv.Itoa(entry.Port)
	for _, ip := range entry.AddrIPv4 {
		return "tcp/" + ip.String() + "/" + port
	}
	for _, ip := range entry.AddrIPv6 {
		return "tcp/" + ip.String() + "/" + port
	}
	if entry.HostName != "" {
		return "tcp/" + entry.HostName + "/" + port
	}
	return ""
}
