// Package discovery advertises a relay on the local network and finds
// others over mDNS.
package discovery

import (
	"context"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/sirupsen/logrus"
)

const (
	ServiceType    = "_inkboard._tcp"
	DefaultTimeout = 2 * time.Second
)

// Peer is one relay found on the network.
type Peer struct {
	Name string   `json:"name"`
	Host string   `json:"host"`
	Addr string   `json:"addr"`
	Port int      `json:"port"`
	Info []string `json:"info,omitempty"`
}

// URL is the peer's HTTP base URL.
func (p Peer) URL() string {
	return "http://" + net.JoinHostPort(p.Addr, strconv.Itoa(p.Port))
}

// Advertise announces a relay listening on port until the returned server is
// shut down.
func Advertise(port int, info ...string) (*mdns.Server, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("could not get hostname: %w", err)
	}
	if len(info) == 0 {
		info = []string{"inkboard"}
	}
	service, err := mdns.NewMDNSService(host, ServiceType, "", "", port, nil, info)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}
	logrus.WithFields(logrus.Fields{"service": ServiceType, "port": port, "host": host}).Info("Advertising relay")
	return server, nil
}

// Browse collects relays that answer before ctx's deadline, or
// DefaultTimeout when ctx has none.
func Browse(ctx context.Context) ([]Peer, error) {
	timeout := DefaultTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	if timeout <= 0 {
		return nil, ctx.Err()
	}

	entries := make(chan *mdns.ServiceEntry, 16)
	done := make(chan []Peer)
	go func() {
		var found []*mdns.ServiceEntry
		for e := range entries {
			found = append(found, e)
		}
		done <- peers(found)
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true
	err := mdns.Query(params)
	close(entries)
	list := <-done
	if err != nil {
		return list, fmt.Errorf("mdns query: %w", err)
	}
	return list, nil
}

// peers keeps entries with an IPv4 address and a port, one per address.
func peers(entries []*mdns.ServiceEntry) []Peer {
	seen := map[string]bool{}
	out := []Peer{}
	for _, e := range entries {
		if e == nil || e.AddrV4 == nil || e.Port == 0 {
			continue
		}
		p := Peer{Name: e.Name, Host: e.Host, Addr: e.AddrV4.String(), Port: e.Port, Info: e.InfoFields}
		key := p.URL()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL() < out[j].URL() })
	return out
}

// ListenPort extracts the port from a listen address such as ":3002".
func ListenPort(addr string) (int, error) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("listen address %q: %w", addr, err)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n <= 0 || n > 65535 {
		return 0, fmt.Errorf("listen address %q: invalid port", addr)
	}
	return n, nil
}
