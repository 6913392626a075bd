// Package peers keeps the set of neighbour nodes a ledger reconciles against.
package peers

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
	"sync"
)

var ErrInvalidAddress = errors.New("invalid peer address")

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// Normalize reduces an address to host:port. Both URLs
// ("http://192.168.0.5:5000/") and bare "192.168.0.5:5000" are accepted.
func Normalize(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", fmt.Errorf("%w: empty address", ErrInvalidAddress)
	}

	if strings.Contains(address, "://") {
		u, err := url.Parse(address)
		if err != nil {
			return "", fmt.Errorf("%w: %q: %v", ErrInvalidAddress, address, err)
		}
		host, port := u.Hostname(), u.Port()
		if port == "" {
			port = defaultPorts[u.Scheme]
		}
		if host == "" || port == "" {
			return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
		}
		return net.JoinHostPort(host, port), nil
	}

	host, port, err := net.SplitHostPort(strings.TrimSuffix(address, "/"))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidAddress, address, err)
	}
	if host == "" || port == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return net.JoinHostPort(host, port), nil
}

// Set is a concurrency-safe set of normalized peer addresses.
type Set struct {
	mu    sync.RWMutex
	peers map[string]struct{}
}

func NewSet() *Set {
	return &Set{peers: make(map[string]struct{})}
}

// Register normalizes address and adds it. It reports whether the peer was new;
// registering a known peer is a no-op.
func (s *Set) Register(address string) (bool, error) {
	normalized, err := Normalize(address)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.peers[normalized]; exists {
		return false, nil
	}
	s.peers[normalized] = struct{}{}
	return true, nil
}

// List returns the registered addresses in lexical order.
func (s *Set) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.peers))
	for peer := range s.peers {
		out = append(out, peer)
	}
	slices.Sort(out)
	return out
}

func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}
