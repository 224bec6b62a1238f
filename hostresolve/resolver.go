// Package hostresolve implements cached forward/reverse name resolution for
// managed endpoints, preferring a site-specific name prefix when the
// underlying name service returns more than one candidate.
package hostresolve

import (
	"net"
	"strings"
	"sync"
)

// LookupFunc resolves a hostname or IP to its known name-service aliases.
// The default is backed by net.LookupAddr / net.LookupHost; tests inject a
// stub.
type LookupFunc func(hostOrIP string) ([]string, error)

// Resolver memoizes name resolution for the lifetime of the process. It is
// safe for concurrent readers; on a cache miss, concurrent callers may race
// to resolve the same key and all but one write is simply discarded —
// duplicated work is preferred over locking out other readers.
type Resolver struct {
	// Prefix is the site convention used to prefer one candidate name among
	// several, e.g. "x" selects names beginning with 'x'.
	Prefix byte

	lookup LookupFunc

	mu    sync.RWMutex
	cache map[string]string
}

// New creates a Resolver. lookup defaults to systemLookup when nil.
func New(prefix byte, lookup LookupFunc) *Resolver {
	if lookup == nil {
		lookup = systemLookup
	}
	return &Resolver{
		Prefix: prefix,
		lookup: lookup,
		cache:  make(map[string]string),
	}
}

// Resolve returns the preferred canonical name for hostOrIP. On any failure
// it returns the input unchanged — this never fails loudly, per policy.
func (r *Resolver) Resolve(hostOrIP string) string {
	r.mu.RLock()
	if name, ok := r.cache[hostOrIP]; ok {
		r.mu.RUnlock()
		return name
	}
	r.mu.RUnlock()

	name := r.resolveUncached(hostOrIP)

	r.mu.Lock()
	if _, ok := r.cache[hostOrIP]; !ok {
		r.cache[hostOrIP] = name
	}
	r.mu.Unlock()

	return name
}

func (r *Resolver) resolveUncached(hostOrIP string) string {
	names, err := r.lookup(hostOrIP)
	if err != nil || len(names) == 0 {
		return hostOrIP
	}

	for _, n := range names {
		n = strings.TrimSuffix(n, ".")
		if n != "" && n[0] == r.Prefix {
			return n
		}
	}

	for _, n := range names {
		n = strings.TrimSuffix(n, ".")
		if n != "" && net.ParseIP(n) == nil {
			return n
		}
	}

	return hostOrIP
}

// systemLookup does a reverse lookup when hostOrIP parses as an IP, and a
// forward lookup otherwise; a failed reverse lookup is not retried forward.
func systemLookup(hostOrIP string) ([]string, error) {
	if ip := net.ParseIP(hostOrIP); ip != nil {
		return net.LookupAddr(hostOrIP)
	}
	addrs, err := net.LookupHost(hostOrIP)
	if err != nil {
		return nil, err
	}
	return addrs, nil
}

// ClusterName derives the process-wide cluster name from a hostname by
// stripping trailing digits, per the telemetry record's "cluster" field
// contract.
func ClusterName(hostname string) string {
	i := len(hostname)
	for i > 0 && hostname[i-1] >= '0' && hostname[i-1] <= '9' {
		i--
	}
	return hostname[:i]
}
