package hostresolve_test

import (
	"fmt"
	"testing"

	"github.com/cray-hpc/bmcrelay/hostresolve"
)

func TestResolvePrefersSitePrefix(t *testing.T) {
	lookup := func(hostOrIP string) ([]string, error) {
		return []string{"cmm-1.example.com", "xname-1.example.com"}, nil
	}
	r := hostresolve.New('x', lookup)

	got := r.Resolve("10.0.0.1")
	if got != "xname-1.example.com" {
		t.Fatalf("Resolve() = %q, want xname-1.example.com", got)
	}
}

func TestResolveFallsBackToFirstNonAddress(t *testing.T) {
	lookup := func(hostOrIP string) ([]string, error) {
		return []string{"10.0.0.1", "cmm-1.example.com"}, nil
	}
	r := hostresolve.New('x', lookup)

	got := r.Resolve("10.0.0.1")
	if got != "cmm-1.example.com" {
		t.Fatalf("Resolve() = %q, want cmm-1.example.com", got)
	}
}

func TestResolveReturnsInputOnFailure(t *testing.T) {
	lookup := func(hostOrIP string) ([]string, error) {
		return nil, fmt.Errorf("boom")
	}
	r := hostresolve.New('x', lookup)

	got := r.Resolve("10.0.0.1")
	if got != "10.0.0.1" {
		t.Fatalf("Resolve() = %q, want input unchanged", got)
	}
}

func TestResolveCachesResult(t *testing.T) {
	calls := 0
	lookup := func(hostOrIP string) ([]string, error) {
		calls++
		return []string{"xname-1"}, nil
	}
	r := hostresolve.New('x', lookup)

	r.Resolve("10.0.0.1")
	r.Resolve("10.0.0.1")

	if calls != 1 {
		t.Fatalf("lookup called %d times, want 1", calls)
	}
}

func TestClusterNameStripsTrailingDigits(t *testing.T) {
	cases := map[string]string{
		"cmm-cluster01": "cmm-cluster",
		"bmcrelay":      "bmcrelay",
		"node042":       "node",
	}
	for in, want := range cases {
		if got := hostresolve.ClusterName(in); got != want {
			t.Errorf("ClusterName(%q) = %q, want %q", in, got, want)
		}
	}
}
