package reconciler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cray-hpc/bmcrelay/internal/bmcrelay/reconciler"
	"github.com/cray-hpc/bmcrelay/models"
)

type fakeClient struct {
	mu        sync.Mutex
	live      []models.LiveSubscription
	created   []models.Subscription
	deleted   []string
	listErr   error
	closed    bool
}

func (f *fakeClient) ListSubscriptions() ([]models.LiveSubscription, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.live, nil
}

func (f *fakeClient) CreateSubscription(s models.Subscription) (models.LiveSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, s)
	return models.LiveSubscription{Subscription: s, Handle: "/sub/new"}, nil
}

func (f *fakeClient) DeleteSubscription(handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, handle)
	return nil
}

func (f *fakeClient) Close() { f.closed = true }

func TestReconcilerRunConvergesEachEndpoint(t *testing.T) {
	clients := map[string]*fakeClient{
		"cmm1": {},
		"cmm2": {live: []models.LiveSubscription{{Subscription: models.Subscription{Context: "other_tool"}, Handle: "/sub/1"}}},
	}

	dial := func(ep models.Endpoint, timeout time.Duration, retries int) (reconciler.EndpointClient, error) {
		return clients[ep.Hostname], nil
	}

	r := reconciler.New(reconciler.Options{NamespacePrefix: "dftfsub_", MaxWorkers: 4}, dial, nil)

	desired := map[string][]models.Subscription{
		"cmm1": {{Context: "dftfsub_all", Destination: "relay:9127/redfish", Protocol: "Redfish"}},
		"cmm2": {{Context: "dftfsub_all", Destination: "relay:9127/redfish", Protocol: "Redfish"}},
	}
	endpoints := []models.Endpoint{{Hostname: "cmm1"}, {Hostname: "cmm2"}}

	r.Run(context.Background(), endpoints, desired, false)

	if len(clients["cmm1"].created) != 1 {
		t.Errorf("cmm1 created = %v, want 1 subscription", clients["cmm1"].created)
	}
	if !clients["cmm1"].closed || !clients["cmm2"].closed {
		t.Errorf("expected both sessions closed")
	}
	if len(clients["cmm2"].created) != 1 {
		t.Errorf("cmm2 created = %v, want 1 subscription", clients["cmm2"].created)
	}
	if len(clients["cmm2"].deleted) != 0 {
		t.Errorf("cmm2 deleted = %v, want none (foreign keeper protected)", clients["cmm2"].deleted)
	}
}

func TestReconcilerRunSkipsUnreachableEndpoint(t *testing.T) {
	dial := func(ep models.Endpoint, timeout time.Duration, retries int) (reconciler.EndpointClient, error) {
		if ep.Hostname == "down" {
			return nil, context.DeadlineExceeded
		}
		return &fakeClient{}, nil
	}

	r := reconciler.New(reconciler.Options{NamespacePrefix: "dftfsub_"}, dial, nil)
	endpoints := []models.Endpoint{{Hostname: "down"}, {Hostname: "up"}}

	// Must not panic or block despite one endpoint failing to dial.
	r.Run(context.Background(), endpoints, nil, false)
}

func TestReconcilerRunPurgeIgnoresDesired(t *testing.T) {
	client := &fakeClient{live: []models.LiveSubscription{
		{Subscription: models.Subscription{Context: "dftfsub_all"}, Handle: "/sub/1"},
	}}
	dial := func(ep models.Endpoint, timeout time.Duration, retries int) (reconciler.EndpointClient, error) {
		return client, nil
	}

	r := reconciler.New(reconciler.Options{NamespacePrefix: "dftfsub_"}, dial, nil)
	desired := map[string][]models.Subscription{
		"cmm1": {{Context: "dftfsub_all", Destination: "relay:9127/redfish"}},
	}
	r.Run(context.Background(), []models.Endpoint{{Hostname: "cmm1"}}, desired, true)

	if len(client.deleted) != 1 {
		t.Fatalf("deleted = %v, want the live subscription purged", client.deleted)
	}
	if len(client.created) != 0 {
		t.Errorf("created = %v, want none during a purge cycle", client.created)
	}
}
