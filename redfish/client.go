// Package redfish implements the Endpoint Client: an authenticated session
// against one management endpoint's Redfish-shaped event service, with
// list/create/delete operations on its subscription collection.
//
// A session is opened, used for one reconciliation attempt, and closed — it
// is never shared across goroutines.
package redfish

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cray-hpc/bmcrelay/models"
)

// apiRoot is the Redfish event-service subscription collection path.
const apiRoot = "/redfish/v1/EventService/Subscriptions"

// Credentials carries the basic-auth pair used to open a session.
type Credentials struct {
	Username string
	Password string
}

// Session is an authenticated HTTP client bound to one managed endpoint.
// Sessions are not safe for concurrent use; each reconciliation attempt
// owns its own Session for its lifetime.
type Session struct {
	host    string
	creds   Credentials
	client  *http.Client
	retries int
}

// ErrUnreachable wraps a network-level failure opening or using a session.
type ErrUnreachable struct {
	Host string
	Err  error
}

func (e *ErrUnreachable) Error() string {
	return fmt.Sprintf("redfish: %s unreachable: %v", e.Host, e.Err)
}

func (e *ErrUnreachable) Unwrap() error { return e.Err }

// ErrAuth indicates the endpoint rejected the configured credentials.
type ErrAuth struct {
	Host string
}

func (e *ErrAuth) Error() string {
	return fmt.Sprintf("redfish: %s authentication failed", e.Host)
}

// Open establishes a session against https://host<apiRoot>. It does not
// perform a network round-trip itself — the first list/create/delete call
// surfaces ErrUnreachable or ErrAuth.
func Open(host string, creds Credentials, timeout time.Duration, retries int) (*Session, error) {
	if host == "" {
		return nil, fmt.Errorf("redfish: empty host")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	return &Session{
		host:    host,
		creds:   creds,
		retries: retries,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				// Managed BMCs commonly present self-signed certificates;
				// the trust boundary here is the management network, not TLS.
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
		},
	}, nil
}

// Close is best effort: it closes the idle keep-alive connections held by
// the session's own transport.
func (s *Session) Close() { s.client.CloseIdleConnections() }

// ListSubscriptions returns every live subscription presently registered on
// the endpoint.
func (s *Session) ListSubscriptions() ([]models.LiveSubscription, error) {
	body, err := s.doWithRetry(http.MethodGet, apiRoot, nil)
	if err != nil {
		return nil, err
	}

	var collection struct {
		Members []struct {
			ODataID string `json:"@odata.id"`
		} `json:"Members"`
	}
	if err := json.Unmarshal(body, &collection); err != nil {
		return nil, fmt.Errorf("redfish: %s decode subscription collection: %w", s.host, err)
	}

	subs := make([]models.LiveSubscription, 0, len(collection.Members))
	for _, m := range collection.Members {
		sub, err := s.getSubscription(m.ODataID)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (s *Session) getSubscription(path string) (models.LiveSubscription, error) {
	body, err := s.doWithRetry(http.MethodGet, path, nil)
	if err != nil {
		return models.LiveSubscription{}, err
	}

	var wire subscriptionWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return models.LiveSubscription{}, fmt.Errorf("redfish: %s decode subscription %s: %w", s.host, path, err)
	}
	return wire.toLive(path), nil
}

// CreateSubscription registers desired on the endpoint and returns the
// resulting live subscription, including its server-assigned handle.
func (s *Session) CreateSubscription(desired models.Subscription) (models.LiveSubscription, error) {
	wire := fromDesired(desired)
	payload, err := json.Marshal(wire)
	if err != nil {
		return models.LiveSubscription{}, fmt.Errorf("redfish: encode subscription: %w", err)
	}

	body, err := s.doWithRetry(http.MethodPost, apiRoot, payload)
	if err != nil {
		return models.LiveSubscription{}, err
	}

	var created subscriptionWire
	var ref struct {
		ODataID string `json:"@odata.id"`
	}
	if err := json.Unmarshal(body, &ref); err == nil && ref.ODataID != "" {
		return s.getSubscription(ref.ODataID)
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return models.LiveSubscription{}, fmt.Errorf("redfish: %s decode created subscription: %w", s.host, err)
	}
	return created.toLive(""), nil
}

// DeleteSubscription removes the subscription identified by handle (its
// @odata.id).
func (s *Session) DeleteSubscription(handle string) error {
	_, err := s.doWithRetry(http.MethodDelete, handle, nil)
	return err
}

// doWithRetry performs one HTTP round trip against path, retrying up to
// s.retries times on transport-level failure. HTTP-level error statuses are
// not retried.
func (s *Session) doWithRetry(method, path string, payload []byte) ([]byte, error) {
	var lastErr error
	attempts := s.retries + 1
	for i := 0; i < attempts; i++ {
		body, err := s.do(method, path, payload)
		if err == nil {
			return body, nil
		}
		var unreachable *ErrUnreachable
		if !errors.As(err, &unreachable) {
			return nil, err // auth or HTTP-status error: don't retry
		}
		lastErr = err
	}
	return nil, lastErr
}

func (s *Session) do(method, path string, payload []byte) ([]byte, error) {
	url := "https://" + s.host + path

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, &ErrUnreachable{Host: s.host, Err: err}
	}
	req.SetBasicAuth(s.creds.Username, s.creds.Password)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &ErrUnreachable{Host: s.host, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ErrUnreachable{Host: s.host, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &ErrAuth{Host: s.host}
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("redfish: %s %s %s: status %d", s.host, method, path, resp.StatusCode)
	}
	return body, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Wire shapes
// ─────────────────────────────────────────────────────────────────────────────

type subscriptionWire struct {
	Destination             string   `json:"Destination"`
	Context                 string   `json:"Context"`
	Protocol                string   `json:"Protocol"`
	RegistryPrefixes        []string `json:"RegistryPrefixes,omitempty"`
	ExcludeRegistryPrefixes []string `json:"ExcludeRegistryPrefixes,omitempty"`
	MessageIds              []string `json:"MessageIds,omitempty"`
	ExcludeMessageIds       []string `json:"ExcludeMessageIds,omitempty"`
}

func fromDesired(d models.Subscription) subscriptionWire {
	return subscriptionWire{
		Destination:             d.Destination,
		Context:                 d.Context,
		Protocol:                d.Protocol,
		RegistryPrefixes:        d.RegistryPrefixes,
		ExcludeRegistryPrefixes: d.ExcludeRegistryPrefixes,
		MessageIds:              d.MessageIDs,
		ExcludeMessageIds:       d.ExcludeMessageIDs,
	}
}

func (w subscriptionWire) toLive(handle string) models.LiveSubscription {
	return models.LiveSubscription{
		Subscription: models.Subscription{
			Destination:             w.Destination,
			Context:                 w.Context,
			Protocol:                w.Protocol,
			RegistryPrefixes:        w.RegistryPrefixes,
			ExcludeRegistryPrefixes: w.ExcludeRegistryPrefixes,
			MessageIDs:              w.MessageIds,
			ExcludeMessageIDs:       w.ExcludeMessageIds,
		},
		Handle: handle,
	}
}
