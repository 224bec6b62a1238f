// Package models defines the domain types shared across the relay.
//
// Most other packages depend on this package; nothing here depends on any
// other internal package. This mirrors the layering rule the rest of the
// module follows for its own domain types.
package models

// Subscription is the desired state of one event subscription on one
// managed endpoint, as derived from configuration. The Context is the
// authoritative identity key — within one endpoint no two desired
// subscriptions may share both Destination and Context.
type Subscription struct {
	// Destination is the full push URL, e.g. "10.0.0.1:9127/redfish".
	Destination string

	// Context is the caller-chosen tag that identifies this subscription.
	// Every desired Context begins with the configured namespace prefix.
	Context string

	// RegistryPrefixes, when non-empty, scopes the subscription to message
	// IDs under those registries (e.g. "CrayTelemetry").
	RegistryPrefixes []string

	// ExcludeRegistryPrefixes excludes message IDs under those registries.
	ExcludeRegistryPrefixes []string

	// MessageIDs, when non-empty, scopes the subscription to those exact
	// message IDs.
	MessageIDs []string

	// ExcludeMessageIDs excludes those exact message IDs.
	ExcludeMessageIDs []string

	// Protocol is the push protocol tag, e.g. "Redfish".
	Protocol string
}

// LiveSubscription is a Subscription as reported by an endpoint, with the
// server-assigned handle needed to delete it.
type LiveSubscription struct {
	Subscription
	Handle string
}

// Endpoint is a managed hostname and the credentials used to open a session
// against it.
type Endpoint struct {
	Hostname string
	Username string
	Password string
}
