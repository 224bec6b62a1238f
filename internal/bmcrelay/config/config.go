// Package config loads the relay's configuration document and resolves it
// into the fully-defaulted values the rest of the application consumes.
//
// The document is a single YAML file with the sections named in the
// operator-facing contract: general, subscriptions, per-hostname endpoint
// ownership, and pass-through bus / schema-registry blocks. Loading follows
// a raw/resolved split: a raw, loosely-typed struct captures exactly what
// YAML provided, and a resolve step fills in hard-coded fallbacks for
// anything left zero-valued.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cray-hpc/bmcrelay/models"
)

// General holds process-wide settings from the "general" section.
type General struct {
	LogLevel             string
	RefreshInterval      time.Duration
	ContextPrefix        string
	PurgeUnrecognized    bool
	MaxWorkers           int
	RedfishUsername      string
	RedfishPassword      string
	TopicPrefix          string
	SamplePeriod         time.Duration
	WorkerCount          int
	Address              string
	Port                 int
	SubscriptionTimeout  time.Duration
	SubscriptionRetries  int
	ResubscribeInterval  time.Duration
	LogAlerts            bool
	LogAlertsFile        string
	NoKafka              bool
}

// SubscriptionEntry is one entry of the "subscriptions" section: a set of
// servers (expanded from a hostlist) that should all receive the same
// desired subscription.
type SubscriptionEntry struct {
	Servers            []string
	Context            string
	RegistryPrefixes   []string
	Destination        string
	DestinationsPort   int
	DestinationsUseIP  bool
}

// LoadedConfig is the fully resolved configuration document.
type LoadedConfig struct {
	General        General
	Subscriptions  []SubscriptionEntry
	Hostnames      []string
	Bus            map[string]any
	SchemaRegistry map[string]any
}

// rawDocument mirrors the YAML document shape 1:1 before defaulting.
type rawDocument struct {
	General struct {
		LogLevel             string `yaml:"log_level"`
		RefreshInterval      int    `yaml:"refresh_interval"`
		ContextPrefix        string `yaml:"context_prefix"`
		PurgeUnrecognized    bool   `yaml:"purge_unrecognized"`
		MaxWorkers           int    `yaml:"max_workers"`
		RedfishUsername      string `yaml:"redfish_username"`
		RedfishPassword      string `yaml:"redfish_password"`
		TopicPrefix          string `yaml:"topic_prefix"`
		SamplePeriod         int    `yaml:"sample_period"`
		WorkerCount          int    `yaml:"worker_count"`
		Address              string `yaml:"address"`
		Port                 int    `yaml:"port"`
		SubscriptionTimeout  int    `yaml:"subscription_timeout"`
		SubscriptionRetries  int    `yaml:"subscription_retries"`
		ResubscribeInterval  int    `yaml:"resubscribe_interval"`
		LogAlerts            bool   `yaml:"log_alerts"`
		LogAlertsFile        string `yaml:"log_alerts_file"`
		NoKafka              bool   `yaml:"no_kafka"`
	} `yaml:"general"`

	Subscriptions []rawSubscriptionEntry `yaml:"subscriptions"`

	Hostnames []string `yaml:"hostnames"`

	Bus            map[string]any `yaml:"bus"`
	SchemaRegistry map[string]any `yaml:"schema_registry"`
}

type rawSubscriptionEntry struct {
	Servers           yamlStringList `yaml:"servers"`
	Context           string         `yaml:"context"`
	Properties        struct {
		RegistryPrefixes []string `yaml:"RegistryPrefixes"`
	} `yaml:"properties"`
	Destinations      string `yaml:"destinations"`
	DestinationsPort  int    `yaml:"destinations_port"`
	DestinationsUseIP bool   `yaml:"destinations_use_ip"`
}

// yamlStringList accepts either a scalar hostlist string or a YAML sequence
// of strings for the "servers" key, matching the documented "hostlist
// string or list" contract.
type yamlStringList []string

func (l *yamlStringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*l = []string{s}
	case yaml.SequenceNode:
		var s []string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*l = s
	default:
		return fmt.Errorf("config: servers must be a string or a list of strings")
	}
	return nil
}

// Load reads and resolves the configuration document at path.
func Load(path string, logger *slog.Logger) (*LoadedConfig, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	var raw rawDocument
	dec := yaml.NewDecoder(f)
	dec.KnownFields(false)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("config: decode %q: %w", path, err)
	}

	loaded, err := resolve(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger.Info("config: loaded",
		"subscriptions", len(loaded.Subscriptions),
		"hostnames", len(loaded.Hostnames),
	)
	return loaded, nil
}

// resolve validates required fields and fills hard-coded fallbacks for
// anything left zero-valued. ConfigError-class problems (missing required
// fields) are returned as errors and are fatal at startup, per the error
// taxonomy.
func resolve(raw rawDocument) (*LoadedConfig, error) {
	if raw.General.ContextPrefix == "" {
		return nil, fmt.Errorf("general.context_prefix is required")
	}
	if raw.General.RedfishUsername == "" {
		return nil, fmt.Errorf("general.redfish_username is required")
	}

	g := General{
		LogLevel:            orDefault(raw.General.LogLevel, "info"),
		RefreshInterval:      secondsOrDefault(raw.General.RefreshInterval, 300),
		ContextPrefix:        raw.General.ContextPrefix,
		PurgeUnrecognized:    raw.General.PurgeUnrecognized,
		MaxWorkers:           intOrDefault(raw.General.MaxWorkers, 16),
		RedfishUsername:      raw.General.RedfishUsername,
		RedfishPassword:      raw.General.RedfishPassword,
		TopicPrefix:          raw.General.TopicPrefix,
		SamplePeriod:         secondsOrDefault(raw.General.SamplePeriod, 10),
		WorkerCount:          intOrDefault(raw.General.WorkerCount, 8),
		Address:              orDefault(raw.General.Address, "0.0.0.0"),
		Port:                 intOrDefault(raw.General.Port, 9127),
		SubscriptionTimeout:  secondsOrDefault(raw.General.SubscriptionTimeout, 5),
		SubscriptionRetries:  intOrDefault(raw.General.SubscriptionRetries, 2),
		ResubscribeInterval:  secondsOrDefault(raw.General.ResubscribeInterval, 300),
		LogAlerts:            raw.General.LogAlerts,
		LogAlertsFile:        raw.General.LogAlertsFile,
		NoKafka:              raw.General.NoKafka,
	}

	subs := make([]SubscriptionEntry, 0, len(raw.Subscriptions))
	for i, rs := range raw.Subscriptions {
		if rs.Context == "" {
			return nil, fmt.Errorf("subscriptions[%d].context is required", i)
		}
		var servers []string
		for _, spec := range rs.Servers {
			expanded, err := ExpandHostlist(spec)
			if err != nil {
				return nil, fmt.Errorf("subscriptions[%d]: %w", i, err)
			}
			servers = append(servers, expanded...)
		}
		subs = append(subs, SubscriptionEntry{
			Servers:           servers,
			Context:           g.ContextPrefix + rs.Context,
			RegistryPrefixes:  rs.Properties.RegistryPrefixes,
			Destination:       rs.Destinations,
			DestinationsPort:  rs.DestinationsPort,
			DestinationsUseIP: rs.DestinationsUseIP,
		})
	}

	return &LoadedConfig{
		General:        g,
		Subscriptions:  subs,
		Hostnames:      raw.Hostnames,
		Bus:            raw.Bus,
		SchemaRegistry: raw.SchemaRegistry,
	}, nil
}

// DesiredSubscriptions expands the subscriptions section into a per-hostname
// desired set, ready for the reconciler to diff against each endpoint's live
// set. relayAddr/relayPort are this process's own listen address, used to
// build the default Destination when an entry does not override it.
func DesiredSubscriptions(loaded *LoadedConfig, relayAddr string, relayPort int) map[string][]models.Subscription {
	out := make(map[string][]models.Subscription)
	for _, entry := range loaded.Subscriptions {
		dest := entry.Destination
		if dest == "" {
			port := entry.DestinationsPort
			if port == 0 {
				port = relayPort
			}
			dest = fmt.Sprintf("%s:%d/redfish", relayAddr, port)
		}
		desired := models.Subscription{
			Destination:      dest,
			Context:          entry.Context,
			RegistryPrefixes: entry.RegistryPrefixes,
			Protocol:         "Redfish",
		}
		for _, host := range entry.Servers {
			out[host] = append(out[host], desired)
		}
	}
	return out
}

// Endpoints builds the set of models.Endpoint this daemon instance owns,
// from the "hostnames" section and the shared redfish credentials.
func Endpoints(loaded *LoadedConfig) []models.Endpoint {
	endpoints := make([]models.Endpoint, 0, len(loaded.Hostnames))
	for _, h := range loaded.Hostnames {
		endpoints = append(endpoints, models.Endpoint{
			Hostname: h,
			Username: loaded.General.RedfishUsername,
			Password: loaded.General.RedfishPassword,
		})
	}
	return endpoints
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func intOrDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func secondsOrDefault(v, def int) time.Duration {
	if v == 0 {
		v = def
	}
	return time.Duration(v) * time.Second
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
