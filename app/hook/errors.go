// Package hook implements the dispatch layer between the feed poller and the
// six sink types: reloading a feed's hooks, filtering matched articles,
// routing each hook through its pool to the right handler, and recording
// webhook-log outcomes.
package hook

import "fmt"

// ConfigError marks a hook configuration that can never succeed (invalid
// pattern, non-positive token budget, missing endpoint). Not retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid hook config: " + e.Reason
}

// UnsupportedTypeError marks a type tag outside the closed set. Fatal to the
// single operation only.
type UnsupportedTypeError struct {
	Kind  string // "hook" or "bittorrent client"
	Value string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported %s type: %q", e.Kind, e.Value)
}
