// Package config loads and validates the ilrouterd configuration from its
// TOML file, environment variables and defaults.
package config

import "time"

// Config is the complete ilrouterd configuration.
type Config struct {
	Server  ServerConfig  `toml:"server" mapstructure:"server"`
	Routing RoutingConfig `toml:"routing" mapstructure:"routing"`
	Log     LogConfig     `toml:"log" mapstructure:"log"`

	// LocalRoutes are the directly configured ledger pairs this connector
	// operates between.
	LocalRoutes []LocalRouteConfig `toml:"local_route" mapstructure:"local_route"`

	configPath string
}

// ServerConfig controls the RPC listener.
type ServerConfig struct {
	// ListenAddr is the host:port the JSON-RPC and WebSocket listener binds.
	ListenAddr string `toml:"listen_addr" mapstructure:"listen_addr"`

	// QuoteCacheSize is the number of quote results kept in the LRU cache.
	QuoteCacheSize int `toml:"quote_cache_size" mapstructure:"quote_cache_size"`
}

// RoutingConfig controls the routing table composer.
type RoutingConfig struct {
	// RouteExpiry is the hold-down applied to derived routes, in
	// milliseconds. Zero makes derived routes static.
	RouteExpiry int `toml:"route_expiry" mapstructure:"route_expiry"`

	// BroadcastCurveMaxPoints caps curve break-points in broadcast records.
	BroadcastCurveMaxPoints int `toml:"broadcast_curve_max_points" mapstructure:"broadcast_curve_max_points"`

	// ExpirySweepInterval is how often expired routes are swept, in
	// milliseconds.
	ExpirySweepInterval int `toml:"expiry_sweep_interval" mapstructure:"expiry_sweep_interval"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `toml:"level" mapstructure:"level"`
	Format string `toml:"format" mapstructure:"format"` // "text" or "json"
}

// LocalRouteConfig is one locally configured ledger pair.
type LocalRouteConfig struct {
	SourceLedger       string     `toml:"source_ledger" mapstructure:"source_ledger"`
	DestinationLedger  string     `toml:"destination_ledger" mapstructure:"destination_ledger"`
	SourceAccount      string     `toml:"source_account" mapstructure:"source_account"`
	DestinationAccount string     `toml:"destination_account" mapstructure:"destination_account"`
	MinMessageWindow   float64    `toml:"min_message_window" mapstructure:"min_message_window"`
	Points             [][]string `toml:"points" mapstructure:"points"`
}

// RouteExpiryDuration returns the hold-down as a time.Duration.
func (c *RoutingConfig) RouteExpiryDuration() time.Duration {
	return time.Duration(c.RouteExpiry) * time.Millisecond
}

// ExpirySweepDuration returns the sweep interval as a time.Duration.
func (c *RoutingConfig) ExpirySweepDuration() time.Duration {
	return time.Duration(c.ExpirySweepInterval) * time.Millisecond
}

// Path returns the path of the loaded config file, if any.
func (c *Config) Path() string {
	return c.configPath
}
