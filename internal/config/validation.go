package config

import (
	"fmt"
	"strings"
)

// ValidateConfig checks the complete configuration for inconsistencies.
func ValidateConfig(config *Config) error {
	if err := validateServer(&config.Server); err != nil {
		return fmt.Errorf("server config validation failed: %w", err)
	}
	if err := validateRouting(&config.Routing); err != nil {
		return fmt.Errorf("routing config validation failed: %w", err)
	}
	if err := validateLog(&config.Log); err != nil {
		return fmt.Errorf("log config validation failed: %w", err)
	}
	for i, route := range config.LocalRoutes {
		if err := validateLocalRoute(&route); err != nil {
			return fmt.Errorf("local_route[%d] validation failed: %w", i, err)
		}
	}
	return nil
}

func validateServer(server *ServerConfig) error {
	if server.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if server.QuoteCacheSize <= 0 {
		return fmt.Errorf("quote_cache_size must be positive, got %d", server.QuoteCacheSize)
	}
	return nil
}

func validateRouting(routing *RoutingConfig) error {
	if routing.RouteExpiry < 0 {
		return fmt.Errorf("route_expiry must be non-negative, got %d", routing.RouteExpiry)
	}
	if routing.BroadcastCurveMaxPoints < 2 {
		return fmt.Errorf("broadcast_curve_max_points must be at least 2, got %d", routing.BroadcastCurveMaxPoints)
	}
	if routing.ExpirySweepInterval <= 0 {
		return fmt.Errorf("expiry_sweep_interval must be positive, got %d", routing.ExpirySweepInterval)
	}
	return nil
}

func validateLog(log *LogConfig) error {
	switch log.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", log.Level)
	}
	switch log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", log.Format)
	}
	return nil
}

func validateLocalRoute(route *LocalRouteConfig) error {
	if route.SourceLedger == "" || route.DestinationLedger == "" {
		return fmt.Errorf("source_ledger and destination_ledger are required")
	}
	if !strings.HasSuffix(route.SourceLedger, ".") || !strings.HasSuffix(route.DestinationLedger, ".") {
		return fmt.Errorf("ledger prefixes must end with '.'")
	}
	if route.SourceAccount == "" {
		return fmt.Errorf("source_account is required")
	}
	if route.MinMessageWindow < 0 {
		return fmt.Errorf("min_message_window must be non-negative")
	}
	if len(route.Points) == 0 {
		return fmt.Errorf("at least one curve point is required")
	}
	for i, point := range route.Points {
		if len(point) != 2 {
			return fmt.Errorf("points[%d] must be an [x, y] pair", i)
		}
	}
	return nil
}
