package config

import "github.com/spf13/viper"

// setDefaults sets the built-in defaults applied before any file or
// environment override.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", "127.0.0.1:7071")
	v.SetDefault("server.quote_cache_size", 256)

	// 45 seconds, matching the broadcast heartbeat hold-down.
	v.SetDefault("routing.route_expiry", 45000)
	v.SetDefault("routing.broadcast_curve_max_points", 10)
	v.SetDefault("routing.expiry_sweep_interval", 1000)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}
