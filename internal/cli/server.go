package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mverdi/goILRouter/internal/config"
	"github.com/mverdi/goILRouter/internal/core/routing"
	"github.com/mverdi/goILRouter/internal/server"
)

// serverCmd starts the routing daemon (default action).
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the routing daemon",
	Long: `Start ilrouterd, which provides:
- JSON-RPC quote and route management endpoints
- WebSocket routing table snapshots on every epoch change
- Periodic expiration of stale derived routes

This is the default command when no subcommand is specified.`,
	RunE: runServer,
}

var listenAddr string

func init() {
	rootCmd.AddCommand(serverCmd)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return serverCmd.RunE(cmd, args)
	}

	serverCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address override (host:port)")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Server.ListenAddr = listenAddr
	}

	log := newLogger(cfg)

	tables, err := buildTables(cfg)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, tables, log)
	if err != nil {
		return err
	}

	if !quiet {
		fmt.Printf("ilrouterd listening on %s (JSON-RPC on /, snapshots on /ws)\n", cfg.Server.ListenAddr)
	}
	log.WithField("local_routes", len(cfg.LocalRoutes)).Info("routing tables initialized")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}

// buildTables creates the composer and seeds it with the configured local
// ledger pairs.
func buildTables(cfg *config.Config) (*routing.RoutingTables, error) {
	tables := routing.NewRoutingTables(cfg.Routing.RouteExpiryDuration(), nil)

	locals := make([]*routing.Route, 0, len(cfg.LocalRoutes))
	for i, lr := range cfg.LocalRoutes {
		points := make([][2]string, len(lr.Points))
		for j, p := range lr.Points {
			points[j] = [2]string{p[0], p[1]}
		}
		route, err := routing.RouteFromData(routing.RouteData{
			SourceLedger:       lr.SourceLedger,
			DestinationLedger:  lr.DestinationLedger,
			SourceAccount:      lr.SourceAccount,
			DestinationAccount: lr.DestinationAccount,
			MinMessageWindow:   lr.MinMessageWindow,
			Points:             points,
		})
		if err != nil {
			return nil, fmt.Errorf("local_route[%d]: %w", i, err)
		}
		locals = append(locals, route)
	}
	tables.AddLocalRoutes(locals)
	return tables, nil
}
