package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/otusnet/fragmentd/internal/alarm"
	"github.com/otusnet/fragmentd/internal/config"
	"github.com/otusnet/fragmentd/internal/control"
	"github.com/otusnet/fragmentd/internal/fragmenter"
	"github.com/otusnet/fragmentd/internal/log"
	"github.com/otusnet/fragmentd/internal/metrics"
	"github.com/otusnet/fragmentd/internal/ports"
	_ "github.com/otusnet/fragmentd/internal/ports/afpacket"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the fragmentd daemon in foreground",
	Long: `Run the fragmentd daemon process in foreground.

The daemon loads configuration, wires the input/output/south/north ports,
starts the Prometheus metrics endpoint and the local control socket, and
drives the fragmenter stage with a fixed-interval tick until it receives
SIGTERM or SIGINT. SIGHUP and the control socket's "reload" method both
re-read the configuration file and apply the fields that are safe to
change without a restart (the local-address set).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(ctx context.Context) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := log.Init(cfg.Log); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	memCounters := &fragmenter.MemCounters{}
	stage, metricsServer, err := buildStage(cfg, fragmenter.MultiCounters{metrics.PromCounters{}, memCounters})
	if err != nil {
		return fmt.Errorf("build stage: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Metrics.Enabled {
		if err := metricsServer.Start(runCtx); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer metricsServer.Stop(context.Background())
	}

	controlServer := control.NewServer(socketPath)
	controlServer.Handle(control.MethodStats, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		return memCounters.Snapshot(), nil
	})
	controlServer.Handle(control.MethodReload, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		if err := reloadSafeFields(stage); err != nil {
			return nil, err
		}
		return map[string]string{"status": "reloaded"}, nil
	})
	if err := controlServer.Start(runCtx); err != nil {
		return fmt.Errorf("start control server: %w", err)
	}
	defer controlServer.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	slog.Info("fragmentd started",
		"mtu", cfg.Fragmenter.MTU,
		"pmtud", cfg.Fragmenter.PMTUD,
		"socket", socketPath,
	)

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				if err := reloadSafeFields(stage); err != nil {
					slog.Error("reload failed", "error", err)
				} else {
					slog.Info("config reloaded")
				}
				continue
			}
			slog.Info("shutting down", "signal", sig)
			return nil

		case now := <-ticker.C:
			stage.Tick(now)
		}
	}
}

// buildStage wires config into ports, a fragmenter.Stage and its
// metrics HTTP server. The in-memory Link port is used unless a
// concrete driver is configured (e.g. afpacket).
func buildStage(cfg *config.GlobalConfig, counters fragmenter.Counters) (*fragmenter.Stage, *metrics.Server, error) {
	localAddrs, err := cfg.Fragmenter.LocalAddresses()
	if err != nil {
		return nil, nil, err
	}

	fcfg := fragmenter.Config{
		MTU:                cfg.Fragmenter.MTU,
		PMTUDEnabled:       cfg.Fragmenter.PMTUD,
		PMTUTimeout:        cfg.Fragmenter.PMTUTimeout(),
		PMTULocalAddresses: localAddrs,
		UseAlarms:          cfg.Fragmenter.UseAlarms,
		DeterministicSeed:  cfg.Fragmenter.DeterministicSeed,
	}

	newPort := func(name string) (ports.Port, error) {
		driver := cfg.Fragmenter.Port.Driver
		if driver == "" {
			return ports.NewLink(name, 4096), nil
		}
		p, err := ports.New(driver)
		if err != nil {
			return nil, fmt.Errorf("port %s: %w", name, err)
		}
		if err := p.Init(cfg.Fragmenter.Port.Params); err != nil {
			return nil, fmt.Errorf("init port %s: %w", name, err)
		}
		if err := p.Start(context.Background()); err != nil {
			return nil, fmt.Errorf("start port %s: %w", name, err)
		}
		return p, nil
	}

	input, err := newPort("input")
	if err != nil {
		return nil, nil, err
	}
	output, err := newPort("output")
	if err != nil {
		return nil, nil, err
	}

	var south, north ports.Port
	if fcfg.PMTUDEnabled {
		if south, err = newPort("south"); err != nil {
			return nil, nil, err
		}
		if north, err = newPort("north"); err != nil {
			return nil, nil, err
		}
	}

	var alarms alarm.Registry = alarm.NoopRegistry{}
	if cfg.Fragmenter.UseAlarms {
		alarms = alarm.NewSlidingWindowRegistry(10000, time.Second)
	}

	stage, err := fragmenter.New(fcfg, input, output, south, north, counters, alarms)
	if err != nil {
		return nil, nil, err
	}

	metricsServer := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
	return stage, metricsServer, nil
}

// reloadSafeFields re-reads configFile and applies only the fields
// that are safe to change live. mtu, pmtud, and pmtu_timeout are not
// reloadable: the running dcache is sized and keyed on them, so those
// changes require a restart.
func reloadSafeFields(stage *fragmenter.Stage) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	localAddrs, err := cfg.Fragmenter.LocalAddresses()
	if err != nil {
		return err
	}
	stage.ReloadLocalAddresses(localAddrs)
	return nil
}
