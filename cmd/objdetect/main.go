// Command objdetect spawns a hero vehicle with a semantic LiDAR and a fleet
// of autopilot traffic in a simulator, and logs every LiDAR frame to CSV
// until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/banshee-data/objdetect/internal/config"
	"github.com/banshee-data/objdetect/internal/session"
	"github.com/banshee-data/objdetect/internal/simulator"
	"github.com/banshee-data/objdetect/internal/simulator/simrpc"
	"github.com/banshee-data/objdetect/internal/simulator/synthetic"
	"github.com/banshee-data/objdetect/internal/version"
)

var (
	configFile  = flag.String("config", "", "Path to JSON run configuration (default "+config.DefaultConfigPath+" when present)")
	host        = flag.String("host", "", "Simulator host (overrides config)")
	port        = flag.Int("port", 0, "Simulator port (overrides config)")
	vehicles    = flag.Int("vehicles", -1, "Number of autopilot vehicles to spawn (overrides config)")
	rawLog      = flag.String("raw-log", "", "Raw LiDAR point CSV path (overrides config)")
	summaryLog  = flag.String("summary-log", "", "Detection summary CSV path (overrides config)")
	useSynth    = flag.Bool("synthetic", false, "Run against an in-process synthetic world instead of a remote simulator")
	maxTicks    = flag.Uint64("ticks", 0, "Stop after this many ticks (0 runs until interrupted)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String("objdetect"))
		return
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *useSynth, *maxTicks); err != nil {
		log.Printf("objdetect: %v", err)
		stop()
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadDefault()
	}
	return config.Load(path)
}

// applyFlags copies explicitly set command-line values over the config.
func applyFlags(cfg *config.Config) {
	if *host != "" {
		cfg.Host = host
	}
	if *port != 0 {
		cfg.Port = port
	}
	if *vehicles >= 0 {
		cfg.Vehicles = vehicles
	}
	if *rawLog != "" {
		cfg.RawLog = rawLog
	}
	if *summaryLog != "" {
		cfg.SummaryLog = summaryLog
	}
}

func run(ctx context.Context, cfg *config.Config, synth bool, ticks uint64) error {
	sim, err := connect(ctx, cfg, synth)
	if err != nil {
		return err
	}
	defer sim.Close()

	res, err := session.Run(ctx, cfg, sim, session.Options{MaxTicks: ticks})
	if res != nil {
		log.Printf("Session %s: hero=%d fleet=%d/%d frames=%d raw rows=%d summary rows=%d",
			res.RunID, res.Hero, res.FleetSpawned, res.FleetRequested, res.FramesSubmitted, res.RawRows, res.SummaryRows)
	}
	return err
}

func connect(ctx context.Context, cfg *config.Config, synth bool) (simulator.Simulator, error) {
	if synth {
		w := synthetic.New(synthetic.Config{})
		go func() {
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("synthetic world stopped: %v", err)
			}
		}()
		return w, nil
	}
	target := net.JoinHostPort(cfg.GetHost(), strconv.Itoa(cfg.GetPort()))
	return simrpc.Dial(ctx, target, cfg.GetConnectTimeout())
}
