// Command plumcored is the production plumCore node daemon: it loads
// a YAML configuration, wires the configured CAN ports and radio
// transceiver through the adapters/ packages, starts the NBUS
// core/switch and rMAC subsystems, and blocks until interrupted. The
// flag/config layering mirrors the teacher's cmd/direwolf main.go:
// pflag overrides loaded onto a config file, never the reverse.
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/plumcore/plumcore/adapters/canloop"
	"github.com/plumcore/plumcore/adapters/canpty"
	"github.com/plumcore/plumcore/adapters/clockrt"
	"github.com/plumcore/plumcore/adapters/radiosim"
	"github.com/plumcore/plumcore/adapters/socketcan"
	"github.com/plumcore/plumcore/config"
	"github.com/plumcore/plumcore/logx"
	"github.com/plumcore/plumcore/nbus"
	"github.com/plumcore/plumcore/nbusswitch"
	"github.com/plumcore/plumcore/ports"
	"github.com/plumcore/plumcore/rmac"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "", "Path to a plumcored.yaml configuration file. Defaults built in if omitted.")
		logLevel   = pflag.StringP("log-level", "l", "", "Override the configured log level (debug, info, warn, error).")
		nodeID     = pflag.Uint32P("node-id", "n", 0, "Override the configured node ID. 0 means use the config file's value.")
		help       = pflag.BoolP("help", "h", false, "Display help text.")
	)

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\n", os.Args[0])
		pflag.PrintDefaults()
	}

	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "plumcored: %v\n", err)
		os.Exit(1)
	}

	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	if *nodeID != 0 {
		cfg.Node.ID = *nodeID
	}

	log := logx.NewRoot(os.Stderr, parseLevel(cfg.LogLevel))

	if err := run(cfg, log); err != nil {
		log.Component("main").Error("fatal", "err", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Defaults(), nil
	}

	return config.Load(path)
}

func parseLevel(name string) logx.Level {
	switch name {
	case "debug":
		return logx.LevelDebug
	case "warn":
		return logx.LevelWarn
	case "error":
		return logx.LevelError
	default:
		return logx.LevelInfo
	}
}

// run wires every configured subsystem and blocks until SIGINT/SIGTERM,
// tearing everything down in reverse dependency order on the way out.
func run(cfg config.Config, log *logx.Root) error {
	universeKey, err := loadUniverseKey(cfg.Node.UniverseKeyFile)
	if err != nil {
		return err
	}

	swPorts, closers, err := wirePorts(cfg.Ports, log)
	if err != nil {
		return err
	}

	defer closePorts(closers)

	bus := canloop.NewBus()
	localEnd := bus.Attach()

	swPorts = append(swPorts, &nbusswitch.Port{Name: "local", CAN: bus.Attach()})

	sw := nbusswitch.New(log, swPorts...)
	sw.Start()
	defer sw.Stop()

	core := nbus.NewCore(localEnd, log)

	root, err := nbus.Init("root", universeKey)
	if err != nil {
		return fmt.Errorf("plumcored: root channel: %w", err)
	}

	core.AddChannel(root)
	core.Start()
	defer core.Stop()

	mac, err := wireRMAC(cfg, universeKey, log)
	if err != nil {
		return err
	}

	if mac != nil {
		mac.Start()
		defer mac.Stop()
	}

	log.Component("main").Info("plumcored started", "node_id", cfg.Node.ID, "ports", len(cfg.Ports))

	waitForSignal()

	log.Component("main").Info("shutting down")

	return nil
}

// wireRMAC builds the rMAC subsystem when rmac.enabled is set (the
// default); a node acting purely as an NBUS switch sets
// rmac.enabled: false and gets a nil MAC.
func wireRMAC(cfg config.Config, universeKey []byte, log *logx.Root) (*rmac.MAC, error) {
	if !cfg.RMAC.Enabled {
		return nil, nil //nolint:nilnil
	}

	algo, err := cfg.SchedAlgorithm()
	if err != nil {
		return nil, fmt.Errorf("plumcored: %w", err)
	}

	rmacCfg := rmac.Config{
		NodeID:           cfg.Node.ID,
		UniverseKey:      universeKey,
		Algorithm:        algo,
		SyncBytes:        make([]byte, cfg.RMAC.RadioSyncSize),
		PoolSize:         cfg.RMAC.PoolSize,
		PoolCapacity:     cfg.RMAC.PoolCapacity,
		RXQueueDepth:     cfg.RMAC.RXQueueDepth,
		NeighborCapacity: cfg.RMAC.NeighborCapacity,
		NeighborMaxAge:   uint8(cfg.RMAC.NeighborMaxAge), //nolint:gosec
	}

	// No vendor transceiver driver ships with this repository
	// (spec.md §1); radiosim stands in until one is wired in by the
	// surrounding firmware build.
	medium := radiosim.NewMedium()
	radio := medium.Attach()

	mac, err := rmac.New(rmacCfg, radio, clockrt.Clock{}, noopHost{}, log)
	if err != nil {
		return nil, fmt.Errorf("plumcored: rmac: %w", err)
	}

	return mac, nil
}

// noopHost is the upward-facing ports.MACHost plumcored hands to rMAC
// when no application on this node originates or consumes MAC traffic
// directly; a node that does would supply its own host implementation
// in place of this one.
type noopHost struct{}

func (noopHost) GetPacketToSend(ports.Context) (uint32, []byte, bool) {
	return 0, nil, false
}

func (noopHost) PutReceivedPacket(uint32, ports.Context, []byte) {}

func loadUniverseKey(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("plumcored: node.universe_key_file is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plumcored: reading universe key: %w", err)
	}

	// Key files are hex-encoded by convention, but a raw binary key
	// file is accepted too: fall back to it verbatim if it doesn't
	// decode as hex.
	if key, err := hex.DecodeString(trimNewline(string(raw))); err == nil {
		return key, nil
	}

	return raw, nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}

	return s
}

func wirePorts(configured []config.PortConfig, log *logx.Root) ([]*nbusswitch.Port, []func() error, error) {
	swPorts := make([]*nbusswitch.Port, 0, len(configured))
	closers := make([]func() error, 0, len(configured))

	for _, pc := range configured {
		can, closer, err := openPort(pc)
		if err != nil {
			return nil, nil, fmt.Errorf("plumcored: port %q: %w", pc.Name, err)
		}

		swPorts = append(swPorts, &nbusswitch.Port{Name: pc.Name, CAN: can})
		closers = append(closers, closer)

		log.Component("main").Info("port wired", "name", pc.Name, "kind", pc.Kind, "device", pc.Device)
	}

	return swPorts, closers, nil
}

func openPort(pc config.PortConfig) (ports.CAN, func() error, error) {
	switch pc.Kind {
	case "socketcan":
		p, err := socketcan.Open(pc.Device)
		if err != nil {
			return nil, nil, err
		}

		return p, p.Close, nil
	case "canpty":
		p, err := canpty.Open()
		if err != nil {
			return nil, nil, err
		}

		return p, p.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown port kind %q", pc.Kind)
	}
}

func closePorts(closers []func() error) {
	for _, c := range closers {
		_ = c()
	}
}

func waitForSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}
