package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/probelab/wafermap/config"
	"github.com/probelab/wafermap/metric"
	"github.com/probelab/wafermap/remote"
	"github.com/probelab/wafermap/remote/gossip"
	"github.com/probelab/wafermap/remote/localstore"
	"github.com/probelab/wafermap/remote/natskv"
	"github.com/probelab/wafermap/store"
	"github.com/probelab/wafermap/syncer"
)

// runtime wires config, remote store, entry store, and sync engine for one
// command invocation. One-shot commands must call close, which flushes
// pending pushes before tearing the stack down.
type runtime struct {
	cfg      *config.Config
	store    *store.Store
	engine   *syncer.Engine
	remote   remote.Store
	registry *prometheus.Registry

	embedded *server.Server
	conn     *nats.Conn
	cancel   context.CancelFunc
}

func (c *CLI) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if c.configPath != "" {
		override, err := config.LoadFromFile(c.configPath)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", c.configPath, err)
		}
		cfg = config.DefaultConfig()
		cfg.Merge(override)
	} else {
		var err error
		cfg, err = config.NewLoader(c.logger).Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	if c.backend != "" {
		cfg.Store.Backend = c.backend
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openRuntime builds the full stack and applies the remote snapshot, so the
// entry store reflects the shared state when it returns.
func (c *CLI) openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		cfg:      cfg,
		store:    store.New(),
		registry: prometheus.NewRegistry(),
	}

	if err := rt.openRemote(ctx, cfg); err != nil {
		return nil, err
	}

	rt.engine = syncer.New(rt.store, rt.remote,
		syncer.WithLogger(c.logger),
		syncer.WithMetrics(metric.NewSync(rt.registry)))

	runCtx, cancel := context.WithCancel(ctx)
	rt.cancel = cancel
	if err := rt.engine.Run(runCtx); err != nil {
		rt.close()
		return nil, fmt.Errorf("start sync engine: %w", err)
	}
	return rt, nil
}

func (rt *runtime) openRemote(ctx context.Context, cfg *config.Config) error {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		rt.remote = remote.NewMemory()
		return nil

	case config.BackendLocal:
		rs, err := localstore.Open(cfg.Local.Path)
		if err != nil {
			return fmt.Errorf("open local store: %w", err)
		}
		rt.remote = rs
		return nil

	case config.BackendGossip:
		rs, err := gossip.Open(gossip.Config{
			NodeID: cfg.Gossip.NodeID,
			Bind:   cfg.Gossip.Bind,
			Peers:  cfg.Gossip.Peers,
		})
		if err != nil {
			return fmt.Errorf("open gossip store: %w", err)
		}
		rt.remote = rs
		return nil

	case config.BackendNATS:
		if cfg.NATS.URL == "" && cfg.NATS.Embedded {
			return rt.openEmbeddedNATS(ctx, cfg)
		}
		rs, err := natskv.Open(ctx, natskv.Config{
			URL:    cfg.NATS.URL,
			Bucket: cfg.NATS.Bucket,
		})
		if err != nil {
			return fmt.Errorf("open nats store: %w", err)
		}
		rt.remote = rs
		return nil

	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func (rt *runtime) openEmbeddedNATS(ctx context.Context, cfg *config.Config) error {
	storeDir := filepath.Join(os.TempDir(), "wafermap-nats")
	if home, err := os.UserHomeDir(); err == nil {
		storeDir = filepath.Join(home, ".local", "share", "wafermap", "nats")
	}

	ns, err := server.NewServer(&server.Options{
		Port:      -1,
		JetStream: true,
		StoreDir:  storeDir,
		NoLog:     true,
		NoSigs:    true,
	})
	if err != nil {
		return fmt.Errorf("create embedded NATS server: %w", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return fmt.Errorf("embedded NATS server failed to start")
	}
	rt.embedded = ns

	conn, err := nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return fmt.Errorf("connect to embedded NATS: %w", err)
	}
	rt.conn = conn

	rs, err := natskv.NewWithConn(ctx, conn, cfg.NATS.Bucket)
	if err != nil {
		conn.Close()
		ns.Shutdown()
		return fmt.Errorf("open nats store: %w", err)
	}
	rt.remote = rs
	return nil
}

// close flushes pending pushes, stops the engine loops, and tears down the
// remote store and any embedded server.
func (rt *runtime) close() {
	if rt.engine != nil {
		rt.engine.Flush()
	}
	if rt.cancel != nil {
		rt.cancel()
	}
	if rt.remote != nil {
		_ = rt.remote.Close()
	}
	if rt.conn != nil {
		_ = rt.conn.Drain()
		rt.conn.Close()
	}
	if rt.embedded != nil {
		rt.embedded.Shutdown()
		rt.embedded.WaitForShutdown()
	}
}
