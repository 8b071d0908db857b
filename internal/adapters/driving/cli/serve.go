package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/eventvault/internal/adapters/driven/auth"
	busmem "github.com/custodia-labs/eventvault/internal/adapters/driven/bus/memory"
	busredis "github.com/custodia-labs/eventvault/internal/adapters/driven/bus/redis"
	cachemem "github.com/custodia-labs/eventvault/internal/adapters/driven/cache/memory"
	configfile "github.com/custodia-labs/eventvault/internal/adapters/driven/config/file"
	storagemem "github.com/custodia-labs/eventvault/internal/adapters/driven/storage/memory"
	storagemongo "github.com/custodia-labs/eventvault/internal/adapters/driven/storage/mongo"
	storagesqlite "github.com/custodia-labs/eventvault/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/eventvault/internal/adapters/driving/httpapi"
	"github.com/custodia-labs/eventvault/internal/core/domain"
	"github.com/custodia-labs/eventvault/internal/core/ports/driven"
	"github.com/custodia-labs/eventvault/internal/core/services"
	"github.com/custodia-labs/eventvault/internal/logger"
)

var (
	configDirFlag string
	listenFlag    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the record ingest server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&configDirFlag, "config-dir", "", "configuration directory (default ~/.eventvault)")
	serveCmd.Flags().StringVar(&listenFlag, "listen", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

//nolint:gocyclo // Wiring function with necessary sequential steps
func runServe(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := configfile.NewConfigStore(configDirFlag)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	defer cfg.Close()
	if err := cfg.Watch(); err != nil {
		logger.Warn("config hot reload disabled: %v", err)
	}

	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	bus := buildBus(cfg)

	keys := auth.NewKeyRing()
	loadKeys(keys, cfg)

	ingest := services.NewIngestService(store, auth.NewAuthorizer(), bus)

	listen := listenFlag
	if listen == "" {
		listen = cfg.GetString("server.listen")
	}
	if listen == "" {
		listen = ":8080"
	}
	ratePerSec := float64(cfg.GetInt("server.rate_limit"))

	server := httpapi.NewServer(ingest, keys, ratePerSec)
	return server.ListenAndServe(ctx, listen)
}

// buildStore selects the storage backend from config: sqlite (default),
// mongo, or memory for ephemeral runs.
func buildStore(ctx context.Context, cfg driven.ConfigStore) (driven.RecordStore, func(), error) {
	backend := cfg.GetString("storage.backend")
	switch backend {
	case "", "sqlite":
		store, err := storagesqlite.NewStore(cfg.GetString("storage.data_dir"))
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	case "mongo":
		uri := cfg.GetString("storage.mongo_uri")
		db := cfg.GetString("storage.mongo_database")
		if db == "" {
			db = "eventvault"
		}
		store, err := storagemongo.NewStore(ctx, uri, db)
		if err != nil {
			return nil, nil, fmt.Errorf("opening mongo store: %w", err)
		}
		return store, func() { _ = store.Close(context.Background()) }, nil
	case "memory":
		return storagemem.NewRecordStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// buildBus wires the cache coherence bus: the in-process bus feeding the
// local read cache, plus Redis pub/sub when configured so caches in other
// processes hear about committed writes too.
func buildBus(cfg driven.ConfigStore) driven.EventBus {
	local := busmem.NewBus()
	cachemem.NewCache().Attach(local)

	addr := cfg.GetString("bus.redis_addr")
	if addr == "" {
		return local
	}

	client := goredis.NewClient(&goredis.Options{Addr: addr})
	remote := busredis.NewBus(client, cfg.GetString("bus.channel_prefix"))
	logger.Info("publishing cache signals to redis at %s", addr)
	return fanout{local, remote}
}

// fanout emits to every wrapped bus.
type fanout []driven.EventBus

func (f fanout) Emit(event string, payload any) {
	for _, b := range f {
		b.Emit(event, payload)
	}
}

// loadKeys reads auth.keys entries of the form "key|subject|cap,cap".
func loadKeys(keys *auth.KeyRing, cfg driven.ConfigStore) {
	entries := cfg.GetStringSlice("auth.keys")
	for _, entry := range entries {
		parts := strings.SplitN(entry, "|", 3)
		if len(parts) != 3 {
			logger.Warn("skipping malformed auth.keys entry %q", entry)
			continue
		}
		caps := auth.ParseCapabilities(strings.Split(parts[2], ","))
		if caps == domain.CapNone {
			logger.Warn("auth.keys entry for subject %s grants no capabilities", parts[1])
		}
		keys.Add(parts[0], parts[1], caps)
	}
	if len(entries) == 0 {
		logger.Warn("no auth.keys configured; all requests will be rejected")
	}
}
