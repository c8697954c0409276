package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cory-johannsen/roomserver/internal/admin"
	"github.com/cory-johannsen/roomserver/internal/codec"
	"github.com/cory-johannsen/roomserver/internal/config"
	"github.com/cory-johannsen/roomserver/internal/gateway"
	"github.com/cory-johannsen/roomserver/internal/logic"
	"github.com/cory-johannsen/roomserver/internal/logic/builtin"
	"github.com/cory-johannsen/roomserver/internal/matchmaker"
	"github.com/cory-johannsen/roomserver/internal/observability"
	"github.com/cory-johannsen/roomserver/internal/room"
	"github.com/cory-johannsen/roomserver/internal/room/schema"
	"github.com/cory-johannsen/roomserver/internal/scripting"
	"github.com/cory-johannsen/roomserver/internal/server"
	"github.com/cory-johannsen/roomserver/internal/storage"
	"github.com/cory-johannsen/roomserver/internal/storage/memory"
	"github.com/cory-johannsen/roomserver/internal/storage/redis"
	"github.com/cory-johannsen/roomserver/internal/transport/ws"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the room server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), *configPath)
		},
	}
}

func newCheckCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and compile behavior scripts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			reg, err := buildRegistry(cfg.Scripting, zap.NewNop())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration ok; logic modules: %v\n", reg.Names())
			return nil
		},
	}
}

func serve(ctx context.Context, configPath string) error {
	start := time.Now()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logging, "roomserver")
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	reg, err := buildRegistry(cfg.Scripting, logger.Named(observability.ComponentScripting))
	if err != nil {
		return err
	}
	validator, err := schema.NewValidator()
	if err != nil {
		return fmt.Errorf("compiling command schemas: %w", err)
	}
	dir, closeDir, err := openDirectory(cfg.Directory, logger.Named(observability.ComponentDirectory))
	if err != nil {
		return err
	}
	enc, err := codec.New(cfg.Transport.Encoding)
	if err != nil {
		closeDir()
		return err
	}

	mm := matchmaker.New(roomConfig(cfg.Room), reg, validator, dir, logger.Named(observability.ComponentMatchmaker),
		matchmaker.WithRefreshInterval(refreshInterval(cfg.Directory)))
	sockets := ws.NewServer(mm, enc, wsConfig(cfg.Transport), logger.Named(observability.ComponentTransport))
	httpServer := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: gateway.NewRouter(gateway.Config{
			Rooms:     mm,
			Directory: dir,
			Sockets:   sockets,
			Logger:    logger.Named(observability.ComponentGateway),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	adminServer := admin.New(cfg.Admin.Addr(), logger.Named(observability.ComponentAdmin))
	shutdownTimeout := cfg.Server.ShutdownTimeout

	lifecycle := server.NewLifecycle(logger.Named(observability.ComponentLifecycle))
	lifecycle.Add("directory", &server.FuncService{StopFn: closeDir})
	lifecycle.Add("matchmaker", &server.FuncService{
		StopFn: func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := mm.Shutdown(ctx); err != nil {
				logger.Warn("matchmaker shutdown incomplete", zap.Error(err))
			}
		},
	})
	lifecycle.Add("admin", adminServer)
	lifecycle.Add("http", &server.FuncService{
		StartFn: func() error {
			lis, err := net.Listen("tcp", httpServer.Addr)
			if err != nil {
				return fmt.Errorf("listening on %s: %w", httpServer.Addr, err)
			}
			logger.Info("http gateway listening", zap.String("addr", lis.Addr().String()))
			if err := httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
		StopFn: func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(ctx); err != nil {
				logger.Warn("http shutdown incomplete", zap.Error(err))
			}
			if err := sockets.Shutdown(ctx); err != nil {
				logger.Warn("websocket shutdown incomplete", zap.Error(err))
			}
		},
	})
	// Stopped first: report NOT_SERVING before connections drain.
	lifecycle.Add("readiness", &server.FuncService{StopFn: func() { adminServer.SetServing(false) }})
	lifecycle.OnReady(func() { adminServer.SetServing(true) })

	logger.Info("room server initialized",
		zap.String("version", version),
		zap.Duration("startup", time.Since(start)),
		zap.String("http_addr", cfg.Server.Addr()),
		zap.String("admin_addr", cfg.Admin.Addr()),
		zap.String("directory", cfg.Directory.Backend),
		zap.String("encoding", enc.Name()),
		zap.Strings("logic", reg.Names()),
	)
	return lifecycle.Run(ctx)
}

// buildRegistry registers the builtin modules and, when a script directory
// is configured, every Lua module in it.
func buildRegistry(cfg config.ScriptingConfig, logger *zap.Logger) (*logic.Registry, error) {
	reg := logic.NewRegistry()
	if err := builtin.Register(reg); err != nil {
		return nil, err
	}
	if cfg.ScriptDir == "" {
		return reg, nil
	}
	scripts := scripting.NewManager(cfg.InstructionLimit, logger)
	if _, err := scripts.LoadDir(cfg.ScriptDir); err != nil {
		return nil, fmt.Errorf("loading behavior scripts: %w", err)
	}
	if err := scripts.Register(reg); err != nil {
		return nil, fmt.Errorf("registering behavior scripts: %w", err)
	}
	return reg, nil
}

func openDirectory(cfg config.DirectoryConfig, logger *zap.Logger) (storage.Directory, func(), error) {
	switch cfg.Backend {
	case "redis":
		d, err := redis.New(redis.Config{
			URL:          cfg.RedisURL,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			ListingTTL:   cfg.TTL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("opening redis directory: %w", err)
		}
		return d, func() {
			if err := d.Close(); err != nil {
				logger.Warn("closing redis directory", zap.Error(err))
			}
		}, nil
	default:
		return memory.New(), func() {}, nil
	}
}

// refreshInterval re-publishes listings at half the redis TTL. The memory
// directory never expires listings.
func refreshInterval(cfg config.DirectoryConfig) time.Duration {
	if cfg.Backend != "redis" {
		return 0
	}
	return cfg.TTL / 2
}

func roomConfig(c config.RoomConfig) room.Config {
	return room.Config{
		MaxClients:         c.MaxClients,
		ReconnectGrace:     c.ReconnectGrace,
		SimulationInterval: c.SimulationInterval,
		PatchInterval:      c.PatchInterval,
	}
}

func wsConfig(c config.TransportConfig) ws.Config {
	return ws.Config{
		ReadTimeout:      c.ReadTimeout,
		WriteTimeout:     c.WriteTimeout,
		HandshakeTimeout: c.HandshakeTimeout,
		SendBuffer:       c.SendBuffer,
		MaxMessageSize:   c.MaxMessageSize,
	}
}
