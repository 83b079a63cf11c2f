package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/sysviz/internal/config"
	"github.com/signalsfoundry/sysviz/internal/content"
	"github.com/signalsfoundry/sysviz/internal/control"
	"github.com/signalsfoundry/sysviz/internal/hints"
	"github.com/signalsfoundry/sysviz/internal/httpapi"
	"github.com/signalsfoundry/sysviz/internal/logging"
	"github.com/signalsfoundry/sysviz/internal/observability"
	"github.com/signalsfoundry/sysviz/internal/schedule"
	"github.com/signalsfoundry/sysviz/internal/sim"
	"github.com/signalsfoundry/sysviz/timectrl"
)

type serveFlags struct {
	configPath string
	httpAddr   string
	grpcAddr   string
	renderer   string
}

func newServeCommand() *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST, websocket and gRPC servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(f.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("http-addr") {
				cfg.HTTP.Addr = f.httpAddr
			}
			if cmd.Flags().Changed("grpc-addr") {
				cfg.GRPC.Addr = f.grpcAddr
			}
			if cmd.Flags().Changed("renderer") {
				cfg.Renderer = f.renderer
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "path to a YAML config file")
	cmd.Flags().StringVar(&f.httpAddr, "http-addr", config.DefaultHTTPAddr, "HTTP listen address")
	cmd.Flags().StringVar(&f.grpcAddr, "grpc-addr", config.DefaultGRPCAddr, "gRPC listen address")
	cmd.Flags().StringVar(&f.renderer, "renderer", "", "completion source: internal or external")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	tracingCfg := observability.TracingConfigFromEnv()
	tracingCfg.Renderer = cfg.RendererMode().String()
	shutdownTracing, err := observability.InitTracing(ctx, tracingCfg, log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	simMetrics, err := observability.NewSimCollector(reg)
	if err != nil {
		return err
	}
	transport, err := observability.NewTransportCollector(reg)
	if err != nil {
		return err
	}

	catalog := content.Default()
	simOpts := []sim.Option{
		sim.WithLogger(log),
		sim.WithMetricsRecorder(simMetrics),
		sim.WithRenderer(cfg.RendererMode()),
		sim.WithWallClock(time.Now),
	}
	var tracker *hints.Tracker
	if cfg.Hints.Enabled {
		store, err := hints.Open(ctx, cfg.Hints.DBPath)
		if err != nil {
			log.Warn(ctx, "hint store unavailable, hints will not persist",
				logging.String("path", cfg.Hints.DBPath), logging.Err(err))
		} else {
			defer store.Close()
		}
		tracker = hints.NewTracker(catalog, store, log)
		simOpts = append(simOpts, sim.WithHints(tracker))
	}

	tc := timectrl.NewTimeController(time.Now(), cfg.Tick, timectrl.RealTime)
	sched := schedule.NewEventScheduler(tc)
	tc.AddListener(func(time.Time) { sched.RunDue() })

	registry := sim.NewRegistry(sched, simOpts...)
	defer registry.Close()
	if err := applyInitialSettings(ctx, cfg, registry); err != nil {
		return err
	}

	apiOpts := []httpapi.Option{
		httpapi.WithLogger(log),
		httpapi.WithMetrics(transport),
		httpapi.WithAllowedOrigins(cfg.HTTP.WebsocketOrigins...),
	}
	if tracker != nil {
		apiOpts = append(apiOpts, httpapi.WithHintStore(tracker))
	}
	api := httpapi.New(registry, catalog, apiOpts...)
	defer api.Close()
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var grpcLis net.Listener
	if cfg.GRPC.Enabled {
		if grpcLis, err = net.Listen("tcp", cfg.GRPC.Addr); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := tc.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info(ctx, "serving HTTP", logging.String("addr", cfg.HTTP.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.GRPC.Enabled {
		grpcSrv, hs := control.NewServer(registry, log, transport)
		g.Go(func() error {
			log.Info(ctx, "serving gRPC", logging.String("addr", cfg.GRPC.Addr))
			return grpcSrv.Serve(grpcLis)
		})
		g.Go(func() error {
			<-ctx.Done()
			hs.Shutdown()
			grpcSrv.GracefulStop()
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		log.Info(context.Background(), "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func applyInitialSettings(ctx context.Context, cfg *config.Config, registry *sim.Registry) error {
	cs, err := cfg.CacheSettings()
	if err != nil {
		return err
	}
	if err := registry.Caching().Apply(ctx, cs); err != nil {
		return err
	}
	ls, err := cfg.LBSettings()
	if err != nil {
		return err
	}
	return registry.LoadBalancer().Apply(ctx, ls)
}
