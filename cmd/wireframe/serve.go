package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/dray-io/wireframe/internal/config"
	"github.com/dray-io/wireframe/internal/kafka"
	"github.com/dray-io/wireframe/internal/logging"
	"github.com/dray-io/wireframe/internal/metrics"
	"github.com/dray-io/wireframe/internal/server"
	"github.com/dray-io/wireframe/internal/strategy"
)

const shutdownTimeout = 30 * time.Second

const apiVersionsKey int16 = 18

// supportedAPIs is what the kafka framing advertises.
var supportedAPIs = []kafka.APIVersionRange{
	{APIKey: apiVersionsKey, MinVersion: 0, MaxVersion: 4},
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	listenAddr := fs.String("listen", "", "Override listen address (e.g., :9092)")
	metricsAddr := fs.String("metrics-addr", "", "Override metrics endpoint address (e.g., :9090)")
	framing := fs.String("framing", "", "Override framing (kafka, length, line, compressed)")
	codec := fs.String("codec", "", "Override response codec for the compressed framing")
	halfClose := fs.Bool("cancel-on-half-close", false, "Cancel in-flight requests when the peer half-closes")

	fs.Usage = func() {
		fmt.Println(`Usage: wireframe serve [options]

Start a framed TCP server. Byte framings echo every item back; the kafka
framing answers ApiVersions.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Apply CLI overrides
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}
	if *metricsAddr != "" {
		cfg.Observability.MetricsAddr = *metricsAddr
	}
	if *framing != "" {
		cfg.Server.Framing = *framing
	}
	if *codec != "" {
		cfg.Server.Codec = *codec
	}
	exitOnConfigError(fs, cfg.Validate())

	logger := newLogger(cfg)
	logger.Infof("starting wireframe server", map[string]any{
		"listenAddr": cfg.Server.ListenAddr,
		"framing":    cfg.Server.Framing,
		"version":    version,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := serveOptions{
		Config:            cfg,
		Logger:            logger,
		Registerer:        prometheus.DefaultRegisterer,
		Gatherer:          prometheus.DefaultGatherer,
		CancelOnHalfClose: *halfClose,
	}
	if err := serve(ctx, opts); err != nil {
		logger.Errorf("server error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	logger.Info("server shutdown complete")
}

type serveOptions struct {
	Config            *config.Config
	Logger            *logging.Logger
	Registerer        prometheus.Registerer
	Gatherer          prometheus.Gatherer
	CancelOnHalfClose bool
}

// serve runs the configured framing until ctx is done, then shuts down
// gracefully.
func serve(ctx context.Context, opts serveOptions) error {
	cfg := opts.Config
	limit := cfg.Server.MaxItemSize

	switch cfg.Server.Framing {
	case config.FramingKafka:
		size := int32(0)
		if limit > 0 {
			size = int32(min(limit, math.MaxInt32))
		}
		return run[kafka.Request](ctx, opts, server.KafkaCodec{MaxRequestSize: size}, kafkaHandler(supportedAPIs))
	case config.FramingLength:
		return run[[]byte](ctx, opts, server.LengthCodec{Prefix: strategy.Uint32BE(limit)}, echoHandler())
	case config.FramingLine:
		return run[[]byte](ctx, opts, server.LineCodec{MaxLine: limit}, echoHandler())
	case config.FramingCompressed:
		codec, err := strategy.ParseCodec(cfg.Server.Codec)
		if err != nil {
			return err
		}
		c := server.CompressedCodec{Prefix: strategy.Uint32BE(0), Codec: codec, MaxBlock: limit}
		return run[strategy.Block](ctx, opts, c, blockEchoHandler())
	default:
		return fmt.Errorf("%w: unknown framing %q", config.ErrInvalid, cfg.Server.Framing)
	}
}

func run[T any](ctx context.Context, opts serveOptions, codec server.Codec[T], handler server.Handler[T]) error {
	cfg, logger := opts.Config, opts.Logger

	srvCfg := server.Config{
		ListenAddr:        cfg.Server.ListenAddr,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		BufferCapacity:    cfg.Decoder.Capacity,
		CancelOnHalfClose: opts.CancelOnHalfClose,
	}
	srv := server.New[T](srvCfg, codec, handler, logger).
		WithMetrics(metrics.NewConnectionMetricsWithRegistry(opts.Registerer)).
		WithDecoderMetrics(metrics.NewDecoderMetricsWithRegistry(opts.Registerer))

	metricsSrv := metrics.NewServerWithRegistry(cfg.Observability.MetricsAddr, opts.Gatherer).
		WithReadiness(srv.Ready)
	if err := metricsSrv.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	logger.Infof("metrics server started", map[string]any{
		"addr": metricsSrv.Addr(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := srv.ListenAndServe()
		if errors.Is(err, server.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(metricsSrv.Wait)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if cerr := metricsSrv.Close(); cerr != nil {
			logger.Warnf("error closing metrics server", map[string]any{
				"error": cerr.Error(),
			})
		}
		if err != nil && !errors.Is(err, server.ErrServerClosed) {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// echoHandler answers every item with itself.
func echoHandler() server.Handler[[]byte] {
	return server.HandlerFunc[[]byte](func(_ context.Context, item []byte) ([]byte, error) {
		return item, nil
	})
}

// blockEchoHandler answers every block with its decompressed payload,
// recompressed with the server's codec.
func blockEchoHandler() server.Handler[strategy.Block] {
	return server.HandlerFunc[strategy.Block](func(ctx context.Context, b strategy.Block) ([]byte, error) {
		logging.FromCtx(ctx).Debugf("block received", map[string]any{
			"codec": b.Codec.String(),
			"bytes": len(b.Data),
		})
		return b.Data, nil
	})
}

// kafkaHandler answers ApiVersions with apis and rejects every other API,
// which closes the connection.
func kafkaHandler(apis []kafka.APIVersionRange) server.Handler[kafka.Request] {
	return server.HandlerFunc[kafka.Request](func(ctx context.Context, req kafka.Request) ([]byte, error) {
		h := req.Header
		logger := logging.FromCtx(ctx)
		if h.ZoneID != "" {
			logger = logger.With(map[string]any{"zoneId": h.ZoneID})
		}

		switch h.APIKey {
		case apiVersionsKey:
			resp := kafka.APIVersions(h, apis)
			if resp.ErrorCode != 0 {
				logger.Warnf("unsupported api versions request", map[string]any{
					"version":  h.APIVersion,
					"clientId": h.ClientID,
				})
			}
			return kafka.AppendResponseBody(nil, h, resp), nil
		default:
			return nil, fmt.Errorf("%w: %s v%d", kafka.ErrUnsupportedAPI, kafka.APIName(h.APIKey), h.APIVersion)
		}
	})
}
