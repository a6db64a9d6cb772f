package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mbocsi/simbridge/bridge"
	"github.com/mbocsi/simbridge/client"
	"github.com/mbocsi/simbridge/config"
	"github.com/mbocsi/simbridge/console"
	"github.com/mbocsi/simbridge/mcp"
	"github.com/mbocsi/simbridge/metric"
	"github.com/mbocsi/simbridge/transport"
	"github.com/mbocsi/simbridge/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "simbridge: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	if err := setupLogger(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "simbridge: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, stop, cfg); err != nil {
		slog.Error("Bridge exited with error", "error", err)
		os.Exit(1)
	}
}

// setupLogger writes to stderr when MCP owns stdout.
func setupLogger(cfg *config.Config) error {
	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return err
	}
	var out io.Writer = os.Stdout
	if cfg.MCP.Enabled {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

func run(ctx context.Context, stop context.CancelFunc, cfg *config.Config) error {
	source, requester, err := buildTransport(cfg.Engine)
	if err != nil {
		return err
	}

	var metrics *metric.Metrics
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = metric.New()
		if err := metrics.Register(reg); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	var presenters bridge.Presenters
	if cfg.Presenter == config.PresenterConsole {
		var out io.Writer = os.Stdout
		if cfg.MCP.Enabled {
			out = os.Stderr
		}
		presenters = append(presenters, console.New(out))
	}

	var hub *web.Hub
	if cfg.Web.Enabled {
		hub = web.NewHub(cfg.Web.MaxSessions)
		presenters = append(presenters, hub)
	}

	commander := client.NewCommander(requester,
		client.WithCommandTimeout(cfg.Command.Timeout),
		client.WithCommanderMetrics(metrics),
	)
	b := bridge.New(bridge.Options{
		Source:    source,
		Commander: commander,
		SubscriberOptions: []client.SubscriberOption{
			client.WithPollInterval(cfg.Subscriber.PollInterval),
			client.WithStopGrace(cfg.Subscriber.StopGrace),
			client.WithSubscriberMetrics(metrics),
		},
		Presenter: presenters,
		Metrics:   metrics,
	})

	if hub != nil {
		gateway := web.NewGateway(b, web.Options{Addr: cfg.Web.Addr, Hub: hub, Metrics: metricsHandler})
		go func() {
			if err := gateway.Start(); err != nil {
				slog.Error("Web gateway failed", "error", err)
				stop()
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := gateway.Shutdown(shutdownCtx); err != nil {
				slog.Warn("Web gateway shutdown failed", "error", err)
			}
		}()
	}

	if cfg.MCP.Enabled {
		go func() {
			if err := mcp.NewMCPServer(b, version).Run(); err != nil {
				slog.Error("MCP server failed", "error", err)
			}
			stop()
		}()
	}

	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("start bridge: %w", err)
	}
	slog.Info("Bridge started", "transport", cfg.Engine.Transport, "presenter", cfg.Presenter, "web", cfg.Web.Enabled, "mcp", cfg.MCP.Enabled)

	<-ctx.Done()
	slog.Info("Shutting down bridge")
	return b.Stop()
}

func buildTransport(cfg config.EngineConfig) (transport.Source, transport.Requester, error) {
	if cfg.Transport == config.TransportNATS {
		slog.Info("Using NATS transport", "url", cfg.NATSURL, "prefix", cfg.SubjectPrefix)
		return transport.NewNATSSource(cfg.NATSURL, cfg.SubjectPrefix),
			transport.NewNATSRequester(cfg.NATSURL, cfg.SubjectPrefix), nil
	}

	pubAddr := transport.Endpoint(cfg.Host, cfg.PubPort)
	cmdAddr := transport.Endpoint(cfg.Host, cfg.CmdPort)
	if cfg.Discovery.Enabled {
		pub, err := transport.Discover(cfg.Discovery.PubService, cfg.Discovery.Timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("discover publisher: %w", err)
		}
		cmd, err := transport.Discover(cfg.Discovery.CmdService, cfg.Discovery.Timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("discover command socket: %w", err)
		}
		pubAddr = "tcp://" + pub.Addr()
		cmdAddr = "tcp://" + cmd.Addr()
	}
	slog.Info("Using ZeroMQ transport", "pub", pubAddr, "cmd", cmdAddr)
	return transport.NewZMQSource(pubAddr), transport.NewZMQRequester(cmdAddr), nil
}
