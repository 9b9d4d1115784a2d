package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/facecap/internal/config"
	"github.com/banshee-data/facecap/internal/mocap/monitor"
	"github.com/banshee-data/facecap/internal/mocap/network"
	"github.com/banshee-data/facecap/internal/mocap/receiver"
	"github.com/banshee-data/facecap/internal/monitoring"
)

type serveOptions struct {
	configPath  string
	port        int
	bind        string
	httpListen  string
	forwardAddr string
	forwardPort int
	rcvBuf      int
	debug       bool
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Receive datagrams and serve the status API",
		Long: `Binds the iFacialMocap UDP port and keeps the latest head pose and
expression weights in memory. The monitor HTTP server reports them.
If the port cannot be bound the monitor keeps running in the not
receiving state until the process is interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cmd.Flags(), opts)
		},
	}

	bindServeFlags(cmd.Flags(), opts)
	return cmd
}

func bindServeFlags(f *pflag.FlagSet, opts *serveOptions) {
	f.StringVarP(&opts.configPath, "config", "c", "", "config file (.json or .jsonc)")
	f.IntVarP(&opts.port, "port", "p", config.DefaultListenPort, "UDP port to listen on")
	f.StringVar(&opts.bind, "bind", "", "UDP bind address (default: all interfaces)")
	f.StringVar(&opts.httpListen, "http", config.DefaultHTTPListen, "monitor HTTP address, empty to disable")
	f.StringVar(&opts.forwardAddr, "forward-addr", "", "relay every datagram to this host")
	f.IntVar(&opts.forwardPort, "forward-port", 0, "relay port")
	f.IntVar(&opts.rcvBuf, "rcvbuf", config.DefaultRcvBuf, "UDP receive buffer size in bytes")
}

// resolveConfig loads the config file, if any, and applies flags the user
// set explicitly on top of it.
func (o *serveOptions) resolveConfig(flags *pflag.FlagSet) (*config.ReceiverConfig, error) {
	cfg := config.EmptyReceiverConfig()
	if o.configPath != "" {
		loaded, err := config.LoadReceiverConfig(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if flags.Changed("port") {
		cfg.ListenPort = &o.port
	}
	if flags.Changed("bind") {
		cfg.BindAddress = &o.bind
	}
	if flags.Changed("http") {
		cfg.HTTPListen = &o.httpListen
	}
	if flags.Changed("forward-addr") {
		cfg.ForwardAddr = &o.forwardAddr
	}
	if flags.Changed("forward-port") {
		cfg.ForwardPort = &o.forwardPort
	}
	if flags.Changed("rcvbuf") {
		cfg.RcvBuf = &o.rcvBuf
	}
	if flags.Changed("debug") {
		o.debug, _ = flags.GetBool("debug")
		cfg.DebugLog = &o.debug
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(ctx context.Context, flags *pflag.FlagSet, opts *serveOptions) error {
	cfg, err := opts.resolveConfig(flags)
	if err != nil {
		return err
	}
	monitoring.SetDebug(cfg.GetDebugLog())
	log := monitoring.Named("serve")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	stats := monitor.NewPacketStats(monitor.NewMetrics(reg))

	var forwarder *network.PacketForwarder
	forwardAddress := ""
	if addr, port, ok := cfg.GetForward(); ok {
		forwarder, err = network.NewPacketForwarder(addr, port, stats, cfg.GetLogInterval())
		if err != nil {
			return err
		}
		defer forwarder.Close()
		forwardAddress = forwarder.Address()
	}

	r := receiver.New(receiver.Config{
		Port:        cfg.GetListenPort(),
		BindAddress: cfg.GetBindAddress(),
		RcvBuf:      cfg.GetRcvBuf(),
		LogInterval: cfg.GetLogInterval(),
		Forwarder:   forwarder,
		Stats:       stats,
	})
	if err := r.Attach(ctx); err != nil {
		var bindErr *network.BindError
		if !errors.As(err, &bindErr) {
			return err
		}
		log.Info("monitor continues without receiving")
	} else {
		log.Info("enter this address in iFacialMocap",
			zap.String("address", r.LocalAddress()),
			zap.Int("port", r.Port()))
	}
	defer r.Detach()

	g, gctx := errgroup.WithContext(ctx)

	if addr := cfg.GetHTTPListen(); addr != "" {
		ws := monitor.NewWebServer(monitor.WebServerConfig{
			Address:        addr,
			Source:         r,
			Stats:          stats,
			Registry:       reg,
			StreamInterval: cfg.GetStreamInterval(),
			ForwardAddress: forwardAddress,
		})
		g.Go(func() error { return ws.Start(gctx) })
	}

	if opts.configPath != "" {
		debugPinned := flags.Changed("debug")
		w, err := config.NewWatcher(opts.configPath, func(next *config.ReceiverConfig) {
			if on := next.GetDebugLog(); !debugPinned && on != monitoring.DebugEnabled() {
				monitoring.SetDebug(on)
				log.Info("debug logging toggled", zap.Bool("enabled", on))
			}
			if cfg.RestartRequired(next) {
				log.Warn("config change takes effect after restart", zap.String("path", opts.configPath))
			}
		})
		if err != nil {
			log.Warn("config file will not be watched", zap.Error(err))
		} else {
			g.Go(func() error { return w.Run(gctx) })
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err = g.Wait()
	log.Info("shutting down")
	return err
}
