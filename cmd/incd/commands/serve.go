package commands

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/marmos91/incd/internal/logger"
	"github.com/marmos91/incd/pkg/incconfig"
	"github.com/marmos91/incd/pkg/incmetrics"
	"github.com/marmos91/incd/pkg/incproto"
	"github.com/marmos91/incd/pkg/incshm"
	"github.com/marmos91/incd/pkg/inctransport"
)

var serverConfigFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the incd server",
	Long: `Run the incd server: accept INC connections and drive each one's
handshake, request/response multiplexing, pub/sub, and shared-memory fast
path to completion.

Use --config to point at the host's bootstrap config (logging, metrics, and
where to find the protocol's own ServerConfig file); use --server-config to
override the ServerConfig path directly.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serverConfigFlag, "server-config", "", "path to the INC ServerConfig file (overrides host config's server_config_path)")
}

func runServe(cmd *cobra.Command, args []string) error {
	hostCfg, err := incconfig.LoadHostConfig(GetConfigFile())
	if err != nil {
		return fmt.Errorf("loading host config: %w", err)
	}

	if err := InitLogger(hostCfg); err != nil {
		return err
	}

	serverCfgPath := serverConfigFlag
	if serverCfgPath == "" {
		serverCfgPath = hostCfg.ServerConfigPath
	}

	serverCfg := incconfig.DefaultServerConfig()
	if serverCfgPath != "" {
		serverCfg, err = incconfig.LoadServerConfig(serverCfgPath)
		if err != nil {
			return fmt.Errorf("loading server config: %w", err)
		}
	}

	logger.Info("starting incd",
		"listen_address", serverCfg.ListenAddress,
		"version_policy", serverCfg.VersionPolicy,
		"max_connections", serverCfg.MaxConnections,
	)

	var metricsServer *http.Server
	if hostCfg.Metrics.Enabled {
		reg := incmetrics.InitRegistry()
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: hostCfg.Metrics.Listen, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		logger.Info("metrics enabled", "listen", hostCfg.Metrics.Listen)
	} else {
		logger.Info("metrics collection disabled")
	}

	ln, err := listen(serverCfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", serverCfg.ListenAddress, err)
	}
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shm := incshm.NewRegistry(serverCfg.DisableSharedMemory)

	connDone := make(chan struct{})
	go acceptLoop(ctx, ln, serverCfg, shm, connDone)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("incd is running, press Ctrl+C to stop")
	<-sigChan
	logger.Info("shutdown signal received, closing listener")
	cancel()
	_ = ln.Close()

	if metricsServer != nil {
		_ = metricsServer.Shutdown(context.Background())
	}

	<-connDone
	logger.Info("incd stopped")
	return nil
}

// acceptLoop accepts connections on ln until ctx is cancelled, driving each
// one on its own goroutine. It closes connDone once the listener has
// stopped accepting and every connection goroutine it spawned has exited.
func acceptLoop(ctx context.Context, ln net.Listener, serverCfg *incconfig.ServerConfig, shm *incshm.Registry, connDone chan<- struct{}) {
	metrics := incmetrics.New()

	active := make(chan struct{}, serverCfg.MaxConnections)
	for i := 0; i < serverCfg.MaxConnections; i++ {
		active <- struct{}{}
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				// Every connection goroutine returns its slot on exit, so
				// reclaiming all slots waits for them to finish.
				for i := 0; i < serverCfg.MaxConnections; i++ {
					<-active
				}
				close(connDone)
				return
			default:
				logger.Warn("accept failed", "error", err)
				continue
			}
		}

		select {
		case <-active:
		default:
			logger.Warn("rejecting connection: max_connections reached", "remote_addr", conn.RemoteAddr())
			_ = conn.Close()
			continue
		}

		go func() {
			defer func() { active <- struct{}{} }()
			serveConnection(ctx, conn, serverCfg, shm, metrics)
		}()
	}
}

// serveConnection drives a single incproto.Connection over conn until the
// transport disconnects or ctx is cancelled.
func serveConnection(ctx context.Context, conn net.Conn, serverCfg *incconfig.ServerConfig, shm *incshm.Registry, metrics *incmetrics.Metrics) {
	remoteAddr := conn.RemoteAddr().String()
	transport := inctransport.New(conn, incproto.RoleServer)
	defer transport.Close()

	c := incproto.NewConnection(transport,
		incproto.WithMaxMessageSize(serverCfg.MaxMessageSize),
		incproto.WithSHMRegistry(shm),
		incproto.WithHandshakePolicy(serverCfg.HandshakePolicy()),
		incproto.WithMetrics(metrics),
	)

	lc := logger.NewLogContext(c.ID()).WithRole(c.Role().String()).WithRemoteAddr(remoteAddr)
	loopCtx := logger.WithContext(ctx, lc)

	logger.InfoCtx(loopCtx, "connection accepted")

	disconnected := make(chan error, 1)
	c.OnDisconnected(func(err error) {
		select {
		case disconnected <- err:
		default:
		}
	})

	for {
		select {
		case <-ctx.Done():
			logger.InfoCtx(loopCtx, "connection loop cancelled")
			return
		case err := <-disconnected:
			if err != nil {
				logger.WarnCtx(loopCtx, "connection closed", "error", err)
			} else {
				logger.InfoCtx(loopCtx, "connection closed")
			}
			return
		case ev := <-transport.Ready():
			switch ev.Kind {
			case incproto.EventReadyRead:
				if err := c.HandleReadable(); err != nil {
					logger.WarnCtx(loopCtx, "framing error", "error", err)
					return
				}
			case incproto.EventReadyWrite:
				if err := c.Flush(); err != nil {
					logger.WarnCtx(loopCtx, "flush error", "error", err)
					return
				}
			case incproto.EventDisconnected:
				logger.InfoCtx(loopCtx, "transport disconnected")
				return
			}
		}
	}
}
