// Command zaku runs the task-queue/pub-sub server: a cobra CLI wrapping
// the WebSocket transport, queue engine, pub/sub fabric, and reaper
// described by the rest of this module.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/geyang/zaku/internal/config"
	"github.com/geyang/zaku/internal/pubsub"
	"github.com/geyang/zaku/internal/queue"
	"github.com/geyang/zaku/internal/reaper"
	"github.com/geyang/zaku/internal/server"
	"github.com/geyang/zaku/internal/store"
	"github.com/geyang/zaku/pkg/log"
)

func main() {
	root := &cobra.Command{
		Use:   "zaku",
		Short: "Zaku task-queue and pub-sub server",
	}
	root.AddCommand(newServeCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Start the Zaku server",
		Aliases: []string{"start", "run"},
		RunE:    runServe,
	}
	cfg := config.Default()
	cmd.Flags().String("host", cfg.Host, "listen host")
	cmd.Flags().Int("port", cfg.Port, "listen port")
	cmd.Flags().Bool("verbose", cfg.Verbose, "enable debug logging")
	cmd.Flags().Bool("free-port", cfg.FreePort, "kill the prior holder of --port before binding")
	cmd.Flags().String("redis-host", cfg.Redis.Host, "backing Redis host")
	cmd.Flags().Int("redis-port", cfg.Redis.Port, "backing Redis port")
	cmd.Flags().String("redis-password", cfg.Redis.Password, "backing Redis password")
	cmd.Flags().Int("redis-db", cfg.Redis.DB, "backing Redis logical db")
	cmd.Flags().String("key-prefix", cfg.KeyPrefix, "namespace prefix for backing-store keys")
	cmd.Flags().Int("queue-len", cfg.QueueLen, "max pending tasks per queue")
	cmd.Flags().String("log-level", cfg.LogLevel, "debug|info|warn|error")
	cmd.Flags().String("log-format", cfg.LogFormat, "text|json")
	cmd.Flags().String("auth-user", cfg.Auth.User, "shared-secret user required by AUTH (blank disables auth)")
	cmd.Flags().String("auth-key", cfg.Auth.Key, "shared-secret key required by AUTH")
	cmd.Flags().String("health-host", "", "listen host for the health/readiness HTTP endpoint (defaults to --host)")
	cmd.Flags().Int("health-port", 9001, "listen port for the health/readiness HTTP endpoint")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.Default()
	config.FromEnv(&cfg)
	applyFlags(cmd, &cfg)

	level := log.ParseLevel(cfg.LogLevel)
	if cfg.Verbose {
		level = log.DebugLevel
	}
	format := log.FormatText
	if cfg.LogFormat == "json" {
		format = log.FormatJSON
	}
	logger := log.NewLogger(log.WithLevel(level), log.WithFormat(format)).With(log.Component("zaku"))

	if cfg.FreePort {
		killPortHolder(cfg.Port, logger)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	redisStore, err := store.Dial(ctx, cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return fmt.Errorf("zaku: %w", err)
	}
	defer redisStore.Close()

	engine := queue.New(redisStore, cfg.KeyPrefix, cfg.QueueLen, logger.With(log.Component("queue")))

	if cfg.Blob.Bucket != "" {
		blobStore, err := store.NewBlobStore(ctx, store.BlobStoreConfig{
			Bucket:    cfg.Blob.Bucket,
			Region:    cfg.Blob.Region,
			Endpoint:  cfg.Blob.Endpoint,
			PathStyle: cfg.Blob.PathStyle,
		})
		if err != nil {
			return fmt.Errorf("zaku: %w", err)
		}
		if blobStore != nil {
			threshold := cfg.Blob.ThresholdKB * 1024
			engine = engine.WithBlobStore(blobStore, threshold)
			logger.Info("bulk payload store enabled", log.Str("bucket", cfg.Blob.Bucket), log.Int("thresholdBytes", threshold))
		}
	}

	registry := pubsub.NewRegistry(logger.With(log.Component("pubsub")))
	srv := server.New(cfg, engine, registry, logger.With(log.Component("server")))
	r := reaper.New(engine, reaper.DefaultPeriod, logger.With(log.Component("reaper")))
	go r.Run(ctx)

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	httpSrv := &http.Server{Addr: addr, Handler: srv}

	healthHost, _ := cmd.Flags().GetString("health-host")
	if healthHost == "" {
		healthHost = cfg.Host
	}
	healthPort, _ := cmd.Flags().GetInt("health-port")
	healthAddr := net.JoinHostPort(healthHost, strconv.Itoa(healthPort))
	healthSrv := &http.Server{Addr: healthAddr, Handler: server.HealthRouter(redisStore)}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("listening", log.Str("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("zaku: server: %w", err)
		}
	}()
	go func() {
		logger.Info("health endpoint listening", log.Str("addr", healthAddr))
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("zaku: health server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", log.Err(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	_ = healthSrv.Shutdown(shutdownCtx)
	return nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("host"); cmd.Flags().Changed("host") {
		cfg.Host = v
	}
	if v, _ := cmd.Flags().GetInt("port"); cmd.Flags().Changed("port") {
		cfg.Port = v
	}
	if v, _ := cmd.Flags().GetBool("verbose"); cmd.Flags().Changed("verbose") {
		cfg.Verbose = v
	}
	if v, _ := cmd.Flags().GetBool("free-port"); cmd.Flags().Changed("free-port") {
		cfg.FreePort = v
	}
	if v, _ := cmd.Flags().GetString("redis-host"); cmd.Flags().Changed("redis-host") {
		cfg.Redis.Host = v
	}
	if v, _ := cmd.Flags().GetInt("redis-port"); cmd.Flags().Changed("redis-port") {
		cfg.Redis.Port = v
	}
	if v, _ := cmd.Flags().GetString("redis-password"); cmd.Flags().Changed("redis-password") {
		cfg.Redis.Password = v
	}
	if v, _ := cmd.Flags().GetInt("redis-db"); cmd.Flags().Changed("redis-db") {
		cfg.Redis.DB = v
	}
	if v, _ := cmd.Flags().GetString("key-prefix"); cmd.Flags().Changed("key-prefix") {
		cfg.KeyPrefix = v
	}
	if v, _ := cmd.Flags().GetInt("queue-len"); cmd.Flags().Changed("queue-len") {
		cfg.QueueLen = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); cmd.Flags().Changed("log-level") {
		cfg.LogLevel = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); cmd.Flags().Changed("log-format") {
		cfg.LogFormat = v
	}
	if v, _ := cmd.Flags().GetString("auth-user"); cmd.Flags().Changed("auth-user") {
		cfg.Auth.User = v
	}
	if v, _ := cmd.Flags().GetString("auth-key"); cmd.Flags().Changed("auth-key") {
		cfg.Auth.Key = v
	}
}

// killPortHolder best-effort frees --port before binding. lsof is
// optional tooling; a missing binary or a port with no holder is
// silently ignored, never fatal.
func killPortHolder(port int, logger log.Logger) {
	out, err := exec.Command("lsof", "-ti", fmt.Sprintf("tcp:%d", port)).Output()
	if err != nil || len(out) == 0 {
		return
	}
	for _, line := range splitLines(out) {
		pid, err := strconv.Atoi(line)
		if err != nil {
			continue
		}
		if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
			logger.Debug("free-port: kill failed", log.Int("pid", pid), log.Err(err))
			continue
		}
		logger.Info("free-port: killed prior holder", log.Int("pid", pid), log.Int("port", port))
	}
	time.Sleep(10 * time.Millisecond)
}

func splitLines(b []byte) []string {
	var out []string
	start := 0
	for i, c := range b {
		if c == '\n' {
			if i > start {
				out = append(out, string(b[start:i]))
			}
			start = i + 1
		}
	}
	if start < len(b) {
		out = append(out, string(b[start:]))
	}
	return out
}
