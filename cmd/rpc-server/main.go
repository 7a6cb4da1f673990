// rpc-server runs the RPC server with configurable delivery mode and fault
// injection.
//
// Usage:
//
//	rpc-server --port 5000 --delay 0 --drop-rate 0.3 --at-most-once
package main

import (
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/akariss21/lab-1-distributed-computing/codec"
	"github.com/akariss21/lab-1-distributed-computing/config"
	"github.com/akariss21/lab-1-distributed-computing/dedup"
	"github.com/akariss21/lab-1-distributed-computing/fault"
	"github.com/akariss21/lab-1-distributed-computing/middleware"
	"github.com/akariss21/lab-1-distributed-computing/registry"
	"github.com/akariss21/lab-1-distributed-computing/server"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (flags override it)")
	host := flag.String("host", "", "listen host")
	port := flag.Int("port", 0, "listen port")
	delay := flag.Float64("delay", -1, "artificial delay before dispatch, seconds")
	dropRate := flag.Float64("drop-rate", -1, "probability of silently dropping a response, [0,1]")
	atMostOnce := flag.Bool("at-most-once", false, "deduplicate requests by request_id")
	codecName := flag.String("codec", "", "wire codec: json or snappy")
	etcd := flag.String("etcd", "", "comma-separated etcd endpoints for service registration")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.LoadServer(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if *host != "" {
		cfg.Host = *host
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *delay >= 0 {
		cfg.DelaySeconds = *delay
	}
	if *dropRate >= 0 {
		cfg.DropRate = *dropRate
	}
	if *atMostOnce {
		cfg.AtMostOnce = true
	}
	if *codecName != "" {
		cfg.Codec = *codecName
	}
	if *etcd != "" {
		cfg.EtcdEndpoints = splitList(*etcd)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	codecType, err := codec.ParseCodecType(cfg.Codec)
	if err != nil {
		logger.Fatal("invalid codec", zap.Error(err))
	}

	opts := server.Options{
		Injector:   fault.NewRandom(cfg.Delay(), cfg.DropRate),
		CodecType:  codecType,
		Logger:     logger,
		AtMostOnce: cfg.AtMostOnce,
	}
	if cfg.AtMostOnce {
		opts.Dedup = dedup.NewLRU(cfg.DedupSize, cfg.DedupTTL())
	}

	svr := server.NewServer(opts)
	svr.Use(middleware.Logging(logger))
	if cfg.RateLimitPerSec > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = int(cfg.RateLimitPerSec)
		}
		svr.Use(middleware.RateLimit(cfg.RateLimitPerSec, burst))
	}

	var reg registry.Registry
	if len(cfg.EtcdEndpoints) > 0 {
		etcdReg, err := registry.NewEtcdRegistry(cfg.EtcdEndpoints)
		if err != nil {
			logger.Fatal("failed to connect etcd", zap.Error(err))
		}
		defer etcdReg.Close()
		reg = etcdReg
	}
	advertiseAddr := cfg.AdvertiseAddr
	if advertiseAddr == "" {
		advertiseAddr = cfg.Addr()
	}

	// Serve in the background so the main goroutine can wait for SIGINT.
	errCh := make(chan error, 1)
	go func() {
		errCh <- svr.Serve("tcp", cfg.Addr(), advertiseAddr, reg)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal("serve failed", zap.Error(err))
		}
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		if err := svr.Shutdown(5 * time.Second); err != nil {
			logger.Warn("shutdown incomplete", zap.Error(err))
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
