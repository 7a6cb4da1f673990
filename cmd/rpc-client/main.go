// rpc-client issues one RPC call and prints the outcome.
//
// Usage:
//
//	rpc-client --host 1.2.3.4 --port 5000 --method add --a 5 --b 7
//	rpc-client --host 1.2.3.4 --method reverse_string --s hello
//	rpc-client --host 1.2.3.4 --method get_time --timeout 1.5 --retries 3
//
// Arbitrary methods take --params with a JSON object.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/akariss21/lab-1-distributed-computing/client"
	"github.com/akariss21/lab-1-distributed-computing/codec"
	"github.com/akariss21/lab-1-distributed-computing/config"
	"github.com/akariss21/lab-1-distributed-computing/loadbalance"
	"github.com/akariss21/lab-1-distributed-computing/message"
	"github.com/akariss21/lab-1-distributed-computing/registry"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (flags override it)")
	host := flag.String("host", "", "server host")
	port := flag.Int("port", 0, "server port")
	method := flag.String("method", "", "RPC method name")
	a := flag.Float64("a", 0, "param a (for add)")
	b := flag.Float64("b", 0, "param b (for add)")
	s := flag.String("s", "", "param s (for reverse_string)")
	rawParams := flag.String("params", "", "params as a JSON object (overrides --a/--b/--s)")
	timeout := flag.Float64("timeout", 0, "per-attempt timeout, seconds")
	retries := flag.Int("retries", -1, "retransmissions after the first attempt")
	codecName := flag.String("codec", "", "wire codec: json or snappy")
	reconnect := flag.Bool("reconnect", false, "dial a fresh connection per attempt")
	etcd := flag.String("etcd", "", "comma-separated etcd endpoints for discovery")
	verbose := flag.Bool("v", false, "log attempts and retries to stderr")
	flag.Parse()

	if *method == "" {
		fmt.Fprintln(os.Stderr, "--method is required")
		flag.Usage()
		os.Exit(2)
	}

	logger := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err == nil {
			logger = l
		}
	}
	defer logger.Sync()

	cfg, err := config.LoadClient(*configPath)
	if err != nil {
		fatalf("failed to load config: %v", err)
	}
	if *host != "" {
		cfg.Host = *host
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *timeout > 0 {
		cfg.TimeoutSeconds = *timeout
	}
	if *retries >= 0 {
		cfg.MaxRetries = *retries
	}
	if *codecName != "" {
		cfg.Codec = *codecName
	}
	if *reconnect {
		cfg.ReconnectPerAttempt = true
	}
	if *etcd != "" {
		cfg.EtcdEndpoints = splitList(*etcd)
	}
	if err := cfg.Validate(); err != nil {
		fatalf("invalid config: %v", err)
	}

	codecType, err := codec.ParseCodecType(cfg.Codec)
	if err != nil {
		fatalf("invalid codec: %v", err)
	}

	params, err := buildParams(*method, *rawParams, *a, *b, *s)
	if err != nil {
		fatalf("invalid params: %v", err)
	}

	opts := client.Options{
		Addr:                cfg.Addr(),
		CodecType:           codecType,
		Timeout:             cfg.Timeout(),
		MaxRetries:          cfg.MaxRetries,
		ReconnectPerAttempt: cfg.ReconnectPerAttempt,
		Logger:              logger,
	}
	if len(cfg.EtcdEndpoints) > 0 {
		reg, err := registry.NewEtcdRegistry(cfg.EtcdEndpoints)
		if err != nil {
			fatalf("failed to connect etcd: %v", err)
		}
		defer reg.Close()
		opts.Registry = reg
		opts.Balancer = pickBalancer(cfg.Balancer)
	}

	sess := client.NewSession(opts)
	defer sess.Close()

	resp, err := sess.Call(*method, params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR | %v\n", err)
		os.Exit(1)
	}

	if resp.Status == message.StatusOK {
		fmt.Printf("OK | request_id=%s | result=%v\n", resp.RequestID, resp.Result)
		return
	}
	fmt.Printf("ERROR | request_id=%s | error=%s\n", resp.RequestID, resp.ErrorMessage)
	os.Exit(1)
}

// buildParams assembles the params mapping: --params JSON wins, otherwise
// the per-method convenience flags are used.
func buildParams(method, rawParams string, a, b float64, s string) (map[string]any, error) {
	if rawParams != "" {
		params := map[string]any{}
		if err := json.Unmarshal([]byte(rawParams), &params); err != nil {
			return nil, err
		}
		return params, nil
	}
	switch method {
	case "add":
		return map[string]any{"a": a, "b": b}, nil
	case "reverse_string":
		return map[string]any{"s": s}, nil
	default:
		return map[string]any{}, nil
	}
}

func pickBalancer(name string) loadbalance.Balancer {
	switch name {
	case "weighted":
		return &loadbalance.WeightedRandomBalancer{}
	case "hash":
		return loadbalance.NewConsistentHashBalancer()
	default:
		return &loadbalance.RoundRobinBalancer{}
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
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
