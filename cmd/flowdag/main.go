// Command flowdag runs a pipeline described in an HCL graph file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowdag/flowdag"
	"github.com/flowdag/flowdag/hclconf"

	_ "github.com/flowdag/flowdag/nodes/kafka"
	_ "github.com/flowdag/flowdag/nodes/record"
	_ "github.com/flowdag/flowdag/nodes/replay"
	_ "github.com/flowdag/flowdag/nodes/sync"
)

var (
	graphFile   = flag.String("f", "pipeline.hcl", "graph description file")
	logLevel    = flag.String("log-level", "info", "log level (debug, info, warn, error)")
	metricsAddr = flag.String("metrics-addr", "", "serve Prometheus metrics on this address, empty disables")
	listTypes   = flag.Bool("list-types", false, "print registered node types and exit")
)

func main() {
	flag.Parse()

	if *listTypes {
		for _, t := range flowdag.DefaultRegistry.Types() {
			fmt.Println(t)
		}
		return
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintln(os.Stderr, "invalid log level:", *logLevel)
		os.Exit(2)
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(log); err != nil {
		log.Error("pipeline failed", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	graph, err := hclconf.LoadFile(*graphFile)
	if err != nil {
		return err
	}

	opts := []flowdag.Option{flowdag.WithLogger(log)}
	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, flowdag.WithMetrics(reg))
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Error("metrics server failed", "error", err)
			}
		}()
	}

	p := flowdag.New(opts...)
	if err := graph.Activate(p, flowdag.DefaultRegistry); err != nil {
		return err
	}

	log.Info("pipeline loaded",
		"graph", *graphFile,
		"instance", p.InstanceID().String(),
		"nodes", len(p.AllNodes()),
		"connections", len(p.Connections()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return p.Run(ctx)
}
