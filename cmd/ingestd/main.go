// Command ingestd hosts the telemetry ingest pipeline: it reads
// line-delimited JSON messages from stdin, submits each to the pipeline,
// and serves a small HTTP surface for health and statistics.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vtelemetry/ingestcore/internal/config"
	"github.com/vtelemetry/ingestcore/internal/message"
	"github.com/vtelemetry/ingestcore/internal/otel"
	"github.com/vtelemetry/ingestcore/internal/pipeline"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP address for /healthz and /statsz")
	exporter := flag.String("exporter", "none", "Tracing/metrics exporter: none, stdout, otlp-grpc, otlp-http")
	otlpEndpoint := flag.String("otlp-endpoint", "", "OTLP collector endpoint (for otlp-grpc/otlp-http)")
	otlpInsecure := flag.Bool("otlp-insecure", false, "Disable TLS for the OTLP exporter")
	serviceVersion := flag.String("service-version", "", "Service version reported in traces/metrics")
	flag.Parse()

	cfg := config.Default()
	cfg.Observability.Enabled = *exporter != "none"
	cfg.Observability.ExporterType = otel.ExporterType(*exporter)
	cfg.Observability.OTLPEndpoint = *otlpEndpoint
	cfg.Observability.OTLPInsecure = *otlpInsecure
	cfg.Observability.ServiceVersion = *serviceVersion

	p := pipeline.New(cfg, exampleHandler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error starting pipeline: %v\n", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		health := p.GetHealth()
		w.Header().Set("Content-Type", "application/json")
		if health == "critical" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(map[string]string{"health": string(health)})
	})
	mux.HandleFunc("/statsz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(p.GetStats())
	})

	server := &http.Server{
		Addr:    *addr,
		Handler: otel.Middleware(p.Tracer())(mux),
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server exited", "error", err)
		}
	}()

	go readStdin(p)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = server.Shutdown(shutdownCtx)
	if err := p.Stop(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "error stopping pipeline: %v\n", err)
	}
}

// readStdin feeds one submit call per line of stdin. Production deployments
// replace this with whatever transport adapter delivers telemetry frames;
// this is the minimal host loop the pipeline needs to run standalone.
func readStdin(p *pipeline.Pipeline) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := p.Submit(line); err != nil {
			slog.Warn("submit rejected", "code", err.Code, "message", err.Message)
		}
	}
}

// exampleHandler is a placeholder application handler: it logs the message
// at debug level. Real deployments supply their own handler to pipeline.New.
func exampleHandler(_ context.Context, msg message.Message) error {
	slog.Debug("dispatched message", "service", msg.Service, "vin", msg.VIN, "priority", msg.Priority().String())
	return nil
}
