package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/marmos91/certdedup/internal/logger"
	"github.com/marmos91/certdedup/pkg/engine"
	"github.com/marmos91/certdedup/pkg/metrics"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run the dedup whenever the input file changes",
	Long: `Watch the input file and re-run the dedup after each change, debounced
by watch.debounce. Useful when the input is an append-only certificate
transparency log dump that is refreshed periodically.

When metrics.enabled is set, a Prometheus endpoint is served for the
lifetime of the watch.

Examples:
  # Watch with config-file settings
  certdedup watch

  # Watch an explicit file pair
  certdedup watch --input ctl_records.jsonlines --output duplicates.jsonline`,
	RunE: runWatch,
}

func init() {
	addEngineFlags(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var recorder *metrics.DedupRecorder
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		recorder = metrics.NewDedupRecorder()
		go serveMetrics(ctx, cfg.Metrics.Listen)
	}

	eng, err := newEngine(cfg, recorder)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the parent directory: editors and downloaders typically
	// replace the file by rename, which a file-level watch would lose.
	inputPath, err := filepath.Abs(cfg.Input.Path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(inputPath)); err != nil {
		return err
	}

	logger.Info("watching input",
		logger.InputPath(inputPath),
		"debounce", cfg.Watch.Debounce.String(),
	)

	// Initial pass before waiting for changes.
	runOnce(ctx, eng)

	return watchLoop(ctx, watcher, inputPath, cfg.Watch.Debounce, eng)
}

// watchLoop re-runs the engine after each debounced change to inputPath.
func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, inputPath string, debounce time.Duration, eng *engine.Engine) error {
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			logger.Info("watch stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != inputPath {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			logger.Debug("input changed", logger.InputPath(inputPath), "op", event.Op.String())
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(debounce)
			pending = true

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", logger.Err(err))

		case <-timer.C:
			pending = false
			runOnce(ctx, eng)
		}
	}
}

// runOnce executes one dedup pass, logging instead of propagating errors
// so a bad input revision does not stop the watch.
func runOnce(ctx context.Context, eng *engine.Engine) {
	stats, err := eng.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Error("dedup run failed", logger.Err(err))
		return
	}
	logger.Info("output refreshed",
		logger.Records(stats.RecordsRead),
		logger.Groups(stats.GroupsEmitted),
	)
}

// serveMetrics serves the Prometheus registry until the context ends.
func serveMetrics(ctx context.Context, listen string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: listen, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics endpoint listening", "listen", listen)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics endpoint failed", logger.Err(err))
	}
}
