package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/velasearch/vela/config"
	"github.com/velasearch/vela/control"
	"github.com/velasearch/vela/index"
	"github.com/velasearch/vela/metrics"
	"github.com/velasearch/vela/search"
	"github.com/velasearch/vela/tasks"
)

var serveViper = config.NewBareViper()

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the scheduler and a minimal HTTP surface for manual exercising",
	RunE:  runServe,
}

func init() {
	config.BindFlags(serveCmd.Flags(), serveViper)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.Load(serveViper)
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel)

	queue, err := tasks.Open(cfg.DataDir + "/tasks")
	if err != nil {
		return err
	}
	defer queue.Close()

	registry, err := index.NewRegistry(cfg.DataDir, queue, cfg.IndexerWorkers)
	if err != nil {
		return err
	}
	defer registry.CloseAll()

	svc := control.New(queue, registry)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go queue.Run(ctx, registry, log)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/indexes/", func(w http.ResponseWriter, r *http.Request) {
		handleIndexRoute(w, r, svc)
	})

	server := &http.Server{Addr: ":7700", Handler: mux}
	log.Info().Str("addr", server.Addr).Msg("starting http server")

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		return server.Shutdown(context.Background())
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// handleIndexRoute dispatches "/indexes/<uid>/search" and
// "/indexes/<uid>/stats" — the two read-only §6 operations worth
// exercising over HTTP without building out a full REST surface, which
// is explicitly out of core scope.
func handleIndexRoute(w http.ResponseWriter, r *http.Request, svc *control.Service) {
	uid, action, ok := splitIndexPath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	switch action {
	case "search":
		var req search.Request
		if r.Method == http.MethodPost {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		} else {
			req.Query = r.URL.Query().Get("q")
		}
		resp, err := svc.Search(uid, req)
		writeJSON(w, resp, err)
	case "stats":
		stats, err := svc.GetIndexStats(uid)
		writeJSON(w, stats, err)
	default:
		http.NotFound(w, r)
	}
}

func splitIndexPath(path string) (uid, action string, ok bool) {
	const prefix = "/indexes/"
	if len(path) <= len(prefix) {
		return "", "", false
	}
	rest := path[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			return rest[:i], rest[i+1:], true
		}
	}
	return "", "", false
}

func writeJSON(w http.ResponseWriter, v any, err error) {
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
