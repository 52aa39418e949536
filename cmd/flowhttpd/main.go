// Command flowhttpd serves the read-only HTTP surface (spec §6.2) over the
// run index built from RUN_BASE.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/stepflow-dev/harness/internal/config"
	"github.com/stepflow-dev/harness/internal/httpapi"
	"github.com/stepflow-dev/harness/internal/runindex"
	"github.com/stepflow-dev/harness/internal/selftest"
	"github.com/stepflow-dev/harness/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	env := config.FromEnviron()
	addr := os.Getenv("FLOWHTTPD_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	idx, err := runindex.Open(filepath.Join(env.RunBase, "runindex.sqlite"))
	if err != nil {
		return err
	}
	defer idx.Close()

	srv := httpapi.NewServer(idx, env.RunBase, selftest.DefaultCatalog, telemetry.NewClueLogger())

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("flowhttpd listening on %s (run_base=%s)", addr, env.RunBase)
		errCh <- httpServer.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-sig:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(ctx)
	}
	return nil
}
