// Command genfixture writes a synthetic MICAPS data tree plus sample chart
// requests, and can serve the tree with a fake CIMISS endpoint so the
// service runs locally without upstream access.
//
// Usage:
//
//	go run ./cmd/genfixture write --dir data/fixture --init 2018-04-20T08:00:00Z
//	go run ./cmd/genfixture serve --dir data/fixture --addr :8081
//
// Point MICAPS_URL at http://localhost:8081/micaps and CIMISS_URL at
// http://localhost:8081/cimiss.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/met-diagnostics-etl/internal/catalog"
	"github.com/couchcryptid/met-diagnostics-etl/internal/fixture"
	"github.com/spf13/cobra"
)

// defaultInit matches the run used throughout the tests.
const defaultInit = "2018-04-20T08:00:00Z"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "genfixture",
		Short:        "Generate and serve synthetic MICAPS/CIMISS fixtures",
		SilenceUsage: true,
	}
	root.AddCommand(newWriteCmd(), newServeCmd())
	return root
}

func newWriteCmd() *cobra.Command {
	var (
		dir         string
		initStr     string
		fhour       int
		catalogPath string
	)
	cmd := &cobra.Command{
		Use:   "write",
		Short: "Write one model run's grids and sample requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			init, err := time.Parse(time.RFC3339, initStr)
			if err != nil {
				return fmt.Errorf("--init: %w", err)
			}
			cat := catalog.Default()
			if catalogPath != "" {
				if cat, err = catalog.Load(catalogPath); err != nil {
					return err
				}
			}

			paths, err := fixture.Write(dir, cat, init, fhour)
			if err != nil {
				return err
			}
			reqPath := filepath.Join(dir, "requests.json")
			if err := writeRequests(reqPath, init); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d grids to %s\n", len(paths), dir)
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample requests to %s\n", reqPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "data/fixture", "output directory")
	cmd.Flags().StringVar(&initStr, "init", defaultInit, "model run initial time (RFC3339)")
	cmd.Flags().IntVar(&fhour, "fhour", fixture.ForecastHour, "forecast hour")
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "catalog YAML merged over the defaults")
	return cmd
}

func newServeCmd() *cobra.Command {
	var dir, addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a fixture tree as MICAPS and CIMISS endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(dir); err != nil {
				return fmt.Errorf("fixture dir: %w", err)
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           fixture.NewServer(dir),
				ReadHeaderTimeout: 5 * time.Second,
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on %s\n", dir, addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "data/fixture", "fixture directory")
	cmd.Flags().StringVar(&addr, "addr", ":8081", "listen address")
	return cmd
}

func writeRequests(path string, init time.Time) error {
	data, err := json.MarshalIndent(fixture.Requests(init), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal requests: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
