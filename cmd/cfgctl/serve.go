package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"cfgadmin/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, seed string
	var dev bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an in-memory admin API",
		Long:  "Serves the admin API families from memory, with ETags, API versions in the Accept header and bearer auth when a JWT secret is configured. Data is lost on exit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !dev {
				return fmt.Errorf("only the --dev server is available")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Dev.Listen
			}
			if seed == "" {
				seed = cfg.Dev.Seed
			}
			log := newLogger()
			defer log.Sync()

			store := server.NewStore()
			if seed != "" {
				n, err := seedStore(store, seed)
				if err != nil {
					return err
				}
				log.Info("seeded dev store", zap.String("file", seed), zap.Int("documents", n))
			}
			handler, err := server.New(server.Config{
				Store:   store,
				Product: cfg.Server.Product,
				Auth:    server.AuthConfig{JWTSecret: devSecret(cfg)},
				Logger:  log,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			fmt.Printf("Serving dev admin API on http://%s (OpenAPI at /api/openapi.json)\n", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dev, "dev", false, "run the in-memory dev server")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default dev.listen)")
	cmd.Flags().StringVar(&seed, "seed", "", "YAML or JSON file mapping family names to document lists")
	return cmd
}

// seedStore loads a seed file into store and returns the number of documents.
func seedStore(store *server.Store, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var byFamily map[string][]any
	if err := yaml.Unmarshal(data, &byFamily); err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	names := make([]string, 0, len(byFamily))
	for name := range byFamily {
		names = append(names, name)
	}
	sort.Strings(names)
	total := 0
	for _, name := range names {
		docs := make([]json.RawMessage, 0, len(byFamily[name]))
		for i, v := range byFamily[name] {
			raw, err := json.Marshal(v)
			if err != nil {
				return total, fmt.Errorf("%s: %s document %d: %w", path, name, i, err)
			}
			docs = append(docs, raw)
		}
		if err := server.Seed(store, familyArg(name), docs...); err != nil {
			return total, fmt.Errorf("%s: %w", path, err)
		}
		total += len(docs)
	}
	return total, nil
}
