// Command snrr-diagnose is a pre-flight checklist for an SNRR
// deployment: it loads configuration, bootstraps the snode pool, and
// reports the health of every component a caller depends on before
// issuing real traffic.
package main

import (
	"context"
	"crypto/ed25519"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/joho/godotenv"

	"github.com/session-network/snrr/internal/config"
	"github.com/session-network/snrr/internal/core"
	"github.com/session-network/snrr/internal/diagnostics"
	"github.com/session-network/snrr/internal/persistence/memstore"
	"github.com/session-network/snrr/internal/signer"
)

type check struct {
	Name string
	Run  func(ctx context.Context, c *core.Context) error
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, continuing with process environment")
	}

	configPath := flag.String("config", "", "path to snrr config YAML")
	diagPort := flag.Int("diag-port", 9080, "diagnostics server port (127.0.0.1 only)")
	serve := flag.Bool("serve", false, "keep running and serve the diagnostics HTTP surface")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		log.Fatalf("failed to generate diagnostic keypair: %v", err)
	}

	ctx := core.New(cfg, memstore.New(), core.Dependencies{
		Keys: signer.KeyPair{Ed25519Public: pub, Ed25519Private: priv},
	})

	fmt.Println("SNRR Pre-Flight Diagnostic")
	fmt.Println("--------------------------")

	checks := []check{
		{"Configuration", checkConfig},
		{"Snode Pool Bootstrap", checkPool},
		{"Dispatcher Wiring", checkDispatcher},
	}

	bgCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, c := range checks {
		fmt.Printf("Checking %-28s ", c.Name+"...")
		if err := c.Run(bgCtx, ctx); err != nil {
			fmt.Println("[FAIL]")
			fmt.Printf("  >> %v\n", err)
		} else {
			fmt.Println("[OK]")
		}
	}

	fmt.Println("--------------------------")
	fmt.Println("Status: checks complete.")

	if *serve {
		slog.Info("snrr-diagnose: serving diagnostics surface", "port", *diagPort)
		srv := diagnostics.New(ctx, *diagPort)
		runCtx, stop := context.WithCancel(context.Background())
		defer stop()
		if err := srv.ListenAndServe(runCtx); err != nil {
			log.Fatalf("diagnostics server exited: %v", err)
		}
	}
}

func checkConfig(_ context.Context, c *core.Context) error {
	if c.Config.Network.Layers().Count() == 0 {
		return fmt.Errorf("no layers selected")
	}
	return nil
}

func checkPool(ctx context.Context, c *core.Context) error {
	_, err := c.Pool.EnsureReady(ctx)
	return err
}

func checkDispatcher(_ context.Context, c *core.Context) error {
	if c.Dispatcher.Layers().Count() == 0 {
		return fmt.Errorf("dispatcher has no active layers")
	}
	return nil
}
