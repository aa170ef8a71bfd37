package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/salebot/internal/business"
	"github.com/nextlevelbuilder/salebot/internal/config"
	"github.com/nextlevelbuilder/salebot/internal/pipeline"
	"github.com/nextlevelbuilder/salebot/internal/store/redisstore"
	"github.com/nextlevelbuilder/salebot/internal/store/sqlstore"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("salebot doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	fmt.Println()
	fmt.Println("  Redis:")
	if rdb, err := redisstore.Open(ctx, cfg.Redis.URL); err != nil {
		fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
	} else {
		fmt.Printf("    %-12s OK\n", "Status:")
		rdb.Close()
	}

	fmt.Println()
	fmt.Println("  Ledger:")
	fmt.Printf("    %-12s %s\n", "Driver:", cfg.Database.Driver)
	checkLedger(ctx, cfg)

	fmt.Println()
	fmt.Println("  Providers:")
	fmt.Printf("    %-12s %s\n", "Default:", cfg.Providers.Default)
	checkProvider("Anthropic", cfg.Providers.Anthropic.APIKey)
	checkProvider("OpenAI", cfg.Providers.OpenAI.APIKey)

	fmt.Println()
	fmt.Println("  Channels:")
	checkChannel("Widget", cfg.Channels.Widget.Enabled, true)
	checkChannel("LINE", cfg.Channels.Line.Enabled, cfg.Channels.Line.RelayURL != "")
	checkChannel("Facebook", cfg.Channels.Facebook.Enabled, cfg.Channels.Facebook.RelayURL != "")

	fmt.Println()
	fmt.Println("  Pipeline:")
	if layers, err := pipeline.BuildLayers(cfg.Pipeline.Layers, nil); err != nil {
		fmt.Printf("    %-12s INVALID (%s)\n", "Layers:", err)
	} else {
		names := make([]string, len(layers))
		for i, l := range layers {
			names[i] = l.Name()
		}
		fmt.Printf("    %-12s %s → agent\n", "Layers:", strings.Join(names, " → "))
	}

	fmt.Println()
	fmt.Printf("  Businesses: %s", cfg.Businesses.Dir)
	configs, err := business.LoadDir(cfg.Businesses.Dir)
	switch {
	case err != nil:
		fmt.Printf(" (ERROR: %s)\n", err)
	case len(configs) == 0:
		fmt.Println(" (EMPTY)")
	default:
		fmt.Printf(" (%d loaded)\n", len(configs))
		found := false
		for _, c := range configs {
			found = found || c.ID == cfg.Businesses.DefaultID
		}
		if !found {
			fmt.Printf("    default %q is not among them\n", cfg.Businesses.DefaultID)
		}
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkLedger(ctx context.Context, cfg *config.Config) {
	db, err := sqlstore.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
		return
	}
	db.Close()
	fmt.Printf("    %-12s OK\n", "Status:")

	m, err := sqlstore.NewMigrator(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		fmt.Printf("    %-12s CHECK FAILED (%s)\n", "Schema:", err)
		return
	}
	defer m.Close()
	v, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		fmt.Printf("    %-12s empty (run: salebot migrate up)\n", "Schema:")
	case err != nil:
		fmt.Printf("    %-12s CHECK FAILED (%s)\n", "Schema:", err)
	case dirty:
		fmt.Printf("    %-12s v%d (DIRTY, run: salebot migrate force %d)\n", "Schema:", v, v-1)
	default:
		fmt.Printf("    %-12s v%d\n", "Schema:", v)
	}
}

func checkProvider(name, apiKey string) {
	if apiKey == "" {
		fmt.Printf("    %-12s (not configured)\n", name+":")
		return
	}
	masked := strings.Repeat("*", len(apiKey))
	if len(apiKey) > 8 {
		masked = apiKey[:4] + strings.Repeat("*", len(apiKey)-8) + apiKey[len(apiKey)-4:]
	}
	fmt.Printf("    %-12s %s\n", name+":", masked)
}

func checkChannel(name string, enabled, hasTarget bool) {
	status := "disabled"
	if enabled && hasTarget {
		status = "enabled"
	} else if enabled {
		status = "enabled (missing relay_url)"
	}
	fmt.Printf("    %-12s %s\n", name+":", status)
}
