package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/datalens/internal/config"
	"github.com/nextlevelbuilder/datalens/internal/store"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and connectivity",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("datalens doctor")
	fmt.Printf("  Version:  %s\n", version)
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

	fmt.Println()
	fmt.Println("  Provider:")
	check("api_key", cfg.Provider.APIKey != "")
	fmt.Printf("    model:      %s\n", cfg.Provider.Model)
	fmt.Printf("    api_base:   %s\n", cfg.Provider.APIBase)

	fmt.Println()
	fmt.Println("  Database:")
	if cfg.Database.DSN == "" {
		fmt.Println("    dsn:        (not set, SQL tools disabled)")
	} else {
		db, err := store.OpenDB(cfg.Database)
		if err != nil {
			fmt.Printf("    connection: FAILED (%s)\n", err)
		} else {
			fmt.Println("    connection: OK")
			db.Close()
		}
	}

	fmt.Println()
	fmt.Println("  Sessions:")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cp, err := openCheckpointer(ctx, cfg.Sessions)
	switch {
	case err != nil:
		fmt.Printf("    store:      FAILED (%s)\n", err)
	case cp == nil:
		fmt.Println("    store:      (in-memory only)")
	default:
		fmt.Println("    store:      OK")
		cp.Close()
	}

	fmt.Println()
	fmt.Printf("  MCP servers: %d configured\n", len(cfg.MCP))
	for _, srv := range cfg.MCP {
		kind := "stdio"
		if srv.URL != "" {
			kind = "http"
		}
		fmt.Printf("    - %s (%s)\n", srv.Name, kind)
	}
}

func check(name string, ok bool) {
	status := "MISSING"
	if ok {
		status = "OK"
	}
	fmt.Printf("    %-11s %s\n", name+":", status)
}
