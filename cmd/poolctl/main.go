package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/NeilCooper1314/snappydata/pkg/config"
	"github.com/NeilCooper1314/snappydata/pkg/connpool"
	"github.com/NeilCooper1314/snappydata/pkg/logger"

	// Register drivers for the database/sql backend
	_ "github.com/go-sql-driver/mysql"
)

var version = "0.1.0"

// sourceReport is the per-source output of the validate command.
type sourceReport struct {
	Source  string            `json:"source"`
	Backend string            `json:"backend"`
	PoolKey string            `json:"pool_key"`
	Options map[string]string `json:"options,omitempty"`
	Issues  []string          `json:"issues,omitempty"`
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	var logLevel string
	var jsonOutput bool

	root := &cobra.Command{
		Use:   "poolctl",
		Short: "poolctl - SnappyData connection pool registry tool",
		Long: `poolctl inspects and exercises pooled-connection configurations.
It loads YAML pool documents, reports which logical sources deduplicate onto
shared pools, and can probe connectivity through the real pool engines.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Init(logger.Config{Level: logLevel, Encoding: "json"})
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("poolctl v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	var configFile string

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a pool document and report pool key dedupe classes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(configFile, jsonOutput)
		},
	}
	validateCmd.Flags().StringVarP(&configFile, "config", "c", "", "pool document to validate (required)")
	_ = validateCmd.MarkFlagRequired("config")
	root.AddCommand(validateCmd)

	var pingTimeout time.Duration
	pingCmd := &cobra.Command{
		Use:   "ping",
		Short: "Acquire every source, ping its pool, and release it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPing(configFile, pingTimeout)
		},
	}
	pingCmd.Flags().StringVarP(&configFile, "config", "c", "", "pool document to probe (required)")
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", 10*time.Second, "per-source ping timeout")
	_ = pingCmd.MarkFlagRequired("config")
	root.AddCommand(pingCmd)

	if err := root.Execute(); err != nil {
		logger.Error("command failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func runValidate(path string, jsonOutput bool) error {
	doc, err := config.Load(path)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(doc.Sources))
	for name := range doc.Sources {
		names = append(names, name)
	}
	sort.Strings(names)

	reports := make([]sourceReport, 0, len(names))
	shared := make(map[string][]string)
	for _, name := range names {
		src := doc.Sources[name]
		rep := sourceReport{Source: name, Options: src.Pool}

		cfg, err := src.PoolConfig()
		if err != nil {
			rep.Issues = append(rep.Issues, err.Error())
			reports = append(reports, rep)
			continue
		}

		backend := cfg.Backend()
		rep.Backend = backend.String()
		for opt := range cfg.PoolProps {
			if !connpool.Supported(backend, opt) {
				rep.Issues = append(rep.Issues,
					fmt.Sprintf("option %q has no setter for backend %s", opt, backend))
			}
		}

		key := connpool.DeriveKey(cfg)
		rep.PoolKey = key.String()
		shared[rep.PoolKey] = append(shared[rep.PoolKey], name)
		reports = append(reports, rep)
	}

	if jsonOutput {
		out, err := gojson.MarshalIndent(reports, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	for _, rep := range reports {
		status := "ok"
		if len(rep.Issues) > 0 {
			status = "invalid"
		}
		fmt.Printf("%-20s backend=%-4s key=%s %s\n", rep.Source, rep.Backend, rep.PoolKey, status)
		for _, issue := range rep.Issues {
			fmt.Printf("    - %s\n", issue)
		}
	}
	for key, sources := range shared {
		if len(sources) > 1 {
			fmt.Printf("sources %v share pool %s\n", sources, key)
		}
	}
	return nil
}

func runPing(path string, timeout time.Duration) error {
	doc, err := config.Load(path)
	if err != nil {
		return err
	}

	registry := connpool.NewRegistry()
	defer func() {
		if err := registry.Clear(); err != nil {
			logger.Warn("registry teardown reported errors", zap.Error(err))
		}
	}()

	names := make([]string, 0, len(doc.Sources))
	for name := range doc.Sources {
		names = append(names, name)
	}
	sort.Strings(names)

	var failed int
	for _, name := range names {
		cfg, err := doc.Sources[name].PoolConfig()
		if err != nil {
			fmt.Printf("%-20s INVALID: %v\n", name, err)
			failed++
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		eng, err := registry.Acquire(ctx, name, cfg)
		if err != nil {
			cancel()
			fmt.Printf("%-20s FAILED: %v\n", name, err)
			failed++
			continue
		}
		if err := eng.Ping(ctx); err != nil {
			fmt.Printf("%-20s UNREACHABLE: %v\n", name, err)
			failed++
		} else {
			stats := eng.Stats()
			fmt.Printf("%-20s OK backend=%s open=%d\n", name, eng.Backend(), stats.TotalConnections)
		}
		cancel()
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d sources failed", failed, len(names))
	}
	return nil
}
