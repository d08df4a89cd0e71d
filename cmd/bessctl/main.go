// Package main provides the bessctl command-line entry point: run a single
// solve or an MPC rolling-horizon sweep against a JSON request file.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/fenwick-grid/bess-scheduler/internal/api"
	"github.com/fenwick-grid/bess-scheduler/internal/config"
	"github.com/fenwick-grid/bess-scheduler/internal/mpc"
	"github.com/fenwick-grid/bess-scheduler/internal/pipeline"
	"github.com/fenwick-grid/bess-scheduler/internal/solver"
)

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file path (JSON); uses built-in defaults if empty")
		reqFile    = flag.String("request", "", "Optimization request file path (JSON, required)")
		outFile    = flag.String("out", "", "Result output file path (JSON); defaults to stdout")
		runMPC     = flag.Bool("mpc", false, "Run the rolling-horizon MPC sweep instead of a single solve")
		dbURL      = flag.String("db-url", "", "Postgres connection string for MPC run persistence (mpc mode only)")
		runID      = flag.String("run-id", "", "Run identifier for MPC persistence/progress; defaults to a timestamp")
		help       = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	if *reqFile == "" {
		fmt.Println("Error: -request is required")
		showHelp()
		os.Exit(1)
	}

	cfg := config.DefaultConfig()
	if *configFile != "" {
		loaded, err := config.LoadConfig(*configFile)
		if err != nil {
			fmt.Println("Error loading configuration:", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		fmt.Println("Error validating configuration:", err)
		os.Exit(1)
	}

	req, err := loadRequest(*reqFile)
	if err != nil {
		fmt.Println("Error loading request:", err)
		os.Exit(1)
	}

	logger := log.New(os.Stdout, "[bessctl] ", log.LstdFlags)
	ctx := context.Background()

	if *runMPC {
		runSweep(ctx, req, cfg, logger, *dbURL, *runID, *outFile)
		return
	}

	runOnce(ctx, req, cfg, *outFile)
}

func runOnce(ctx context.Context, req *api.OptimizationRequest, cfg *config.Config, outFile string) {
	drv := solver.NewDriver()
	res, err := pipeline.Solve(ctx, req, cfg, drv)
	if err != nil {
		fmt.Println("Error solving request:", err)
		os.Exit(1)
	}
	if err := writeResult(outFile, res); err != nil {
		fmt.Println("Error writing result:", err)
		os.Exit(1)
	}
}

func runSweep(ctx context.Context, req *api.OptimizationRequest, cfg *config.Config, logger *log.Logger, dbURL, id, outFile string) {
	driver := mpc.NewDriver(cfg)
	driver.Logger = logger

	if dbURL != "" {
		db, err := sql.Open("postgres", dbURL)
		if err != nil {
			fmt.Println("Error opening database:", err)
			os.Exit(1)
		}
		defer db.Close()
		driver.DB = db
	}

	if id == "" {
		id = fmt.Sprintf("run-%d", time.Now().Unix())
	}

	res, err := driver.Run(ctx, req, id)
	if err != nil {
		fmt.Println("Error running MPC sweep:", err)
		os.Exit(1)
	}
	if err := writeResult(outFile, res); err != nil {
		fmt.Println("Error writing result:", err)
		os.Exit(1)
	}
}

func loadRequest(path string) (*api.OptimizationRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open request file: %w", err)
	}
	defer f.Close()

	var req api.OptimizationRequest
	if err := json.NewDecoder(f).Decode(&req); err != nil {
		return nil, fmt.Errorf("failed to decode request file: %w", err)
	}
	return &req, nil
}

func writeResult(path string, v any) error {
	out := os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func showHelp() {
	fmt.Println("bessctl - BESS multi-market MILP scheduling kernel")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Builds and solves the battery energy storage scheduling MILP across")
	fmt.Println("  Day-Ahead, aFRR energy, FCR capacity, and aFRR capacity markets, with")
	fmt.Println("  optional renewable co-location and cyclic/calendar aging costs.")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  bessctl -request=request.json [OPTIONS]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Single solve over the full horizon in the request file")
	fmt.Println("  bessctl -request=request.json -out=result.json")
	fmt.Println()
	fmt.Println("  # Rolling-horizon MPC sweep with run persistence")
	fmt.Println("  bessctl -request=request.json -mpc -db-url=postgres://... -out=run.json")
	fmt.Println()
	fmt.Println("  # Custom solver/degradation configuration")
	fmt.Println("  bessctl -request=request.json -config=config.json")
}
