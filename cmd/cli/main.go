package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"voltedge/internal/config"
	"voltedge/internal/export"
	"voltedge/internal/model"
	"voltedge/internal/orchestrator"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "run":
		cmdRun(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println("usage:")
	fmt.Println("  cli run --config examples/scenarios/steady.yaml --ticks 100 --out results/snapshots.csv")
	fmt.Println("")
	fmt.Println("notes:")
	fmt.Println("  - run advances the scenario in step mode and writes one CSV row per tick")
	fmt.Println("  - use --fault-tick/--fault-target/--fault-kind to inject a fault mid-run")
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML scenario")
	ticks := fs.Int("ticks", 100, "Number of ticks to advance")
	outPath := fs.String("out", "results/snapshots.csv", "Output CSV path")
	faultTick := fs.Int("fault-tick", 0, "Optional: tick before which to inject a fault (0=never)")
	faultTarget := fs.Int64("fault-target", 0, "Component id for --fault-tick")
	faultKind := fs.String("fault-kind", "plant_outage", "Fault kind for --fault-tick")
	verbose := fs.Bool("v", false, "Print each snapshot to stdout")
	_ = fs.Parse(args)

	if *cfgPath == "" {
		fmt.Println("--config is required")
		os.Exit(2)
	}

	scenario, err := config.Load(*cfgPath)
	if err != nil {
		fatalf("load scenario: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	orc := orchestrator.New(orchestrator.Options{MaxSimulations: 1, Logger: logger})
	defer orc.Close()

	id, err := orc.Create(scenario)
	if err != nil {
		fatalf("create simulation: %v", err)
	}

	var kind model.FaultKind
	if *faultTick > 0 {
		kind, err = model.ParseFaultKind(*faultKind)
		if err != nil {
			fatalf("%v", err)
		}
	}

	snapshots := make([]model.Snapshot, 0, *ticks)
	for i := 1; i <= *ticks; i++ {
		if *faultTick > 0 && i == *faultTick {
			if err := orc.InjectFault(id, *faultTarget, kind); err != nil {
				fatalf("inject fault: %v", err)
			}
		}
		snap, err := orc.Tick(id)
		if err != nil {
			fatalf("tick %d: %v", i, err)
		}
		snapshots = append(snapshots, snap)
		if *verbose {
			fmt.Printf("tick %4d  gen=%8.2f MW  load=%8.2f MW  f=%6.3f Hz  faults=%d\n",
				snap.TickNumber, snap.TotalGenerationMW, snap.TotalConsumptionMW, snap.GridFrequencyHz, snap.FaultCount)
		}
	}

	if err := os.MkdirAll(filepath.Dir(*outPath), 0o755); err != nil {
		fatalf("create output dir: %v", err)
	}
	if err := export.WriteSnapshotCSV(*outPath, snapshots); err != nil {
		fatalf("write csv: %v", err)
	}

	last := snapshots[len(snapshots)-1]
	fmt.Printf("Wrote %d rows to %s\n", len(snapshots), *outPath)
	fmt.Printf("Final: generation=%.2f MW consumption=%.2f MW frequency=%.3f Hz faults=%d\n",
		last.TotalGenerationMW, last.TotalConsumptionMW, last.GridFrequencyHz, last.FaultCount)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
