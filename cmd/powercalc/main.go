package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gridworks/powercalc/pkg/analysis"
	"github.com/gridworks/powercalc/pkg/logging"
	"github.com/gridworks/powercalc/pkg/model"
)

func main() {
	input := flag.String("input", "", "Network snapshot YAML file")
	jsonOut := flag.Bool("json", false, "Print the full result as JSON")
	workers := flag.Int("workers", 2, "Worker pool size")
	timeout := flag.Duration("timeout", 30*time.Second, "Analysis timeout")
	logLevel := flag.String("log-level", "WARN", "Log level (DEBUG/INFO/WARN/ERROR)")
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "usage: powercalc -input network.yaml [-json]")
		os.Exit(2)
	}

	logging.SetDefaultLogger(logging.NewJSONLogger(os.Stderr, logging.ParseLevel(*logLevel)))

	data, err := os.ReadFile(*input)
	if err != nil {
		log.Fatalf("Failed to read input: %v", err)
	}
	snap, err := model.DecodeSnapshot(data)
	if err != nil {
		log.Fatalf("Failed to decode snapshot: %v", err)
	}

	runner, err := analysis.NewRunner(analysis.Options{Workers: *workers})
	if err != nil {
		log.Fatalf("Failed to create runner: %v", err)
	}
	defer runner.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	res, err := runner.Run(ctx, snap)
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			log.Fatalf("Failed to encode result: %v", err)
		}
		return
	}

	printSummary(res)
}

func printSummary(res *analysis.Result) {
	fmt.Printf("⚡ Analysis %s (%s, %.1f ms)\n", res.RunID, res.Status(), res.DurationMS)
	fmt.Println("========================================")

	for _, name := range []string{
		analysis.SectionTopology,
		analysis.SectionPerUnit,
		analysis.SectionShortCircuit,
		analysis.SectionLoadFlow,
		analysis.SectionArcFlash,
		analysis.SectionLoopFlow,
	} {
		if sec, ok := res.Sections[name]; ok {
			fmt.Printf("  %-14s %-9s %8.2f ms\n", name, sec.Status, sec.DurationMS)
		}
	}

	s := res.Summary
	fmt.Println("\n📊 Summary")
	if s.MaxFaultBus != "" {
		fmt.Printf("  Max fault current:  %.2f kA at %s\n", s.MaxFaultKA, s.MaxFaultBus)
	}
	fmt.Printf("  Breakers:           %d pass, %d fail\n", s.BreakersPass, s.BreakersFail)
	fmt.Printf("  Load flow:          converged=%v, losses %.3f MW\n", s.Converged, s.TotalLossMW)
	fmt.Printf("  Worst PPE category: %d\n", s.WorstPPE)
	fmt.Printf("  Rings detected:     %d\n", s.LoopCount)
	if s.IssueErrors > 0 || s.IssueWarnings > 0 {
		fmt.Printf("  Issues:             %d errors, %d warnings\n", s.IssueErrors, s.IssueWarnings)
	}

	if s.BreakersFail > 0 {
		fmt.Println("\n⚠️  Underrated breakers:")
		for _, c := range res.ShortCircuit.Breakers {
			if !c.Pass {
				fmt.Printf("  %s: %.2f kA duty, %.2f kA required, %.2f kA rated\n",
					c.NodeID, c.FaultKA, c.RequiredKA, c.RatedKA)
			}
		}
	}
}
