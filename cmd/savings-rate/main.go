package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"savingsrate/internal/cli"
	"savingsrate/internal/core"
	"savingsrate/internal/log"
)

func main() {
	cli.LoadEnvFile()

	format := flag.String("format", "table", "output format: table or json")
	dbPath := flag.String("db", "", "settings database (default SETTINGS_DB_PATH)")
	visible := flag.Bool("visible", false, "only print series shown together with the self series")
	flag.Parse()

	bootstrap := log.New(log.Config{Output: os.Stderr})
	cfg := cli.LoadAndValidateConfig(bootstrap)
	if *dbPath != "" {
		cfg.SettingsDBPath = *dbPath
	}
	logger := log.New(log.Config{
		Level:  log.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
		Output: os.Stderr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store := cli.OpenSettingsStore(ctx, logger, cfg.SettingsDBPath)
	defer store.Close()

	svc, _ := cli.NewComparisonService(cfg, store, logger)
	res, err := svc.Compare(ctx)
	if err != nil {
		logger.Error("Comparison failed", log.FieldError, err.Error())
		os.Exit(1)
	}
	if *visible {
		res.Profiles = res.Visible()
	}

	switch strings.ToLower(*format) {
	case "json":
		err = writeJSON(os.Stdout, res)
	case "table":
		err = writeTable(os.Stdout, res)
	default:
		err = fmt.Errorf("unknown format %q", *format)
	}
	if err != nil {
		logger.Error("Failed to write output", log.FieldError, err.Error())
		os.Exit(1)
	}
}

func writeJSON(w io.Writer, res core.ComparisonResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func writeTable(w io.Writer, res core.ComparisonResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, s := range res.Profiles {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		fmt.Fprintf(tw, "%s\t(%s)\n", s.Name, s.ProfileID)
		fmt.Fprintln(tw, "MONTH\tRATE %\tGOAL\t% FI\tNOTES")
		for _, rec := range s.Records {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				rec.Month, rec.SavingsRate, optional(rec.Goal), optional(rec.PercentFI), rec.Notes)
		}
		if s.ShowAverage {
			fmt.Fprintf(tw, "average\t%s\t\t\t\n", s.Average)
		}
		if n := len(s.Skipped); n > 0 {
			fmt.Fprintf(tw, "skipped rows\t%d\t\t\t\n", n)
		}
	}
	for _, f := range res.Failures {
		fmt.Fprintf(tw, "\nFAILED %s (%s)\t%s\n", f.Name, f.ProfileID, f.Message)
	}
	if len(res.Reference.Points) > 0 {
		fmt.Fprintf(tw, "\n%s\n", res.Reference.Label)
		for _, p := range res.Reference.Points {
			marker := ""
			if p.ReferenceOnly {
				marker = "*"
			}
			fmt.Fprintf(tw, "%s\t%.2f%s\n", p.Month, p.Value, marker)
		}
	}
	return tw.Flush()
}

func optional(f *float64) string {
	if f == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *f)
}
