// Probe runs every configured data source once for a field and prints the
// results side by side. The observation cache is not consulted or written.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/rkm/fieldsat/internal/config"
	"github.com/rkm/fieldsat/internal/health"
	"github.com/rkm/fieldsat/internal/models"
	"github.com/rkm/fieldsat/internal/provider"
	"github.com/rkm/fieldsat/pkg/server"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	var (
		fieldID = fs.String("field", "probe", "field id reported in observations")
		north   = fs.Float64("north", 0, "northern latitude of the field")
		south   = fs.Float64("south", 0, "southern latitude of the field")
		east    = fs.Float64("east", 0, "eastern longitude of the field")
		west    = fs.Float64("west", 0, "western longitude of the field")
		verbose = fs.Bool("v", false, "log adapter activity to stderr")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	bounds := models.FieldBounds{North: *north, South: *south, East: *east, West: *west}
	if err := bounds.Validate(); err != nil {
		return err
	}

	cfg, err := config.Load(".env")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	profiles := config.DefaultProfiles()
	if cfg.Profiles.Dir != "" {
		profiles, err = config.LoadProfiles(cfg.Profiles.Dir)
		if err != nil {
			return err
		}
	}

	providers, err := server.Providers(cfg, profiles, clockwork.NewRealClock(), logger)
	if err != nil {
		return err
	}

	rows := probe(context.Background(), providers, *fieldID, bounds, cfg.Orchestrator.AdapterTimeout)
	return printRows(out, rows)
}

type row struct {
	source   models.Source
	outcome  string
	result   *provider.Result
	duration time.Duration
}

func probe(ctx context.Context, providers []provider.Provider, fieldID string, bounds models.FieldBounds, timeout time.Duration) []row {
	rows := make([]row, 0, len(providers))
	for _, p := range providers {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		result, err := p.FetchLatestObservation(attemptCtx, fieldID, bounds)
		elapsed := time.Since(start)
		cancel()

		r := row{source: p.Source(), result: result, duration: elapsed, outcome: "ok"}
		switch {
		case errors.Is(err, models.ErrConfigurationMissing):
			r.outcome = "not configured"
		case errors.Is(err, models.ErrNoScenes):
			r.outcome = "no scenes"
		case err != nil:
			r.outcome = err.Error()
		}
		if err != nil {
			r.result = nil
		}
		rows = append(rows, r)
	}
	return rows
}

func printRows(out io.Writer, rows []row) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tOUTCOME\tCAPTURED\tNDVI\tCLOUD\tCONFIDENCE\tHEALTH\tDURATION")
	for _, r := range rows {
		if r.result == nil {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\t-\t-\t%s\n", r.source, r.outcome, r.duration.Round(time.Millisecond))
			continue
		}
		obs := r.result.Observation
		assessment := health.Assess(r.result.HealthInput())
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.3f\t%s\t%s\t%s\t%s\n",
			r.source,
			r.outcome,
			obs.CaptureDate.Format("2006-01-02"),
			obs.NDVI,
			optional(obs.CloudCoverage, "%.1f%%"),
			optional(obs.Confidence, "%.2f"),
			assessment.Overall,
			r.duration.Round(time.Millisecond),
		)
	}
	return tw.Flush()
}

func optional(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}
