package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"meter-insights/internal/config"
	"meter-insights/internal/export"
	"meter-insights/internal/pipeline"
	"meter-insights/internal/routing"
	telemetry "meter-insights/internal/telemetry/domain"
)

type options struct {
	inPath  string
	outDir  string
	pdf     bool
	verbose bool
}

// simClock follows the timestamps of the replayed readings.
type simClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *simClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *simClock) Advance(t time.Time) {
	c.mu.Lock()
	if t.After(c.now) {
		c.now = t
	}
	c.mu.Unlock()
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	in, err := os.Open(opts.inPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open input:", err)
		os.Exit(2)
	}
	defer in.Close()
	readings, err := readReadingsCSV(in)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read readings:", err)
		os.Exit(2)
	}
	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "create out dir:", err)
		os.Exit(2)
	}

	logOut := io.Discard
	if opts.verbose {
		logOut = os.Stderr
	}
	report, err := replay(context.Background(), cfg, readings, log.New(logOut, "", log.LstdFlags))
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(2)
	}
	if err := writeOutputs(opts, report); err != nil {
		fmt.Fprintln(os.Stderr, "write outputs:", err)
		os.Exit(2)
	}
	fmt.Printf("Replayed %d readings: %d events, %d incidents, %d work orders. Outputs written to %s\n",
		len(readings), len(report.Events), len(report.Incidents), len(report.Orders), opts.outDir)
}

func parseFlags() (options, error) {
	var opts options
	flag.StringVar(&opts.inPath, "in", "", "readings CSV path")
	flag.StringVar(&opts.outDir, "out", "./out", "output directory")
	flag.BoolVar(&opts.pdf, "pdf", false, "also write report.pdf")
	flag.BoolVar(&opts.verbose, "v", false, "log pipeline activity to stderr")
	flag.Parse()

	if opts.inPath == "" {
		return opts, errors.New("missing --in")
	}
	return opts, nil
}

// replay feeds readings through a fresh pipeline whose clock follows the
// reading timestamps, sweeping every cfg.SweepInterval of simulated time.
func replay(ctx context.Context, cfg config.Config, readings []telemetry.Reading, logger *log.Logger) (export.Report, error) {
	clock := &simClock{}
	p, err := pipeline.New(cfg, pipeline.WithClock(clock), pipeline.WithLogger(logger))
	if err != nil {
		return export.Report{}, err
	}
	var nextSweep time.Time
	for _, r := range readings {
		ts := r.Timestamp.UTC()
		clock.Advance(ts)
		if nextSweep.IsZero() {
			nextSweep = ts.Add(cfg.SweepInterval)
		}
		for !ts.Before(nextSweep) {
			p.SweepAt(ctx, nextSweep)
			nextSweep = nextSweep.Add(cfg.SweepInterval)
		}
		if _, err := p.Ingest(ctx, r); err != nil {
			logger.Printf("replay: meter=%s ts=%s: %v", r.MeterID, ts.Format(time.RFC3339), err)
		}
	}
	p.Shutdown(ctx)
	return export.Snapshot(p, routing.Filter{}, clock.Now()), nil
}

func writeOutputs(opts options, report export.Report) error {
	xlsx, err := export.BuildReportXLSX(report)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(opts.outDir, "report.xlsx"), xlsx, 0o644); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(opts.outDir, "events.csv"))
	if err != nil {
		return err
	}
	if err := export.WriteEventsCSV(f, report.Events); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if !opts.pdf {
		return nil
	}
	pdf, err := export.BuildReportPDF(report)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(opts.outDir, "report.pdf"), pdf, 0o644)
}
