package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/banshee-data/mde-formula-finder/internal/dataset"
	"github.com/banshee-data/mde-formula-finder/internal/fitness"
	"github.com/banshee-data/mde-formula-finder/internal/optimizer"
	"github.com/banshee-data/mde-formula-finder/internal/report"
	"github.com/banshee-data/mde-formula-finder/internal/security"
)

// headlessOutputs lists the optional files a headless run writes.
type headlessOutputs struct {
	ChartPath string
	ChartMode string
	TracePath string
}

func (o headlessOutputs) validate() (dataset.ChartMode, error) {
	mode, err := dataset.ParseChartMode(o.ChartMode)
	if err != nil {
		return "", err
	}
	if o.ChartPath != "" {
		if err := security.ValidateOutputPath(o.ChartPath, ".html"); err != nil {
			return "", fmt.Errorf("chart output: %w", err)
		}
	}
	if o.TracePath != "" {
		if err := security.ValidateOutputPath(o.TracePath, ".png"); err != nil {
			return "", fmt.Errorf("trace output: %w", err)
		}
	}
	return mode, nil
}

// runHeadless runs one fit to completion (or until ctx is cancelled),
// prints the outcome and the fitted parameters to out, then writes any
// requested chart files.
func runHeadless(ctx context.Context, ctrl *optimizer.Controller, req optimizer.Request, out io.Writer, o headlessOutputs) error {
	mode, err := o.validate()
	if err != nil {
		return err
	}
	if req.MaxGenerations == 0 {
		log.Printf("No generation limit set; interrupt to stop the run")
	}
	if err := ctrl.Start(ctx, req); err != nil {
		return fmt.Errorf("failed to start optimization: %w", err)
	}
	<-ctrl.Done()

	st := ctrl.Status()
	for _, e := range st.Log {
		fmt.Fprintln(out, e)
	}
	fmt.Fprintf(out, "Finished after %d generations (%s), best fitness %.3f%%\n",
		st.Generation, st.StopReason, st.BestFitness)

	params := ctrl.Params()
	a := fitness.Analyze(params, ctrl.Model(), ctrl.Data())
	fmt.Fprintf(out, "Rounds correctly: %d/%d (%.1f%%), avg error %.3f%%, max error %.6f\n",
		a.Summary.CorrectRounds, a.Summary.Total, 100*a.Summary.CorrectFraction(),
		a.Summary.AvgPct, a.Summary.MaxErr)
	fmt.Fprintln(out)
	fmt.Fprint(out, params.Dump())

	if o.ChartPath != "" {
		fs := report.BuildFitSeries(ctrl.Data(), params, ctrl.Model(), mode)
		subtitle := fmt.Sprintf("mode=%s series=%d generation=%d", mode, len(fs.Series), st.Generation)
		if err := writeFile(o.ChartPath, func(w io.Writer) error {
			return report.FitChart(w, fs, report.ChartOptions{Subtitle: subtitle})
		}); err != nil {
			return fmt.Errorf("chart output: %w", err)
		}
		log.Printf("Wrote fit chart to %s", o.ChartPath)
	}
	if o.TracePath != "" {
		title := fmt.Sprintf("Best Fitness (run %.8s)", st.RunID)
		err := writeFile(o.TracePath, func(w io.Writer) error {
			return report.TracePlot(w, st.Trace, title)
		})
		switch {
		case errors.Is(err, report.ErrEmptyTrace):
			log.Printf("No finite fitness values to plot; skipped %s", o.TracePath)
		case err != nil:
			return fmt.Errorf("trace output: %w", err)
		default:
			log.Printf("Wrote fitness trace to %s", o.TracePath)
		}
	}
	return nil
}

// writeFile renders into path, removing the file again if render fails.
func writeFile(path string, render func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
