// Command gradebook writes the XLSX gradebook of one course.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/p-n-ai/pai-learn/internal/app"
	"github.com/p-n-ai/pai-learn/internal/platform/config"
	"github.com/p-n-ai/pai-learn/internal/platform/logging"
)

func main() {
	courseID := flag.Int64("course", 0, "course ID to export")
	out := flag.String("out", "", "output file (default gradebook-<course>.xlsx)")
	flag.Parse()

	if err := run(context.Background(), *courseID, *out); err != nil {
		slog.Error("gradebook export failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, courseID int64, out string) error {
	if courseID <= 0 {
		return fmt.Errorf("-course is required")
	}
	if out == "" {
		out = fmt.Sprintf("gradebook-%d.xlsx", courseID)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	slog.SetDefault(logging.New(os.Stderr, cfg.Log))

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	if err := a.Gradebook.Export(ctx, courseID, f); err != nil {
		f.Close()
		os.Remove(out)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", out, err)
	}

	slog.Info("gradebook written", "course_id", courseID, "path", out)
	return nil
}
