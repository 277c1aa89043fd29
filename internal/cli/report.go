package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/terminally-online/snowreport/internal/report"
	"github.com/terminally-online/snowreport/internal/reports"
	"github.com/terminally-online/snowreport/internal/summary"
)

// openService connects using the loaded config and flags. The returned func
// closes the connection.
func openService(ctx context.Context) (*reports.Service, func(), error) {
	conn, err := cfg.GetConnection(&flags)
	if err != nil {
		return nil, nil, err
	}

	src, d, err := reports.Open(ctx, conn, logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("connected", zap.String("dialect", d.Name()))

	svc := reports.NewService(src, d, logger, reports.Options{
		Summary: summary.Options{
			Concurrency: cfg.GetConcurrentTasks(&flags),
			Timeout:     cfg.GetTimeout(&flags),
		},
		RootRoles: cfg.GetRootRoles(&flags),
	})
	return svc, func() { _ = src.Close() }, nil
}

// writeReport renders v to the --output file, or to w when none is set.
func writeReport(w io.Writer, v any) error {
	format, err := report.ParseFormat(cfg.GetFormat(&flags))
	if err != nil {
		return err
	}

	if outputFile == "" {
		return report.Write(w, v, format)
	}

	f, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := report.Write(f, v, format); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	logger.Info("report written", zap.String("path", outputFile))
	return nil
}

func runRoleHierarchy(ctx context.Context, svc *reports.Service, w io.Writer) error {
	res, err := svc.RoleHierarchy(ctx)
	if err != nil {
		return err
	}
	return writeReport(w, res.Report)
}

func runDatabaseSummary(ctx context.Context, svc *reports.Service, w io.Writer) error {
	res, err := svc.DatabaseSummary(ctx)
	if err != nil {
		return err
	}
	return writeReport(w, res.Report)
}
