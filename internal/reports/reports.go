// Package reports runs the role hierarchy and database summary reports
// against an open catalog source.
package reports

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/terminally-online/snowreport/internal/config"
	"github.com/terminally-online/snowreport/internal/dialect"
	"github.com/terminally-online/snowreport/internal/hierarchy"
	"github.com/terminally-online/snowreport/internal/logging"
	"github.com/terminally-online/snowreport/internal/report"
	"github.com/terminally-online/snowreport/internal/source"
	"github.com/terminally-online/snowreport/internal/source/pgsource"
	"github.com/terminally-online/snowreport/internal/source/sqlsource"
	"github.com/terminally-online/snowreport/internal/summary"
)

type Options struct {
	Summary   summary.Options
	RootRoles []string
}

type Service struct {
	src     source.Source
	dialect dialect.Dialect
	log     *zap.Logger
	opts    Options
}

func NewService(src source.Source, d dialect.Dialect, log *zap.Logger, opts Options) *Service {
	return &Service{src: src, dialect: d, log: logging.OrNop(log), opts: opts}
}

// Result is one finished report tagged with the run id that appears on
// every log line written while it was built.
type Result[T any] struct {
	RunID  string
	Report T
}

func (s *Service) RoleHierarchy(ctx context.Context) (Result[report.RoleForest], error) {
	runID := uuid.NewString()
	log := s.log.With(zap.String("run_id", runID), zap.String("report", "role_hierarchy"))

	g, err := hierarchy.NewResolver(s.src, s.dialect, log).Build(ctx)
	if err != nil {
		return Result[report.RoleForest]{RunID: runID}, err
	}
	g.Prune(s.opts.RootRoles...)

	return Result[report.RoleForest]{RunID: runID, Report: g.Report()}, nil
}

func (s *Service) DatabaseSummary(ctx context.Context) (Result[report.Catalog], error) {
	runID := uuid.NewString()
	log := s.log.With(zap.String("run_id", runID), zap.String("report", "database_summary"))

	tree, err := summary.NewAggregator(s.src, s.dialect, log, s.opts.Summary).Run(ctx)
	if err != nil {
		return Result[report.Catalog]{RunID: runID}, err
	}
	return Result[report.Catalog]{RunID: runID, Report: tree.Report()}, nil
}

// Open connects to the source described by conn and returns it with the
// matching dialect.
func Open(ctx context.Context, conn config.Connection, log *zap.Logger) (source.Source, dialect.Dialect, error) {
	d, err := dialect.ByName(conn.Driver)
	if err != nil {
		return nil, nil, err
	}

	switch d.(type) {
	case dialect.Postgres:
		if conn.URL == "" {
			return nil, nil, fmt.Errorf("postgres requires a url: %w", config.ErrMissingConnection)
		}
		src, err := pgsource.Open(ctx, conn.URL, log)
		if err != nil {
			return nil, nil, err
		}
		return src, d, nil
	default:
		dsn, err := snowflakeDSN(conn)
		if err != nil {
			return nil, nil, err
		}
		src, err := sqlsource.OpenSnowflake(ctx, dsn, log)
		if err != nil {
			return nil, nil, err
		}
		return src, d, nil
	}
}

// snowflakeDSN builds the driver DSN for conn. A URL that carries
// credentials is used as the DSN itself. Otherwise the URL, in
// snowflake://host or jdbc:snowflake://host form, only names the account
// host and may set warehouse and role as query parameters; user and
// password always come from conn.
func snowflakeDSN(conn config.Connection) (string, error) {
	uri := strings.TrimPrefix(conn.URL, "jdbc:")
	uri = strings.TrimPrefix(uri, "snowflake://")
	if strings.Contains(uri, "@") {
		return uri, nil
	}

	cfg := sqlsource.SnowflakeConfig{
		Account:   conn.Account,
		User:      conn.User,
		Password:  conn.Password,
		Warehouse: conn.Warehouse,
		Role:      conn.Role,
	}
	if uri != "" {
		host, query, _ := strings.Cut(uri, "?")
		host, _, _ = strings.Cut(host, "/")
		host, _, _ = strings.Cut(host, ":")

		params, err := url.ParseQuery(query)
		if err != nil {
			return "", fmt.Errorf("invalid snowflake uri %q: %w", conn.URL, err)
		}
		if cfg.Account == "" {
			cfg.Account = strings.TrimSuffix(strings.ToLower(host), ".snowflakecomputing.com")
		}
		if cfg.Warehouse == "" {
			cfg.Warehouse = params.Get("warehouse")
		}
		if cfg.Role == "" {
			cfg.Role = params.Get("role")
		}
	}
	return sqlsource.SnowflakeDSN(cfg)
}
