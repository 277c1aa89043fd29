package summary

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/terminally-online/snowreport/internal/dialect"
	"github.com/terminally-online/snowreport/internal/logging"
	"github.com/terminally-online/snowreport/internal/source"
)

const (
	DefaultConcurrency = 4
	DefaultTimeout     = 10 * time.Minute
)

type Options struct {
	// Concurrency bounds the number of databases summarized at once.
	Concurrency int
	// Timeout bounds the whole run. Databases still in flight when it
	// expires are abandoned and the tree is returned as is.
	Timeout time.Duration
}

func (o Options) normalize() Options {
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

type Aggregator struct {
	src     source.Source
	dialect dialect.Dialect
	log     *zap.Logger
	opts    Options
}

func NewAggregator(src source.Source, d dialect.Dialect, log *zap.Logger, opts Options) *Aggregator {
	return &Aggregator{
		src:     src,
		dialect: d,
		log:     logging.OrNop(log),
		opts:    opts.normalize(),
	}
}

// Run lists the databases and summarizes each one in its own task. Only a
// failure to list the databases is returned; a database whose queries fail
// is logged and left partially populated.
func (a *Aggregator) Run(ctx context.Context) (*Tree, error) {
	defer logging.Track(a.log, "database summary")()

	tree := NewTree()

	rows, err := a.src.Query(ctx, a.dialect.ListDatabases())
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	listed, err := source.Collect(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}

	names := make([]string, 0, len(listed))
	for _, row := range listed {
		name := row.String(0)
		tree.Database(name)
		names = append(names, name)
	}
	a.log.Debug("listed databases", zap.Int("count", len(names)))

	taskCtx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	var g errgroup.Group
	g.SetLimit(a.opts.Concurrency)

	var completed, failed atomic.Int64
	done := make(chan struct{})

	go func() {
		defer close(done)
		for _, name := range names {
			name := name
			if taskCtx.Err() != nil {
				break
			}
			g.Go(func() error {
				if a.summarize(taskCtx, tree, name) {
					completed.Add(1)
				} else {
					failed.Add(1)
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	timedOut := false
	select {
	case <-done:
	case <-taskCtx.Done():
		timedOut = true
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("database summary cancelled: %w", err)
	}
	if timedOut {
		pending := int64(len(names)) - completed.Load() - failed.Load()
		a.log.Warn("database summary timed out, returning partial results",
			zap.Duration("timeout", a.opts.Timeout),
			zap.Int64("pending", pending),
		)
	}

	a.log.Info("database summary finished",
		zap.Int("databases", len(names)),
		zap.Int64("completed", completed.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return tree, nil
}

// summarize fills in one database and reports whether every query succeeded.
func (a *Aggregator) summarize(ctx context.Context, tree *Tree, database string) bool {
	log := a.log.With(zap.String("database", database))

	src, err := source.ForDatabase(ctx, a.src, database)
	if err != nil {
		log.Error("failed to connect to database", zap.Error(err))
		return false
	}

	if err := a.loadObjects(ctx, src, tree, database, log); err != nil {
		log.Error("failed to load object privileges", zap.Error(err))
		return false
	}

	stmt, ok := a.dialect.StagesAndPipes(database)
	if !ok {
		return true
	}
	if err := a.loadStagesAndPipes(ctx, src, stmt, tree, database, log); err != nil {
		log.Error("failed to load stages and pipes", zap.Error(err))
		return false
	}
	return true
}

func (a *Aggregator) loadObjects(ctx context.Context, src source.Source, tree *Tree, database string, log *zap.Logger) error {
	rows, err := src.Query(ctx, a.dialect.ObjectPrivileges(database))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		row := rows.Row()
		db := tree.Database(orDefault(row.String(dialect.ObjCatalog), database))
		name := row.String(dialect.ObjName)
		objType := strings.ToUpper(row.String(dialect.ObjType))

		if objType == "SCHEMA" {
			db.Schema(name)
			continue
		}

		schema := db.Schema(row.String(dialect.ObjSchema))
		switch objType {
		case "SEQUENCE":
			schema.Sequences.Add(name)
		case "STREAM":
			schema.Streams.Add(name)
		case "PROCEDURE":
			schema.Procedures.Add(name)
		case "FUNCTION":
			schema.Functions.Add(name)
		case "TASK":
			schema.Tasks.Add(name)
		default:
			log.Warn("skipping object with unexpected type",
				zap.String("object_type", objType),
				zap.String("object_name", name),
			)
		}
	}
	return rows.Err()
}

func (a *Aggregator) loadStagesAndPipes(ctx context.Context, src source.Source, stmt source.Statement, tree *Tree, database string, log *zap.Logger) error {
	rows, err := src.Query(ctx, stmt)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		row := rows.Row()
		kind := strings.ToUpper(row.String(dialect.SPKind))
		name := row.String(dialect.SPName)
		schema := tree.Database(orDefault(row.String(dialect.SPCatalog), database)).
			Schema(row.String(dialect.SPSchema))

		switch kind {
		case "STAGE":
			schema.Stages.Update(name, func(s *Stage) {
				s.URL = row.NullString(dialect.SPURL)
				s.Type = row.NullString(dialect.SPType)
				s.Region = row.NullString(dialect.SPRegion)
			})
		case "PIPE":
			schema.Pipes.Update(name, func(p *Pipe) {
				p.Definition = row.NullString(dialect.SPDefinition)
				p.AutoIngestEnabled = row.NullString(dialect.SPAutoIngest)
				p.NotificationChannel = row.NullString(dialect.SPChannel)
			})
		default:
			log.Warn("skipping row with unexpected kind", zap.String("kind", kind), zap.String("name", name))
		}
	}
	return rows.Err()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
