package summary

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/terminally-online/snowreport/internal/dialect"
	"github.com/terminally-online/snowreport/internal/report"
	"github.com/terminally-online/snowreport/internal/source"
	"github.com/terminally-online/snowreport/internal/source/sourcetest"
)

var sf = dialect.Snowflake{}

func listing(names ...string) [][]any {
	rows := make([][]any, 0, len(names))
	for _, n := range names {
		rows = append(rows, []any{"2024-01-01 00:00:00", n})
	}
	return rows
}

func stagesAndPipes(db string) source.Statement {
	stmt, _ := sf.StagesAndPipes(db)
	return stmt
}

func emptyDatabase(src *sourcetest.Source, db string) {
	src.On(sf.ObjectPrivileges(db))
	src.On(stagesAndPipes(db))
}

func ptr(s string) *string { return &s }

func observed(level zapcore.Level) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core), logs
}

func TestAggregator_Run(t *testing.T) {
	src := sourcetest.New()
	src.On(sf.ListDatabases(), listing("DB1", "DB2")...)
	src.On(sf.ObjectPrivileges("DB1"),
		[]any{"DB1", "S1", "S1", "SCHEMA"},
		[]any{"DB1", "S1", "SEQ1", "SEQUENCE"},
		[]any{"DB1", "S1", "SEQ1", "SEQUENCE"},
		[]any{"DB1", "S2", "F1", "FUNCTION"},
		[]any{"DB1", "S2", "T1", "TASK"},
		[]any{"DB1", "S2", "P1", "PROCEDURE"},
		[]any{"DB1", "S2", "STR1", "STREAM"},
	)
	src.On(stagesAndPipes("DB1"),
		[]any{"STAGE", "DB1", "S1", "ST1", "s3://bucket/path", "us-east-1", "EXTERNAL", nil, nil, nil},
		[]any{"PIPE", "DB1", "S1", "PI1", nil, nil, nil, "copy into t from @ST1", "true", "arn:aws:sqs:queue"},
	)
	emptyDatabase(src, "DB2")

	tree, err := NewAggregator(src, sf, zap.NewNop(), Options{Concurrency: 2, Timeout: time.Minute}).Run(context.Background())
	require.NoError(t, err)

	got := tree.Report()
	require.Len(t, got, 2)

	s1 := got["DB1"].Schemas["S1"]
	assert.Equal(t, []string{"SEQ1"}, s1.Sequences)
	assert.Empty(t, s1.Functions)
	assert.Equal(t, report.Stage{URL: ptr("s3://bucket/path"), Type: ptr("EXTERNAL"), Region: ptr("us-east-1")}, s1.Stages["ST1"])
	assert.Equal(t, report.Pipe{
		Definition:          ptr("copy into t from @ST1"),
		AutoIngestEnabled:   ptr("true"),
		NotificationChannel: ptr("arn:aws:sqs:queue"),
	}, s1.Pipes["PI1"])

	s2 := got["DB1"].Schemas["S2"]
	assert.Equal(t, []string{"F1"}, s2.Functions)
	assert.Equal(t, []string{"T1"}, s2.Tasks)
	assert.Equal(t, []string{"P1"}, s2.Procedures)
	assert.Equal(t, []string{"STR1"}, s2.Streams)

	assert.Empty(t, got["DB2"].Schemas)
	assert.NotNil(t, got["DB2"].Schemas)
}

func TestAggregator_SchemaRowSharesInstance(t *testing.T) {
	src := sourcetest.New()
	src.On(sf.ListDatabases(), listing("DB1")...)
	src.On(sf.ObjectPrivileges("DB1"),
		[]any{"DB1", "S1", "SEQ1", "SEQUENCE"},
		[]any{"DB1", "S1", "S1", "SCHEMA"},
	)
	src.On(stagesAndPipes("DB1"))

	tree, err := NewAggregator(src, sf, nil, Options{Concurrency: 1, Timeout: time.Minute}).Run(context.Background())
	require.NoError(t, err)

	db, ok := tree.Lookup("DB1")
	require.True(t, ok)
	assert.Equal(t, []string{"S1"}, db.Schemas())
	s1, _ := db.Lookup("S1")
	assert.True(t, s1.Sequences.Contains("SEQ1"))
}

func TestAggregator_CrossCatalogRow(t *testing.T) {
	src := sourcetest.New()
	src.On(sf.ListDatabases(), listing("DB1")...)
	src.On(sf.ObjectPrivileges("DB1"),
		[]any{"SHARED", "S1", "SEQ1", "SEQUENCE"},
		[]any{nil, "S9", "SEQ9", "SEQUENCE"},
	)
	src.On(stagesAndPipes("DB1"))

	tree, err := NewAggregator(src, sf, nil, Options{Concurrency: 1, Timeout: time.Minute}).Run(context.Background())
	require.NoError(t, err)

	got := tree.Report()
	assert.Equal(t, []string{"SEQ1"}, got["SHARED"].Schemas["S1"].Sequences)
	assert.Equal(t, []string{"SEQ9"}, got["DB1"].Schemas["S9"].Sequences)
}

func TestAggregator_ListingFailure(t *testing.T) {
	src := sourcetest.New()
	src.Fail(sf.ListDatabases(), errors.New("connection refused"))

	tree, err := NewAggregator(src, sf, nil, Options{}).Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, tree)
	assert.Contains(t, err.Error(), "failed to list databases")
}

func TestAggregator_PartialFailure(t *testing.T) {
	log, logs := observed(zapcore.InfoLevel)

	src := sourcetest.New()
	src.On(sf.ListDatabases(), listing("DB1", "DB2", "DB3")...)
	src.Fail(sf.ObjectPrivileges("DB1"), errors.New("insufficient privileges"))
	src.On(sf.ObjectPrivileges("DB2"), []any{"DB2", "S1", "SEQ1", "SEQUENCE"})
	src.Fail(stagesAndPipes("DB2"), errors.New("stages view missing"))
	src.On(sf.ObjectPrivileges("DB3"), []any{"DB3", "S1", "T1", "TASK"})
	src.On(stagesAndPipes("DB3"))

	tree, err := NewAggregator(src, sf, log, Options{Concurrency: 3, Timeout: time.Minute}).Run(context.Background())
	require.NoError(t, err)

	got := tree.Report()
	assert.Empty(t, got["DB1"].Schemas)
	assert.Equal(t, []string{"SEQ1"}, got["DB2"].Schemas["S1"].Sequences)
	assert.Equal(t, []string{"T1"}, got["DB3"].Schemas["S1"].Tasks)

	// DB1 never reaches its second query
	assert.Zero(t, src.Count(stagesAndPipes("DB1")))

	errs := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, errs, 2)
	failedDBs := []string{errs[0].ContextMap()["database"].(string), errs[1].ContextMap()["database"].(string)}
	assert.ElementsMatch(t, []string{"DB1", "DB2"}, failedDBs)

	finished := logs.FilterMessage("database summary finished").All()
	require.Len(t, finished, 1)
	assert.Equal(t, int64(1), finished[0].ContextMap()["completed"])
	assert.Equal(t, int64(2), finished[0].ContextMap()["failed"])
}

func TestAggregator_UnknownObjectType(t *testing.T) {
	log, logs := observed(zapcore.WarnLevel)

	src := sourcetest.New()
	src.On(sf.ListDatabases(), listing("DB1")...)
	src.On(sf.ObjectPrivileges("DB1"),
		[]any{"DB1", "S1", "TBL", "TABLE"},
		[]any{"DB1", "S1", "SEQ1", "SEQUENCE"},
	)
	src.On(stagesAndPipes("DB1"),
		[]any{"EXTERNAL TABLE", "DB1", "S1", "X", nil, nil, nil, nil, nil, nil},
	)

	tree, err := NewAggregator(src, sf, log, Options{Concurrency: 1, Timeout: time.Minute}).Run(context.Background())
	require.NoError(t, err)

	s1 := tree.Report()["DB1"].Schemas["S1"]
	assert.Equal(t, []string{"SEQ1"}, s1.Sequences)
	assert.Empty(t, s1.Stages)
	assert.Empty(t, s1.Pipes)

	warned := logs.FilterField(zap.String("object_type", "TABLE")).All()
	require.Len(t, warned, 1)
	assert.Equal(t, "DB1", warned[0].ContextMap()["database"])
	assert.Len(t, logs.FilterField(zap.String("kind", "EXTERNAL TABLE")).All(), 1)
}

func TestAggregator_Timeout(t *testing.T) {
	log, logs := observed(zapcore.WarnLevel)

	never := make(chan struct{})
	src := sourcetest.New()
	src.On(sf.ListDatabases(), listing("DB1", "DB2")...)
	src.On(sf.ObjectPrivileges("DB1"), []any{"DB1", "S1", "SEQ1", "SEQUENCE"})
	src.On(stagesAndPipes("DB1"))
	src.Block(sf.ObjectPrivileges("DB2"), never, []any{"DB2", "S1", "SEQ2", "SEQUENCE"})

	start := time.Now()
	tree, err := NewAggregator(src, sf, log, Options{Concurrency: 2, Timeout: 200 * time.Millisecond}).Run(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	got := tree.Report()
	assert.Equal(t, []string{"SEQ1"}, got["DB1"].Schemas["S1"].Sequences)
	assert.Contains(t, got, "DB2")
	assert.Empty(t, got["DB2"].Schemas)

	assert.Len(t, logs.FilterMessage("database summary timed out, returning partial results").All(), 1)
}

func TestAggregator_ParentCancelled(t *testing.T) {
	never := make(chan struct{})
	src := sourcetest.New()
	src.On(sf.ListDatabases(), listing("DB1")...)
	src.Block(sf.ObjectPrivileges("DB1"), never)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := NewAggregator(src, sf, nil, Options{Concurrency: 1, Timeout: time.Minute}).Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

type limitSource struct {
	source.Source
	inflight atomic.Int32
	peak     atomic.Int32
}

func (s *limitSource) Query(ctx context.Context, stmt source.Statement) (source.Rows, error) {
	n := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return s.Source.Query(ctx, stmt)
}

func TestAggregator_ConcurrencyLimit(t *testing.T) {
	fake := sourcetest.New()
	var names []string
	for i := 0; i < 8; i++ {
		names = append(names, fmt.Sprintf("DB%d", i))
	}
	fake.On(sf.ListDatabases(), listing(names...)...)
	for _, n := range names {
		emptyDatabase(fake, n)
	}

	src := &limitSource{Source: fake}
	tree, err := NewAggregator(src, sf, nil, Options{Concurrency: 2, Timeout: time.Minute}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, names, tree.Databases())
	assert.LessOrEqual(t, src.peak.Load(), int32(2))
}

type scopingSource struct {
	*sourcetest.Source
	mu     sync.Mutex
	scoped []string
}

func (s *scopingSource) Scope(_ context.Context, database string) (source.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scoped = append(s.scoped, database)
	if database == "BROKEN" {
		return nil, errors.New("database does not allow connections")
	}
	return s.Source, nil
}

func TestAggregator_ScopesPerDatabase(t *testing.T) {
	fake := sourcetest.New()
	fake.On(sf.ListDatabases(), listing("DB1", "BROKEN")...)
	fake.On(sf.ObjectPrivileges("DB1"), []any{"DB1", "S1", "SEQ1", "SEQUENCE"})
	fake.On(stagesAndPipes("DB1"))

	src := &scopingSource{Source: fake}
	tree, err := NewAggregator(src, sf, nil, Options{Concurrency: 2, Timeout: time.Minute}).Run(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"DB1", "BROKEN"}, src.scoped)
	assert.Zero(t, fake.Count(sf.ObjectPrivileges("BROKEN")))
	assert.Equal(t, []string{"BROKEN", "DB1"}, tree.Databases())
}

func TestTree_ReportWhileWriting(t *testing.T) {
	tree := NewTree()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				s := tree.Database("DB1").Schema(fmt.Sprintf("S%d", j%5))
				s.Sequences.Add(fmt.Sprintf("SEQ%d", j))
				s.Stages.Update("ST", func(st *Stage) { st.URL = ptr(fmt.Sprint(j)) })
			}
		}()
	}
	for i := 0; i < 20; i++ {
		_ = tree.Report()
	}
	wg.Wait()

	got := tree.Report()
	assert.Len(t, got["DB1"].Schemas, 5)
	assert.Len(t, got["DB1"].Schemas["S0"].Sequences, 40)
}
