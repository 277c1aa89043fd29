package registry

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type node struct {
	name  string
	value string
}

func newNode(key string) *node { return &node{name: key} }

func TestGetOrCreate_ReturnsSameInstance(t *testing.T) {
	r := New(newNode)

	a := r.GetOrCreate("DB1")
	b := r.GetOrCreate("DB1")
	c := r.GetOrCreate("DB2")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, "DB1", a.name)
	assert.Equal(t, 2, r.Len())
}

func TestLoadOrCreate_ReportsCreation(t *testing.T) {
	r := New(newNode)

	_, created := r.LoadOrCreate("ROLE")
	assert.True(t, created)

	_, created = r.LoadOrCreate("ROLE")
	assert.False(t, created)
}

func TestGetOrCreate_ConcurrentCallers(t *testing.T) {
	const (
		callers = 512
		keys    = 8
	)

	var created atomic.Int64
	r := New(func(key string) *node {
		created.Add(1)
		return &node{name: key}
	})

	results := make([][]*node, callers)
	var start, wg sync.WaitGroup
	start.Add(1)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start.Wait()
			got := make([]*node, keys)
			for k := 0; k < keys; k++ {
				// vary the order each caller walks the keys
				key := fmt.Sprintf("key-%d", (k+i)%keys)
				got[(k+i)%keys] = r.GetOrCreate(key)
			}
			results[i] = got
		}(i)
	}
	start.Done()
	wg.Wait()

	require.Equal(t, keys, r.Len())
	assert.EqualValues(t, keys, created.Load(), "constructor must run once per key")

	for k := 0; k < keys; k++ {
		want, ok := r.Get(fmt.Sprintf("key-%d", k))
		require.True(t, ok)
		for i := 0; i < callers; i++ {
			assert.Same(t, want, results[i][k])
		}
	}
}

func TestUpdate_CreatesAndMutates(t *testing.T) {
	r := New(newNode)

	r.Update("STAGE1", func(n *node) { n.value = "s3://bucket" })
	n, ok := r.Get("STAGE1")
	require.True(t, ok)
	assert.Equal(t, "s3://bucket", n.value)

	same := r.Update("STAGE1", func(n *node) { n.value = "gcs://bucket" })
	assert.Same(t, n, same)
	assert.Equal(t, "gcs://bucket", n.value)
}

func TestDelete(t *testing.T) {
	r := New(newNode)
	r.GetOrCreate("A")

	assert.True(t, r.Delete("A"))
	assert.False(t, r.Delete("A"), "second delete is a no-op")
	assert.Equal(t, 0, r.Len())
}

func TestPut_SharesNode(t *testing.T) {
	owner := New(newNode)
	edges := New(newNode)

	n := owner.GetOrCreate("PUBLIC")
	edges.Put("PUBLIC", n)

	got, ok := edges.Get("PUBLIC")
	require.True(t, ok)
	assert.Same(t, n, got)
}

func TestEach_SortedOrder(t *testing.T) {
	r := New(newNode)
	for _, k := range []string{"c", "a", "b"} {
		r.GetOrCreate(k)
	}

	var seen []string
	r.Each(func(key string, n *node) {
		assert.Equal(t, key, n.name)
		seen = append(seen, key)
	})
	assert.Equal(t, []string{"a", "b", "c"}, seen)
	assert.Equal(t, []string{"a", "b", "c"}, r.Keys())
}

func TestSet_Deduplicates(t *testing.T) {
	s := NewSet()

	assert.True(t, s.Add("SEQ1"))
	assert.False(t, s.Add("SEQ1"))
	assert.True(t, s.Add("SEQ0"))

	assert.True(t, s.Contains("SEQ1"))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"SEQ0", "SEQ1"}, s.Sorted())
}

func TestSet_EmptySortedIsNotNil(t *testing.T) {
	s := NewSet()
	assert.NotNil(t, s.Sorted())
	assert.Empty(t, s.Sorted())
}

func TestSet_ConcurrentAdd(t *testing.T) {
	s := NewSet()
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Add(fmt.Sprintf("name-%d", i%4))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, []string{"name-0", "name-1", "name-2", "name-3"}, s.Sorted())
}

func TestNewRefs(t *testing.T) {
	owner := New(newNode)
	refs := NewRefs[*node]()

	a := owner.GetOrCreate("A")
	refs.Put("A", a)

	got, ok := refs.Get("A")
	require.True(t, ok)
	assert.Same(t, a, got)
	assert.Equal(t, []string{"A"}, refs.Keys())

	assert.Panics(t, func() { refs.GetOrCreate("B") })
	assert.Panics(t, func() { refs.Update("B", func(*node) {}) })
	assert.Equal(t, 1, refs.Len())
}
