// Package summary builds the database summary: every database, its schemas,
// and the sequences, streams, procedures, functions, tasks, stages and pipes
// inside them.
package summary

import (
	"github.com/terminally-online/snowreport/internal/registry"
	"github.com/terminally-online/snowreport/internal/report"
)

type Tree struct {
	databases *registry.Registry[*Database]
}

func NewTree() *Tree {
	return &Tree{databases: registry.New(newDatabase)}
}

// Database returns the named database, creating it on first use.
func (t *Tree) Database(name string) *Database {
	return t.databases.GetOrCreate(name)
}

func (t *Tree) Lookup(name string) (*Database, bool) {
	return t.databases.Get(name)
}

func (t *Tree) Databases() []string {
	return t.databases.Keys()
}

// Report snapshots the tree. It is safe to call while workers are still
// writing to it.
func (t *Tree) Report() report.Catalog {
	out := make(report.Catalog, t.databases.Len())
	t.databases.Each(func(name string, db *Database) {
		out[name] = db.report()
	})
	return out
}

type Database struct {
	Name    string
	schemas *registry.Registry[*Schema]
}

func newDatabase(name string) *Database {
	return &Database{Name: name, schemas: registry.New(newSchema)}
}

func (d *Database) Schema(name string) *Schema {
	return d.schemas.GetOrCreate(name)
}

func (d *Database) Lookup(name string) (*Schema, bool) {
	return d.schemas.Get(name)
}

func (d *Database) Schemas() []string {
	return d.schemas.Keys()
}

func (d *Database) report() report.Database {
	out := report.Database{Schemas: make(map[string]report.Schema, d.schemas.Len())}
	d.schemas.Each(func(name string, s *Schema) {
		out.Schemas[name] = s.report()
	})
	return out
}

type Schema struct {
	Name       string
	Sequences  *registry.Set
	Streams    *registry.Set
	Procedures *registry.Set
	Functions  *registry.Set
	Tasks      *registry.Set
	Stages     *registry.Registry[*Stage]
	Pipes      *registry.Registry[*Pipe]
}

func newSchema(name string) *Schema {
	return &Schema{
		Name:       name,
		Sequences:  registry.NewSet(),
		Streams:    registry.NewSet(),
		Procedures: registry.NewSet(),
		Functions:  registry.NewSet(),
		Tasks:      registry.NewSet(),
		Stages:     registry.New(func(string) *Stage { return &Stage{} }),
		Pipes:      registry.New(func(string) *Pipe { return &Pipe{} }),
	}
}

func (s *Schema) report() report.Schema {
	out := report.Schema{
		Sequences:  s.Sequences.Sorted(),
		Streams:    s.Streams.Sorted(),
		Procedures: s.Procedures.Sorted(),
		Functions:  s.Functions.Sorted(),
		Tasks:      s.Tasks.Sorted(),
		Stages:     make(map[string]report.Stage, s.Stages.Len()),
		Pipes:      make(map[string]report.Pipe, s.Pipes.Len()),
	}
	s.Stages.Each(func(name string, st *Stage) {
		out.Stages[name] = report.Stage{URL: st.URL, Type: st.Type, Region: st.Region}
	})
	s.Pipes.Each(func(name string, p *Pipe) {
		out.Pipes[name] = report.Pipe{
			Definition:          p.Definition,
			AutoIngestEnabled:   p.AutoIngestEnabled,
			NotificationChannel: p.NotificationChannel,
		}
	})
	return out
}

// Stage fields are nil until set. Assign them through Schema.Stages.Update.
type Stage struct {
	URL    *string
	Type   *string
	Region *string
}

// Pipe fields are nil until set. Assign them through Schema.Pipes.Update.
type Pipe struct {
	Definition          *string
	AutoIngestEnabled   *string
	NotificationChannel *string
}
