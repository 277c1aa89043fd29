// Package report holds the plain value trees emitted by the database
// summary and role hierarchy reports, and their JSON and YAML encodings.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

type Catalog map[string]Database

type Database struct {
	Schemas map[string]Schema `json:"schemas" yaml:"schemas"`
}

type Schema struct {
	Sequences  []string         `json:"sequences" yaml:"sequences"`
	Streams    []string         `json:"streams" yaml:"streams"`
	Procedures []string         `json:"procedures" yaml:"procedures"`
	Functions  []string         `json:"functions" yaml:"functions"`
	Tasks      []string         `json:"tasks" yaml:"tasks"`
	Stages     map[string]Stage `json:"stages" yaml:"stages"`
	Pipes      map[string]Pipe  `json:"pipes" yaml:"pipes"`
}

type Stage struct {
	URL    *string `json:"url" yaml:"url"`
	Type   *string `json:"type" yaml:"type"`
	Region *string `json:"region" yaml:"region"`
}

type Pipe struct {
	Definition          *string `json:"definition" yaml:"definition"`
	AutoIngestEnabled   *string `json:"autoingest_enabled" yaml:"autoingest_enabled"`
	NotificationChannel *string `json:"notification_channel" yaml:"notification_channel"`
}

type RoleForest map[string]Role

// Role is one node of the rendered role forest. Cycle marks a role that
// already appears higher up on the same path; its children are omitted.
type Role struct {
	Users      []string                 `json:"users" yaml:"users"`
	ChildRoles map[string]Role          `json:"child_roles" yaml:"child_roles"`
	Databases  map[string]DatabaseGrant `json:"databases" yaml:"databases"`
	Cycle      bool                     `json:"cycle,omitempty" yaml:"cycle,omitempty"`
}

type DatabaseGrant struct {
	Privileges []string            `json:"privileges" yaml:"privileges"`
	Schemas    map[string][]string `json:"schemas" yaml:"schemas"`
}

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format %q (expected json or yaml)", s)
	}
}

// ContentType returns the HTTP media type for f.
func (f Format) ContentType() string {
	if f == FormatYAML {
		return "application/yaml"
	}
	return "application/json"
}

// Write encodes v to w in the given format.
func Write(w io.Writer, v any, format Format) error {
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
	return nil
}
