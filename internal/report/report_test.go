package report

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func ptr(s string) *string { return &s }

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWrite_JSONCatalog(t *testing.T) {
	catalog := Catalog{
		"DB1": {Schemas: map[string]Schema{
			"S1": {
				Sequences:  []string{"SEQ1"},
				Streams:    []string{},
				Procedures: []string{},
				Functions:  []string{},
				Tasks:      []string{},
				Stages:     map[string]Stage{"ST1": {URL: ptr("s3://bucket")}},
				Pipes:      map[string]Pipe{},
			},
		}},
		"DB2": {Schemas: map[string]Schema{}},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, catalog, FormatJSON))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))

	s1 := got["DB1"].(map[string]any)["schemas"].(map[string]any)["S1"].(map[string]any)
	assert.Equal(t, []any{"SEQ1"}, s1["sequences"])
	assert.Equal(t, []any{}, s1["tasks"])
	assert.Equal(t, map[string]any{}, s1["pipes"])

	stage := s1["stages"].(map[string]any)["ST1"].(map[string]any)
	assert.Equal(t, "s3://bucket", stage["url"])
	assert.Nil(t, stage["type"])
	assert.Contains(t, stage, "region")

	assert.Equal(t, map[string]any{}, got["DB2"].(map[string]any)["schemas"])
}

func TestWrite_JSONRoleCycle(t *testing.T) {
	forest := RoleForest{
		"A": {
			Users:     []string{},
			Databases: map[string]DatabaseGrant{},
			ChildRoles: map[string]Role{
				"B": {
					Users:      []string{"U1"},
					Databases:  map[string]DatabaseGrant{},
					ChildRoles: map[string]Role{"A": {Cycle: true}},
				},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, forest, FormatJSON))
	assert.Contains(t, buf.String(), `"cycle": true`)
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte(`"cycle"`)))
}

func TestWrite_YAML(t *testing.T) {
	forest := RoleForest{
		"ACCOUNTADMIN": {
			Users:      []string{"ADMIN"},
			ChildRoles: map[string]Role{},
			Databases: map[string]DatabaseGrant{
				"DB1": {
					Privileges: []string{"USAGE"},
					Schemas:    map[string][]string{"S1": {"USAGE"}},
				},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, forest, FormatYAML))

	var got RoleForest
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, []string{"ADMIN"}, got["ACCOUNTADMIN"].Users)
	assert.Equal(t, []string{"USAGE"}, got["ACCOUNTADMIN"].Databases["DB1"].Schemas["S1"])
	assert.Contains(t, buf.String(), "child_roles: {}")
}

func TestWrite_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Write(&buf, Catalog{}, Format("xml")))
}

func TestFormat_ContentType(t *testing.T) {
	if got := FormatYAML.ContentType(); got != "application/yaml" {
		t.Errorf("FormatYAML.ContentType() = %q, want application/yaml", got)
	}
	if got := FormatJSON.ContentType(); got != "application/json" {
		t.Errorf("FormatJSON.ContentType() = %q, want application/json", got)
	}
}
