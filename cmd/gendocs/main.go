package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra/doc"

	"github.com/terminally-online/snowreport/internal/cli"
)

const header = `---
title: %q
generated: true
---

`

func main() {
	outDir := "./docs/cli"
	if len(os.Args) > 1 {
		outDir = os.Args[1]
	}

	if err := generate(outDir); err != nil {
		log.Fatal(err)
	}
}

// generate writes one markdown page per snowreport command into outDir,
// each with a front matter block naming the command.
func generate(outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create docs directory: %w", err)
	}

	cmd := cli.Root()
	cmd.DisableAutoGenTag = true

	prepend := func(filename string) string {
		name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
		return fmt.Sprintf(header, strings.ReplaceAll(name, "_", " "))
	}
	link := func(name string) string {
		return strings.TrimSuffix(name, filepath.Ext(name)) + "/"
	}

	if err := doc.GenMarkdownTreeCustom(cmd, outDir, prepend, link); err != nil {
		return fmt.Errorf("failed to generate docs: %w", err)
	}
	return nil
}
