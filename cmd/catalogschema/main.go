// Command catalogschema emits the JSON schema for ability, buff and owner
// definitions, and can verify definition files against the built-in graph
// templates.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/qiboda/atom-sub003/internal/catalog"
	"github.com/qiboda/atom-sub003/internal/content"
	"github.com/qiboda/atom-sub003/internal/tag"
	"github.com/qiboda/atom-sub003/internal/telemetry"
)

func main() {
	outPath := flag.String("out", "", "write the definitions schema to this path")
	check := flag.Bool("check", false, "resolve the definition files given as arguments")
	flag.Parse()

	if *outPath == "" && !*check {
		fmt.Fprintln(os.Stderr, "usage: catalogschema -out schema.json | -check definitions.json...")
		os.Exit(2)
	}
	if *outPath != "" {
		if err := writeSchema(*outPath); err != nil {
			fmt.Fprintf(os.Stderr, "schema: %v\n", err)
			os.Exit(1)
		}
	}
	if *check {
		if err := checkDefinitions(flag.Args()); err != nil {
			fmt.Fprintf(os.Stderr, "check: %v\n", err)
			os.Exit(1)
		}
	}
}

func writeSchema(outPath string) error {
	data, err := json.MarshalIndent(catalog.Schema(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	// Rename so readers never observe a partial file.
	staged := outPath + ".tmp"
	if err := os.WriteFile(staged, append(data, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(staged, outPath)
}

func checkDefinitions(paths []string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			return err
		}
	}
	if len(paths) == 0 {
		paths = catalog.DefaultPaths()
	}
	table := tag.NewTable()
	templates, err := content.Default(table)
	if err != nil {
		return err
	}
	resolver, err := catalog.Load(table, templates, telemetry.WrapLogger(log.Default()), paths...)
	if err != nil {
		return err
	}
	lib := resolver.Library()
	fmt.Printf("ok: %d abilities, %d buffs, %d owners\n",
		len(lib.AbilityIDs()), len(lib.BuffIDs()), len(resolver.Owners()))
	return nil
}
