package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/labreports/constants"
	"github.com/joseph-ayodele/labreports/internal/catalog"
)

// entryView is the printable form of a catalog entry.
type entryView struct {
	Name     string                `yaml:"name"`
	Category constants.Category    `yaml:"category"`
	Unit     string                `yaml:"unit,omitempty"`
	Aliases  []string              `yaml:"aliases,omitempty"`
	Ranges   map[string][2]float64 `yaml:"ranges,omitempty"`
}

func viewOf(e *catalog.Entry) entryView {
	v := entryView{Name: e.Name, Category: e.Category, Unit: e.Unit, Aliases: e.Aliases}
	for g, r := range e.Ranges {
		if !r.Known() {
			continue
		}
		if v.Ranges == nil {
			v.Ranges = map[string][2]float64{}
		}
		v.Ranges[g] = [2]float64{*r.Min, *r.Max}
	}
	return v
}

// catalogCmd inspects the biomarker catalog locally, without a daemon.
func catalogCmd() *cobra.Command {
	var file string
	load := func() (*catalog.Catalog, error) {
		if file == "" {
			return catalog.Default(), nil
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		return catalog.Parse(data)
	}

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the biomarker catalog",
	}
	cmd.PersistentFlags().StringVar(&file, "file", "", "catalog YAML to use instead of the built-in one")

	lookup := &cobra.Command{
		Use:   "lookup <name>",
		Short: "Resolve a name or alias to its canonical biomarker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := load()
			if err != nil {
				return err
			}
			name, ok := cat.Resolve(args[0])
			if !ok {
				return fmt.Errorf("no biomarker matches %q", args[0])
			}
			e, _ := cat.Lookup(name)
			return printYAML(viewOf(e))
		},
	}

	var category string
	list := &cobra.Command{
		Use:   "list",
		Short: "List canonical biomarkers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := load()
			if err != nil {
				return err
			}
			var views []entryView
			if category != "" {
				c, ok := constants.Canonicalize(category)
				if !ok {
					return fmt.Errorf("unknown category %q", category)
				}
				for _, e := range cat.ByCategory(c) {
					views = append(views, viewOf(e))
				}
			} else {
				for _, n := range cat.Names() {
					e, _ := cat.Lookup(n)
					views = append(views, viewOf(e))
				}
			}
			return printYAML(views)
		},
	}
	list.Flags().StringVar(&category, "category", "", "only this category")

	cmd.AddCommand(lookup, list)
	return cmd
}

func printYAML(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()
	return enc.Encode(v)
}
