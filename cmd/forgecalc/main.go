// Command forgecalc loads a small JSON model fixture, runs forge.Calculate
// over it, and prints the computed tables and scalars as a YAML report.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/royalbit/forge"
	"gopkg.in/yaml.v3"
)

func main() {
	path := flag.String("model", "", "path to a JSON model fixture")
	strict := flag.Bool("strict-rounding", false, "round every computed number to 1e-6 resolution")
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "usage: forgecalc -model path/to/model.json")
		os.Exit(2)
	}

	data, err := os.ReadFile(*path)
	if err != nil {
		log.Fatalf("forgecalc: %v", err)
	}

	model, err := parseFixture(data)
	if err != nil {
		log.Fatalf("forgecalc: %v", err)
	}

	result, err := forge.Calculate(model, forge.Options{StrictNumericRounding: *strict})
	if err != nil {
		log.Fatalf("forgecalc: calculation failed: %v", err)
	}

	report := buildReport(result)
	out, err := yaml.Marshal(report)
	if err != nil {
		log.Fatalf("forgecalc: render report: %v", err)
	}
	os.Stdout.Write(out)
}

func buildReport(m *forge.Model) map[string]interface{} {
	tables := make(map[string]interface{}, len(m.TableOrder))
	for _, name := range m.TableOrder {
		table := m.Tables[name]
		columns := make(map[string][]string)
		for _, colName := range table.ColumnNames() {
			col, ok := table.Column(colName)
			if !ok {
				continue
			}
			rendered := make([]string, col.Len())
			for i, v := range col.Values {
				rendered[i] = v.String()
			}
			columns[colName] = rendered
		}
		tables[name] = columns
	}

	scalars := make(map[string]string, len(m.ScalarOrder))
	for _, name := range m.ScalarOrder {
		scalar := m.Scalars[name]
		if scalar.Value != nil {
			scalars[name] = scalar.Value.String()
		}
	}

	return map[string]interface{}{
		"format_version": m.FormatVersion,
		"tables":         tables,
		"scalars":        scalars,
	}
}
