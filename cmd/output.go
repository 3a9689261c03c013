package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tejusbharadwaj/rtclient/internal/models"
	"github.com/tejusbharadwaj/rtclient/internal/query"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

type valueRow struct {
	Index     int     `json:"index" yaml:"index"`
	Name      string  `json:"name,omitempty" yaml:"name,omitempty"`
	Unit      string  `json:"unit,omitempty" yaml:"unit,omitempty"`
	Timestamp string  `json:"timestamp" yaml:"timestamp"`
	Value     float64 `json:"value" yaml:"value"`
}

type blockOutput struct {
	DatabaseID  int        `json:"databaseId" yaml:"databaseId"`
	Aggregation string     `json:"aggregation" yaml:"aggregation"`
	Block       int        `json:"block" yaml:"block"`
	Indexes     []string   `json:"indexes" yaml:"indexes"`
	Values      []valueRow `json:"values" yaml:"values"`
}

// resolver maps a value back to its catalog entry.
type resolver func(databaseID int, v models.MeasurementValue) (models.Measurement, bool)

type printer struct {
	out       io.Writer
	format    string
	lastGroup *query.GroupKey
}

func newPrinter(out io.Writer, format string) (*printer, error) {
	switch format {
	case outputText, outputJSON, outputYAML:
	default:
		return nil, fmt.Errorf("invalid output format: %s", format)
	}
	return &printer{out: out, format: format}, nil
}

// startRun makes the next block print its group header again.
func (p *printer) startRun() {
	p.lastGroup = nil
}

func (p *printer) printBlock(r query.BlockResult, resolve resolver) error {
	switch p.format {
	case outputJSON:
		return json.NewEncoder(p.out).Encode(toOutput(r, resolve))
	case outputYAML:
		data, err := yaml.Marshal(toOutput(r, resolve))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(p.out, "---\n%s", data)
		return err
	default:
		return p.printText(r, resolve)
	}
}

func (p *printer) printText(r query.BlockResult, resolve resolver) error {
	if p.lastGroup == nil || *p.lastGroup != r.Group {
		key := r.Group
		p.lastGroup = &key
		fmt.Fprintf(p.out, "\nDatabase ID: %d, Aggregation: %s\n", r.Group.DatabaseID, r.Group.AggFunction)
	}

	fmt.Fprintf(p.out, "Processing block %d with %d measurements\n", r.Number, len(r.Indexes))
	if len(r.Values) == 0 {
		_, err := fmt.Fprintf(p.out, "No data received for block %d\n", r.Number)
		return err
	}

	fmt.Fprintf(p.out, "Received %d data points for block %d\n", len(r.Values), r.Number)
	for _, row := range toRows(r, resolve) {
		label := fmt.Sprint(row.Index)
		if row.Name != "" {
			label = fmt.Sprintf("%d (%s)", row.Index, row.Name)
		}
		if _, err := fmt.Fprintf(p.out, "Measurement: %s, Value: %v%s, Timestamp: %s\n",
			label, row.Value, unitSuffix(row.Unit), row.Timestamp); err != nil {
			return err
		}
	}
	return nil
}

func unitSuffix(unit string) string {
	if unit == "" {
		return ""
	}
	return " " + unit
}

func toOutput(r query.BlockResult, resolve resolver) blockOutput {
	return blockOutput{
		DatabaseID:  r.Group.DatabaseID,
		Aggregation: r.Group.AggFunction,
		Block:       r.Number,
		Indexes:     r.Indexes,
		Values:      toRows(r, resolve),
	}
}

func toRows(r query.BlockResult, resolve resolver) []valueRow {
	rows := make([]valueRow, 0, len(r.Values))
	for _, v := range r.Values {
		row := valueRow{
			Index:     v.Index,
			Timestamp: v.Timestamp.UTC().Format(time.RFC3339Nano),
			Value:     v.Value,
		}
		if m, ok := resolve(r.Group.DatabaseID, v); ok {
			row.Name = m.Name
			row.Unit = m.UnitSymbol
		}
		rows = append(rows, row)
	}
	return rows
}
