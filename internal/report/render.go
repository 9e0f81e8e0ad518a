package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

// Format selects a renderer.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat accepts table, json or yaml (case-insensitive); empty means table.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("unknown report format %q (want table, json or yaml)", s)
}

// Write renders sums in the given format.
func Write(w io.Writer, f Format, sums []Summary) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, sums)
	case FormatYAML:
		return WriteYAML(w, sums)
	case FormatTable, "":
		return WriteTable(w, sums)
	}
	return fmt.Errorf("unknown report format %q", f)
}

func WriteJSON(w io.Writer, sums []Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sums)
}

func WriteYAML(w io.Writer, sums []Summary) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(sums); err != nil {
		return err
	}
	return enc.Close()
}

// WriteTable prints one row per rank, followed by a phase breakdown table
// when any event carried phase markers.
func WriteTable(w io.Writer, sums []Summary) error {
	if len(sums) == 0 {
		_, err := fmt.Fprintln(w, "No events")
		return err
	}
	table := tablewriter.NewWriter(w)
	table.Header("Rank", "Events", "Span", "Mean Dur", "Max Dur", "Mean Gap", "Max Gap", "OK", "Failed")
	for _, s := range sums {
		if err := table.Append(
			s.Rank,
			strconv.Itoa(s.Events),
			s.Span.String(),
			s.Duration.Mean.String(),
			s.Duration.Max.String(),
			s.Gap.Mean.String(),
			s.Gap.Max.String(),
			strconv.Itoa(s.OK),
			strconv.Itoa(s.Failed),
		); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	var rows [][]string
	for _, s := range sums {
		for _, p := range s.Phases {
			rows = append(rows, []string{s.Rank, p.Name, strconv.Itoa(p.Events), p.Mean.String()})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	phases := tablewriter.NewWriter(w)
	phases.Header("Rank", "Phase", "Events", "Mean")
	for _, r := range rows {
		if err := phases.Append(r[0], r[1], r[2], r[3]); err != nil {
			return err
		}
	}
	return phases.Render()
}
