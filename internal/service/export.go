package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agenttrail/agenttrail/internal/query"
)

// exportPromptCap bounds the prompt column in CSV exports so spreadsheet
// tools stay usable.
const exportPromptCap = 500

// Export renders the filtered record set in the requested format. The
// whole filtered set is exported, not one page.
type ExportRequest struct {
	Dir     string
	Files   []string
	Filters query.Filters
	Format  string // json or csv
}

// ExportResult carries the rendered bytes plus response metadata.
type ExportResult struct {
	Body        []byte
	ContentType string
	Filename    string
}

// Export loads, filters, and renders entries as JSON or CSV.
func (s *Service) Export(ctx context.Context, req ExportRequest) (*ExportResult, error) {
	records, err := s.loadRecords(ctx, req.Dir, req.Files)
	if err != nil {
		return nil, err
	}

	filtered, err := req.Filters.Apply(records)
	if err != nil {
		return nil, err
	}
	query.SortDescending(filtered)

	stamp := time.Now().UTC().Format("20060102-150405")

	switch req.Format {
	case "", "json":
		body, err := json.MarshalIndent(filtered, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("export json: %w", err)
		}
		return &ExportResult{
			Body:        body,
			ContentType: "application/json",
			Filename:    fmt.Sprintf("agenttrail-export-%s.json", stamp),
		}, nil
	case "csv":
		body, err := renderCSV(filtered)
		if err != nil {
			return nil, err
		}
		return &ExportResult{
			Body:        body,
			ContentType: "text/csv",
			Filename:    fmt.Sprintf("agenttrail-export-%s.csv", stamp),
		}, nil
	default:
		return nil, fmt.Errorf("export: unsupported format %q", req.Format)
	}
}

var csvColumns = []string{
	"timestamp", "category", "action", "event_id", "user", "hostname",
	"trajectory_id", "file_path", "command_line", "mcp_tool_name",
	"prompt", "source_file",
}

// renderCSV flattens records into fixed columns. Prompts are capped;
// everything else is taken verbatim from the lifted top-level fields.
func renderCSV(records []query.Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvColumns); err != nil {
		return nil, fmt.Errorf("export csv: %w", err)
	}

	for _, rec := range records {
		prompt := rec.String("content")
		if runes := []rune(prompt); len(runes) > exportPromptCap {
			prompt = string(runes[:exportPromptCap])
		}
		row := []string{
			rec.Timestamp(),
			rec.String("category"),
			rec.String("action"),
			rec.String("event_id"),
			rec.String("user"),
			rec.String("hostname"),
			rec.String("trajectory_id"),
			rec.String("file_path"),
			rec.String("command_line"),
			rec.String("mcp_tool_name"),
			prompt,
			rec.String("source_file"),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("export csv: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("export csv: %w", err)
	}
	return buf.Bytes(), nil
}
