package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/labelscan/internal/pipeline"
	"github.com/MeKo-Tech/labelscan/internal/resolve"
)

const (
	outputFormatJSON = "json"
	outputFormatText = "text"
)

// record is one resolved label as printed by the CLI.
type record struct {
	Name    string               `json:"name,omitempty"`
	Page    int                  `json:"page,omitempty"`
	Outcome pipeline.OutcomeView `json:"outcome"`
}

func newRecord(name string, o pipeline.Outcome) record {
	return record{Name: name, Outcome: o.View()}
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "f", outputFormatJSON, "output format (json, text)")
	cmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
}

// outputSettings resolves --format and --output against the configured defaults.
func outputSettings(cmd *cobra.Command) (string, string, error) {
	cfg := GetConfig()
	format, file := cfg.Output.Format, cfg.Output.File
	if cmd.Flags().Changed("format") {
		format, _ = cmd.Flags().GetString("format")
	}
	if cmd.Flags().Changed("output") {
		file, _ = cmd.Flags().GetString("output")
	}
	if format == "" {
		format = outputFormatJSON
	}
	if format != outputFormatJSON && format != outputFormatText {
		return "", "", fmt.Errorf("invalid output format: %s (must be json or text)", format)
	}
	return format, file, nil
}

// writeRecords prints records in the selected format. A single record is
// printed as an object in JSON mode, several as an array.
func writeRecords(cmd *cobra.Command, records []record) error {
	format, file, err := outputSettings(cmd)
	if err != nil {
		return err
	}

	var b strings.Builder
	switch format {
	case outputFormatJSON:
		var v any = records
		if len(records) == 1 {
			v = records[0]
		}
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format JSON output: %w", err)
		}
		b.Write(data)
		b.WriteByte('\n')
	default:
		for _, r := range records {
			writeTextRecord(&b, r)
		}
	}

	return emit(cmd, file, b.String())
}

func writeTextRecord(w io.Writer, r record) {
	if r.Name != "" {
		_, _ = fmt.Fprintf(w, "%s: ", r.Name)
	}
	_, _ = fmt.Fprintln(w, describe(r.Outcome))
	if f := r.Outcome.Fields; f.BatchCode != "" || f.ExpiryDateISO != "" {
		_, _ = fmt.Fprintf(w, "  batch=%s expiry=%s\n", orDash(f.BatchCode), orDash(f.ExpiryDateISO))
	}
	if p := r.Outcome.Proposal; p != nil {
		_, _ = fmt.Fprintf(w, "  proposal: id=%s name=%q\n", p.SuggestedID, p.SuggestedName)
	}
}

// describe renders the resolution on one line.
func describe(o pipeline.OutcomeView) string {
	res := o.Result
	var s string
	switch res.Kind {
	case resolve.KindExact.String():
		s = fmt.Sprintf("exact %s (%s)", res.Entity.ID, res.Entity.Name)
	case resolve.KindFuzzy.String():
		s = fmt.Sprintf("fuzzy %s (%s) score=%d", res.Entity.ID, res.Entity.Name, res.Entity.Score)
	case resolve.KindAmbiguous.String():
		ids := make([]string, len(res.Candidates))
		for i, c := range res.Candidates {
			ids[i] = c.ID
		}
		s = fmt.Sprintf("ambiguous reason=%s candidates=%s", res.Reason, strings.Join(ids, ","))
	default:
		s = res.Kind
		if g := res.BestGuess; g != nil && g.NameGuess != "" {
			s += fmt.Sprintf(" best_guess=%q", g.NameGuess)
		}
	}
	if o.Problem != pipeline.ProblemNone {
		s += fmt.Sprintf(" [%s]", o.Problem)
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// emit writes content to file, or to stdout when file is empty.
func emit(cmd *cobra.Command, file, content string) error {
	if file != "" {
		if err := os.WriteFile(file, []byte(content), 0o600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "Results written to %s\n", file)
		return err
	}
	_, err := io.WriteString(cmd.OutOrStdout(), content)
	return err
}
