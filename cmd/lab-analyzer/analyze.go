package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/labanalyzer/labanalyzer/internal/domain/labs"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

func analyzeCmd() *cobra.Command {
	var (
		pretty bool
		format string
	)

	cmd := &cobra.Command{
		Use:   "analyze <input.json>",
		Short: "Analyze a JSON file of extracted lab values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != formatJSON && format != formatYAML {
				return fmt.Errorf("unsupported format %q (want %s or %s)", format, formatJSON, formatYAML)
			}

			rec, err := readRecord(args[0])
			if err != nil {
				return err
			}

			result, err := labs.NewService().Analyze(rec)
			if err != nil {
				return &exitError{code: 1, msg: "Error: " + err.Error()}
			}

			return writeResult(cmd.OutOrStdout(), result, format, pretty)
		},
	}

	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent JSON output")
	cmd.Flags().StringVar(&format, "format", formatJSON, "output format: json or yaml")

	return cmd
}

// readRecord loads path and requires its content to be a single JSON object.
func readRecord(path string) (labs.Record, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, &exitError{code: 2, msg: "Input not found: " + path}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &exitError{code: 1, msg: fmt.Sprintf("Error: read %s: %v", path, err)}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &exitError{code: 1, msg: fmt.Sprintf("Error: invalid JSON in %s: %v", path, err)}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, &exitError{code: 1, msg: fmt.Sprintf("Error: invalid JSON in %s: unexpected data after top-level value", path)}
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, &exitError{code: 1, msg: fmt.Sprintf("Error: %s must contain a JSON object of lab values", path)}
	}
	return labs.Record(obj), nil
}

func writeResult(w io.Writer, result *labs.AnalysisResult, format string, pretty bool) error {
	if format == formatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
