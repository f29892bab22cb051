package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/zjrosen/milspecs/internal/presentation"
	"github.com/zjrosen/milspecs/internal/spec/adapter"
)

var (
	sectionQuery  string
	exportFormat  string
	exportInput   string
	validateScope string
)

var specSectionCmd = &cobra.Command{
	Use:   "spec:section <id> <section>",
	Short: "Print the rows of a spec section",
	Long: `Print the rows of one data section, optionally filtered.

Examples:
  milspecs spec:section mil-std-2073 methods
  milspecs spec:section mil-std-2073 containers --query box
  milspecs spec:section mil-std-2073 methods --json | jq '.[].code'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		site, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer func() { _ = site.Close() }()

		rows, err := site.Store.Search(cmd.Context(), args[0], args[1], sectionQuery)
		if err != nil {
			return err
		}
		return presentation.NewFormatter(cmd.OutOrStdout(), jsonOutput).FormatRecords(rows)
	},
}

var specItemCmd = &cobra.Command{
	Use:   "spec:item <id> <section> <code>",
	Short: "Print one section row by code",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		site, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer func() { _ = site.Close() }()

		rec, ok, err := site.Store.GetItemByCode(cmd.Context(), args[0], args[1], args[2])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no item %q in %s/%s", args[2], args[0], args[1])
		}
		return presentation.NewFormatter(cmd.OutOrStdout(), jsonOutput).FormatRecords([]adapter.Record{rec})
	},
}

var specExportCmd = &cobra.Command{
	Use:   "spec:export <id> [section]",
	Short: "Export spec data as JSON or CSV",
	Long: `Export a section through the spec's adapter, or with --input export the
JSON data in a file ("-" for stdin).

Examples:
  milspecs spec:export mil-std-2073 containers --format csv > containers.csv
  milspecs spec:export dd2326 --input form.json --format csv`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		site, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer func() { _ = site.Close() }()

		a := site.Registry.GetAdapter(args[0])
		if a == nil {
			return fmt.Errorf("spec %q has no adapter", args[0])
		}

		var data any
		switch {
		case exportInput != "":
			data, err = readJSON(cmd.InOrStdin(), exportInput)
			if err != nil {
				return err
			}
			if list, ok := data.([]any); ok {
				if recs, err := adapter.Records(list); err == nil {
					data = recs
				}
			}
		case len(args) == 2:
			data, err = site.Store.Section(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
		default:
			return errors.New("name a section or pass --input")
		}

		out, err := a.Export(data, exportFormat)
		if err != nil {
			return err
		}
		if s, ok := out.(string); ok {
			_, err = io.WriteString(cmd.OutOrStdout(), s)
			return err
		}
		return presentation.NewFormatter(cmd.OutOrStdout(), true).FormatJSON(out)
	},
}

var specValidateCmd = &cobra.Command{
	Use:   "spec:validate <id> [file]",
	Short: "Validate JSON data against a spec",
	Long: `Validate JSON data read from a file or stdin with the spec's adapter.
Exits non-zero when the data is invalid.

Examples:
  milspecs spec:validate dd2326 form.json
  milspecs spec:validate dd2326 --scope partA < form.json`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		site, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer func() { _ = site.Close() }()

		a := site.Registry.GetAdapter(args[0])
		if a == nil {
			return fmt.Errorf("spec %q has no adapter", args[0])
		}
		data, err := readJSON(cmd.InOrStdin(), argOrStdin(args[1:]))
		if err != nil {
			return err
		}

		result := a.Validate(data, validateScope)
		if err := presentation.NewFormatter(cmd.OutOrStdout(), true).FormatJSON(result); err != nil {
			return err
		}
		if !result.Valid {
			return fmt.Errorf("%d validation errors", len(result.Errors))
		}
		return nil
	},
}

func argOrStdin(args []string) string {
	if len(args) == 0 {
		return "-"
	}
	return args[0]
}

func readJSON(stdin io.Reader, name string) (any, error) {
	body, err := readInput(stdin, []string{name})
	if err != nil {
		return nil, err
	}
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	return data, nil
}

func init() {
	specSectionCmd.Flags().StringVarP(&sectionQuery, "query", "q", "", "Case-insensitive filter over every field")
	specExportCmd.Flags().StringVarP(&exportFormat, "format", "f", adapter.FormatJSON, "Export format: json or csv")
	specExportCmd.Flags().StringVarP(&exportInput, "input", "i", "", "Export JSON data from this file (- for stdin)")
	specValidateCmd.Flags().StringVar(&validateScope, "scope", adapter.ScopeAll, "Part to validate (all, topFields, partA, ...)")

	rootCmd.AddCommand(specSectionCmd, specItemCmd, specExportCmd, specValidateCmd)
}
