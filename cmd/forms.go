package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/milspecs/internal/forms"
	"github.com/zjrosen/milspecs/internal/presentation"
)

var (
	formsSpec      string
	formsExportOut string
	formsClearYes  bool
)

var formsListCmd = &cobra.Command{
	Use:   "forms:list",
	Short: "List saved forms",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		site, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer func() { _ = site.Close() }()

		var list []*forms.Form
		if formsSpec != "" {
			list, err = site.Forms.FormsBySpec(cmd.Context(), formsSpec)
		} else {
			list, err = site.Forms.ListForms(cmd.Context())
		}
		if err != nil {
			return err
		}
		return presentation.NewFormatter(cmd.OutOrStdout(), true).FormatJSON(list)
	},
}

var formsExportCmd = &cobra.Command{
	Use:   "forms:export",
	Short: "Export saved forms, decoded results and templates",
	Long: `Write every saved form, decoded result and template as one JSON document.

Examples:
  milspecs forms:export                     # mil-specs-forms-<date>.json
  milspecs forms:export --out backup.json
  milspecs forms:export --out -             # stdout`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		site, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer func() { _ = site.Close() }()

		export, err := site.Forms.Export(cmd.Context())
		if err != nil {
			return err
		}
		if formsExportOut == "-" {
			return presentation.NewFormatter(cmd.OutOrStdout(), true).FormatJSON(export)
		}

		out := formsExportOut
		if out == "" {
			out = forms.ExportFileName(time.Now())
		}
		data, err := json.MarshalIndent(export, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, append(data, '\n'), 0o600); err != nil {
			return fmt.Errorf("writing export: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d forms, %d decoded results and %d templates to %s\n",
			len(export.SavedForms), len(export.DecodedResults), len(export.FormTemplates), out)
		return nil
	},
}

var formsImportCmd = &cobra.Command{
	Use:   "forms:import [file]",
	Short: "Import a forms export",
	Long: `Import a document written by forms:export. Records with an existing id
are replaced, so importing the same file twice is harmless.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := readInput(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}
		var data forms.ImportData
		if err := json.Unmarshal(body, &data); err != nil {
			return fmt.Errorf("%w: %v", forms.ErrInvalidImport, err)
		}

		site, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer func() { _ = site.Close() }()

		if err := site.Forms.Import(cmd.Context(), data); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d forms, %d decoded results and %d templates\n",
			len(data.SavedForms), len(data.DecodedResults), len(data.FormTemplates))
		return nil
	},
}

var formsClearCmd = &cobra.Command{
	Use:   "forms:clear",
	Short: "Delete every saved form, decoded result and template",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !formsClearYes {
			return fmt.Errorf("refusing to clear storage without --yes")
		}
		site, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer func() { _ = site.Close() }()

		if err := site.Forms.ClearAll(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Cleared forms storage")
		return nil
	},
}

func init() {
	formsListCmd.Flags().StringVar(&formsSpec, "spec", "", "Only list forms of this spec")
	formsExportCmd.Flags().StringVarP(&formsExportOut, "out", "o", "", "Output file (- for stdout)")
	formsClearCmd.Flags().BoolVarP(&formsClearYes, "yes", "y", false, "Confirm deleting everything")

	rootCmd.AddCommand(formsListCmd, formsExportCmd, formsImportCmd, formsClearCmd)
}
