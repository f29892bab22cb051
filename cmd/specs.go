package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/milspecs/internal/presentation"
	"github.com/zjrosen/milspecs/internal/spec/adapter"
	"github.com/zjrosen/milspecs/internal/spec/registry"
)

var (
	specsAvailable bool
	specsWidth     int
	toolsSpec      string
)

var specsListCmd = &cobra.Command{
	Use:   "specs:list",
	Short: "List registered spec plugins",
	Long: `List every registered spec plugin with its version and page paths.
The default spec is marked with *.

Examples:
  milspecs specs:list
  milspecs specs:list --available        # only specs with pages
  milspecs specs:list --json | jq '.[].id'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		site, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer func() { _ = site.Close() }()

		specs := site.Specs.Specs()
		if specsAvailable {
			specs = site.Specs.AvailableSpecs()
		}
		f := presentation.NewFormatter(cmd.OutOrStdout(), jsonOutput)
		return f.FormatSpecs(presentation.FromSpecs(specs, site.Specs))
	},
}

var specsShowCmd = &cobra.Command{
	Use:   "specs:show <id>",
	Short: "Describe one spec plugin",
	Long: `Render a spec's pages, tools and data schema.

Examples:
  milspecs specs:show mil-std-2073
  milspecs specs:show dd2326 --width 100`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		site, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer func() { _ = site.Close() }()

		summary, ok := site.Specs.Summary(args[0])
		if !ok {
			return fmt.Errorf("spec %q not found", args[0])
		}
		dto := presentation.FromSpec(summary, site.Specs)

		f := presentation.NewFormatter(cmd.OutOrStdout(), jsonOutput)
		a := site.Registry.GetAdapter(summary.ID)
		if jsonOutput {
			out := map[string]any{"spec": dto}
			if a != nil {
				out["schema"] = a.GetSchema()
			}
			return f.FormatJSON(out)
		}
		var schema adapter.Schema
		if a != nil {
			schema = a.GetSchema()
		}
		return f.FormatMarkdown(presentation.SpecMarkdown(dto, schema), specsWidth)
	},
}

var specsStatsCmd = &cobra.Command{
	Use:   "specs:stats",
	Short: "Show registry totals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		site, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer func() { _ = site.Close() }()

		return presentation.NewFormatter(cmd.OutOrStdout(), jsonOutput).FormatStats(site.Specs.Stats())
	},
}

var toolsListCmd = &cobra.Command{
	Use:   "tools:list",
	Short: "List tool pages contributed by spec plugins",
	Long: `List every route under /tools/.

Examples:
  milspecs tools:list
  milspecs tools:list --spec dd2326`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		site, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer func() { _ = site.Close() }()

		var tools []registry.Tool
		if toolsSpec != "" {
			tools = site.Specs.ToolsForSpec(toolsSpec)
		} else {
			tools = site.Specs.Tools()
		}
		return presentation.NewFormatter(cmd.OutOrStdout(), jsonOutput).FormatTools(presentation.FromTools(tools))
	},
}

func init() {
	specsListCmd.Flags().BoolVar(&specsAvailable, "available", false, "Only list specs that declare pages")
	specsShowCmd.Flags().IntVarP(&specsWidth, "width", "w", 80, "Word wrap width")
	toolsListCmd.Flags().StringVar(&toolsSpec, "spec", "", "Only list tools of this spec")

	rootCmd.AddCommand(specsListCmd, specsShowCmd, specsStatsCmd, toolsListCmd)
}
