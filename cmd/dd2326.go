package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/milspecs/internal/presentation"
	"github.com/zjrosen/milspecs/internal/spec/adapter"
)

// dateLayout is the --date flag format.
const dateLayout = "2006-01-02"

var encodeDate string

var dd2326EncodeCmd = &cobra.Command{
	Use:   "dd2326:encode [file]",
	Short: "Generate DD Form 2326 raw data from form JSON",
	Long: `Read form JSON ({"topFields": {...}, "partA": {...}, ...}) from a file or
stdin and print the raw data text.

Examples:
  milspecs dd2326:encode form.json
  milspecs dd2326:encode --date 2026-03-04 < form.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		codec, cleanup, err := openCodec(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		date := time.Now()
		if encodeDate != "" {
			if date, err = time.Parse(dateLayout, encodeDate); err != nil {
				return fmt.Errorf("invalid --date %q (want YYYY-MM-DD): %w", encodeDate, err)
			}
		}

		data, err := readJSON(cmd.InOrStdin(), argOrStdin(args))
		if err != nil {
			return err
		}
		form, ok := adapter.AsFormData(data)
		if !ok {
			return errors.New("invalid data: expected form parts")
		}

		raw := codec.GenerateRawData(form, date)
		if jsonOutput {
			return presentation.NewFormatter(cmd.OutOrStdout(), true).FormatJSON(map[string]string{"rawData": raw})
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), raw)
		return err
	},
}

var dd2326DecodeCmd = &cobra.Command{
	Use:   "dd2326:decode [file]",
	Short: "Parse DD Form 2326 raw data into form JSON",
	Long: `Read raw data text from a file or stdin and print the form parts as JSON.
Keys come back lower-cased.

Examples:
  milspecs dd2326:decode raw.txt
  pbpaste | milspecs dd2326:decode`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		codec, cleanup, err := openCodec(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		raw, err := readInput(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}
		return presentation.NewFormatter(cmd.OutOrStdout(), true).FormatJSON(codec.DecodeRawData(string(raw)))
	},
}

var dd2326RoundtripCmd = &cobra.Command{
	Use:   "dd2326:roundtrip [file]",
	Short: "Check that raw data survives decode and re-encode",
	Long: `Decode raw data, encode it again with the date it carries, and show
where the result differs. Exits non-zero on any difference.

Example:
  milspecs dd2326:roundtrip raw.txt`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		codec, cleanup, err := openCodec(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		input, err := readInput(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}
		want := normalizeRaw(string(input))

		date, ok := rawDate(want)
		if !ok {
			return errors.New("raw data has no DATE line")
		}
		form := codec.DecodeRawData(want)
		// The header DATE line decodes as a top field.
		delete(form[adapter.PartTop], "date")
		got := normalizeRaw(codec.GenerateRawData(dropEmptyParts(form), date))

		diff := presentation.CompareRaw(want, got)
		if jsonOutput {
			if err := presentation.NewFormatter(cmd.OutOrStdout(), true).FormatJSON(diff); err != nil {
				return err
			}
		} else if diff.Equal {
			fmt.Fprintln(cmd.OutOrStdout(), "Round trip OK")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), diff.Styled())
		}
		if !diff.Equal {
			return errors.New("round trip changed the raw data")
		}
		return nil
	},
}

type rawCodec interface {
	GenerateRawData(form adapter.FormData, date time.Time) string
	DecodeRawData(raw string) adapter.FormData
}

func openCodec(cmd *cobra.Command) (rawCodec, func(), error) {
	site, err := openApp(cmd.Context(), false)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { _ = site.Close() }
	codec, ok := site.Registry.GetAdapter(adapter.DD2326ID).(rawCodec)
	if !ok {
		cleanup()
		return nil, nil, fmt.Errorf("spec %q is not registered", adapter.DD2326ID)
	}
	return codec, cleanup, nil
}

// normalizeRaw drops carriage returns and trailing blank lines.
func normalizeRaw(raw string) string {
	return strings.TrimRight(strings.ReplaceAll(raw, "\r", ""), "\n ")
}

func rawDate(raw string) (time.Time, bool) {
	for _, line := range strings.Split(raw, "\n") {
		if v, ok := strings.CutPrefix(line, "DATE: "); ok {
			date, err := time.Parse("1/2/2006", strings.TrimSpace(v))
			return date, err == nil
		}
	}
	return time.Time{}, false
}

func dropEmptyParts(form adapter.FormData) adapter.FormData {
	for part, values := range form {
		if len(values) == 0 {
			delete(form, part)
		}
	}
	return form
}

func init() {
	dd2326EncodeCmd.Flags().StringVar(&encodeDate, "date", "", "Form date as YYYY-MM-DD (default: today)")

	rootCmd.AddCommand(dd2326EncodeCmd, dd2326DecodeCmd, dd2326RoundtripCmd)
}
