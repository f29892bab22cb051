package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/milspecs/internal/config"
	"github.com/zjrosen/milspecs/internal/forms"
	"github.com/zjrosen/milspecs/internal/paths"
	"github.com/zjrosen/milspecs/internal/presentation"
)

// testEnv writes a config file into a temp project so commands never touch
// the working directory.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	content := "state_dir: " + dir + "\n" +
		"data:\n  watch: false\n" +
		"metrics:\n  enabled: false\n" +
		"flags:\n  tools-expansion: true\n"
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0o600))
	return configFile
}

func run(t *testing.T, configFile, stdin string, args ...string) (string, error) {
	t.Helper()
	jsonOutput = false
	stateDir = ""
	sectionQuery, exportFormat, exportInput, validateScope = "", "json", "", "all"
	encodeDate, formsSpec, formsExportOut, formsClearYes = "", "", "", false
	specsAvailable, toolsSpec = false, ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"--config", configFile}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestResolveConfig(t *testing.T) {
	dir := t.TempDir()
	c := resolveConfig(config.Config{}, dir)

	assert.Equal(t, filepath.Join(dir, paths.StateDirName), c.StateDir)
	assert.Empty(t, c.Data.Dir, "data dir only applies when it exists")
	assert.Equal(t, paths.TraceFile(c.StateDir), c.Tracing.FilePath)
	assert.Equal(t, config.Defaults().Flags, c.Flags)

	require.NoError(t, os.MkdirAll(paths.DataDir(c.StateDir), 0o750))
	c = resolveConfig(config.Config{}, dir)
	assert.Equal(t, paths.DataDir(c.StateDir), c.Data.Dir)

	c = resolveConfig(config.Config{Data: config.DataConfig{Dir: "/srv/data"}}, dir)
	assert.Equal(t, "/srv/data", c.Data.Dir)
}

func TestApplyServeFlags(t *testing.T) {
	t.Cleanup(func() { serveAddr, serveDataDir, serveNoWatch = "", "", false })
	serveAddr, serveDataDir, serveNoWatch = ":9090", "/tmp/data", true

	c := applyServeFlags(config.Defaults())
	assert.Equal(t, ":9090", c.Server.Addr)
	assert.Equal(t, "/tmp/data", c.Data.Dir)
	assert.False(t, c.Data.Watch)
}

func TestSpecsList(t *testing.T) {
	configFile := testEnv(t)

	out, err := run(t, configFile, "", "specs:list", "--json")
	require.NoError(t, err)
	var specs []presentation.SpecDTO
	require.NoError(t, json.Unmarshal([]byte(out), &specs))
	assert.Len(t, specs, 3)

	out, err = run(t, configFile, "", "specs:list")
	require.NoError(t, err)
	assert.Contains(t, out, "mil-std-2073")
}

func TestSpecsShow(t *testing.T) {
	configFile := testEnv(t)

	out, err := run(t, configFile, "", "specs:show", "mil-std-2073", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"schema"`)
	assert.Contains(t, out, `"containers"`)

	_, err = run(t, configFile, "", "specs:show", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `spec "nope" not found`)
}

func TestToolsList(t *testing.T) {
	configFile := testEnv(t)

	out, err := run(t, configFile, "", "tools:list", "--json", "--spec", "dd2326")
	require.NoError(t, err)
	var tools []presentation.ToolDTO
	require.NoError(t, json.Unmarshal([]byte(out), &tools))
	assert.Len(t, tools, 2)
}

func TestSpecSection(t *testing.T) {
	configFile := testEnv(t)

	out, err := run(t, configFile, "", "spec:section", "mil-std-2073", "methods", "--query", "waterproof", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, "Waterproof bag, sealed")

	_, err = run(t, configFile, "", "spec:section", "mil-std-2073", "bogus")
	require.Error(t, err)
}

func TestSpecExport(t *testing.T) {
	configFile := testEnv(t)

	out, err := run(t, configFile, "", "spec:export", "mil-std-2073", "containers", "--format", "csv")
	require.NoError(t, err)
	assert.Contains(t, out, "ND,Nailed wood box")

	_, err = run(t, configFile, "", "spec:export", "mil-std-2073")
	require.Error(t, err)
}

func TestSpecValidate(t *testing.T) {
	configFile := testEnv(t)

	out, err := run(t, configFile, `{"topFields":"41"}`, "spec:validate", "dd2326")
	require.Error(t, err)
	assert.Contains(t, out, `"valid": false`)

	out, err = run(t, configFile, `{"partA":{"a1":"X"}}`, "spec:validate", "dd2326", "-")
	require.NoError(t, err)
	assert.Contains(t, out, `"valid": true`)
}

func TestDD2326_EncodeDecodeRoundtrip(t *testing.T) {
	configFile := testEnv(t)
	form := `{"topFields":{"qup":"1"},"partA":{"a1":"Crate"},"partC":{"c2":"ND"}}`

	raw, err := run(t, configFile, form, "dd2326:encode", "--date", "2026-03-04")
	require.NoError(t, err)
	assert.Contains(t, raw, "DATE: 3/4/2026")
	assert.Contains(t, raw, "A1: Crate")

	out, err := run(t, configFile, raw, "dd2326:decode")
	require.NoError(t, err)
	assert.Contains(t, out, `"a1": "Crate"`)

	out, err = run(t, configFile, raw, "dd2326:roundtrip")
	require.NoError(t, err)
	assert.Contains(t, out, "Round trip OK")

	_, err = run(t, configFile, "PART A\nA1: X\n", "dd2326:roundtrip")
	require.Error(t, err)

	_, err = run(t, configFile, form, "dd2326:encode", "--date", "March 4")
	require.Error(t, err)
}

func TestForms_ExportImport(t *testing.T) {
	configFile := testEnv(t)
	payload := `{"savedForms":[{"id":"f1","specId":"dd2326","name":"Crate","data":{"partA":{"a1":"X"}}}]}`

	out, err := run(t, configFile, payload, "forms:import")
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 forms")

	out, err = run(t, configFile, "", "forms:list")
	require.NoError(t, err)
	var list []forms.Form
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Crate", list[0].Name)

	out, err = run(t, configFile, "", "forms:export", "--out", "-")
	require.NoError(t, err)
	assert.Contains(t, out, `"savedForms"`)

	_, err = run(t, configFile, "not json", "forms:import")
	require.ErrorIs(t, err, forms.ErrInvalidImport)

	_, err = run(t, configFile, "", "forms:clear")
	require.Error(t, err)
	_, err = run(t, configFile, "", "forms:clear", "--yes")
	require.NoError(t, err)
}

func TestFlagsSet(t *testing.T) {
	configFile := testEnv(t)

	out, err := run(t, configFile, "", "flags:set", "stp-viewer", "true")
	require.NoError(t, err)
	assert.Contains(t, out, "Set stp-viewer=true")

	data, err := os.ReadFile(configFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "stp-viewer: true")
	assert.Contains(t, string(data), "watch: false", "other sections are kept")

	_, err = run(t, configFile, "", "flags:set", "no-such-flag", "true")
	require.Error(t, err)
	_, err = run(t, configFile, "", "flags:set", "stp-viewer", "maybe")
	require.Error(t, err)
}
