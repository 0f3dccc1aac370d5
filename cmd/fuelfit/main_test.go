package main

import (
	"bytes"
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mde-formula-finder/internal/config"
	"github.com/banshee-data/mde-formula-finder/internal/monitoring"
	"github.com/banshee-data/mde-formula-finder/internal/optimizer"
	"github.com/banshee-data/mde-formula-finder/internal/testutil"
)

func init() {
	monitoring.SetLogger(nil)
}

// newFlagSet mirrors the override flags registered on the command line.
func newFlagSet(t *testing.T, args ...string) *flag.FlagSet {
	t.Helper()
	fs := flag.NewFlagSet("fuelfit", flag.ContinueOnError)
	fs.String("data", "", "")
	fs.String("db", "", "")
	fs.String("listen", "", "")
	fs.String("grpc-listen", "", "")
	fs.Int("max-gens", 0, "")
	fs.Int("pop", 0, "")
	fs.Uint64("seed", 0, "")
	fs.Bool("headless", false, "")
	require.NoError(t, fs.Parse(args))
	return fs
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestApplyOverridesOnlySetFlags(t *testing.T) {
	t.Parallel()

	cfg := config.EmptyFitConfig()
	applyOverrides(cfg, newFlagSet(t, "-data", "runs.tsv", "-max-gens", "50", "-seed", "7", "-db", "", "-headless"))

	require.NotNil(t, cfg.DataFile)
	assert.Equal(t, "runs.tsv", cfg.GetDataFile())
	assert.Equal(t, 50, cfg.GetMaxGenerations())
	assert.Equal(t, uint64(7), cfg.GetRandomSeed())
	assert.Equal(t, "", cfg.GetDBPath(), "an explicit empty -db disables the archive")
	assert.Nil(t, cfg.Listen)
	assert.Nil(t, cfg.PopulationSize)
	assert.Equal(t, ":8080", cfg.GetListen())
}

func TestLoadConfigFlagsWin(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, "fit.json", `{"population_size": 40, "max_generations": 10, "listen": ":9000"}`)
	cfg, err := loadConfig(path, newFlagSet(t, "-max-gens", "25"))
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.GetPopulationSize())
	assert.Equal(t, 25, cfg.GetMaxGenerations())
	assert.Equal(t, ":9000", cfg.GetListen())
}

func TestLoadConfigErrors(t *testing.T) {
	t.Parallel()

	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.json"), newFlagSet(t))
	assert.Error(t, err)

	_, err = loadConfig("", newFlagSet(t, "-pop", "2"))
	assert.ErrorContains(t, err, "population_size")
}

func TestLoadData(t *testing.T) {
	t.Parallel()

	rep, err := loadData(writeTemp(t, "grid.tsv", testutil.CSV(testutil.FuelGrid(testutil.TruthParams))))
	require.NoError(t, err)
	assert.Equal(t, 50, rep.Accepted())
	assert.Equal(t, "\t", rep.Delimiter)

	_, err = loadData(writeTemp(t, "empty.csv", "cylinders,ratio,throttle,torque,fuel\n"))
	assert.ErrorContains(t, err, "no valid rows")

	_, err = loadData(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

func TestNewControllerLoadsData(t *testing.T) {
	t.Parallel()

	data := writeTemp(t, "grid.tsv", testutil.CSV(testutil.FuelGrid(testutil.TruthParams)))
	cfg := config.EmptyFitConfig()
	cfg.DataFile = &data
	seed := testutil.TruthParams
	cfg.Seed = &seed

	ctrl, err := newController(cfg)
	require.NoError(t, err)
	assert.Len(t, ctrl.Data(), 50)
	assert.Equal(t, testutil.TruthParams, ctrl.Params())
}

func TestRunHeadless(t *testing.T) {
	t.Parallel()

	data := writeTemp(t, "grid.tsv", testutil.CSV(testutil.FuelGrid(testutil.TruthParams)))
	cfg := config.EmptyFitConfig()
	cfg.DataFile = &data
	ctrl, err := newController(cfg)
	require.NoError(t, err)

	dir := t.TempDir()
	outputs := headlessOutputs{
		ChartPath: filepath.Join(dir, "fit.html"),
		ChartMode: "throttle",
		TracePath: filepath.Join(dir, "trace.png"),
	}
	var out bytes.Buffer
	err = runHeadless(context.Background(), ctrl, optimizer.Request{
		PopulationSize: 12, F: 0.5, CR: 0.7, MaxGenerations: 40, RandomSeed: 5,
	}, &out, outputs)
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Finished after 40 generations (max_generations)")
	assert.Contains(t, text, "Rounds correctly:")
	assert.True(t, strings.HasSuffix(text, ctrl.Params().Dump()), "output ends with the parameter dump")

	html, err := os.ReadFile(outputs.ChartPath)
	require.NoError(t, err)
	assert.Contains(t, string(html), "Measured vs Model Fuel")

	png, err := os.ReadFile(outputs.TracePath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestRunHeadlessRejectsOutputsBeforeStarting(t *testing.T) {
	t.Parallel()

	ctrl := optimizer.NewController(config.EmptyFitConfig().GetModel(), nil)
	require.NoError(t, ctrl.SetData(testutil.FuelGrid(testutil.TruthParams)))
	req := optimizer.Request{PopulationSize: 12, F: 0.5, CR: 0.7, MaxGenerations: 5}

	testCases := []struct {
		name string
		o    headlessOutputs
		want string
	}{
		{"chart extension", headlessOutputs{ChartPath: filepath.Join(t.TempDir(), "fit.txt")}, "chart output"},
		{"trace extension", headlessOutputs{TracePath: filepath.Join(t.TempDir(), "trace.jpg")}, "trace output"},
		{"chart mode", headlessOutputs{ChartMode: "torque"}, "torque"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := runHeadless(context.Background(), ctrl, req, &bytes.Buffer{}, tc.o)
			assert.ErrorContains(t, err, tc.want)
			assert.False(t, ctrl.Status().Running())
			assert.Empty(t, ctrl.Status().RunID)
		})
	}
}

func TestRunHeadlessWithoutData(t *testing.T) {
	t.Parallel()

	ctrl := optimizer.NewController(config.EmptyFitConfig().GetModel(), nil)
	err := runHeadless(context.Background(), ctrl, optimizer.Request{PopulationSize: 12, F: 0.5, CR: 0.5, MaxGenerations: 1},
		&bytes.Buffer{}, headlessOutputs{})
	assert.ErrorIs(t, err, optimizer.ErrNoData)
}
