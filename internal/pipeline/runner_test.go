package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketviz/internal/cache"
	"marketviz/internal/config"
	apperrors "marketviz/internal/errors"
	"marketviz/internal/exporter"
	"marketviz/internal/fetch"
	"marketviz/pkg/contracts/domain"
)

func newTestRunner(t *testing.T, source fetch.Source) (*Runner, *config.Paths) {
	t.Helper()
	paths := config.GetPathsFrom(t.TempDir())
	require.NoError(t, paths.EnsureDirectories())

	store, err := cache.NewStore(t.TempDir(), time.Hour)
	require.NoError(t, err)
	orch := fetch.NewOrchestrator(source, store, fastRetry(), 4)
	runner := NewRunner(New(orch), exporter.New(paths, nil), NewRegistry(), nil, nil)
	return runner, paths
}

func TestRunnerExecuteWritesAllOutputs(t *testing.T) {
	source := newScriptedSource()
	start := day(2024, time.January, 1)
	for _, sym := range []string{"AAA", "BBB", "CCC"} {
		source.series[sym] = dailySeries(sym, start, 30)
	}

	runner, paths := newTestRunner(t, source)
	result, err := runner.Execute(context.Background(), "manual", Params{
		Universe: testUniverse(),
		Start:    start,
		End:      day(2024, time.February, 15),
		Period:   domain.PeriodWeekly,
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	for _, path := range []string{
		paths.ProcessedCSV,
		paths.AnimationJSON,
		paths.SectorSummaryCSV,
		paths.RunReportJSON,
	} {
		info, statErr := os.Stat(path)
		require.NoError(t, statErr, path)
		assert.Greater(t, info.Size(), int64(0), path)
	}

	// The run report round-trips and carries the registry's run ID.
	raw, err := os.ReadFile(paths.RunReportJSON)
	require.NoError(t, err)
	var report struct {
		RunID string `json:"run_id"`
	}
	require.NoError(t, json.Unmarshal(raw, &report))
	assert.Equal(t, result.RunID, report.RunID)

	info, ok := runner.Registry().Get(result.RunID)
	require.True(t, ok)
	assert.Equal(t, RunStatusCompleted, info.Status)
	assert.Equal(t, "manual", info.Trigger)
	assert.Equal(t, 3, info.SymbolsSucceeded)
}

func TestRunnerExecuteRecordsFailure(t *testing.T) {
	source := newScriptedSource()
	for _, sym := range []string{"AAA", "BBB", "CCC"} {
		source.errs[sym] = apperrors.NewPermanentFetch(sym, "not found", nil)
	}

	runner, paths := newTestRunner(t, source)
	result, err := runner.Execute(context.Background(), "schedule", Params{
		Universe: testUniverse(),
		Start:    day(2024, time.January, 1),
		End:      day(2024, time.February, 1),
		Period:   domain.PeriodDaily,
		RunID:    "run-doomed",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNoSymbolsSucceeded)
	require.NotNil(t, result)

	info, ok := runner.Registry().Get("run-doomed")
	require.True(t, ok)
	assert.Equal(t, RunStatusFailed, info.Status)
	assert.Contains(t, info.Error, "no symbols succeeded")

	// No datasets are written for a failed run.
	_, statErr := os.Stat(paths.ProcessedCSV)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunnerExecuteReportsExportErrors(t *testing.T) {
	source := newScriptedSource()
	source.series["AAA"] = dailySeries("AAA", day(2024, time.January, 1), 20)

	// A regular file sits where the exports directory should be, so the
	// first dataset write fails.
	base := t.TempDir()
	paths := config.GetPathsFrom(base)
	require.NoError(t, os.MkdirAll(filepath.Dir(paths.ExportsDir), 0o755))
	require.NoError(t, os.WriteFile(paths.ExportsDir, []byte("not a directory"), 0o644))

	store, err := cache.NewStore(t.TempDir(), time.Hour)
	require.NoError(t, err)
	orch := fetch.NewOrchestrator(source, store, fastRetry(), 4)
	runner := NewRunner(New(orch), exporter.New(paths, nil), NewRegistry(), nil, nil)

	_, err = runner.Execute(context.Background(), "manual", Params{
		Universe: testUniverse()[:1],
		Start:    day(2024, time.January, 1),
		End:      day(2024, time.February, 1),
		Period:   domain.PeriodDaily,
		RunID:    "run-noexport",
	})
	require.Error(t, err)

	info, ok := runner.Registry().Get("run-noexport")
	require.True(t, ok)
	assert.Equal(t, RunStatusFailed, info.Status)
}

func TestRunnerExecuteGeneratesRunID(t *testing.T) {
	source := newScriptedSource()
	source.series["AAA"] = dailySeries("AAA", day(2024, time.January, 1), 15)

	runner, _ := newTestRunner(t, source)
	result, err := runner.Execute(context.Background(), "manual", Params{
		Universe: testUniverse()[:1],
		Start:    day(2024, time.January, 1),
		End:      day(2024, time.February, 1),
		Period:   domain.PeriodDaily,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.RunID)

	list := runner.Registry().List()
	require.Len(t, list, 1)
	assert.Equal(t, result.RunID, list[0].ID)
}
