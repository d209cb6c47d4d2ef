package backfill

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/elbiat/evald/internal/catalog"
	"github.com/elbiat/evald/internal/models"
	"github.com/elbiat/evald/internal/run"
	"github.com/elbiat/evald/internal/testutil"
	"github.com/elbiat/evald/pkg/jsonmap"
	"github.com/stretchr/testify/require"
)

func writeOutputTree(t *testing.T) string {
	t.Helper()
	outputs := t.TempDir()

	registered := filepath.Join(outputs, "InternVL2_5-2B", "T20260204_G5f5146fe")
	require.NoError(t, os.MkdirAll(registered, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(registered, "InternVL2_5-2B_ChartQA_TEST_acc.csv"),
		[]byte("Overall,split\n80.24,test\n"), 0o644))

	unparseable := filepath.Join(outputs, "InternVL2_5-2B", "snapshots")
	require.NoError(t, os.MkdirAll(unparseable, 0o755))

	unregistered := filepath.Join(outputs, "StrayModel-13B", "T20260101_Gdeadbeef")
	require.NoError(t, os.MkdirAll(unregistered, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(unregistered, "StrayModel-13B_ChartQA_TEST_acc.csv"),
		[]byte("Overall\n50.0\n"), 0o644))

	return outputs
}

func TestSyncInsertsMissingRuns(t *testing.T) {
	db := testutil.OpenTestDB(t)
	task := testutil.SeedTask(t, db, "chartqa_test", "ChartQA_TEST")
	model := testutil.SeedModel(t, db, "internvl2_5_2b", "InternVL2_5-2B")
	outputs := writeOutputTree(t)

	store := run.NewStore(db)
	pass := New(store, catalog.New(db), outputs)

	res, err := pass.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Synced)
	require.Equal(t, 0, res.Skipped)
	require.Equal(t, 0, res.Errors)

	var inserted models.EvalRun
	require.NoError(t, db.First(&inserted).Error)
	require.Equal(t, models.StatusComplete, inserted.Status)
	require.Equal(t, task.ID, inserted.TaskID)
	require.Equal(t, model.ID, inserted.ModelID)
	require.Equal(t, "5f5146fe", inserted.GitCommit)
	overall, ok := jsonmap.Number(inserted.Metrics["Overall"])
	require.True(t, ok)
	require.InDelta(t, 80.24, overall, 1e-9)

	runDate := time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC)
	require.True(t, inserted.CreatedAt.Equal(runDate))
	require.True(t, inserted.StartedAt.Equal(runDate))
	require.True(t, inserted.FinishedAt.Equal(runDate))
}

func TestSyncIsIdempotent(t *testing.T) {
	db := testutil.OpenTestDB(t)
	testutil.SeedTask(t, db, "chartqa_test", "ChartQA_TEST")
	testutil.SeedModel(t, db, "internvl2_5_2b", "InternVL2_5-2B")
	outputs := writeOutputTree(t)

	pass := New(run.NewStore(db), catalog.New(db), outputs)

	first, err := pass.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, first.Synced)

	second, err := pass.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, second.Synced)
	require.Equal(t, 1, second.Skipped)

	var count int64
	require.NoError(t, db.Model(&models.EvalRun{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestSyncSkipsUnregisteredModels(t *testing.T) {
	db := testutil.OpenTestDB(t)
	testutil.SeedTask(t, db, "chartqa_test", "ChartQA_TEST")
	testutil.SeedModel(t, db, "internvl2_5_2b", "InternVL2_5-2B")
	outputs := writeOutputTree(t)

	_, err := New(run.NewStore(db), catalog.New(db), outputs).Run(context.Background())
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.EvalRun{}).
		Where("artifacts_dir LIKE ?", "%StrayModel%").Count(&count).Error)
	require.EqualValues(t, 0, count)
}

func TestParseRunDirName(t *testing.T) {
	runDate, commit, ok := ParseRunDirName("T20260204_G5f5146fe")
	require.True(t, ok)
	require.Equal(t, "5f5146fe", commit)
	require.Equal(t, time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC), runDate)

	_, _, ok = ParseRunDirName("snapshots")
	require.False(t, ok)
	_, _, ok = ParseRunDirName("T2026_Gxyz")
	require.False(t, ok)
}
