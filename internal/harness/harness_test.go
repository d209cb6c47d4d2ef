package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestArgsWithoutDefaults(t *testing.T) {
	args, err := Args("ChartQA_TEST", "Alpha-2B", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"--data", "ChartQA_TEST", "--model", "Alpha-2B"}, args)
}

func TestArgsPrefixesDefaultKeys(t *testing.T) {
	raw := []byte(`[{"max-new-tokens": 512}, {"--verbose": null}]`)

	args, err := Args("MMBench", "Beta-7B", raw)
	require.NoError(t, err)
	require.Equal(t, []string{
		"--data", "MMBench",
		"--model", "Beta-7B",
		"--max-new-tokens", "512",
		"--verbose",
	}, args)
}

func TestArgsRejectsMalformedDefaults(t *testing.T) {
	_, err := Args("MMBench", "Beta-7B", []byte(`{"not": "a list"}`))
	require.Error(t, err)
}

func TestGitCommitOutsideRepository(t *testing.T) {
	r := &Runner{Root: t.TempDir()}
	require.Empty(t, r.GitCommit())
}

func TestRunIdentifiesNewRunDir(t *testing.T) {
	root := t.TempDir()
	outputs := filepath.Join(root, "outputs")

	// A run directory from an earlier invocation must not be picked up.
	stale := filepath.Join(outputs, "Alpha-2B", "T20250101_G00000000")
	require.NoError(t, os.MkdirAll(stale, 0o755))

	fresh := filepath.Join(outputs, "Alpha-2B", "T20260204_Gabc12345")
	script := "#!/bin/sh\nmkdir -p " + fresh + "\necho started\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "harness.sh"), []byte(script), 0o755))

	r := &Runner{Root: root, Bin: "harness.sh", Outputs: outputs, Timeout: time.Minute}
	res, err := r.Run(context.Background(), "ChartQA_TEST", "Alpha-2B", nil)
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.False(t, res.TimedOut)
	require.Equal(t, fresh, res.RunDir)
	require.Contains(t, res.Stdout, "started")
	require.Contains(t, res.Command, "--model Alpha-2B")
}

func TestRunFallsBackToNewestRunDir(t *testing.T) {
	root := t.TempDir()
	outputs := filepath.Join(root, "outputs")

	// The harness appends into an existing directory instead of
	// creating one; the most recently modified directory wins.
	older := filepath.Join(outputs, "Alpha-2B", "T20250101_G00000000")
	newer := filepath.Join(outputs, "Alpha-2B", "T20260204_Gabc12345")
	require.NoError(t, os.MkdirAll(older, 0o755))
	require.NoError(t, os.MkdirAll(newer, 0o755))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, past, past))

	script := "#!/bin/sh\ntrue\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "harness.sh"), []byte(script), 0o755))

	r := &Runner{Root: root, Bin: "harness.sh", Outputs: outputs, Timeout: time.Minute}
	res, err := r.Run(context.Background(), "ChartQA_TEST", "Alpha-2B", nil)
	require.NoError(t, err)
	require.Equal(t, newer, res.RunDir)
}

func TestRunReportsExitCode(t *testing.T) {
	root := t.TempDir()
	script := "#!/bin/sh\necho oom >&2\nexit 7\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "harness.sh"), []byte(script), 0o755))

	r := &Runner{Root: root, Bin: "harness.sh", Outputs: filepath.Join(root, "outputs"), Timeout: time.Minute}
	res, err := r.Run(context.Background(), "ChartQA_TEST", "Alpha-2B", nil)
	require.NoError(t, err)
	require.Equal(t, 7, res.ExitCode)
	require.Contains(t, res.Stderr, "oom")
	require.Empty(t, res.RunDir)
}

func TestRunMissingBinary(t *testing.T) {
	root := t.TempDir()
	r := &Runner{Root: root, Bin: "does-not-exist.sh", Outputs: root, Timeout: time.Minute}

	_, err := r.Run(context.Background(), "ChartQA_TEST", "Alpha-2B", nil)
	require.Error(t, err)
}

func TestWriteLogs(t *testing.T) {
	runDir := filepath.Join(t.TempDir(), "T20260204_Gabc12345")
	res := &Result{Stdout: "out lines", Stderr: "err lines"}

	require.NoError(t, WriteLogs(runDir, res))

	stdout, err := os.ReadFile(filepath.Join(runDir, "worker_stdout.log"))
	require.NoError(t, err)
	require.Equal(t, "out lines", string(stdout))

	stderr, err := os.ReadFile(filepath.Join(runDir, "worker_stderr.log"))
	require.NoError(t, err)
	require.Equal(t, "err lines", string(stderr))
}

func TestWriteLogsNoRunDir(t *testing.T) {
	require.NoError(t, WriteLogs("", &Result{Stdout: "ignored"}))
}
