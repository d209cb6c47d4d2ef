package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/elbiat/evald/pkg/log"
	"github.com/go-git/go-git/v5"
)

// DefaultTimeout is the hard wall-clock limit for one harness
// invocation.
const DefaultTimeout = 4 * time.Hour

// runDirGlob matches the harness run directory naming convention,
// T<YYYYMMDD>_G<shortcommit>.
const runDirGlob = "T*_G*"

// Runner invokes the external evaluation harness as a subprocess and
// finds the run directory it wrote.
type Runner struct {
	Root    string // harness checkout
	Bin     string // executable, absolute or relative to Root
	Outputs string // output root the harness writes under
	Timeout time.Duration
}

// Result captures one harness invocation.
type Result struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	RunDir   string
	TimedOut bool
	Duration time.Duration
}

// Args builds the harness argument vector for a (task, model) pair.
// defaultArgs is the model's serialized ordered list of key/value
// maps; keys gain a leading -- when absent.
func Args(dataKey, modelKey string, defaultArgs []byte) ([]string, error) {
	args := []string{"--data", dataKey, "--model", modelKey}

	if len(defaultArgs) == 0 {
		return args, nil
	}

	var extra []map[string]interface{}
	if err := json.Unmarshal(defaultArgs, &extra); err != nil {
		return nil, fmt.Errorf("invalid default args: %w", err)
	}

	for _, pair := range extra {
		for key, value := range pair {
			if !strings.HasPrefix(key, "--") {
				key = "--" + key
			}
			args = append(args, key)
			if value != nil {
				args = append(args, fmt.Sprint(value))
			}
		}
	}
	return args, nil
}

// GitCommit returns the short commit of the harness checkout, or ""
// when it cannot be determined.
func (r *Runner) GitCommit() string {
	repo, err := git.PlainOpen(r.Root)
	if err != nil {
		log.Warn("could not open harness repository", "root", r.Root, "error", err)
		return ""
	}

	head, err := repo.Head()
	if err != nil {
		log.Warn("could not resolve harness HEAD", "root", r.Root, "error", err)
		return ""
	}

	hash := head.Hash().String()
	if len(hash) > 8 {
		hash = hash[:8]
	}
	return hash
}

// Run launches the harness for a (task, model) pair with a hard
// wall-clock timeout, then identifies the run directory by diffing
// the model's output directories against a pre-launch snapshot,
// falling back to the most recently modified one.
func (r *Runner) Run(ctx context.Context, dataKey, modelKey string, defaultArgs []byte) (*Result, error) {
	args, err := Args(dataKey, modelKey, defaultArgs)
	if err != nil {
		return nil, err
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	bin := r.Bin
	if !filepath.IsAbs(bin) {
		bin = filepath.Join(r.Root, bin)
	}

	modelDir := filepath.Join(r.Outputs, modelKey)
	before := snapshotRunDirs(modelDir)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, bin, args...)
	cmd.Dir = r.Root
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	runErr := cmd.Run()
	duration := time.Since(started)

	res := &Result{
		Command:  strings.Join(append([]string{bin}, args...), " "),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
		TimedOut: errors.Is(runCtx.Err(), context.DeadlineExceeded),
	}

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
		res.ExitCode = 0
	case errors.As(runErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	case res.TimedOut:
		res.ExitCode = -1
	default:
		return nil, runErr
	}

	res.RunDir = newRunDir(modelDir, before)
	return res, nil
}

// WriteLogs persists the captured subprocess output into the run
// directory next to the harness artifacts.
func WriteLogs(runDir string, res *Result) error {
	if runDir == "" {
		return nil
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(runDir, "worker_stdout.log"), []byte(res.Stdout), 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(runDir, "worker_stderr.log"), []byte(res.Stderr), 0o644)
}

func snapshotRunDirs(modelDir string) map[string]struct{} {
	dirs := map[string]struct{}{}
	matches, err := doublestar.FilepathGlob(filepath.Join(modelDir, runDirGlob))
	if err != nil {
		return dirs
	}
	for _, match := range matches {
		dirs[match] = struct{}{}
	}
	return dirs
}

// newRunDir returns the run directory created since the snapshot,
// newest first when several appeared, falling back to the most
// recently modified directory when the diff is empty.
func newRunDir(modelDir string, before map[string]struct{}) string {
	matches, err := doublestar.FilepathGlob(filepath.Join(modelDir, runDirGlob))
	if err != nil || len(matches) == 0 {
		return ""
	}

	fresh := make([]string, 0, len(matches))
	for _, match := range matches {
		if _, ok := before[match]; !ok {
			fresh = append(fresh, match)
		}
	}
	if len(fresh) == 0 {
		fresh = matches
	}

	newest := ""
	var newestMod time.Time
	for _, dir := range fresh {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = dir
			newestMod = info.ModTime()
		}
	}
	return newest
}
