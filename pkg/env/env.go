package env

import (
	"time"

	"github.com/elbiat/evald/pkg/log"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

var variables = new(Environment)

// Process the environment variables set for evald.
func Process() error {
	if err := envconfig.Process("evald", variables); err != nil {
		return errors.Wrap(err, "failed to process environment variables")
	}

	// set the log level
	if err := log.SetLevelFromString(variables.LogLevel); err != nil {
		return errors.Wrap(err, "failed to set log level")
	}

	return nil
}

// Variables returns the processed environment variables.
func Variables() Environment {
	return *variables
}

// Environment defines the environment variables used
// by evald.
type Environment struct {
	LogLevel     string `default:"info"`
	DatabaseType string `default:"postgres"`
	DatabaseDSN  string `default:"host=postgres user=postgres password=postgres dbname=evald port=5432 sslmode=disable"`

	// HarnessRoot is the checkout of the evaluation harness,
	// HarnessBin the executable invoked per run.
	HarnessRoot    string `default:"/opt/vlmevalkit"`
	HarnessBin     string `default:"run.py"`
	HarnessOutputs string `default:""` // defaults to <HarnessRoot>/outputs

	WorkerID     string        `default:""` // hostname
	PollInterval time.Duration `default:"5s"`
	MaxPollSleep time.Duration `default:"60s"`
	MaxIdlePolls int           `default:"0"` // 0 polls forever
	EvalTimeout  time.Duration `default:"4h"`
	ReclaimAfter time.Duration `default:"6h"` // 0 disables stale-run requeue

	BackfillCron string `default:""` // e.g. "0 0 * * * *"
	CatalogPath  string `default:"catalog.yml"`
}

// Outputs returns the harness output root, derived from the
// harness root when not set explicitly.
func (e Environment) Outputs() string {
	if e.HarnessOutputs != "" {
		return e.HarnessOutputs
	}
	return e.HarnessRoot + "/outputs"
}
