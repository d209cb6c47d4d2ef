package env

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type EnvTestSuite struct {
	suite.Suite
}

func (s *EnvTestSuite) TestProcess() {
	assert.Nil(s.T(), Process())
	assert.Equal(s.T(), "info", Variables().LogLevel)
	assert.Equal(s.T(), 5*time.Second, Variables().PollInterval)
	assert.Equal(s.T(), 4*time.Hour, Variables().EvalTimeout)
	assert.Equal(s.T(), "/opt/vlmevalkit/outputs", Variables().Outputs())
}

func (s *EnvTestSuite) TestProcessExplicitOutputs() {
	os.Setenv("EVALD_HARNESSOUTPUTS", "/data/outputs")
	defer os.Unsetenv("EVALD_HARNESSOUTPUTS")

	assert.Nil(s.T(), Process())
	assert.Equal(s.T(), "/data/outputs", Variables().Outputs())
}

func (s *EnvTestSuite) TestProcessInvalidTypeFailure() {
	os.Setenv("EVALD_POLLINTERVAL", "not_a_duration")
	defer os.Unsetenv("EVALD_POLLINTERVAL")

	assert.NotNil(s.T(), Process())
}

func (s *EnvTestSuite) TestProcessInvalidLogLevelFailure() {
	os.Setenv("EVALD_LOGLEVEL", "bogus")
	defer os.Unsetenv("EVALD_LOGLEVEL")

	assert.NotNil(s.T(), Process())
}

func TestEnvTestSuite(t *testing.T) {
	suite.Run(t, new(EnvTestSuite))
}
