package services

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunnerCapturesStdout(t *testing.T) {
	var out bytes.Buffer
	err := ExecRunner{}.Run(context.Background(), Command{
		Name:   "sh",
		Args:   []string{"-c", "printf hello"},
		Stdout: &out,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", out.String())
}

func TestExecRunnerPipesStdin(t *testing.T) {
	var out bytes.Buffer
	err := ExecRunner{}.Run(context.Background(), Command{
		Name:   "sh",
		Args:   []string{"-c", "cat"},
		Stdin:  strings.NewReader("piped input"),
		Stdout: &out,
	})
	require.NoError(t, err)
	assert.Equal(t, "piped input", out.String())
}

func TestExecRunnerAppliesExtraEnv(t *testing.T) {
	var out bytes.Buffer
	err := ExecRunner{}.Run(context.Background(), Command{
		Name:   "sh",
		Args:   []string{"-c", "printf %s \"$STATEVAULT_TEST_VAR\""},
		Env:    []string{"STATEVAULT_TEST_VAR=from-env"},
		Stdout: &out,
	})
	require.NoError(t, err)
	assert.Equal(t, "from-env", out.String())
}

func TestExecRunnerReportsExitAndStderr(t *testing.T) {
	err := ExecRunner{}.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo boom >&2; exit 3"},
	})
	require.Error(t, err)

	var perr *ProcessError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 3, perr.ExitCode)
	assert.Equal(t, "boom", perr.Stderr)
	assert.Contains(t, perr.Error(), "sh")
}

func TestExecRunnerHonorsContextDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := ExecRunner{}.Run(ctx, Command{Name: "sh", Args: []string{"-c", "sleep 10"}})
	require.Error(t, err)

	var perr *ProcessError
	require.ErrorAs(t, err, &perr)
}

func TestExecRunnerMissingBinary(t *testing.T) {
	err := ExecRunner{}.Run(context.Background(), Command{Name: "statevault-no-such-tool"})
	require.Error(t, err)

	var perr *ProcessError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, -1, perr.ExitCode)
	assert.NotEmpty(t, perr.Stderr)
}
