// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package shell

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteCapturesStdout(t *testing.T) {
	stdout, stderr, err := Execute("echo", "hello")
	assert.NoError(t, err)
	assert.Equal(t, "hello\n", stdout)
	assert.Empty(t, stderr)
}

func TestExecuteArgsAreNotShellExpanded(t *testing.T) {
	// A shell would expand these; a direct exec must not.
	stdout, _, err := Execute("echo", "$HOME", "*", "a b")
	assert.NoError(t, err)
	assert.Equal(t, "$HOME * a b\n", stdout)
}

func TestExecuteStdin(t *testing.T) {
	stdout, _, err := NewExecBuilder("cat").
		Stdin("label: dos\n").
		ExecuteCaptureOuput()
	assert.NoError(t, err)
	assert.Equal(t, "label: dos\n", stdout)
}

func TestFailureReturnsExecError(t *testing.T) {
	_, _, err := Execute("cat", "/nonexistent-path-for-test")
	require.Error(t, err)

	execErr := &ExecError{}
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, 1, execErr.Result.ExitStatus)
	assert.Contains(t, execErr.Stderr, "nonexistent-path-for-test")
	assert.Contains(t, execErr.Error(), "cat")
}

func TestTeeFilesCreatedPerInvocation(t *testing.T) {
	dir := t.TempDir()
	SetTeeDirectory(dir)
	defer SetTeeDirectory("")

	_, _, err := Execute("echo", "first")
	require.NoError(t, err)
	_, _, err = Execute("echo", "second")
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 4)

	contents, err := os.ReadFile(filepath.Join(dir, "001-echo.stdout.log"))
	require.NoError(t, err)
	assert.Equal(t, "first\n", string(contents))
}

func TestFailureCarriesTeeLogPaths(t *testing.T) {
	dir := t.TempDir()
	SetTeeDirectory(dir)
	defer SetTeeDirectory("")

	_, _, err := Execute("cat", "/nonexistent-path-for-test")
	require.Error(t, err)

	execErr := &ExecError{}
	require.True(t, errors.As(err, &execErr))
	assert.FileExists(t, execErr.Result.StdoutLogPath)
	assert.FileExists(t, execErr.Result.StderrLogPath)
}

func TestStdoutCallback(t *testing.T) {
	lines := []string(nil)
	err := NewExecBuilder("echo", "one").
		StdoutCallback(func(line string) {
			lines = append(lines, line)
		}).
		Execute()
	assert.NoError(t, err)
	assert.Equal(t, []string{"one"}, lines)
}

func TestQuoteCommandLine(t *testing.T) {
	quoted := quoteCommandLine("losetup", []string{"--show", "-f", "my disk.raw"})
	assert.Equal(t, "losetup --show -f 'my disk.raw'", quoted)
}
