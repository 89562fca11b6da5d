// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package shell runs external tools as child processes with structured
// argument vectors, streaming their output to the logger and to
// per-invocation log files.
package shell

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/martin-r-canonical-app/create-bootable-linux/internal/logger"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultWarnLogLines is the default number of initial stderr lines to
	// log at warn level when a command fails.
	DefaultWarnLogLines = 3

	// defaultErrorStderrLines is the number of trailing stderr lines
	// included in a command's error message.
	defaultErrorStderrLines = 1
)

var (
	teeDirMutex sync.Mutex
	teeDir      string
	teeSequence int
)

// SetTeeDirectory sets the directory that every subsequent invocation's
// stdout and stderr are teed into, one pair of log files per invocation.
// An empty string disables the tee.
func SetTeeDirectory(dir string) {
	teeDirMutex.Lock()
	defer teeDirMutex.Unlock()

	teeDir = dir
	teeSequence = 0
}

// Result describes the outcome of one external tool invocation.
type Result struct {
	ExitStatus    int
	StdoutLogPath string
	StderrLogPath string
}

// ExecError is returned when an invoked tool exits with a non-zero status.
// The caller decides whether the failure is fatal.
type ExecError struct {
	Command string
	Result  Result
	Stderr  string
	Err     error
}

func (e *ExecError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("command (%s) failed:\n%s\n%v", e.Command, e.Stderr, e.Err)
	}
	return fmt.Sprintf("command (%s) failed:\n%v", e.Command, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// ExecBuilder provides a fluent API for invoking an external tool.
type ExecBuilder struct {
	program          string
	args             []string
	stdinString      string
	workingDirectory string
	environment      []string
	stdoutLogLevel   logrus.Level
	stderrLogLevel   logrus.Level
	stdoutCallback   func(line string)
	stderrCallback   func(line string)
	errorStderrLines int
	warnLogLines     int
	noTee            bool
}

// NewExecBuilder creates an ExecBuilder for the given program and arguments.
// Arguments are passed to the process verbatim and are never interpreted by
// a shell.
func NewExecBuilder(program string, args ...string) ExecBuilder {
	return ExecBuilder{
		program:          program,
		args:             args,
		stdoutLogLevel:   logrus.DebugLevel,
		stderrLogLevel:   logrus.DebugLevel,
		errorStderrLines: defaultErrorStderrLines,
	}
}

// Stdin sets a string to provide on the process's stdin.
func (b ExecBuilder) Stdin(value string) ExecBuilder {
	b.stdinString = value
	return b
}

// WorkingDirectory sets the process's working directory.
func (b ExecBuilder) WorkingDirectory(dir string) ExecBuilder {
	b.workingDirectory = dir
	return b
}

// EnvironmentVariables sets the process's environment.
func (b ExecBuilder) EnvironmentVariables(env []string) ExecBuilder {
	b.environment = env
	return b
}

// LogLevel sets the log levels that the process's stdout and stderr lines
// are logged at.
func (b ExecBuilder) LogLevel(stdoutLogLevel logrus.Level, stderrLogLevel logrus.Level) ExecBuilder {
	b.stdoutLogLevel = stdoutLogLevel
	b.stderrLogLevel = stderrLogLevel
	return b
}

// StdoutCallback sets a callback invoked for every stdout line.
func (b ExecBuilder) StdoutCallback(callback func(line string)) ExecBuilder {
	b.stdoutCallback = callback
	return b
}

// StderrCallback sets a callback invoked for every stderr line.
func (b ExecBuilder) StderrCallback(callback func(line string)) ExecBuilder {
	b.stderrCallback = callback
	return b
}

// ErrorStderrLines sets the number of trailing stderr lines to include in
// the error when the process fails.
func (b ExecBuilder) ErrorStderrLines(lines int) ExecBuilder {
	b.errorStderrLines = lines
	return b
}

// WarnLogLines sets the number of initial stderr lines to re-log at warn
// level when the process fails.
func (b ExecBuilder) WarnLogLines(lines int) ExecBuilder {
	b.warnLogLines = lines
	return b
}

// NoTee disables the per-invocation log files for this invocation.
func (b ExecBuilder) NoTee() ExecBuilder {
	b.noTee = true
	return b
}

// Execute runs the process to completion.
func (b ExecBuilder) Execute() error {
	_, _, err := b.execute()
	return err
}

// ExecuteCaptureOuput runs the process to completion and returns its full
// stdout and stderr.
func (b ExecBuilder) ExecuteCaptureOuput() (string, string, error) {
	return b.execute()
}

func (b ExecBuilder) execute() (stdoutResult string, stderrResult string, err error) {
	commandLine := quoteCommandLine(b.program, b.args)
	logger.Log.Debugf("Executing: %s", commandLine)

	cmd := exec.Command(b.program, b.args...)
	cmd.Dir = b.workingDirectory
	cmd.Env = b.environment
	if b.stdinString != "" {
		cmd.Stdin = strings.NewReader(b.stdinString)
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return "", "", fmt.Errorf("failed to create stdout pipe for (%s):\n%w", b.program, err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return "", "", fmt.Errorf("failed to create stderr pipe for (%s):\n%w", b.program, err)
	}

	result := Result{}
	var stdoutTee, stderrTee *os.File
	if !b.noTee {
		stdoutTee, stderrTee, result.StdoutLogPath, result.StderrLogPath, err = openTeeFiles(b.program)
		if err != nil {
			return "", "", err
		}
	}
	if stdoutTee != nil {
		defer stdoutTee.Close()
		defer stderrTee.Close()
	}

	err = cmd.Start()
	if err != nil {
		return "", "", fmt.Errorf("failed to start (%s):\n%w", b.program, err)
	}

	var wg sync.WaitGroup
	var stdoutBuilder, stderrBuilder strings.Builder

	wg.Add(2)
	go func() {
		defer wg.Done()
		consumeStream(stdoutPipe, stdoutTee, &stdoutBuilder, b.stdoutLogLevel, b.stdoutCallback)
	}()
	go func() {
		defer wg.Done()
		consumeStream(stderrPipe, stderrTee, &stderrBuilder, b.stderrLogLevel, b.stderrCallback)
	}()
	wg.Wait()

	waitErr := cmd.Wait()

	stdoutResult = stdoutBuilder.String()
	stderrResult = stderrBuilder.String()

	result.ExitStatus = cmd.ProcessState.ExitCode()
	logger.Log.Debugf("Completed (exit status %d): %s", result.ExitStatus, commandLine)

	if waitErr != nil {
		if b.warnLogLines > 0 {
			for _, line := range headLines(stderrResult, b.warnLogLines) {
				logger.Log.Warn(line)
			}
		}

		err = &ExecError{
			Command: commandLine,
			Result:  result,
			Stderr:  strings.Join(tailLines(stderrResult, b.errorStderrLines), "\n"),
			Err:     waitErr,
		}
		return stdoutResult, stderrResult, err
	}

	return stdoutResult, stderrResult, nil
}

// Execute runs the given program and returns its full stdout and stderr.
func Execute(program string, args ...string) (stdout string, stderr string, err error) {
	return NewExecBuilder(program, args...).ExecuteCaptureOuput()
}

// ExecuteLive runs the given program, streaming its output to the logger at
// info level. When squashErrors is set, stderr is logged at info level as
// well instead of warn.
func ExecuteLive(squashErrors bool, program string, args ...string) error {
	stderrLevel := logrus.WarnLevel
	if squashErrors {
		stderrLevel = logrus.InfoLevel
	}

	return NewExecBuilder(program, args...).
		LogLevel(logrus.InfoLevel, stderrLevel).
		Execute()
}

func openTeeFiles(program string) (stdoutFile *os.File, stderrFile *os.File,
	stdoutPath string, stderrPath string, err error,
) {
	teeDirMutex.Lock()
	defer teeDirMutex.Unlock()

	if teeDir == "" {
		return nil, nil, "", "", nil
	}

	teeSequence++
	base := fmt.Sprintf("%03d-%s", teeSequence, filepath.Base(program))
	stdoutPath = filepath.Join(teeDir, base+".stdout.log")
	stderrPath = filepath.Join(teeDir, base+".stderr.log")

	stdoutFile, err = os.Create(stdoutPath)
	if err != nil {
		return nil, nil, "", "", fmt.Errorf("failed to create command log file (%s):\n%w", stdoutPath, err)
	}

	stderrFile, err = os.Create(stderrPath)
	if err != nil {
		stdoutFile.Close()
		return nil, nil, "", "", fmt.Errorf("failed to create command log file (%s):\n%w", stderrPath, err)
	}

	return stdoutFile, stderrFile, stdoutPath, stderrPath, nil
}

func consumeStream(pipe io.Reader, tee *os.File, builder *strings.Builder,
	level logrus.Level, callback func(line string),
) {
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		builder.WriteString(line)
		builder.WriteString("\n")

		if tee != nil {
			fmt.Fprintln(tee, line)
		}

		logger.Log.Log(level, line)

		if callback != nil {
			callback(line)
		}
	}
}

func headLines(value string, count int) []string {
	lines := splitNonEmptyLines(value)
	if len(lines) > count {
		lines = lines[:count]
	}
	return lines
}

func tailLines(value string, count int) []string {
	lines := splitNonEmptyLines(value)
	if len(lines) > count {
		lines = lines[len(lines)-count:]
	}
	return lines
}

func splitNonEmptyLines(value string) []string {
	lines := []string(nil)
	for _, line := range strings.Split(value, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func quoteCommandLine(program string, args []string) string {
	parts := []string{quoteArg(program)}
	for _, arg := range args {
		parts = append(parts, quoteArg(arg))
	}
	return strings.Join(parts, " ")
}

func quoteArg(arg string) string {
	if arg == "" || strings.ContainsAny(arg, " \t\n\"'\\$&|;<>(){}*?") {
		return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
	}
	return arg
}
