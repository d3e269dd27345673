// Package support holds the step definitions of the labelscan CLI feature
// suite. Every scenario gets its own TestContext with a private temp dir.
package support

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/labelscan/internal/testutil"
)

// TestContext holds the state of one scenario.
type TestContext struct {
	// Last command
	LastCommand  string
	LastStdout   string
	LastStderr   string
	LastError    error
	LastExitCode int
	LastDuration time.Duration

	WorkingDir  string
	TempDir     string
	CatalogPath string
	EnvVars     []string

	Server *ServerProcess

	// Last HTTP exchange with Server
	LastHTTPStatusCode int
	LastHTTPResponse   string
	LastHTTPHeaders    map[string]string

	// Files outside TempDir removed after the scenario
	CreatedFiles []string
}

// NewTestContext creates a scenario context that runs commands from the
// module root.
func NewTestContext() (*TestContext, error) {
	root, err := testutil.GetProjectRoot()
	if err != nil {
		return nil, fmt.Errorf("failed to locate module root: %w", err)
	}
	tempDir, err := os.MkdirTemp("", "labelscan-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	return &TestContext{
		WorkingDir:      root,
		TempDir:         tempDir,
		LastHTTPHeaders: map[string]string{},
	}, nil
}

// Register wires every step group into sc and cleans up after the scenario.
func (testCtx *TestContext) Register(sc *godog.ScenarioContext) {
	testCtx.RegisterCommonSteps(sc)
	testCtx.RegisterFixtureSteps(sc)
	testCtx.RegisterPDFSteps(sc)
	testCtx.RegisterServerSteps(sc)
	testCtx.RegisterErrorSteps(sc)
	sc.Step(`^the environment variable "([^"]*)" is "([^"]*)"$`, testCtx.theEnvironmentVariableIs)

	sc.After(func(ctx context.Context, _ *godog.Scenario, _ error) (context.Context, error) {
		if err := testCtx.Cleanup(); err != nil {
			fmt.Fprintf(os.Stderr, "scenario cleanup: %v\n", err)
		}
		return ctx, nil
	})
}

// Cleanup stops the server and removes every artifact of the scenario.
func (testCtx *TestContext) Cleanup() error {
	var errs []error
	if err := testCtx.StopServer(); err != nil {
		errs = append(errs, fmt.Errorf("stop server: %w", err))
	}
	for _, file := range testCtx.CreatedFiles {
		if err := os.Remove(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := os.RemoveAll(testCtx.TempDir); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (testCtx *TestContext) theEnvironmentVariableIs(name, value string) error {
	testCtx.AddEnvVar(name, testCtx.substituteCommandVariables(value))
	return nil
}

// AddEnvVar sets name=value for commands and servers started later in the
// scenario.
func (testCtx *TestContext) AddEnvVar(name, value string) {
	testCtx.EnvVars = append(testCtx.EnvVars, name+"="+value)
}

// TrackFile schedules a file outside TempDir for removal. Files inside TempDir
// go with it and are ignored.
func (testCtx *TestContext) TrackFile(filename string) {
	path := filename
	if !filepath.IsAbs(path) {
		path = filepath.Join(testCtx.WorkingDir, path)
	}
	if rel, err := filepath.Rel(testCtx.TempDir, path); err == nil && filepath.IsLocal(rel) {
		return
	}
	testCtx.CreatedFiles = append(testCtx.CreatedFiles, path)
}

// TempPath returns name inside the scenario's temp directory.
func (testCtx *TestContext) TempPath(name string) string {
	return filepath.Join(testCtx.TempDir, name)
}
