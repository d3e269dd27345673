package support

import (
	"fmt"
	"strings"

	"github.com/cucumber/godog"
)

// theErrorShouldMention verifies stderr or the exit error contains text,
// case-insensitively.
func (testCtx *TestContext) theErrorShouldMention(errorText string) error {
	if testCtx.LastError == nil && testCtx.LastExitCode == 0 {
		return fmt.Errorf("no error occurred, but expected error containing '%s'", errorText)
	}

	fullErrorText := testCtx.LastStderr + " " + testCtx.LastStdout
	if testCtx.LastError != nil {
		fullErrorText += " " + testCtx.LastError.Error()
	}
	if !strings.Contains(strings.ToLower(fullErrorText), strings.ToLower(errorText)) {
		return fmt.Errorf("error does not contain '%s'\nActual error: %s", errorText, fullErrorText)
	}
	return nil
}

// theExitCodeShouldBe verifies the process exit code.
func (testCtx *TestContext) theExitCodeShouldBe(code int) error {
	if testCtx.LastExitCode != code {
		return fmt.Errorf("exit code %d, expected %d\nStderr: %s", testCtx.LastExitCode, code, testCtx.LastStderr)
	}
	return nil
}

// theLogsShouldBeStructured verifies every stderr line is a JSON log record.
func (testCtx *TestContext) theLogsShouldBeStructured() error {
	for _, line := range strings.Split(strings.TrimSpace(testCtx.LastStderr), "\n") {
		if line == "" || strings.HasPrefix(line, "Error:") {
			continue
		}
		if _, err := decodeJSON(line); err != nil {
			return fmt.Errorf("log line is not JSON: %s", line)
		}
	}
	return nil
}

// RegisterErrorSteps registers error verification steps.
func (testCtx *TestContext) RegisterErrorSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the error should mention "([^"]*)"$`, testCtx.theErrorShouldMention)
	sc.Step(`^the exit code should be (\d+)$`, testCtx.theExitCodeShouldBe)
	sc.Step(`^the logs should be structured$`, testCtx.theLogsShouldBeStructured)
}
