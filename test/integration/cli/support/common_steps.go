package support

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

const commandTimeout = 30 * time.Second

// substituteCommandVariables expands {catalog} and {tmp} in a command.
func (testCtx *TestContext) substituteCommandVariables(command string) string {
	return strings.NewReplacer(
		"{catalog}", testCtx.CatalogPath,
		"{tmp}", testCtx.TempDir,
	).Replace(command)
}

// splitCommand splits on whitespace; single quotes group words.
func splitCommand(command string) ([]string, error) {
	var (
		parts   []string
		current strings.Builder
		inQuote bool
		started bool
	)
	for _, r := range command {
		switch {
		case r == '\'':
			inQuote = !inQuote
			started = true
		case !inQuote && (r == ' ' || r == '\t'):
			if started {
				parts = append(parts, current.String())
				current.Reset()
				started = false
			}
		default:
			current.WriteRune(r)
			started = true
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote in command: %s", command)
	}
	if started {
		parts = append(parts, current.String())
	}
	return parts, nil
}

// iRunCommand executes a command and stores the result.
func (testCtx *TestContext) iRunCommand(command string) error {
	return testCtx.runCommand(command, "")
}

// iRunCommandWithInput executes a command with the doc string on stdin.
func (testCtx *TestContext) iRunCommandWithInput(command string, input *godog.DocString) error {
	return testCtx.runCommand(command, input.Content)
}

func (testCtx *TestContext) runCommand(command, stdin string) error {
	command = testCtx.substituteCommandVariables(command)
	testCtx.LastCommand = command

	parts, err := splitCommand(command)
	if err != nil {
		return err
	}
	if len(parts) == 0 {
		return errors.New("empty command")
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Dir = testCtx.WorkingDir
	cmd.Env = append(os.Environ(), testCtx.EnvVars...)
	cmd.Stdin = strings.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	testCtx.LastDuration = time.Since(start)
	testCtx.LastStdout = stdout.String()
	testCtx.LastStderr = stderr.String()
	testCtx.LastError = err

	if err != nil {
		exitError := &exec.ExitError{}
		if errors.As(err, &exitError) {
			testCtx.LastExitCode = exitError.ExitCode()
		} else {
			testCtx.LastExitCode = -1
		}
	} else {
		testCtx.LastExitCode = 0
	}
	return nil
}

// theCommandShouldSucceed verifies the command succeeded.
func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastExitCode != 0 {
		return fmt.Errorf("command failed with exit code %d: %w\nStdout: %s\nStderr: %s",
			testCtx.LastExitCode, testCtx.LastError, testCtx.LastStdout, testCtx.LastStderr)
	}
	return nil
}

// theCommandShouldFail verifies the command failed.
func (testCtx *TestContext) theCommandShouldFail() error {
	if testCtx.LastExitCode == 0 {
		return fmt.Errorf("command succeeded when it should have failed\nOutput: %s", testCtx.LastStdout)
	}
	return nil
}

// theOutputShouldContain verifies stdout contains specific text.
func (testCtx *TestContext) theOutputShouldContain(expectedText string) error {
	if !strings.Contains(testCtx.LastStdout, expectedText) {
		return fmt.Errorf("output does not contain '%s'\nActual output: %s", expectedText, testCtx.LastStdout)
	}
	return nil
}

// theOutputShouldNotContain verifies stdout does not contain specific text.
func (testCtx *TestContext) theOutputShouldNotContain(text string) error {
	if strings.Contains(testCtx.LastStdout, text) {
		return fmt.Errorf("output unexpectedly contains '%s'\nActual output: %s", text, testCtx.LastStdout)
	}
	return nil
}

// theOutputShouldBeValidJSON verifies stdout is a single JSON document.
func (testCtx *TestContext) theOutputShouldBeValidJSON() error {
	_, err := decodeJSON(testCtx.LastStdout)
	return err
}

// theOutputShouldHaveJSONLines verifies stdout holds n newline delimited JSON objects.
func (testCtx *TestContext) theOutputShouldHaveJSONLines(n int) error {
	lines := strings.Split(strings.TrimSpace(testCtx.LastStdout), "\n")
	if strings.TrimSpace(testCtx.LastStdout) == "" {
		lines = nil
	}
	if len(lines) != n {
		return fmt.Errorf("expected %d JSON lines, got %d\nOutput: %s", n, len(lines), testCtx.LastStdout)
	}
	for i, line := range lines {
		if _, err := decodeJSON(line); err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
	}
	return nil
}

// theJSONFieldShouldBe compares the value at a dotted path with expected.
func (testCtx *TestContext) theJSONFieldShouldBe(path, expected string) error {
	return jsonFieldEquals(testCtx.LastStdout, path, expected)
}

// theJSONShouldContain verifies a dotted path exists.
func (testCtx *TestContext) theJSONShouldContain(path string) error {
	doc, err := decodeJSON(testCtx.LastStdout)
	if err != nil {
		return err
	}
	_, err = lookupField(doc, path)
	return err
}

// theJSONShouldNotContain verifies a dotted path is absent.
func (testCtx *TestContext) theJSONShouldNotContain(path string) error {
	doc, err := decodeJSON(testCtx.LastStdout)
	if err != nil {
		return err
	}
	if _, err := lookupField(doc, path); err == nil {
		return fmt.Errorf("field '%s' unexpectedly present", path)
	}
	return nil
}

// theFileShouldExist verifies a file was written.
func (testCtx *TestContext) theFileShouldExist(filename string) error {
	path := testCtx.substituteCommandVariables(filename)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("file %s does not exist: %w", path, err)
	}
	testCtx.TrackFile(path)
	return nil
}

// theFileShouldContain verifies a file contains specific text.
func (testCtx *TestContext) theFileShouldContain(filename, expected string) error {
	path := testCtx.substituteCommandVariables(filename)
	data, err := os.ReadFile(path) //nolint:gosec // G304: scenario controlled path
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if !strings.Contains(string(data), expected) {
		return fmt.Errorf("file %s does not contain '%s'\nContent: %s", path, expected, string(data))
	}
	return nil
}

func decodeJSON(s string) (any, error) {
	var doc any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &doc); err != nil {
		return nil, fmt.Errorf("output is not valid JSON: %w\nOutput: %s", err, s)
	}
	return doc, nil
}

// lookupField walks a dotted path; numeric parts index arrays.
func lookupField(doc any, path string) (any, error) {
	current := doc
	parts := strings.Split(path, ".")
	for i, part := range parts {
		switch node := current.(type) {
		case map[string]any:
			val, ok := node[part]
			if !ok {
				return nil, fmt.Errorf("field '%s' not found in JSON", strings.Join(parts[:i+1], "."))
			}
			current = val
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("invalid index '%s' at '%s'", part, strings.Join(parts[:i], "."))
			}
			current = node[idx]
		default:
			return nil, fmt.Errorf("cannot navigate into non-container field '%s'", strings.Join(parts[:i], "."))
		}
	}
	return current, nil
}

func jsonFieldEquals(body, path, expected string) error {
	doc, err := decodeJSON(body)
	if err != nil {
		return err
	}
	val, err := lookupField(doc, path)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(val); got != expected {
		return fmt.Errorf("field '%s' is '%s', expected '%s'", path, got, expected)
	}
	return nil
}

// RegisterCommonSteps registers command, output and file steps.
func (testCtx *TestContext) RegisterCommonSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I run "([^"]*)"$`, testCtx.iRunCommand)
	sc.Step(`^I run "([^"]*)" with input:$`, testCtx.iRunCommandWithInput)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, testCtx.theCommandShouldFail)

	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the output should not contain "([^"]*)"$`, testCtx.theOutputShouldNotContain)
	sc.Step(`^the output should be valid JSON$`, testCtx.theOutputShouldBeValidJSON)
	sc.Step(`^the output should have (\d+) JSON lines?$`, testCtx.theOutputShouldHaveJSONLines)
	sc.Step(`^the JSON field "([^"]*)" should be "([^"]*)"$`, testCtx.theJSONFieldShouldBe)
	sc.Step(`^the JSON should contain "([^"]*)"$`, testCtx.theJSONShouldContain)
	sc.Step(`^the JSON should not contain "([^"]*)"$`, testCtx.theJSONShouldNotContain)

	sc.Step(`^the file "([^"]*)" should exist$`, testCtx.theFileShouldExist)
	sc.Step(`^the file "([^"]*)" should contain "([^"]*)"$`, testCtx.theFileShouldContain)
}
