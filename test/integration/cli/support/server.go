package support

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"
)

const (
	serverStartTimeout = 15 * time.Second
	serverStopTimeout  = 15 * time.Second
)

// ServerProcess is a "labelscan serve" child process.
type ServerProcess struct {
	Cmd     *exec.Cmd
	Port    int
	BaseURL string
	Stderr  *bytes.Buffer

	done    chan struct{}
	waitErr error
}

// Exited reports whether the process has terminated.
func (s *ServerProcess) Exited() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// StartServer launches labelscan serve on a free port with extra arguments
// and waits until /health answers.
func (testCtx *TestContext) StartServer(extraArgs ...string) error {
	if testCtx.Server != nil {
		return errors.New("server is already running")
	}
	if testCtx.CatalogPath == "" {
		if err := testCtx.theProduceCatalogIsAvailable(); err != nil {
			return err
		}
	}

	port, err := freePort()
	if err != nil {
		return err
	}

	args := []string{
		"serve",
		"--host", "127.0.0.1",
		"--port", strconv.Itoa(port),
		"--catalog", testCtx.CatalogPath,
		"--backend", "none",
	}
	args = append(args, extraArgs...)

	cmd := exec.Command("labelscan", args...) //nolint:gosec // test binary on PATH
	cmd.Dir = testCtx.WorkingDir
	cmd.Env = append(os.Environ(), testCtx.EnvVars...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	srv := &ServerProcess{
		Cmd:     cmd,
		Port:    port,
		BaseURL: fmt.Sprintf("http://127.0.0.1:%d", port),
		Stderr:  stderr,
		done:    make(chan struct{}),
	}
	go func() {
		srv.waitErr = cmd.Wait()
		close(srv.done)
	}()
	testCtx.Server = srv

	if err := testCtx.waitForServerReady(); err != nil {
		_ = testCtx.StopServer()
		return fmt.Errorf("server failed to start: %w\nStderr: %s", err, stderr.String())
	}
	return nil
}

// StopServer sends SIGTERM and waits for the process to exit, killing it
// when the shutdown takes too long.
func (testCtx *TestContext) StopServer() error {
	srv := testCtx.Server
	if srv == nil {
		return nil
	}
	testCtx.Server = nil

	if !srv.Exited() {
		if err := srv.Cmd.Process.Signal(syscall.SIGTERM); err != nil {
			_ = srv.Cmd.Process.Kill()
		}
	}

	select {
	case <-srv.done:
		return nil
	case <-time.After(serverStopTimeout):
		if err := srv.Cmd.Process.Kill(); err != nil {
			return fmt.Errorf("failed to kill server process: %w", err)
		}
		<-srv.done
		return errors.New("server did not stop in time")
	}
}

// waitForServerReady polls /health until it answers or the process exits.
func (testCtx *TestContext) waitForServerReady() error {
	srv := testCtx.Server
	client := &http.Client{Timeout: time.Second}
	deadline := time.Now().Add(serverStartTimeout)

	for time.Now().Before(deadline) {
		if srv.Exited() {
			return fmt.Errorf("server exited early: %v", srv.waitErr)
		}
		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.BaseURL+"/health", nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server not ready after %s", serverStartTimeout)
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to find a free port: %w", err)
	}
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port, nil
}
