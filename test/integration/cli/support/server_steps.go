package support

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/cucumber/godog"
	"github.com/gorilla/websocket"
)

const httpTimeout = 10 * time.Second

// theLabelServerIsRunning starts the server with default options.
func (testCtx *TestContext) theLabelServerIsRunning() error {
	return testCtx.StartServer()
}

// theLabelServerIsRunningWith starts the server with extra serve flags.
func (testCtx *TestContext) theLabelServerIsRunningWith(args string) error {
	parts, err := splitCommand(testCtx.substituteCommandVariables(args))
	if err != nil {
		return err
	}
	return testCtx.StartServer(parts...)
}

func (testCtx *TestContext) serverURL(endpoint string) (string, error) {
	if testCtx.Server == nil {
		return "", fmt.Errorf("server is not running")
	}
	return testCtx.Server.BaseURL + endpoint, nil
}

// doRequest sends req and records status, body and headers.
func (testCtx *TestContext) doRequest(req *http.Request) error {
	client := &http.Client{Timeout: httpTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = string(body)
	testCtx.LastHTTPHeaders = map[string]string{}
	for k := range resp.Header {
		testCtx.LastHTTPHeaders[k] = resp.Header.Get(k)
	}
	return nil
}

// iGET sends a GET request.
func (testCtx *TestContext) iGET(endpoint string) error {
	url, err := testCtx.serverURL(endpoint)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return testCtx.doRequest(req)
}

// iPOSTJSON sends the doc string as a JSON body.
func (testCtx *TestContext) iPOSTJSON(endpoint string, body *godog.DocString) error {
	url, err := testCtx.serverURL(endpoint)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, strings.NewReader(body.Content))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return testCtx.doRequest(req)
}

// iUpload posts a temp file as a multipart field.
func (testCtx *TestContext) iUpload(name, field, endpoint string) error {
	return testCtx.upload(endpoint, field, []string{name}, nil)
}

// iUploadWithField posts a temp file plus one extra form value.
func (testCtx *TestContext) iUploadWithField(name, field, endpoint, key, value string) error {
	return testCtx.upload(endpoint, field, []string{name}, map[string]string{key: value})
}

// iUploadFiles posts several comma separated temp files under one field.
func (testCtx *TestContext) iUploadFiles(names, field, endpoint string) error {
	var list []string
	for _, n := range strings.Split(names, ",") {
		if n = strings.TrimSpace(n); n != "" {
			list = append(list, n)
		}
	}
	return testCtx.upload(endpoint, field, list, nil)
}

func (testCtx *TestContext) upload(endpoint, field string, names []string, values map[string]string) error {
	url, err := testCtx.serverURL(endpoint)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, name := range names {
		data, err := os.ReadFile(testCtx.TempPath(name))
		if err != nil {
			return fmt.Errorf("failed to read upload %s: %w", name, err)
		}
		part, err := w.CreateFormFile(field, filepath.Base(name))
		if err != nil {
			return err
		}
		if _, err := part.Write(data); err != nil {
			return err
		}
	}
	for k, v := range values {
		if err := w.WriteField(k, v); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return testCtx.doRequest(req)
}

// iStreamThePayloadOverTheScanSocket opens /ws/scan with stop_on_resolved,
// sends one payload frame and records the result message.
func (testCtx *TestContext) iStreamThePayloadOverTheScanSocket(payload string) error {
	if testCtx.Server == nil {
		return fmt.Errorf("server is not running")
	}
	url := "ws" + strings.TrimPrefix(testCtx.Server.BaseURL, "http") + "/ws/scan?stop_on_resolved=true"

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("failed to open scan socket: %w", err)
	}
	_ = resp.Body.Close()
	defer func() { _ = conn.Close() }()

	read := func() (map[string]any, error) {
		if err := conn.SetReadDeadline(time.Now().Add(httpTimeout)); err != nil {
			return nil, err
		}
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			return nil, fmt.Errorf("failed to read scan message: %w", err)
		}
		return msg, nil
	}

	if msg, err := read(); err != nil {
		return err
	} else if msg["type"] != "started" {
		return fmt.Errorf("expected started message, got %v", msg)
	}

	if err := conn.WriteJSON(map[string]string{"name": "camera", "payload": payload}); err != nil {
		return fmt.Errorf("failed to send frame: %w", err)
	}

	for {
		msg, err := read()
		if err != nil {
			return err
		}
		switch msg["type"] {
		case "result":
			data, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			testCtx.LastHTTPResponse = string(data)
		case "done":
			return nil
		case "error":
			return fmt.Errorf("scan socket error: %v", msg["error"])
		}
	}
}

// theResponseStatusShouldBe verifies the last HTTP status.
func (testCtx *TestContext) theResponseStatusShouldBe(expected int) error {
	if testCtx.LastHTTPStatusCode != expected {
		return fmt.Errorf("expected status %d, got %d\nBody: %s", expected, testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	return nil
}

// theResponseJSONFieldShouldBe compares a dotted path in the last response.
func (testCtx *TestContext) theResponseJSONFieldShouldBe(path, expected string) error {
	return jsonFieldEquals(testCtx.LastHTTPResponse, path, expected)
}

// theResponseShouldContain verifies the last response body contains text.
func (testCtx *TestContext) theResponseShouldContain(text string) error {
	if !strings.Contains(testCtx.LastHTTPResponse, text) {
		return fmt.Errorf("response does not contain '%s'\nBody: %s", text, testCtx.LastHTTPResponse)
	}
	return nil
}

// theResponseHeaderShouldBeSet verifies a header is present and not empty.
func (testCtx *TestContext) theResponseHeaderShouldBeSet(name string) error {
	if testCtx.LastHTTPHeaders[http.CanonicalHeaderKey(name)] == "" {
		return fmt.Errorf("header %s not set; headers: %v", name, testCtx.LastHTTPHeaders)
	}
	return nil
}

// iSendSIGTERMToTheServer asks the server to shut down.
func (testCtx *TestContext) iSendSIGTERMToTheServer() error {
	if testCtx.Server == nil {
		return fmt.Errorf("server is not running")
	}
	return testCtx.Server.Cmd.Process.Signal(syscall.SIGTERM)
}

// theServerShouldShutDownGracefully waits for a clean exit.
func (testCtx *TestContext) theServerShouldShutDownGracefully() error {
	srv := testCtx.Server
	if srv == nil {
		return fmt.Errorf("server is not running")
	}
	select {
	case <-srv.done:
	case <-time.After(serverStopTimeout):
		return fmt.Errorf("server did not exit after SIGTERM")
	}
	testCtx.Server = nil

	if srv.waitErr != nil {
		return fmt.Errorf("server exited with error: %w\nStderr: %s", srv.waitErr, srv.Stderr.String())
	}
	if !strings.Contains(srv.Stderr.String(), "Graceful shutdown completed") {
		return fmt.Errorf("no graceful shutdown log\nStderr: %s", srv.Stderr.String())
	}
	return nil
}

// RegisterServerSteps registers HTTP server steps.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the label server is running$`, testCtx.theLabelServerIsRunning)
	sc.Step(`^the label server is running with "([^"]*)"$`, testCtx.theLabelServerIsRunningWith)
	sc.Step(`^I GET "([^"]*)"$`, testCtx.iGET)
	sc.Step(`^I POST JSON to "([^"]*)":$`, testCtx.iPOSTJSON)
	sc.Step(`^I upload "([^"]*)" as "([^"]*)" to "([^"]*)"$`, testCtx.iUpload)
	sc.Step(`^I upload "([^"]*)" as "([^"]*)" to "([^"]*)" with "([^"]*)" set to "([^"]*)"$`, testCtx.iUploadWithField)
	sc.Step(`^I upload the files "([^"]*)" as "([^"]*)" to "([^"]*)"$`, testCtx.iUploadFiles)
	sc.Step(`^I stream the payload "([^"]*)" over the scan socket$`, testCtx.iStreamThePayloadOverTheScanSocket)
	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response JSON field "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseJSONFieldShouldBe)
	sc.Step(`^the response should contain "([^"]*)"$`, testCtx.theResponseShouldContain)
	sc.Step(`^the response header "([^"]*)" should be set$`, testCtx.theResponseHeaderShouldBeSet)
	sc.Step(`^I send SIGTERM to the server$`, testCtx.iSendSIGTERMToTheServer)
	sc.Step(`^the server should shut down gracefully$`, testCtx.theServerShouldShutDownGracefully)
}
