package testutil

// Shared test utilities for e2e tests.

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"
)

// RecordedRequest captures details of an HTTP request received by the mock server
type RecordedRequest struct {
	Method      string
	Path        string
	RawQuery    string
	Headers     http.Header
	Body        []byte
	ContentType string
}

type mockServerHandler struct {
	mu       sync.Mutex
	requests []RecordedRequest
	handler  http.HandlerFunc
}

func (m *mockServerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	bodyBytes, _ := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{
		Method:      r.Method,
		Path:        r.URL.Path,
		RawQuery:    r.URL.RawQuery,
		Headers:     r.Header.Clone(),
		Body:        bodyBytes,
		ContentType: r.Header.Get("Content-Type"),
	})
	m.mu.Unlock()

	m.handler(w, r)
}

// StartMockServer creates a new HTTP test server with request recording
func StartMockServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, func() []RecordedRequest, func()) {
	t.Helper()
	mh := &mockServerHandler{handler: handler}
	server := httptest.NewServer(mh)
	cleanup := func() { server.Close() }
	get := func() []RecordedRequest {
		mh.mu.Lock()
		defer mh.mu.Unlock()
		return append([]RecordedRequest{}, mh.requests...)
	}
	return server, get, cleanup
}

// AssertLogContains checks if the output contains all expected strings
func AssertLogContains(t *testing.T, output string, expected []string) {
	t.Helper()
	for _, exp := range expected {
		if !strings.Contains(output, exp) {
			t.Errorf("expected output to contain %q, but it didn't.\nOutput:\n%s", exp, output)
		}
	}
}

// RequestsTo filters recorded requests by method and path.
func RequestsTo(requests []RecordedRequest, method, path string) []RecordedRequest {
	var out []RecordedRequest
	for _, req := range requests {
		if req.Method == method && req.Path == path {
			out = append(out, req)
		}
	}
	return out
}

// RunCLI executes the groovyleek binary with args, capturing stdout/stderr, with timeout.
// It is safe to call from parallel tests.
func RunCLI(t *testing.T, args []string, env []string, timeout time.Duration) (stdout, stderr string, exitErr error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Config files are ignored unless a test opts back in through env.
	envMap := make(map[string]string, len(os.Environ())+1)
	for _, e := range os.Environ() {
		if k, v, ok := strings.Cut(e, "="); ok {
			envMap[k] = v
		}
	}
	envMap["GROOVYLEEK_NO_CONFIG"] = "1"
	for _, e := range env {
		if k, v, ok := strings.Cut(e, "="); ok {
			envMap[k] = v
		}
	}
	envSlice := make([]string, 0, len(envMap))
	for k, v := range envMap {
		envSlice = append(envSlice, k+"="+v)
	}

	var outBuf, errBuf bytes.Buffer
	err := executeCLI(ctx, args, envSlice, &outBuf, &errBuf)

	if ctx.Err() == context.DeadlineExceeded {
		err = fmt.Errorf("command timed out after %v", timeout)
	}

	return outBuf.String(), errBuf.String(), err
}

var (
	binaryResolved string
	binaryBuildErr error
	buildOnce      sync.Once
)

func buildBinary(moduleDir, outputPath string) error {
	cmd := exec.Command("go", "build", "-o", outputPath, "./cmd/groovyleek")
	cmd.Dir = moduleDir
	cmd.Env = os.Environ()
	return cmd.Run()
}

// findModuleRoot searches upwards for the directory containing go.mod.
func findModuleRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for dir := wd; ; dir = filepath.Dir(dir) {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		if filepath.Dir(dir) == dir {
			break
		}
	}
	return "", fmt.Errorf("module root not found from %s", wd)
}

// resolveBinary returns the path to the groovyleek binary, building it once if necessary.
// GROOVYLEEK_BINARY points to a prebuilt binary instead.
func resolveBinary() (string, error) {
	if binPath := os.Getenv("GROOVYLEEK_BINARY"); binPath != "" {
		if !filepath.IsAbs(binPath) {
			if moduleDir, err := findModuleRoot(); err == nil {
				return filepath.Join(moduleDir, binPath), nil
			}
		}
		return binPath, nil
	}

	buildOnce.Do(func() {
		tmpDir, err := os.MkdirTemp("", "groovyleek-e2e-")
		if err != nil {
			binaryBuildErr = err
			return
		}
		tmpBin := filepath.Join(tmpDir, "groovyleek")
		if runtime.GOOS == "windows" {
			tmpBin += ".exe"
		}
		moduleDir, err := findModuleRoot()
		if err != nil {
			binaryBuildErr = err
			return
		}
		if err := buildBinary(moduleDir, tmpBin); err != nil {
			binaryBuildErr = err
			return
		}
		binaryResolved = tmpBin
	})

	if binaryBuildErr != nil {
		return "", fmt.Errorf("failed to build groovyleek test binary: %w", binaryBuildErr)
	}
	return binaryResolved, nil
}

func executeCLI(ctx context.Context, args []string, env []string, stdout, stderr io.Writer) error {
	binPath, err := resolveBinary()
	if err != nil {
		return err
	}

	// #nosec G204 -- binPath is the test binary path, intentionally variable for testing
	cmd := exec.CommandContext(ctx, binPath, args...)
	cmd.Env = env
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

// ConsolePage renders a script console result page the way Jenkins does:
// the submitted script and the output each in a <pre> block.
func ConsolePage(output string) string {
	return "<html><body><pre>script</pre><h2>Result</h2><pre>" + output + "</pre></body></html>"
}

// JettyErrorPage is what Jenkins answers when the process could not be started.
const JettyErrorPage = `<html><body><pre>script</pre><pre>java.io.IOException: Cannot run program "cmd.exe"
	at org.eclipse.jetty.server.handler.HandlerWrapper.handle(HandlerWrapper.java:97)</pre></body></html>`
