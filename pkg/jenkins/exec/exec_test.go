package exec

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/CompassSecurity/groovyleek/pkg/jenkins/report"
	"github.com/CompassSecurity/groovyleek/pkg/jenkins/scriptconsole"
	"github.com/CompassSecurity/groovyleek/pkg/jenkins/targets"
	"github.com/CompassSecurity/groovyleek/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withCapturedLogs temporarily routes zerolog output to a buffer for assertions.
func withCapturedLogs(t *testing.T, level zerolog.Level, fn func(buf *bytes.Buffer)) {
	t.Helper()
	old := log.Logger
	buf := &bytes.Buffer{}
	log.Logger = zerolog.New(&lockedWriter{w: buf}).Level(level)
	defer func() { log.Logger = old }()
	fn(buf)
}

type lockedWriter struct {
	mu sync.Mutex
	w  *bytes.Buffer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func page(result string) string {
	return "<pre>chrome</pre><pre>" + result + "</pre>"
}

type hostRequester struct {
	mu    sync.Mutex
	calls map[string]int
	pages map[string]string
	errs  map[string]error
}

func (h *hostRequester) Post(_ context.Context, target targets.Target, _ string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.calls == nil {
		h.calls = map[string]int{}
	}
	h.calls[target.Host]++
	if err := h.errs[target.Host]; err != nil {
		return "", err
	}
	return h.pages[target.Host], nil
}

type recordingReporter struct {
	mu      sync.Mutex
	records []report.Record
}

func (r *recordingReporter) Report(rec report.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func target(host string) targets.Target {
	return targets.Target{Scheme: "http", Host: host, Port: 8080, Path: "/jenkins/script"}
}

func TestRun_MixedTargets(t *testing.T) {
	req := &hostRequester{
		pages: map[string]string{
			"ok":      page("out&amp;gt; jenkins\n err&amp;gt; \n"),
			"invalid": page("out&amp;gt; \n err&amp;gt; 'x' is not recognized as an internal command\n"),
			"login":   "<html>Authentication required</html>",
		},
		errs: map[string]error{"down": errors.New("connection refused")},
	}
	rep := &recordingReporter{}

	withCapturedLogs(t, zerolog.InfoLevel, func(buf *bytes.Buffer) {
		summary := Run(context.Background(), req, rep, Options{
			Targets: []targets.Target{target("ok"), target("invalid"), target("login"), target("down")},
			Command: "whoami",
			Shell:   scriptconsole.ShellAuto,
			Threads: 3,
		})

		assert.Equal(t, 1, summary.Succeeded)
		assert.Equal(t, 3, summary.Failed)
		assert.Len(t, summary.Results, 4)

		logs := buf.String()
		assert.Contains(t, logs, "The command executed. Output:")
		assert.Contains(t, logs, "The provided command is not valid. Try again.")
		assert.Equal(t, 2, strings.Count(logs, "An unknown error occurred when running the command."))
	})

	require.Len(t, rep.records, 1)
	assert.Equal(t, "ok", rep.records[0].Host)
	assert.Equal(t, "tcp", rep.records[0].Proto)

	for host, calls := range req.calls {
		assert.Equal(t, 1, calls, host)
	}
}

func TestRun_TransportFailureLogsOnceAndReportsNothing(t *testing.T) {
	req := &hostRequester{errs: map[string]error{"down": errors.New("timeout")}}
	rep := &recordingReporter{}

	withCapturedLogs(t, zerolog.DebugLevel, func(buf *bytes.Buffer) {
		summary := Run(context.Background(), req, rep, Options{
			Targets: []targets.Target{target("down")},
			Command: "whoami",
		})
		assert.Equal(t, 1, summary.Failed)

		errorLines := 0
		for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
			if strings.Contains(line, `"level":"error"`) {
				errorLines++
			}
		}
		assert.Equal(t, 1, errorLines)
	})

	assert.Empty(t, rep.records)
	assert.Equal(t, 1, req.calls["down"])
}

func TestRun_StripsEscapeSequencesFromOutput(t *testing.T) {
	req := &hostRequester{pages: map[string]string{"ok": page("out&amp;gt; \x1b[31mroot\x1b[0m\n err&amp;gt; \n")}}

	withCapturedLogs(t, zerolog.InfoLevel, func(buf *bytes.Buffer) {
		Run(context.Background(), req, nil, Options{Targets: []targets.Target{target("ok")}, Command: "id"})
		assert.Contains(t, buf.String(), `"message":"root"`)
		assert.NotContains(t, buf.String(), `\u001b`)
	})
}

func TestRunExec_WritesReportFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(page("out&amp;gt; jenkins\n err&amp;gt; \n")))
	}))
	defer server.Close()

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	reportFile := filepath.Join(t.TempDir(), "findings.jsonl")
	summary, err := RunExec(context.Background(), Options{
		Targets:    []targets.Target{{Scheme: "http", Host: u.Hostname(), Port: port, Path: "/jenkins/script"}},
		Command:    "whoami",
		Shell:      scriptconsole.ShellAuto,
		Threads:    1,
		ReportFile: reportFile,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)

	data, err := os.ReadFile(reportFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"info":"The command -- whoami -- executed successfully on the remote system."`)
}

func TestRunExec_SummaryCountsHits(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(page("out&amp;gt; jenkins\n err&amp;gt; \n")))
	}))
	defer server.Close()

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	hitWriter := &logging.HitLevelWriter{}
	hitWriter.SetOutput(&lockedWriter{w: buf})
	logging.SetGlobalHitWriter(hitWriter)
	defer logging.SetGlobalHitWriter(nil)

	old := log.Logger
	log.Logger = zerolog.New(hitWriter).Level(zerolog.InfoLevel)
	defer func() { log.Logger = old }()

	summary, err := RunExec(context.Background(), Options{
		Targets: []targets.Target{{Scheme: "http", Host: u.Hostname(), Port: port, Path: "/jenkins/script"}},
		Command: "whoami",
		Shell:   scriptconsole.ShellPosix,
		Threads: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, int64(1), logging.HitCount())
	assert.Contains(t, buf.String(), `"level":"hit"`)
	assert.Contains(t, buf.String(), `"hits":1`)
}
