package scriptconsole

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/CompassSecurity/groovyleek/pkg/jenkins/targets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockJenkins struct {
	mu          sync.Mutex
	posts       []url.Values
	crumbHeader []string
	cookies     []string
	withCrumb   bool
	status      int
	respond     func(script string) string
}

func (m *mockJenkins) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/jenkins/crumbIssuer/api/json":
			if !m.withCrumb {
				http.NotFound(w, r)
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "JSESSIONID.abc", Value: "session-1", Path: "/"})
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"_class":"hudson.security.csrf.DefaultCrumbIssuer","crumb":"c0ffee","crumbRequestField":"Jenkins-Crumb"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/jenkins/script":
			assert.Equal(t, FormContentType, r.Header.Get("Content-Type"))
			raw, err := io.ReadAll(r.Body)
			assert.NoError(t, err)
			values, err := url.ParseQuery(string(raw))
			assert.NoError(t, err)

			cookie := ""
			if c, err := r.Cookie("JSESSIONID.abc"); err == nil {
				cookie = c.Value
			}

			m.mu.Lock()
			m.posts = append(m.posts, values)
			m.crumbHeader = append(m.crumbHeader, r.Header.Get("Jenkins-Crumb"))
			m.cookies = append(m.cookies, cookie)
			m.mu.Unlock()

			if m.status != 0 {
				w.WriteHeader(m.status)
			}
			_, _ = w.Write([]byte(consolePage(m.respond(values.Get("script")))))
		default:
			http.NotFound(w, r)
		}
	}
}

func targetFor(t *testing.T, serverURL string) targets.Target {
	t.Helper()
	u, err := url.Parse(serverURL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return targets.Target{Scheme: u.Scheme, Host: u.Hostname(), Port: port, Path: "/jenkins/script"}
}

// linuxJenkins fails cmd.exe invocations the way a Linux controller does.
func linuxJenkins(script string) string {
	if strings.Contains(script, "'cmd.exe /c") {
		return jettyTrace
	}
	return "out&amp;gt; jenkins\n err&amp;gt; \n"
}

func TestClient_PostWithCrumb(t *testing.T) {
	mock := &mockJenkins{withCrumb: true, respond: linuxJenkins}
	server := httptest.NewServer(mock.handler(t))
	defer server.Close()

	client, err := NewClient(true)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	res := Execute(context.Background(), client, targetFor(t, server.URL), Options{Command: "whoami", Shell: ShellAuto})

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, "jenkins", res.Stdout)
	assert.Equal(t, 2, res.Attempts)

	require.Len(t, mock.posts, 2)
	assert.Equal(t, []string{"c0ffee", "c0ffee"}, mock.crumbHeader)
	assert.Equal(t, []string{"session-1", "session-1"}, mock.cookies)
	assert.Equal(t, "Run", mock.posts[0].Get("Submit"))
	assert.NotEmpty(t, mock.posts[0].Get("json"))
}

func TestClient_PostWithoutCrumbIssuer(t *testing.T) {
	mock := &mockJenkins{respond: func(string) string { return "out&amp;gt; root\n err&amp;gt; \n" }}
	server := httptest.NewServer(mock.handler(t))
	defer server.Close()

	client, err := NewClient(true)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()
	client.crumbs.RetryMax = 0

	page, err := client.Post(context.Background(), targetFor(t, server.URL), "script=x&Submit=Run")
	require.NoError(t, err)
	assert.Contains(t, page, "out&amp;gt; root")
	assert.Equal(t, []string{""}, mock.crumbHeader)
}

func TestClient_ErrorStatusReturnsPage(t *testing.T) {
	mock := &mockJenkins{status: http.StatusForbidden, respond: func(string) string { return "denied" }}
	server := httptest.NewServer(mock.handler(t))
	defer server.Close()

	client, err := NewClient(false)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	page, err := client.Post(context.Background(), targetFor(t, server.URL), "script=x")
	require.NoError(t, err)
	assert.Contains(t, page, "denied")
	assert.Len(t, mock.posts, 1, "POST must not be retried")
}

func TestExecute_RetriesAfterJettyErrorPage(t *testing.T) {
	var mu sync.Mutex
	var scripts []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		script := r.PostForm.Get("script")
		mu.Lock()
		scripts = append(scripts, script)
		mu.Unlock()

		if strings.Contains(script, "'cmd.exe /c") {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(consolePage("Caused by: " + jettyTrace)))
			return
		}
		_, _ = w.Write([]byte(consolePage("out&amp;gt; jenkins\n err&amp;gt; \n")))
	}))
	defer server.Close()

	client, err := NewClient(false)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	res := Execute(context.Background(), client, targetFor(t, server.URL), Options{Command: "whoami", Shell: ShellAuto})

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, "jenkins", res.Stdout)
	assert.Equal(t, 2, res.Attempts)
	assert.Len(t, scripts, 2)
}

func TestExecute_ErrorPageWithoutResultBlock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("<html>Authentication required</html>"))
	}))
	defer server.Close()

	client, err := NewClient(false)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	res := Execute(context.Background(), client, targetFor(t, server.URL), Options{Command: "whoami"})
	assert.Equal(t, OutcomeUnknownError, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrNoResultBlock)
	assert.Equal(t, 1, res.Attempts)
}

func TestClient_TransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	target := targetFor(t, server.URL)
	server.Close()

	client, err := NewClient(false)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	res := Execute(context.Background(), client, target, Options{Command: "whoami"})
	assert.Equal(t, OutcomeUnknownError, res.Outcome)
	assert.Error(t, res.Err)
	assert.Equal(t, 1, res.Attempts)
}

func TestFetchCrumb(t *testing.T) {
	mock := &mockJenkins{withCrumb: true}
	server := httptest.NewServer(mock.handler(t))
	defer server.Close()

	client, err := NewClient(true)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	crumb, err := client.Crumb(context.Background(), targetFor(t, server.URL))
	require.NoError(t, err)
	assert.Equal(t, Crumb{Field: "Jenkins-Crumb", Value: "c0ffee"}, crumb)
}

func TestFetchCrumb_EmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client, err := NewClient(true)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	_, err = client.Crumb(context.Background(), targetFor(t, server.URL))
	assert.Error(t, err)
}
