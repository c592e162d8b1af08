// Package targets parses the Jenkins instances an operation runs against.
package targets

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

const (
	DefaultPort      = 80
	DefaultScriptURI = "/jenkins/script"
)

var ErrEmptyTarget = errors.New("empty target")

// Target is one Jenkins script console endpoint.
type Target struct {
	Scheme string
	Host   string
	Port   int
	Path   string
}

// Defaults applied to entries that do not carry their own port or path.
type Defaults struct {
	Port      int
	ScriptURI string
}

func (d Defaults) normalized() Defaults {
	if d.Port <= 0 {
		d.Port = DefaultPort
	}
	if d.ScriptURI == "" {
		d.ScriptURI = DefaultScriptURI
	}
	if !strings.HasPrefix(d.ScriptURI, "/") {
		d.ScriptURI = "/" + d.ScriptURI
	}
	return d
}

// Address returns host:port.
func (t Target) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// BaseURL returns scheme://host:port without a path.
func (t Target) BaseURL() string {
	return t.Scheme + "://" + t.Address()
}

// ScriptURL returns the absolute URL of the script console.
func (t Target) ScriptURL() string {
	return t.BaseURL() + t.Path
}

// RootURL returns the Jenkins root the script console lives under,
// e.g. http://host:8080/jenkins for /jenkins/script.
func (t Target) RootURL() string {
	root := path.Dir(strings.TrimSuffix(t.Path, "/"))
	if root == "/" || root == "." {
		return t.BaseURL()
	}
	return t.BaseURL() + root
}

func (t Target) String() string {
	return t.ScriptURL()
}

// Parse turns a single entry into a Target. Accepted forms are a full URL,
// host:port, a bare host, or a Shodan banner JSON object.
func Parse(entry string, defaults Defaults) (Target, error) {
	defaults = defaults.normalized()
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return Target{}, ErrEmptyTarget
	}

	if strings.HasPrefix(entry, "{") {
		return parseShodanBanner(entry, defaults)
	}

	if strings.Contains(entry, "://") {
		return parseURL(entry, defaults)
	}

	host, port := entry, defaults.Port
	if h, p, err := net.SplitHostPort(entry); err == nil {
		parsed, err := strconv.Atoi(p)
		if err != nil || parsed < 1 || parsed > 65535 {
			return Target{}, fmt.Errorf("invalid port in %q", entry)
		}
		host, port = h, parsed
	}

	return Target{
		Scheme: schemeForPort(port),
		Host:   host,
		Port:   port,
		Path:   defaults.ScriptURI,
	}, nil
}

// FromURL builds a target from a Jenkins base URL plus the script path.
// A URL that already points at a script console, i.e. its last path segment
// matches the last segment of the script path, is accepted as is.
func FromURL(raw string, defaults Defaults) (Target, error) {
	defaults = defaults.normalized()
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Target{}, fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Host == "" {
		return Target{}, fmt.Errorf("url %q has no host", raw)
	}

	port, err := urlPort(u)
	if err != nil {
		return Target{}, err
	}

	t := Target{Scheme: u.Scheme, Host: u.Hostname(), Port: port, Path: defaults.ScriptURI}

	base := strings.TrimSuffix(u.Path, "/")
	console := path.Base(defaults.ScriptURI)
	switch {
	case base == "":
	case path.Base(base) == console:
		t.Path = base
	default:
		t.Path = base + "/" + console
	}
	return t, nil
}

func parseURL(entry string, defaults Defaults) (Target, error) {
	u, err := url.Parse(entry)
	if err != nil {
		return Target{}, fmt.Errorf("invalid url %q: %w", entry, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Target{}, fmt.Errorf("unsupported scheme %q in %q", u.Scheme, entry)
	}
	if u.Host == "" {
		return Target{}, fmt.Errorf("url %q has no host", entry)
	}

	port, err := urlPort(u)
	if err != nil {
		return Target{}, err
	}

	t := Target{Scheme: u.Scheme, Host: u.Hostname(), Port: port, Path: defaults.ScriptURI}

	if p := strings.TrimSuffix(u.Path, "/"); p != "" {
		t.Path = p
	}
	return t, nil
}

func parseShodanBanner(entry string, defaults Defaults) (Target, error) {
	if !gjson.Valid(entry) {
		return Target{}, fmt.Errorf("invalid JSON target entry")
	}

	banner := gjson.Parse(entry)
	host := banner.Get("ip_str").String()
	if host == "" {
		host = banner.Get("hostnames.0").String()
	}
	if host == "" {
		return Target{}, fmt.Errorf("shodan banner without ip_str")
	}

	port := int(banner.Get("port").Int())
	if port == 0 {
		port = defaults.Port
	}

	scheme := schemeForPort(port)
	if banner.Get("ssl").Exists() {
		scheme = "https"
	}

	return Target{Scheme: scheme, Host: host, Port: port, Path: defaults.ScriptURI}, nil
}

func urlPort(u *url.URL) (int, error) {
	if u.Port() == "" {
		if u.Scheme == "https" {
			return 443, nil
		}
		return 80, nil
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port in %q", u.String())
	}
	return port, nil
}

func schemeForPort(port int) string {
	if port == 443 || port == 8443 {
		return "https"
	}
	return "http"
}

// Read parses one target per line. Blank lines and lines starting with # are skipped,
// invalid lines are logged and skipped.
func Read(r io.Reader, defaults Defaults) ([]Target, error) {
	var result []Target
	seen := map[string]bool{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		t, err := Parse(line, defaults)
		if err != nil {
			log.Warn().Err(err).Int("line", lineNo).Msg("Skipping invalid target")
			continue
		}
		if seen[t.ScriptURL()] {
			log.Debug().Str("target", t.String()).Msg("Skipping duplicate target")
			continue
		}
		seen[t.ScriptURL()] = true
		result = append(result, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading targets: %w", err)
	}
	return result, nil
}

// Load reads targets from a file.
func Load(file string, defaults Defaults) ([]Target, error) {
	// #nosec G304 - target list path is provided by the operator
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("opening targets file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Read(f, defaults)
}

// Collect merges a single URL and a targets file into one list.
func Collect(jenkinsURL string, targetsFile string, defaults Defaults) ([]Target, error) {
	var all []Target
	if jenkinsURL != "" {
		t, err := FromURL(jenkinsURL, defaults)
		if err != nil {
			return nil, err
		}
		all = append(all, t)
	}
	if targetsFile != "" {
		loaded, err := Load(targetsFile, defaults)
		if err != nil {
			return nil, err
		}
		all = append(all, loaded...)
	}
	if len(all) == 0 {
		return nil, errors.New("no targets given")
	}
	return all, nil
}
