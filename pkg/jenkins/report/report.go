// Package report records services on which a command was executed.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/CompassSecurity/groovyleek/pkg/format"
	"github.com/CompassSecurity/groovyleek/pkg/jenkins/scriptconsole"
	"github.com/CompassSecurity/groovyleek/pkg/logging"
)

const ProtoTCP = "tcp"

// Record describes a service a command ran on.
type Record struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Proto   string `json:"proto"`
	Info    string `json:"info"`
	URL     string `json:"url"`
	Command string `json:"command"`
	Output  string `json:"output,omitempty"`
}

// FromResult builds the record for a successful execution.
func FromResult(res scriptconsole.Result) Record {
	return Record{
		Host:    res.Target.Host,
		Port:    res.Target.Port,
		Proto:   ProtoTCP,
		Info:    fmt.Sprintf("The command -- %s -- executed successfully on the remote system.", res.Command),
		URL:     res.Target.ScriptURL(),
		Command: res.Command,
		Output:  res.Stdout,
	}
}

// Reporter persists or publishes records.
type Reporter interface {
	Report(rec Record) error
}

// HitReporter logs records at hit level.
type HitReporter struct{}

func (HitReporter) Report(rec Record) error {
	logging.Hit().
		Str("host", rec.Host).
		Int("port", rec.Port).
		Str("proto", rec.Proto).
		Str("url", rec.URL).
		Str("command", rec.Command).
		Str("info", rec.Info).
		Msg("RCE")
	return nil
}

// FileReporter appends records as JSON lines.
type FileReporter struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewFileReporter opens path for appending.
func NewFileReporter(path string) (*FileReporter, error) {
	// #nosec G304 - report path is provided by the operator
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, format.FileUserReadWrite)
	if err != nil {
		return nil, fmt.Errorf("opening report file: %w", err)
	}
	return &FileReporter{file: f, enc: json.NewEncoder(f)}, nil
}

func (r *FileReporter) Report(rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.Encode(rec); err != nil {
		return fmt.Errorf("writing report record: %w", err)
	}
	return nil
}

func (r *FileReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}

// Multi fans a record out to several reporters.
type Multi []Reporter

func (m Multi) Report(rec Record) error {
	var errs []error
	for _, r := range m {
		if err := r.Report(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
