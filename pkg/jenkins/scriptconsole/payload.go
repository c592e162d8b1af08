package scriptconsole

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

const (
	// WindowsPrefix runs the command through cmd.exe.
	WindowsPrefix = "cmd.exe /c"
	// PosixPrefix leaves the command to be executed directly.
	PosixPrefix = ""

	DefaultKillTimeout = 1000

	FormContentType = "application/x-www-form-urlencoded"
)

var groovyLiteralEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", `\r`)

// EscapeGroovyLiteral escapes s for use inside a single quoted Groovy string.
// Line breaks become escape sequences since the literal must stay on one line.
func EscapeGroovyLiteral(s string) string {
	return groovyLiteralEscaper.Replace(s)
}

// ScriptLines returns the Groovy snippet that runs "<prefix> <command>",
// waits up to killTimeout milliseconds and prints stdout and stderr behind
// the out&gt; and err&gt; labels.
func ScriptLines(prefix string, command string, killTimeout int) []string {
	if killTimeout <= 0 {
		killTimeout = DefaultKillTimeout
	}
	invocation := EscapeGroovyLiteral(prefix + " " + command)

	return []string{
		"def sout = new StringBuffer(), serr = new StringBuffer()",
		fmt.Sprintf("def proc = '%s'.execute()", invocation),
		"proc.consumeProcessOutput(sout, serr)",
		fmt.Sprintf("proc.waitForOrKill(%d)", killTimeout),
		`println "out&gt; $sout err&gt; $serr"`,
	}
}

// Payload holds both encodings of the script the console endpoint accepts.
type Payload struct {
	Script string
	JSON   string
}

// BuildPayload renders the script as a plain form value (CRLF separated) and
// as the JSON document the console's structured form submits.
func BuildPayload(prefix string, command string, killTimeout int) (Payload, error) {
	lines := ScriptLines(prefix, command, killTimeout)

	script, err := jsonString(strings.Join(lines, "\n") + "\n")
	if err != nil {
		return Payload{}, err
	}
	statement, err := jsonString(strings.Join(lines[:3], "\n"))
	if err != nil {
		return Payload{}, err
	}

	return Payload{
		Script: strings.Join(lines, "\r\n") + "\r\n",
		JSON:   `{"script":` + script + `,"":` + statement + `}`,
	}, nil
}

// jsonString encodes s as a JSON string without HTML escaping. The json field
// is assembled by hand because its keys must keep the order the console's
// form submits them in and one of them is empty.
func jsonString(s string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", fmt.Errorf("encoding json field: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// Encode returns the application/x-www-form-urlencoded request body.
func (p Payload) Encode() string {
	return "script=" + url.QueryEscape(p.Script) +
		"&json=" + url.QueryEscape(p.JSON) +
		"&Submit=Run"
}

// BuildFormBody builds the payload and returns the encoded request body.
func BuildFormBody(prefix string, command string, killTimeout int) (string, error) {
	p, err := BuildPayload(prefix, command, killTimeout)
	if err != nil {
		return "", err
	}
	return p.Encode(), nil
}
