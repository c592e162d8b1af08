package scriptconsole

import (
	"errors"
	"html"
	"regexp"
	"strings"
)

const (
	// JettyMarker shows up in the stack trace Jenkins renders when the
	// process could not be started, i.e. the shell prefix does not exist.
	JettyMarker = "org.eclipse.jetty.server."
	// NotRecognizedMarker is printed by cmd.exe for unknown commands.
	NotRecognizedMarker = "not recognized as"

	escapedStderrLabel = "err&amp;gt;"
	legacyLabelLength  = 12
)

var (
	ErrNoResultBlock = errors.New("response does not contain a script result block")

	preBlockRe      = regexp.MustCompile(`(?s)<pre>(.*?)</pre>`)
	labeledOutputRe = regexp.MustCompile(`(?s)^\s*out&amp;gt; (?P<stdout>.*)err&amp;gt; ?(?P<stderr>.*)$`)
)

// Outcome classifies a single attempt or the final result of an execution.
type Outcome int

const (
	OutcomeUnknownError Outcome = iota
	OutcomeSuccess
	OutcomeUnsupportedShell
	OutcomeInvalidCommand
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeUnsupportedShell:
		return "unsupported-shell"
	case OutcomeInvalidCommand:
		return "invalid-command"
	default:
		return "unknown-error"
	}
}

// ConsoleOutput is the command output extracted from the result block.
type ConsoleOutput struct {
	Raw     string
	Stdout  string
	Stderr  string
	Labeled bool
}

// Text is what the classification markers are matched against.
func (o ConsoleOutput) Text() string {
	if !o.Labeled {
		return o.Stdout
	}
	if o.Stderr == "" {
		return o.Stdout
	}
	return o.Stdout + "\n" + o.Stderr
}

// ExtractResultBlock returns the raw contents of the second <pre> element,
// which holds the script output on the console page.
func ExtractResultBlock(body string) (string, error) {
	blocks := preBlockRe.FindAllStringSubmatch(body, 2)
	if len(blocks) < 2 {
		return "", ErrNoResultBlock
	}
	return blocks[1][1], nil
}

// ParseOutput splits a result block into stdout and stderr using the
// out&gt; and err&gt; labels printed by the payload. When the labels are
// missing, e.g. because Jenkins rendered a stack trace, it falls back to
// dropping the label width and removing the stderr label.
func ParseOutput(block string) ConsoleOutput {
	if m := labeledOutputRe.FindStringSubmatch(block); m != nil {
		return ConsoleOutput{
			Raw:     block,
			Stdout:  html.UnescapeString(strings.TrimSpace(m[labeledOutputRe.SubexpIndex("stdout")])),
			Stderr:  html.UnescapeString(strings.TrimSpace(m[labeledOutputRe.SubexpIndex("stderr")])),
			Labeled: true,
		}
	}

	return ConsoleOutput{
		Raw:    block,
		Stdout: strings.TrimSpace(strings.ReplaceAll(dropRunes(block, legacyLabelLength), escapedStderrLabel, "")),
	}
}

func dropRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return ""
	}
	return string(runes[n:])
}

// Classify maps parsed output to an outcome. canRetry tells whether another
// shell prefix is left to try. Markers are matched against the whole result
// block as well as the extracted text.
func Classify(out ConsoleOutput, canRetry bool) Outcome {
	text := out.Raw + "\n" + out.Text()
	if strings.Contains(text, JettyMarker) {
		if canRetry {
			return OutcomeUnsupportedShell
		}
		return OutcomeInvalidCommand
	}
	if strings.Contains(text, NotRecognizedMarker) {
		return OutcomeInvalidCommand
	}
	return OutcomeSuccess
}

// Interpret extracts, parses and classifies a console response body.
func Interpret(body string, canRetry bool) (ConsoleOutput, Outcome, error) {
	block, err := ExtractResultBlock(body)
	if err != nil {
		return ConsoleOutput{}, OutcomeUnknownError, err
	}
	out := ParseOutput(block)
	return out, Classify(out, canRetry), nil
}
