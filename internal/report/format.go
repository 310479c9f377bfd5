package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Format selects how an output is written.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatCSV      Format = "csv"
)

// ErrUnknownFormat is returned by ParseFormat and Write.
var ErrUnknownFormat = errors.New("unknown output format")

// Formats lists the supported formats.
func Formats() []Format {
	return []Format{FormatText, FormatMarkdown, FormatJSON, FormatYAML, FormatCSV}
}

// ParseFormat converts a flag value into a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "csv":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Write renders o to w in the given format.
func Write(w io.Writer, o *FinalOutput, format Format) error {
	switch format {
	case FormatText:
		return writeText(w, o)
	case FormatMarkdown:
		return writeMarkdown(w, o)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(o)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(o); err != nil {
			return err
		}
		return enc.Close()
	case FormatCSV:
		return writeCSV(w, o)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

const wrapWidth = 80

// Title turns a task name into a heading: "rfp-analysis" -> "Rfp Analysis".
func Title(task string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(task, "-", " "))
}

func wrap(text string, width int, indent string) string {
	wrapped := ansi.Wordwrap(text, width-len(indent), "")
	if indent == "" {
		return wrapped
	}
	lines := strings.Split(wrapped, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = indent + l
		}
	}
	return strings.Join(lines, "\n")
}

func writeText(w io.Writer, o *FinalOutput) error {
	var b strings.Builder

	b.WriteString("RFP / Proposal Draft\n---\n")
	if o.OrgName != "" {
		fmt.Fprintf(&b, "Organization: %s\n\n", o.OrgName)
	}
	if o.Background != "" {
		b.WriteString("Background:\n")
		b.WriteString(wrap(o.Background, wrapWidth, ""))
		b.WriteString("\n\n")
	}
	if len(o.Documents) > 0 {
		b.WriteString("Documents:\n")
		for _, d := range o.Documents {
			fmt.Fprintf(&b, "   • %s\n", d)
		}
		b.WriteString("\n")
	}

	for i, s := range o.Sections {
		fmt.Fprintf(&b, "%d. %s [%s]\n", i+1, Title(s.Task), s.Status)
		if s.ExecutedBy != "" && s.ExecutedBy != s.Role {
			fmt.Fprintf(&b, "   (delegated to %s)\n", s.ExecutedBy)
		}
		if s.Status == StatusSucceeded {
			b.WriteString(strings.TrimRight(s.Summary(), "\n"))
		} else {
			b.WriteString(wrap(s.Summary(), wrapWidth, "   "))
		}
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "Status: %s\n", o.Status)
	if o.Reason != "" {
		b.WriteString(wrap("Reason: "+o.Reason, wrapWidth, ""))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeMarkdown(w io.Writer, o *FinalOutput) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# Grant proposal: %s\n\n", o.OrgName)
	fmt.Fprintf(&b, "**Run:** `%s`  \n**Status:** %s\n", o.RunID, o.Status)
	if o.Reason != "" {
		fmt.Fprintf(&b, "**Reason:** %s\n", o.Reason)
	}
	if o.Background != "" {
		fmt.Fprintf(&b, "\n## Background\n\n%s\n", o.Background)
	}
	if len(o.Documents) > 0 {
		b.WriteString("\n## Documents\n\n")
		for _, d := range o.Documents {
			fmt.Fprintf(&b, "- %s\n", d)
		}
	}

	for i, s := range o.Sections {
		fmt.Fprintf(&b, "\n## %d. %s\n\n", i+1, Title(s.Task))
		if s.Status == StatusSucceeded {
			b.WriteString(strings.TrimRight(s.Summary(), "\n"))
			b.WriteString("\n")
			continue
		}
		b.WriteString(blockquote(s.Summary()))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// blockquote renders text as an italic markdown quote, one quoted line per
// input line so multi-line reasons stay inside the quote.
func blockquote(text string) string {
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		if line = strings.TrimSpace(line); line == "" {
			b.WriteString(">\n")
			continue
		}
		fmt.Fprintf(&b, "> _%s_\n", line)
	}
	return b.String()
}

func writeCSV(w io.Writer, o *FinalOutput) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"task", "role", "executed_by", "status", "attempts", "error_kind", "failure_reason", "output"}); err != nil {
		return err
	}
	for _, s := range o.Sections {
		output := ""
		if s.Output != nil {
			output = *s.Output
		}
		row := []string{s.Task, s.Role, s.ExecutedBy, s.Status, strconv.Itoa(s.Attempts), s.ErrorKind, s.FailureReason, output}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
