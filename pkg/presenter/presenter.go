// Package presenter renders skillsync's user facing output: status lines,
// sync summaries, lock file diffs and line based prompts. Logs go through
// pkg/logger instead.
package presenter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// SyncStats summarises the outcome of a sync run
type SyncStats struct {
	Discovered int
	UpToDate   int
	Installed  int
	Failed     int
}

// Presenter is the output surface used by the CLI
type Presenter interface {
	Error(err error, context string)
	Success(message string)
	Warning(message string)
	Info(message string)
	Section(title string)
	List(items []string)
	Diff(unified string)
	Ask(question string, options ...string) (string, error)
	Prompt(question string, options ...string) string
	Stats(stats *SyncStats)
	Separator()
	SetQuiet(quiet bool)
	IsQuiet() bool
}

// ColorMode selects when output is colored
type ColorMode int

const (
	// ColorAuto leaves the decision to terminal detection
	ColorAuto ColorMode = iota
	// ColorAlways forces colored output
	ColorAlways
	// ColorNever disables colored output
	ColorNever
)

var (
	errorStyle   = color.New(color.FgRed, color.Bold)
	successStyle = color.New(color.FgGreen, color.Bold)
	warningStyle = color.New(color.FgYellow, color.Bold)
	headerStyle  = color.New(color.Bold)
	promptStyle  = color.New(color.FgCyan)
	statsStyle   = color.New(color.FgCyan, color.Bold)
	faintStyle   = color.New(color.Faint)
	addedStyle   = color.New(color.FgGreen)
	removedStyle = color.New(color.FgRed)
)

const separatorWidth = 60

// TerminalPresenter writes to a pair of terminal streams
type TerminalPresenter struct {
	input       *bufio.Reader
	output      io.Writer
	errorOutput io.Writer
	quiet       bool
}

// New creates a TerminalPresenter on stdio with the color mode taken from
// the environment.
func New() *TerminalPresenter {
	return NewWithOptions(os.Stdout, os.Stderr, detectColorMode())
}

// NewWithOptions creates a TerminalPresenter writing to output and
// errorOutput. The color mode applies process wide.
func NewWithOptions(output, errorOutput io.Writer, colorMode ColorMode) *TerminalPresenter {
	switch colorMode {
	case ColorAlways:
		color.NoColor = false
	case ColorNever:
		color.NoColor = true
	}

	return &TerminalPresenter{
		input:       bufio.NewReader(os.Stdin),
		output:      output,
		errorOutput: errorOutput,
	}
}

// SetInput replaces the reader prompts are answered from
func (p *TerminalPresenter) SetInput(r io.Reader) {
	p.input = bufio.NewReader(r)
}

func detectColorMode() ColorMode {
	if os.Getenv("NO_COLOR") != "" {
		return ColorNever
	}

	switch os.Getenv("SKILLSYNC_COLOR") {
	case "always", "force":
		return ColorAlways
	case "never", "off":
		return ColorNever
	default:
		return ColorAuto
	}
}

// line writes one styled line to stdout unless quiet
func (p *TerminalPresenter) line(style *color.Color, format string, args ...any) {
	if p.quiet {
		return
	}
	if style == nil {
		fmt.Fprintf(p.output, format+"\n", args...)
		return
	}
	style.Fprintf(p.output, format+"\n", args...)
}

// Error writes to stderr and ignores quiet mode
func (p *TerminalPresenter) Error(err error, context string) {
	if err == nil {
		return
	}
	if context != "" {
		errorStyle.Fprintf(p.errorOutput, "[ERROR] %s: %v\n", context, err)
		return
	}
	errorStyle.Fprintf(p.errorOutput, "[ERROR] %v\n", err)
}

// Success reports a completed step
func (p *TerminalPresenter) Success(message string) {
	p.line(successStyle, "✓ %s", message)
}

// Warning reports a non fatal problem
func (p *TerminalPresenter) Warning(message string) {
	p.line(warningStyle, "⚠ %s", message)
}

// Info writes a plain line
func (p *TerminalPresenter) Info(message string) {
	p.line(nil, "%s", message)
}

// Section writes an underlined header
func (p *TerminalPresenter) Section(title string) {
	p.line(headerStyle, "%s", title)
	p.line(headerStyle, "%s", strings.Repeat("-", len(title)))
}

// List writes items as an indented bullet list
func (p *TerminalPresenter) List(items []string) {
	for _, item := range items {
		p.line(nil, "  • %s", item)
	}
}

// Diff writes a unified diff, coloring added and removed lines
func (p *TerminalPresenter) Diff(unified string) {
	for _, l := range strings.Split(strings.TrimSuffix(unified, "\n"), "\n") {
		switch {
		case strings.HasPrefix(l, "+++"), strings.HasPrefix(l, "---"), strings.HasPrefix(l, "@@"):
			p.line(headerStyle, "%s", l)
		case strings.HasPrefix(l, "+"):
			p.line(addedStyle, "%s", l)
		case strings.HasPrefix(l, "-"):
			p.line(removedStyle, "%s", l)
		default:
			p.line(nil, "%s", l)
		}
	}
}

// Ask displays a question and returns the trimmed answer. It returns io.EOF
// when the input is closed before a line is read.
func (p *TerminalPresenter) Ask(question string, options ...string) (string, error) {
	if len(options) > 0 {
		promptStyle.Fprintf(p.output, "%s [%s]: ", question, strings.Join(options, "/"))
	} else {
		promptStyle.Fprintf(p.output, "%s: ", question)
	}

	response, err := p.input.ReadString('\n')
	if err != nil && (err != io.EOF || response == "") {
		return "", err
	}
	return strings.TrimSpace(response), nil
}

// Prompt is Ask with read errors reported as an empty answer
func (p *TerminalPresenter) Prompt(question string, options ...string) string {
	response, err := p.Ask(question, options...)
	if err != nil {
		return ""
	}
	return response
}

// Stats writes the one line sync summary
func (p *TerminalPresenter) Stats(stats *SyncStats) {
	if stats == nil {
		return
	}
	p.line(statsStyle, "[Sync Stats] Discovered: %d | Up to date: %d | Installed: %d | Failed: %d",
		stats.Discovered, stats.UpToDate, stats.Installed, stats.Failed)
}

// Separator writes a horizontal rule
func (p *TerminalPresenter) Separator() {
	p.line(faintStyle, "%s", strings.Repeat("-", separatorWidth))
}

// SetQuiet suppresses everything except errors and prompts
func (p *TerminalPresenter) SetQuiet(quiet bool) {
	p.quiet = quiet
}

// IsQuiet reports whether quiet mode is on
func (p *TerminalPresenter) IsQuiet() bool {
	return p.quiet
}

var defaultPresenter Presenter = New()

// Default returns the process wide presenter
func Default() Presenter {
	return defaultPresenter
}

// Error reports err through the default presenter
func Error(err error, context string) {
	defaultPresenter.Error(err, context)
}

// Info writes a plain line through the default presenter
func Info(message string) {
	defaultPresenter.Info(message)
}

// SetQuiet toggles quiet mode on the default presenter
func SetQuiet(quiet bool) {
	defaultPresenter.SetQuiet(quiet)
}
