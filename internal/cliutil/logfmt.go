package cliutil

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"

	"areazero/internal/config"
	"areazero/internal/engine"
)

// TextTimestampLayout is the timestamp prefix used for text output.
const TextTimestampLayout = "2006-01-02 15:04:05.000000"

const (
	ansiReset  = "\x1b[0m"
	ansiYellow = "\x1b[33m"
	ansiRed    = "\x1b[31m"
)

// LogRecord represents a structured log event ready for JSON encoding.
type LogRecord struct {
	Timestamp  time.Time `json:"ts"`
	Type       string    `json:"type"`
	Level      string    `json:"level"`
	Message    string    `json:"msg"`
	Pid        int       `json:"pid,omitempty"`
	Generation int       `json:"generation,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// NewLogRecord converts an engine event into a structured log record.
func NewLogRecord(event engine.Event) LogRecord {
	level := event.Level
	if level == "" {
		level = "info"
	}
	record := LogRecord{
		Timestamp:  event.Timestamp,
		Type:       string(event.Type),
		Level:      level,
		Message:    event.Message,
		Pid:        event.Pid,
		Generation: event.Generation,
	}
	if event.Err != nil {
		record.Error = event.Err.Error()
	}
	return record
}

// EncodeLogEvent encodes a log event to JSON, reporting errors to stderr if needed.
func EncodeLogEvent(enc *json.Encoder, stderr io.Writer, event engine.Event) {
	if enc == nil {
		return
	}
	record := NewLogRecord(event)
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	if err := enc.Encode(&record); err != nil {
		fmt.Fprintf(stderr, "error: encode log: %v\n", err)
	}
}

// FormatText renders an event as a single timestamped line without the
// trailing newline.
func FormatText(event engine.Event, color bool) string {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	line := "[" + ts.Format(TextTimestampLayout) + "] " + event.Message
	if !color {
		return line
	}
	switch NewLogRecord(event).Level {
	case "warn":
		return ansiYellow + line + ansiReset
	case "error":
		return ansiRed + line + ansiReset
	}
	return line
}

// Printer writes supervisor events to an output stream in either text or
// JSON form.
type Printer struct {
	mu     sync.Mutex
	out    io.Writer
	stderr io.Writer
	format string
	color  bool
	enc    *json.Encoder
}

// NewPrinter constructs a printer for the given format. Text output is
// coloured when out is a terminal.
func NewPrinter(out, stderr io.Writer, format string) *Printer {
	p := &Printer{out: out, stderr: stderr, format: format}
	if format == config.LogFormatJSON {
		p.enc = json.NewEncoder(out)
	} else if f, ok := out.(*os.File); ok {
		p.color = term.IsTerminal(int(f.Fd()))
	}
	return p
}

// Print writes a single event.
func (p *Printer) Print(event engine.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enc != nil {
		EncodeLogEvent(p.enc, p.stderr, event)
		return
	}
	if _, err := fmt.Fprintln(p.out, FormatText(event, p.color)); err != nil {
		fmt.Fprintf(p.stderr, "error: write log: %v\n", err)
	}
}

// Drain prints every event received until the channel is closed.
func (p *Printer) Drain(events <-chan engine.Event) {
	for evt := range events {
		p.Print(evt)
	}
}
