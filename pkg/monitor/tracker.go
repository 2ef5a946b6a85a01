package monitor

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/fatih/color"
)

// Status represents the state of a connection being served
type Status string

const (
	// StatusActive indicates the request is being handled
	StatusActive Status = "active"
	// StatusCompleted indicates a response was sent
	StatusCompleted Status = "completed"
	// StatusFailed indicates the connection ended without a complete response
	StatusFailed Status = "failed"
)

// RequestProgress represents the progress of a single request
type RequestProgress struct {
	ID        string
	Status    Status
	StartTime time.Time
	EndTime   time.Time
	Message   string
}

// Tracker is an interface for observing requests served by the server
type Tracker interface {
	// Start is called once the listener is bound
	Start(addr string)
	// RequestStarted marks a connection as accepted
	RequestStarted(id string)
	// RequestCompleted marks a request as answered
	RequestCompleted(id, method, path string, status int, bytes int64)
	// RequestFailed marks a connection as ended with an error
	RequestFailed(id, message string)
	// Finish is called when the server stops
	Finish()
}

// Stats is a snapshot of the tracker counters
type Stats struct {
	Active    int
	Completed int
	Failed    int
	ByClass   map[int]int // status class (2, 3, 4, 5) to count
}

// ConsoleTracker implements Tracker as a colored access log
type ConsoleTracker struct {
	mu        sync.Mutex
	writer    io.Writer
	quiet     bool
	requests  map[string]*RequestProgress
	startTime time.Time
	completed int
	failed    int
	byClass   map[int]int
}

// NewConsoleTracker creates a tracker printing to stdout
func NewConsoleTracker() *ConsoleTracker {
	return &ConsoleTracker{
		writer:   os.Stdout,
		requests: make(map[string]*RequestProgress),
		byClass:  make(map[int]int),
	}
}

// WithWriter sets the writer for the console tracker
func (t *ConsoleTracker) WithWriter(writer io.Writer) *ConsoleTracker {
	t.writer = writer
	return t
}

// Quiet disables per-request lines; the summary is still printed
func (t *ConsoleTracker) Quiet(quiet bool) *ConsoleTracker {
	t.quiet = quiet
	return t
}

// Start prints the listening banner
func (t *ConsoleTracker) Start(addr string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.startTime = time.Now()
	t.completed = 0
	t.failed = 0
	t.byClass = make(map[int]int)

	fmt.Fprintf(t.writer, "Listening on %s\n", color.CyanString(addr))
}

// RequestStarted marks a connection as accepted
func (t *ConsoleTracker) RequestStarted(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.requests[id] = &RequestProgress{
		ID:        id,
		Status:    StatusActive,
		StartTime: time.Now(),
	}
}

// RequestCompleted prints one access line and updates the counters
func (t *ConsoleTracker) RequestCompleted(id, method, path string, status int, bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var elapsed time.Duration
	if progress, ok := t.requests[id]; ok {
		elapsed = time.Since(progress.StartTime)
		delete(t.requests, id)
	}

	t.completed++
	t.byClass[status/100]++

	if t.quiet {
		return
	}
	fmt.Fprintf(t.writer, "%s %s %s %d bytes %s\n",
		colorStatus(status), printable(method), printable(path), bytes, elapsed.Round(time.Microsecond))
}

// RequestFailed prints the failure and updates the counters
func (t *ConsoleTracker) RequestFailed(id, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.requests, id)
	t.failed++

	if t.quiet {
		return
	}
	fmt.Fprintf(t.writer, "%s %s\n", color.RedString("ERR"), printable(message))
}

// Finish prints a summary of everything served
func (t *ConsoleTracker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()

	duration := time.Since(t.startTime).Round(time.Second)
	fmt.Fprintf(t.writer, "\nServer stopped after %s\n", duration)
	fmt.Fprintf(t.writer, "Served %d requests: %s 2xx, %s 3xx, %s 4xx, %s 5xx, %d failed\n",
		t.completed,
		color.GreenString("%d", t.byClass[2]),
		color.CyanString("%d", t.byClass[3]),
		color.YellowString("%d", t.byClass[4]),
		color.RedString("%d", t.byClass[5]),
		t.failed)
}

// Stats returns a snapshot of the counters
func (t *ConsoleTracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	byClass := make(map[int]int, len(t.byClass))
	for k, v := range t.byClass {
		byClass[k] = v
	}
	return Stats{
		Active:    len(t.requests),
		Completed: t.completed,
		Failed:    t.failed,
		ByClass:   byClass,
	}
}

// printable quotes client-supplied text holding control characters so
// escape sequences never reach the terminal
func printable(s string) string {
	if strings.IndexFunc(s, unicode.IsControl) < 0 {
		return s
	}
	return strconv.Quote(s)
}

// colorStatus renders a status code in the color of its class
func colorStatus(status int) string {
	switch {
	case status >= 500:
		return color.RedString("%d", status)
	case status >= 400:
		return color.YellowString("%d", status)
	case status >= 300:
		return color.CyanString("%d", status)
	default:
		return color.GreenString("%d", status)
	}
}

// NopTracker ignores every event
type NopTracker struct{}

func (NopTracker) Start(string)                                        {}
func (NopTracker) RequestStarted(string)                               {}
func (NopTracker) RequestCompleted(string, string, string, int, int64) {}
func (NopTracker) RequestFailed(string, string)                        {}
func (NopTracker) Finish()                                             {}
