package eventlog

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iambrandonn/docrun/internal/ndjson"
)

// Kind identifies an event record.
type Kind string

const (
	KindBuildStarted     Kind = "build_started"
	KindEnvironmentReset Kind = "environments_reset"
	KindDocumentPurged   Kind = "document_purged"
	KindDirective        Kind = "directive"
	KindDocumentRendered Kind = "document_rendered"
	KindDocumentFailed   Kind = "document_failed"
	KindBuildFinished    Kind = "build_finished"
)

// Directive outcomes.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusWarning = "warning"
	StatusError   = "error"
)

// Event is one line of a build's event log.
type Event struct {
	Kind       Kind      `json:"kind"`
	EventID    string    `json:"event_id"`
	BuildID    string    `json:"build_id"`
	OccurredAt time.Time `json:"occurred_at"`

	Doc    string `json:"doc,omitempty"`
	Line   int    `json:"line,omitempty"`
	Mode   string `json:"mode,omitempty"`
	Status string `json:"status,omitempty"`
	Reason string `json:"reason,omitempty"`

	// Message is the warning text or the error of a failed document.
	Message string `json:"message,omitempty"`

	Dependencies []string `json:"dependencies,omitempty"`

	OutputPath   string `json:"output_path,omitempty"`
	OutputSHA256 string `json:"output_sha256,omitempty"`
	OutputSize   int64  `json:"output_size,omitempty"`

	Counts map[string]int `json:"counts,omitempty"`
}

// EventLog appends events of one build to an NDJSON file.
type EventLog struct {
	file    *os.File
	encoder *ndjson.Encoder
	buildID string
	logger  *slog.Logger
	mu      sync.Mutex
}

// NewEventLog opens logPath for appending, creating it and its directory.
func NewEventLog(logPath, buildID string, logger *slog.Logger) (*EventLog, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &EventLog{
		file:    file,
		encoder: ndjson.NewEncoder(file, logger),
		buildID: buildID,
		logger:  logger,
	}, nil
}

// Write appends evt, filling in its id, build id and timestamp when unset.
func (l *EventLog) Write(evt Event) error {
	if evt.EventID == "" {
		evt.EventID = uuid.NewString()
	}
	if evt.BuildID == "" {
		evt.BuildID = l.buildID
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return errors.New("event log is closed")
	}
	if err := l.encoder.Encode(evt); err != nil {
		return fmt.Errorf("failed to write %s event: %w", evt.Kind, err)
	}
	return nil
}

// Close closes the event log file
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// ReadFile decodes every event in an event log file.
func ReadFile(path string, logger *slog.Logger) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()

	dec := ndjson.NewDecoder(f, logger)
	var events []Event
	for {
		var evt Event
		err := dec.Decode(&evt)
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return events, fmt.Errorf("failed to read event log %s: %w", path, err)
		}
		events = append(events, evt)
	}
}

// Latest returns the newest build log in dir. Log names embed a sortable UTC
// timestamp, so the newest is the last in name order.
func Latest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to list event logs: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".ndjson") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no event logs in %s", dir)
	}
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}
