// Package transcript writes an asynchronous per-user NDJSON log of dialogue
// turns.
package transcript

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

const (
	DefaultQueueSize = 256
	closeTimeout     = 5 * time.Second
)

// Direction of a logged turn relative to the bot.
const (
	Inbound  = "inbound"
	Outbound = "outbound"
)

// Event is one logged dialogue turn.
type Event struct {
	Time      time.Time `json:"time"`
	UserID    string    `json:"user_id"`
	Direction string    `json:"direction"`
	Kind      string    `json:"kind"`
	Text      string    `json:"text"`
	VenueIDs  []string  `json:"venue_ids,omitempty"`
}

// Config controls the logger. An empty Dir disables logging.
type Config struct {
	Dir       string
	QueueSize int
}

// Logger queues events and appends them to <Dir>/<user>.ndjson from a single
// worker goroutine. Log never blocks; when the queue is full the oldest
// queued event is dropped. Files are held open only for one append.
type Logger struct {
	dir    string
	queue  chan Event
	done   chan struct{}
	wg     sync.WaitGroup
	logger *slog.Logger

	closeOnce sync.Once
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// New creates a Logger. It returns nil, nil when cfg.Dir is empty.
func New(cfg Config, logger *slog.Logger) (*Logger, error) {
	if cfg.Dir == "" {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript directory: %w", err)
	}

	l := &Logger{
		dir:    cfg.Dir,
		queue:  make(chan Event, cfg.QueueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	l.wg.Add(1)
	go l.run()
	return l, nil
}

// Log queues ev. It is safe to call on a nil Logger.
func (l *Logger) Log(ev Event) {
	if l == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	select {
	case <-l.done:
		return
	default:
	}

	select {
	case l.queue <- ev:
		return
	default:
	}

	// Queue full: make room by dropping the oldest event.
	select {
	case <-l.queue:
		l.logger.Warn("Transcript queue full, dropped oldest event", "user_id", ev.UserID)
	default:
	}
	select {
	case l.queue <- ev:
	default:
		l.logger.Warn("Transcript event dropped", "user_id", ev.UserID)
	}
}

func (l *Logger) run() {
	defer l.wg.Done()
	for {
		select {
		case ev := <-l.queue:
			l.write(ev)
		case <-l.done:
			// Flush what is already queued.
			for {
				select {
				case ev := <-l.queue:
					l.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) write(ev Event) {
	line, err := json.Marshal(ev)
	if err != nil {
		l.logger.Warn("Failed to encode transcript event", "error", err)
		return
	}
	if err := l.appendLine(l.Path(ev.UserID), append(line, '\n')); err != nil {
		l.logger.Warn("Failed to write transcript event", "user_id", ev.UserID, "error", err)
	}
}

func (l *Logger) appendLine(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Path returns the transcript file for userID.
func (l *Logger) Path(userID string) string {
	name := unsafeName.ReplaceAllString(userID, "_")
	if name == "" {
		name = "_anonymous"
	}
	return filepath.Join(l.dir, name+".ndjson")
}

// Close flushes queued events. It is safe to call on a nil Logger and more
// than once.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}

	var err error
	l.closeOnce.Do(func() {
		close(l.done)

		stopped := make(chan struct{})
		go func() {
			l.wg.Wait()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(closeTimeout):
			l.logger.Warn("Transcript writer shutdown timeout", "queue_remaining", len(l.queue))
			err = fmt.Errorf("transcript: writer did not stop within %s", closeTimeout)
		}
	})
	return err
}
