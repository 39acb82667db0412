// Package status carries progress updates from deep inside an operation to
// whoever is driving it (the CLI or a Lambda entry point) without threading a
// logger through every call.
package status

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultChannelSize is the default buffer size for the status channel
	DefaultChannelSize = 64

	// DefaultFlushTimeout bounds how long cleanup waits for pending updates
	DefaultFlushTimeout = 2 * time.Second
)

// Level represents the severity level of a status update
type Level string

const (
	LevelInfo     Level = "info"
	LevelProgress Level = "progress"
	LevelSuccess  Level = "success"
	LevelWarning  Level = "warning"
	LevelError    Level = "error"
)

// Update is a single progress message
type Update struct {
	Level   Level
	Message string

	// Resource is what is being operated on (e.g. "ssm-parameter", "helm-release")
	Resource string

	// Action is what is happening to it (e.g. "resolving", "upgrading")
	Action string

	Metadata  map[string]any
	Timestamp time.Time
}

// NewUpdate creates a new Update with the current timestamp
func NewUpdate(level Level, message string) Update {
	return Update{
		Level:     level,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WithResource sets the resource of the update
func (u Update) WithResource(resource string) Update {
	u.Resource = resource
	return u
}

// WithAction sets the action of the update
func (u Update) WithAction(action string) Update {
	u.Action = action
	return u
}

// WithMetadata adds a key/value pair to the update
func (u Update) WithMetadata(key string, value any) Update {
	if u.Metadata == nil {
		u.Metadata = make(map[string]any)
	}
	u.Metadata[key] = value
	return u
}

type contextKey string

const channelKey contextKey = "status-channel"

// WithChannel returns a context carrying ch
func WithChannel(ctx context.Context, ch chan<- Update) context.Context {
	return context.WithValue(ctx, channelKey, ch)
}

func channelFrom(ctx context.Context) chan<- Update {
	if ctx == nil {
		return nil
	}
	ch, _ := ctx.Value(channelKey).(chan<- Update)
	return ch
}

// Send delivers an update to the channel in ctx, if any. It never blocks;
// updates are dropped when the channel is full.
func Send(ctx context.Context, update Update) {
	ch := channelFrom(ctx)
	if ch == nil {
		return
	}

	if update.Timestamp.IsZero() {
		update.Timestamp = time.Now()
	}

	select {
	case ch <- update:
	default:
	}
}

// Handler processes a single update
type Handler func(Update)

// StartHandler attaches a channel to ctx and drains it with handler on a
// goroutine. The returned cleanup closes the channel and waits up to
// DefaultFlushTimeout for the drain to finish; defer it right away.
func StartHandler(ctx context.Context, handler Handler) (context.Context, func()) {
	return StartHandlerWithOptions(ctx, handler, DefaultChannelSize, DefaultFlushTimeout)
}

// StartHandlerWithOptions is StartHandler with explicit buffer size and flush timeout
func StartHandlerWithOptions(ctx context.Context, handler Handler, channelSize int, flushTimeout time.Duration) (context.Context, func()) {
	ch := make(chan Update, channelSize)
	ctx = WithChannel(ctx, ch)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for update := range ch {
			handler(update)
		}
	}()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			close(ch)

			done := make(chan struct{})
			go func() {
				wg.Wait()
				close(done)
			}()

			select {
			case <-done:
			case <-time.After(flushTimeout):
			}
		})
	}

	return ctx, cleanup
}

// LogHandler returns a Handler that writes each update to logger
func LogHandler(logger *slog.Logger) Handler {
	return func(update Update) {
		attrs := []any{"message", update.Message}
		if update.Resource != "" {
			attrs = append(attrs, "resource", update.Resource)
		}
		if update.Action != "" {
			attrs = append(attrs, "action", update.Action)
		}
		for key, value := range update.Metadata {
			attrs = append(attrs, key, value)
		}

		switch update.Level {
		case LevelWarning:
			logger.Warn("Warning", attrs...)
		case LevelError:
			logger.Error("Error", attrs...)
		case LevelProgress:
			logger.Info("Progress", attrs...)
		case LevelSuccess:
			logger.Info("Success", attrs...)
		default:
			logger.Info("Status", attrs...)
		}
	}
}
