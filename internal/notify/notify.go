package notify

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

type Kind string

const (
	KindWelcome       Kind = "welcome"
	KindLogin         Kind = "login"
	KindFriendRequest Kind = "friend_request"
	KindMessage       Kind = "message"
	KindGroupMessage  Kind = "group_message"
)

// Task is a best-effort notification for one user.
type Task struct {
	Kind   Kind   `json:"kind"`
	UserID string `json:"userId"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// Sender delivers a task over one channel (log, web push, ...).
type Sender interface {
	Name() string
	Send(ctx context.Context, task Task) error
}

// Queue hands tasks to a fixed pool of workers. Producers never block:
// when the buffer is full the task is dropped.
type Queue struct {
	tasks   chan Task
	senders []Sender
	logger  *slog.Logger
}

func NewQueue(size int, logger *slog.Logger, senders ...Sender) *Queue {
	return &Queue{
		tasks:   make(chan Task, size),
		senders: senders,
		logger:  logger.With("component", "notify"),
	}
}

// Enqueue reports whether the task was accepted.
func (q *Queue) Enqueue(task Task) bool {
	select {
	case q.tasks <- task:
		return true
	default:
		q.logger.Warn("notification queue full, dropping task", "kind", task.Kind, "user_id", task.UserID)
		return false
	}
}

// Run processes tasks until ctx is cancelled.
func (q *Queue) Run(ctx context.Context, workers int) error {
	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gCtx.Done():
					return nil
				case task := <-q.tasks:
					q.deliver(gCtx, task)
				}
			}
		})
	}
	return g.Wait()
}

func (q *Queue) deliver(ctx context.Context, task Task) {
	for _, s := range q.senders {
		if err := s.Send(ctx, task); err != nil {
			q.logger.Error("notification failed", "sender", s.Name(), "kind", task.Kind, "user_id", task.UserID, "error", err)
		}
	}
}

// LogSender writes tasks to the log. It stands in for email delivery.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With("component", "notify")}
}

func (l *LogSender) Name() string {
	return "log"
}

func (l *LogSender) Send(_ context.Context, task Task) error {
	l.logger.Info("notification", "kind", task.Kind, "user_id", task.UserID, "title", task.Title)
	return nil
}
