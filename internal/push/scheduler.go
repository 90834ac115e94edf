package push

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/chorequest/internal/model"

	"github.com/robfig/cron/v3"
)

// OverdueLister lists incomplete assigned chores whose due date has passed.
type OverdueLister interface {
	ListOverdue(now time.Time) ([]model.Chore, error)
}

// SentLog deduplicates scheduled notifications.
type SentLog interface {
	RecordSent(userID int64, notifType, refID string) (bool, error)
	CleanupSent(before time.Time) (int64, error)
}

// SessionPruner removes expired login sessions.
type SessionPruner interface {
	DeleteExpired() (int64, error)
}

// Scheduler runs the periodic jobs: overdue chore reminders and housekeeping.
type Scheduler struct {
	cron     *cron.Cron
	notifier *Notifier
	chores   OverdueLister
	sent     SentLog
	sessions SessionPruner
	loc      *time.Location
	logger   *slog.Logger
	now      func() time.Time
}

// NewScheduler creates a scheduler whose cron specs are interpreted in loc.
func NewScheduler(notifier *Notifier, chores OverdueLister, sent SentLog, sessions SessionPruner, loc *time.Location, logger *slog.Logger) *Scheduler {
	logger = logger.With("component", "scheduler")
	cl := cronLogger{logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		notifier: notifier,
		chores:   chores,
		sent:     sent,
		sessions: sessions,
		loc:      loc,
		logger:   logger,
		now:      time.Now,
	}
}

// Schedule registers the reminder job on reminderSpec (standard five-field
// cron syntax) and the hourly housekeeping job.
func (s *Scheduler) Schedule(reminderSpec string) error {
	if _, err := s.cron.AddFunc(reminderSpec, func() {
		if _, err := s.SendOverdueReminders(context.Background()); err != nil {
			s.logger.Error("overdue reminders", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule reminders %q: %w", reminderSpec, err)
	}
	if _, err := s.cron.AddFunc("@hourly", s.Cleanup); err != nil {
		return fmt.Errorf("schedule cleanup: %w", err)
	}
	return nil
}

// AddFunc registers an extra job.
func (s *Scheduler) AddFunc(spec, name string, job func()) error {
	if _, err := s.cron.AddFunc(spec, job); err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// SendOverdueReminders sends each assignee one push per day listing their
// overdue chores. It returns how many users were notified.
func (s *Scheduler) SendOverdueReminders(ctx context.Context) (int, error) {
	now := s.now()
	overdue, err := s.chores.ListOverdue(now)
	if err != nil {
		return 0, fmt.Errorf("list overdue: %w", err)
	}

	byUser := make(map[int64][]string)
	var order []int64
	for _, c := range overdue {
		uid := *c.AssigneeID
		if _, ok := byUser[uid]; !ok {
			order = append(order, uid)
		}
		byUser[uid] = append(byUser[uid], c.Title)
	}

	refID := "overdue-" + now.In(s.loc).Format(time.DateOnly)
	notified := 0
	for _, uid := range order {
		inserted, err := s.sent.RecordSent(uid, model.NotifTypeChoreOverdue, refID)
		if err != nil {
			return notified, err
		}
		if !inserted {
			continue
		}
		if s.notifier.NotifyUser(ctx, uid, model.NotifTypeChoreOverdue, overduePayload(byUser[uid])) > 0 {
			notified++
		}
	}
	if notified > 0 {
		s.logger.Info("sent overdue reminders", "users", notified)
	}
	return notified, nil
}

func overduePayload(titles []string) Payload {
	body := fmt.Sprintf("You have %d overdue chores: %s", len(titles), strings.Join(titles, ", "))
	if len(titles) == 1 {
		body = fmt.Sprintf("Overdue: %s", titles[0])
	}
	return Payload{
		Title:  "Chores Overdue",
		Body:   body,
		URL:    "/chores?status=overdue",
		Tag:    "chore-overdue",
		Urgent: true,
	}
}

// Cleanup prunes expired sessions and sent-notification records older than
// a week.
func (s *Scheduler) Cleanup() {
	if n, err := s.sessions.DeleteExpired(); err != nil {
		s.logger.Error("delete expired sessions", "error", err)
	} else if n > 0 {
		s.logger.Debug("deleted expired sessions", "count", n)
	}

	if n, err := s.sent.CleanupSent(s.now().Add(-7 * 24 * time.Hour)); err != nil {
		s.logger.Error("cleanup sent notifications", "error", err)
	} else if n > 0 {
		s.logger.Debug("cleaned up sent notifications", "count", n)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
