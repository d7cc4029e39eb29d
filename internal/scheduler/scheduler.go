package scheduler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"FamilyBudget/internal/model"
	"FamilyBudget/internal/notifier"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// RolloverChecker is the part of ledger.Manager the cron job needs.
type RolloverChecker interface {
	CheckRollover() (*model.ArchiveEntry, error)
}

// Sender delivers notifications.
type Sender interface {
	SendWithRetry(ctx context.Context, msg notifier.Message, maxRetries int) error
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron         *cron.Cron
	Ledger       RolloverChecker
	Notifier     Sender
	Format       notifier.Formatter
	NotifyChatID int64
	KeepAliveURL string
	Client       *http.Client
	Ctx          context.Context

	log zerolog.Logger
}

// NewScheduler creates a new Scheduler. Cron expressions carry a seconds
// field and are evaluated in loc.
func NewScheduler(ctx context.Context, l RolloverChecker, sender Sender, format notifier.Formatter, loc *time.Location, log zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		Ledger:   l,
		Notifier: sender,
		Format:   format,
		Client:   &http.Client{Timeout: 15 * time.Second},
		Ctx:      ctx,
		log:      log,
	}
}

// RegisterAll registers the rollover check and, when a URL is configured,
// the keep-alive ping.
func (s *Scheduler) RegisterAll(rolloverCron, keepAliveCron string) error {
	if _, err := s.Cron.AddFunc(rolloverCron, s.rolloverTask); err != nil {
		return fmt.Errorf("register rollover task: %w", err)
	}
	if s.KeepAliveURL != "" {
		if _, err := s.Cron.AddFunc(keepAliveCron, s.keepAliveTask); err != nil {
			return fmt.Errorf("register keep-alive task: %w", err)
		}
	}
	return nil
}

// Run starts the cron scheduler and stops it when ctx is cancelled,
// waiting for running jobs.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Cron.Start()
	s.log.Info().Int("jobs", len(s.Cron.Entries())).Msg("scheduler started")
	<-ctx.Done()
	<-s.Cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
	return nil
}

// RunRolloverNow runs the rollover check immediately, e.g. on start.
func (s *Scheduler) RunRolloverNow() {
	s.rolloverTask()
}

func (s *Scheduler) rolloverTask() {
	entry, err := s.Ledger.CheckRollover()
	if err != nil {
		s.log.Error().Err(err).Msg("rollover check failed")
		return
	}
	if entry == nil {
		s.log.Debug().Msg("rollover check: period is current")
	}
}

// AnnounceRollover pushes the monthly summary to the family chat. It is
// meant as the ledger rollover hook and returns without waiting for the
// send.
func (s *Scheduler) AnnounceRollover(closed model.ArchiveEntry, next model.Report) {
	if s.NotifyChatID == 0 {
		return
	}
	text := s.Format.FormatMonthlySummary(closed, next)
	go s.trySend(text)
}

func (s *Scheduler) keepAliveTask() {
	ctx, cancel := context.WithTimeout(s.Ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.KeepAliveURL, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("keep-alive request")
		return
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		s.log.Warn().Err(err).Str("url", s.KeepAliveURL).Msg("keep-alive ping failed")
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		s.log.Warn().Int("status", resp.StatusCode).Str("url", s.KeepAliveURL).Msg("keep-alive ping failed")
		return
	}
	s.log.Debug().Int("status", resp.StatusCode).Msg("keep-alive ping")
}

func (s *Scheduler) trySend(text string) {
	msg := notifier.Message{ChatID: s.NotifyChatID, Text: text}
	if err := s.Notifier.SendWithRetry(s.Ctx, msg, 3); err != nil {
		s.log.Error().Err(err).Msg("send notification")
	}
}
