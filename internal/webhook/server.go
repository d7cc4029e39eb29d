// Package webhook receives Telegram updates over HTTPS instead of long
// polling.
package webhook

import (
	"context"
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"FamilyBudget/internal/notifier"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// SecretHeader carries the secret_token given to setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// QueueSize bounds the updates accepted but not yet handled.
var QueueSize = 64

// recentIDs remembers the last update IDs accepted so that Telegram
// redeliveries are handled once.
const recentIDs = 512

// Server serves the webhook path and a health probe. Accepted updates are
// acknowledged immediately and handled one at a time by a worker started
// in Run, so a slow reply never holds the HTTP request open.
type Server struct {
	app    *fiber.App
	handle notifier.UpdateHandler
	secret string
	log    zerolog.Logger

	queue chan notifier.Update

	mu   sync.Mutex
	seen map[int]struct{}
	ring []int
	next int
}

// New builds the HTTP app. Updates posted to path are passed to handle in
// arrival order.
func New(path, secret string, handle notifier.UpdateHandler, log zerolog.Logger) *Server {
	s := &Server{
		handle: handle,
		secret: secret,
		log:    log,
		queue:  make(chan notifier.Update, QueueSize),
		seen:   make(map[int]struct{}, recentIDs),
		ring:   make([]int, 0, recentIDs),
	}
	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			message := "internal error"
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				code = fiberErr.Code
				message = fiberErr.Message
			}
			return c.Status(code).JSON(fiber.Map{"error": message})
		},
	})
	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.app.Post(path, s.requireSecret(), s.receive)
	return s
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) requireSecret() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if s.secret == "" {
			return c.Next()
		}
		got := c.Get(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.secret)) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid secret token")
		}
		return c.Next()
	}
}

func (s *Server) receive(c *fiber.Ctx) error {
	var u notifier.Update
	if err := c.BodyParser(&u); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid update")
	}
	if u.Text() == "" {
		return c.SendStatus(fiber.StatusOK)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.seen[u.UpdateID]; dup {
		s.log.Debug().Int("update", u.UpdateID).Msg("duplicate webhook update ignored")
		return c.SendStatus(fiber.StatusOK)
	}
	select {
	case s.queue <- u:
	default:
		// Not remembered, so Telegram's retry is accepted later.
		s.log.Warn().Int("update", u.UpdateID).Msg("webhook queue full")
		return fiber.NewError(fiber.StatusServiceUnavailable, "busy")
	}
	s.remember(u.UpdateID)
	s.log.Debug().Int("update", u.UpdateID).Int64("from", u.SenderID()).Msg("webhook update queued")
	return c.SendStatus(fiber.StatusOK)
}

// remember records id, evicting the oldest once recentIDs are held.
// Callers hold s.mu.
func (s *Server) remember(id int) {
	if len(s.ring) < recentIDs {
		s.ring = append(s.ring, id)
	} else {
		delete(s.seen, s.ring[s.next])
		s.ring[s.next] = id
		s.next = (s.next + 1) % recentIDs
	}
	s.seen[id] = struct{}{}
}

// work hands queued updates to the handler until ctx is cancelled.
func (s *Server) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-s.queue:
			s.handle(ctx, u)
		}
	}
}

// Run starts the update worker and listens on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	go s.work(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("webhook server listening")
		errCh <- s.app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
			return err
		}
		s.log.Info().Msg("webhook server stopped")
		return nil
	}
}
