package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"posclient/internal/domain/erp"
)

// Service queues offline-created entities and pushes them to the backend.
type Service struct {
	repo     Repository
	handlers map[string]Handler
	log      *slog.Logger
	now      func() time.Time
}

func NewService(repo Repository, handlers map[string]Handler, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		handlers: handlers,
		log:      log.With("component", "outbox_service"),
		now:      time.Now,
	}
}

// Enqueue stores a pending creation for the entity.
func (s *Service) Enqueue(ctx context.Context, entityType, entityLocalID string, payload any) (*Entry, error) {
	if entityType == "" || entityLocalID == "" {
		return nil, ErrEmptyEntity
	}
	if _, ok := s.handlers[entityType]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, entityType)
	}

	raw, ok := payload.(json.RawMessage)
	if !ok {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode outbox payload: %w", err)
		}
	}

	e := &Entry{
		LocalID:       uuid.NewString(),
		EntityType:    entityType,
		EntityLocalID: entityLocalID,
		Payload:       raw,
		Status:        StatusPending,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.repo.Insert(ctx, e); err != nil {
		return nil, fmt.Errorf("enqueue %s %s: %w", entityType, entityLocalID, err)
	}

	s.log.Debug("entry enqueued", "local_id", e.LocalID, "entity_type", entityType, "entity_local_id", entityLocalID)
	return e, nil
}

// PushPending pushes every pushable entry and reports whether anything was promoted.
func (s *Service) PushPending(ctx context.Context) (bool, error) {
	report, err := s.PushPendingWithReport(ctx)
	if report == nil {
		return false, err
	}
	return report.HasChanges, err
}

// PushPendingWithReport pushes every pushable entry once per entity. Per-entry
// failures are recorded on the entry and do not stop the cycle.
func (s *Service) PushPendingWithReport(ctx context.Context) (*PushReport, error) {
	entries, err := s.repo.Pushable(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pushable entries: %w", err)
	}

	report := &PushReport{}
	if len(entries) == 0 {
		return report, nil
	}

	s.log.Info("pushing outbox", "entries", len(entries))

	attempted := make(map[string]struct{}, len(entries))
	var errs []error

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		entityKey := e.EntityType + "\x00" + e.EntityLocalID
		if _, done := attempted[entityKey]; done {
			continue
		}
		attempted[entityKey] = struct{}{}

		if err := s.push(ctx, e, report); err != nil {
			errs = append(errs, err)
		}
	}

	s.log.Info("outbox push finished",
		"pushed", report.Pushed,
		"failed", report.Failed,
		"conflicts", len(report.Conflicts),
	)
	return report, errors.Join(errs...)
}

// push returns an error only for local failures; remote failures are recorded on the entry.
func (s *Service) push(ctx context.Context, e Entry, report *PushReport) error {
	log := s.log.With("local_id", e.LocalID, "entity_type", e.EntityType, "entity_local_id", e.EntityLocalID)

	h, ok := s.handlers[e.EntityType]
	if !ok {
		return s.fail(ctx, log, e, fmt.Errorf("%w: %s", ErrNoHandler, e.EntityType), report)
	}

	remoteID, err := s.create(ctx, log, h, e)
	if err != nil {
		return s.fail(ctx, log, e, err, report)
	}

	n, err := s.repo.Promote(ctx, e.EntityType, e.EntityLocalID, remoteID, s.now().UTC(), func(tx Tx) error {
		return h.Promote(ctx, tx, e.EntityLocalID, remoteID)
	})
	if err != nil {
		log.Error("promotion failed", "remote_id", remoteID, "error", err)
		report.Failed++
		if markErr := s.repo.MarkFailed(ctx, e.LocalID, err.Error(), false, s.now().UTC()); markErr != nil {
			return errors.Join(err, markErr)
		}
		return fmt.Errorf("promote %s %s: %w", e.EntityType, e.EntityLocalID, err)
	}

	log.Info("entity promoted", "remote_id", remoteID, "entries", n)
	report.Pushed++
	report.HasChanges = true
	return nil
}

// create returns the remote name for the entry. Documents that need a submit are
// recorded as drafts first, and a draft left by an earlier attempt is submitted
// instead of creating another document.
func (s *Service) create(ctx context.Context, log *slog.Logger, h Handler, e Entry) (string, error) {
	sub, submits := h.(Submitter)

	var name string
	if submits && e.RemoteDraft != nil && *e.RemoteDraft != "" {
		name = *e.RemoteDraft
		log.Info("resuming remote draft", "draft", name)
	} else {
		var err error
		name, err = h.Create(ctx, e.Payload)
		if err != nil {
			return "", err
		}
		if name == "" || erp.IsPlaceholder(name) {
			return "", fmt.Errorf("%w: %q", erp.ErrPlaceholderName, name)
		}
		if !submits {
			return name, nil
		}
		if err := s.repo.SaveDraft(ctx, e.LocalID, name); err != nil {
			log.Error("remote draft not recorded", "draft", name, "error", err)
		}
	}

	if err := sub.Submit(ctx, name); err != nil {
		return "", fmt.Errorf("submit %s: %w", name, err)
	}
	return name, nil
}

func (s *Service) fail(ctx context.Context, log *slog.Logger, e Entry, cause error, report *PushReport) error {
	conflict := erp.IsConflict(cause)
	if conflict {
		log.Warn("push rejected as duplicate", "error", cause)
		report.Conflicts = append(report.Conflicts, Conflict{
			LocalID:       e.LocalID,
			EntityType:    e.EntityType,
			EntityLocalID: e.EntityLocalID,
			Message:       cause.Error(),
		})
	} else {
		log.Warn("push failed", "attempts", e.Attempts+1, "error", cause)
		report.Failed++
	}

	if err := s.repo.MarkFailed(ctx, e.LocalID, cause.Error(), conflict, s.now().UTC()); err != nil {
		return fmt.Errorf("record outbox failure: %w", err)
	}
	return nil
}

// List returns entries matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Entry, error) {
	entries, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	return entries, nil
}

// Prune removes entries whose entity is gone.
func (s *Service) Prune(ctx context.Context) (int, error) {
	n, err := s.repo.Prune(ctx)
	if err != nil {
		return 0, fmt.Errorf("prune outbox: %w", err)
	}
	if n > 0 {
		s.log.Info("pruned orphaned entries", "count", n)
	}
	return n, nil
}
