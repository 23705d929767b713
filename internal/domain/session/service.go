package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"posclient/internal/domain/erp"
	"posclient/internal/domain/outbox"
)

// Service opens and closes cash-drawer sessions and reconciles their closings with
// the backend.
type Service struct {
	repo   Repository
	remote Remote
	queue  Enqueuer
	log    *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, remote Remote, queue Enqueuer, log *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		remote: remote,
		queue:  queue,
		log:    log.With("component", "session_service"),
		now:    time.Now,
	}
}

// OpenSession records a new session with a placeholder opening entry and queues the
// opening entry for push.
func (s *Service) OpenSession(ctx context.Context, req OpenRequest) (*Session, error) {
	if req.POSProfile == "" {
		return nil, ErrMissingProfile
	}

	now := s.now().UTC()
	placeholder := erp.NewPlaceholder()
	sess := &Session{
		LocalID:        uuid.NewString(),
		POSProfile:     req.POSProfile,
		Company:        req.Company,
		User:           req.User,
		Status:         StatusOpen,
		OpeningEntryID: placeholder,
		OpenedAt:       now,
		BalanceDetails: req.BalanceDetails,
	}
	opening := erp.OpeningEntry{
		Name:           placeholder,
		POSProfile:     req.POSProfile,
		Company:        req.Company,
		User:           req.User,
		PeriodStart:    erp.NewTimestamp(now),
		DocStatus:      erp.DocStatusDraft,
		BalanceDetails: req.BalanceDetails,
	}

	if err := s.repo.Create(ctx, sess, opening); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	payload := opening
	payload.Name = ""
	if _, err := s.queue.Enqueue(ctx, outbox.EntityOpeningEntry, placeholder, payload); err != nil {
		return sess, fmt.Errorf("queue opening entry: %w", err)
	}

	s.log.Info("session opened", "session", sess.LocalID, "opening_entry", placeholder, "profile", req.POSProfile)
	return sess, nil
}

// CloseSession records the drawer counts and a placeholder closing. The closing is
// pushed by PushPendingClosings.
func (s *Service) CloseSession(ctx context.Context, localID string, counts []ClosingCount) (*Session, error) {
	sess, err := s.repo.Get(ctx, localID)
	if err != nil {
		return nil, err
	}
	if sess.Status == StatusClosed {
		return nil, ErrSessionClosed
	}

	now := s.now().UTC()
	balances := mergeCounts(sess.BalanceDetails, counts)
	closing := erp.ClosingEntry{
		Name:         erp.NewPlaceholder(),
		OpeningEntry: sess.OpeningEntryID,
		POSProfile:   sess.POSProfile,
		Company:      sess.Company,
		User:         sess.User,
		PeriodStart:  erp.NewTimestamp(sess.OpenedAt),
		PeriodEnd:    erp.NewTimestamp(now),
		PostingDate:  now.Format("2006-01-02"),
		DocStatus:    erp.DocStatusDraft,
	}

	if err := s.repo.CloseLocally(ctx, localID, now, balances, closing); err != nil {
		return nil, fmt.Errorf("close session: %w", err)
	}

	sess.Status = StatusClosed
	sess.ClosedAt = &now
	sess.ClosingEntryID = closing.Name
	sess.BalanceDetails = balances
	sess.PendingSync = true

	s.log.Info("session closed locally", "session", localID, "closing_entry", closing.Name)
	return sess, nil
}

// ReconcileRemoteClosingsForActiveSessions adopts final remote closings of sessions
// that are still open locally, e.g. closed from another device.
func (s *Service) ReconcileRemoteClosingsForActiveSessions(ctx context.Context) (bool, error) {
	sessions, err := s.repo.Active(ctx)
	if err != nil {
		return false, fmt.Errorf("load active sessions: %w", err)
	}

	changed := false
	var errs []error
	for _, sess := range sessions {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		adopted, err := s.reconcile(ctx, sess)
		if err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", sess.LocalID, err))
			continue
		}
		changed = changed || adopted
	}
	return changed, errors.Join(errs...)
}

func (s *Service) reconcile(ctx context.Context, sess Session) (bool, error) {
	log := s.log.With("session", sess.LocalID)

	remoteOpening, err := s.remoteOpening(ctx, sess)
	if errors.Is(err, ErrNoRemoteOpening) {
		log.Debug("skipping session without remote opening")
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := s.ensureLocalOpening(ctx, sess, remoteOpening); err != nil {
		return false, err
	}

	closing, err := s.remoteClosing(ctx, remoteOpening)
	if err != nil {
		return false, err
	}
	if closing == nil || !closing.IsFinal() {
		return false, nil
	}

	if err := s.adopt(ctx, sess, *closing); err != nil {
		return false, err
	}
	log.Info("adopted remote closing", "closing_entry", closing.Name, "opening_entry", remoteOpening)
	return true, nil
}

// PushPendingClosings confirms every locally closed session with the backend.
// Sessions that fail stay pending for the next cycle.
func (s *Service) PushPendingClosings(ctx context.Context) (bool, error) {
	sessions, err := s.repo.PendingClosings(ctx)
	if err != nil {
		return false, fmt.Errorf("load pending closings: %w", err)
	}

	changed := false
	var errs []error
	for _, sess := range sessions {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		pushed, err := s.pushClosing(ctx, sess)
		if err != nil {
			s.log.Warn("closing push failed", "session", sess.LocalID, "error", err)
			errs = append(errs, fmt.Errorf("session %s: %w", sess.LocalID, err))
			continue
		}
		changed = changed || pushed
	}
	return changed, errors.Join(errs...)
}

func (s *Service) pushClosing(ctx context.Context, sess Session) (bool, error) {
	log := s.log.With("session", sess.LocalID)

	remoteOpening, err := s.remoteOpening(ctx, sess)
	if errors.Is(err, ErrNoRemoteOpening) {
		log.Info("closing waits for opening entry push")
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := s.ensureLocalOpening(ctx, sess, remoteOpening); err != nil {
		return false, err
	}

	closing, err := s.remoteClosing(ctx, remoteOpening)
	if err != nil {
		return false, err
	}

	switch {
	case closing != nil && closing.IsFinal():
		log.Info("remote closing already final", "closing_entry", closing.Name)

	case closing != nil:
		if err := s.remote.SubmitDocument(ctx, erp.DocTypeClosingEntry, closing.Name); err != nil {
			return false, fmt.Errorf("submit draft closing %s: %w", closing.Name, err)
		}
		closing.DocStatus = erp.DocStatusSubmitted
		log.Info("submitted draft remote closing", "closing_entry", closing.Name)

	default:
		built, err := s.buildClosing(ctx, sess, remoteOpening)
		if err != nil {
			return false, err
		}
		name, err := s.remote.CreateDocument(ctx, erp.DocTypeClosingEntry, built)
		if err != nil {
			return false, fmt.Errorf("create closing: %w", err)
		}
		if name == "" || erp.IsPlaceholder(name) {
			return false, fmt.Errorf("create closing: %w: %q", erp.ErrPlaceholderName, name)
		}
		if err := s.remote.SubmitDocument(ctx, erp.DocTypeClosingEntry, name); err != nil {
			return false, fmt.Errorf("submit closing %s: %w", name, err)
		}
		built.Name = name
		built.DocStatus = erp.DocStatusSubmitted
		closing = &built
		log.Info("created remote closing", "closing_entry", name, "transactions", len(built.Transactions))
	}

	if err := s.adopt(ctx, sess, *closing); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) buildClosing(ctx context.Context, sess Session, remoteOpening string) (erp.ClosingEntry, error) {
	closedAt := s.now().UTC()
	if sess.ClosedAt != nil {
		closedAt = sess.ClosedAt.UTC()
	}

	invoices, err := s.repo.InvoicesForOpening(ctx, remoteOpening)
	if err != nil {
		return erp.ClosingEntry{}, fmt.Errorf("load session invoices: %w", err)
	}
	if len(invoices) == 0 {
		invoices, err = s.repo.InvoicesInWindow(ctx, sess.POSProfile, sess.OpenedAt, closedAt)
		if err != nil {
			return erp.ClosingEntry{}, fmt.Errorf("load invoices by window: %w", err)
		}
	}

	return BuildClosing(sess, remoteOpening, invoices, erp.NewTimestamp(closedAt)), nil
}

// remoteOpening resolves the backend name of the session's opening entry: the link
// table first, then the session's own opening id unless it is a placeholder.
func (s *Service) remoteOpening(ctx context.Context, sess Session) (string, error) {
	linked, err := s.repo.LinkedOpening(ctx, sess.LocalID)
	if err != nil {
		return "", fmt.Errorf("load session link: %w", err)
	}
	if linked != "" && !erp.IsPlaceholder(linked) {
		return linked, nil
	}
	if sess.OpeningEntryID != "" && !erp.IsPlaceholder(sess.OpeningEntryID) {
		return sess.OpeningEntryID, nil
	}
	return "", ErrNoRemoteOpening
}

// ensureLocalOpening makes sure a local opening record exists under the remote name,
// copying the placeholder record when needed.
func (s *Service) ensureLocalOpening(ctx context.Context, sess Session, remoteName string) error {
	_, err := s.repo.OpeningEntry(ctx, remoteName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrOpeningNotFound) {
		return fmt.Errorf("load opening %s: %w", remoteName, err)
	}

	var record erp.OpeningEntry
	source, err := s.repo.OpeningEntry(ctx, sess.OpeningEntryID)
	switch {
	case err == nil:
		record = *source
	case errors.Is(err, ErrOpeningNotFound):
		record = erp.OpeningEntry{
			POSProfile:     sess.POSProfile,
			Company:        sess.Company,
			User:           sess.User,
			PeriodStart:    erp.NewTimestamp(sess.OpenedAt),
			BalanceDetails: sess.BalanceDetails,
		}
	default:
		return fmt.Errorf("load opening %s: %w", sess.OpeningEntryID, err)
	}

	record.Name = remoteName
	record.DocStatus = erp.DocStatusSubmitted
	if err := s.repo.SaveOpeningEntry(ctx, record); err != nil {
		return fmt.Errorf("save opening %s: %w", remoteName, err)
	}
	return nil
}

// remoteClosing returns the closing recorded for the opening entry, preferring a final
// one over a draft. Cancelled closings are ignored.
func (s *Service) remoteClosing(ctx context.Context, remoteOpening string) (*erp.ClosingEntry, error) {
	docs, err := s.remote.GetDocumentsForParent(ctx, erp.DocTypeClosingEntry, "pos_opening_entry", remoteOpening)
	if errors.Is(err, erp.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup closing for %s: %w", remoteOpening, err)
	}

	var draft *erp.ClosingEntry
	for _, raw := range docs {
		var c erp.ClosingEntry
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode closing: %w", err)
		}
		switch c.DocStatus {
		case erp.DocStatusSubmitted:
			return &c, nil
		case erp.DocStatusDraft:
			if draft == nil {
				draft = &c
			}
		}
	}
	return draft, nil
}

func (s *Service) adopt(ctx context.Context, sess Session, closing erp.ClosingEntry) error {
	closedAt := closing.PeriodEnd.Time
	if closedAt.IsZero() && sess.ClosedAt != nil {
		closedAt = *sess.ClosedAt
	}
	if closedAt.IsZero() {
		closedAt = s.now().UTC()
	}
	if err := s.repo.AdoptClosing(ctx, sess.LocalID, closing, closedAt); err != nil {
		return fmt.Errorf("adopt closing %s: %w", closing.Name, err)
	}
	return nil
}
