package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/exp/slog"

	"posclient/internal/domain/snapshot"
	"posclient/internal/infrastructure/metrics"
)

// ErrSyncInProgress is returned when Sync is called while another sync runs.
var ErrSyncInProgress = errors.New("sync already in progress")

type snapshotFetcher interface {
	FetchSnapshot(ctx context.Context, profileName string) (*snapshot.Snapshot, error)
}

type snapshotPersister interface {
	PersistAll(ctx context.Context, snap *snapshot.Snapshot) error
	PersistSection(ctx context.Context, snap *snapshot.Snapshot, s snapshot.Section) (int, error)
}

// SyncService pulls the bootstrap snapshot and writes it to local storage.
type SyncService struct {
	fetcher   snapshotFetcher
	persister snapshotPersister
	diag      snapshot.DiagnosticsRepository
	metrics   *metrics.Metrics
	log       *slog.Logger
	statsPath string

	mu        sync.RWMutex
	lastSync  time.Time
	isSyncing bool
	stats     *SyncStats
}

// SyncStats is kept across runs in sync_stats.json.
type SyncStats struct {
	TotalSyncs      int       `json:"total_syncs"`
	LastSuccessful  time.Time `json:"last_successful"`
	LastFailed      time.Time `json:"last_failed"`
	LastError       string    `json:"last_error,omitempty"`
	TotalFetched    int       `json:"total_fetched"`
	TotalPersisted  int       `json:"total_persisted"`
	TotalErrors     int       `json:"total_errors"`
	AvgSyncDuration float64   `json:"avg_sync_duration"`
}

// SyncOptions narrows a sync. Empty Sections persists every fetched section.
type SyncOptions struct {
	Profile  string
	Sections []snapshot.Section
}

// SectionResult is what one section went through during a sync.
type SectionResult struct {
	Section   snapshot.Section `json:"section"`
	Status    snapshot.Status  `json:"status"`
	Fetched   int              `json:"fetched"`
	Persisted int              `json:"persisted"`
	Error     string           `json:"error,omitempty"`
}

// SyncResult describes one sync run.
type SyncResult struct {
	Success   bool            `json:"success"`
	Sections  []SectionResult `json:"sections"`
	Fetched   int             `json:"fetched"`
	Persisted int             `json:"persisted"`
	Duration  time.Duration   `json:"duration"`
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time"`
}

func NewSyncService(
	fetcher snapshotFetcher,
	persister snapshotPersister,
	diag snapshot.DiagnosticsRepository,
	m *metrics.Metrics,
	statsPath string,
	log *slog.Logger,
) *SyncService {
	s := &SyncService{
		fetcher:   fetcher,
		persister: persister,
		diag:      diag,
		metrics:   m,
		log:       log.With("component", "sync_service"),
		statsPath: statsPath,
		stats:     &SyncStats{},
	}
	if stats, err := loadStats(statsPath); err == nil {
		s.stats = stats
		s.lastSync = stats.LastSuccessful
	} else if !errors.Is(err, os.ErrNotExist) {
		s.log.Warn("ignoring unreadable sync stats", "path", statsPath, "error", err)
	}
	return s
}

// Sync fetches the snapshot and persists it. Only one sync runs at a time.
func (s *SyncService) Sync(ctx context.Context, opts SyncOptions) (*SyncResult, error) {
	s.mu.Lock()
	if s.isSyncing {
		s.mu.Unlock()
		return nil, ErrSyncInProgress
	}
	s.isSyncing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isSyncing = false
		s.mu.Unlock()
	}()

	result := &SyncResult{StartTime: time.Now()}
	s.log.Info("sync started", "profile", opts.Profile, "sections", opts.Sections)

	err := s.run(ctx, opts, result)

	result.Success = err == nil
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	s.mu.Lock()
	s.updateStats(result, err)
	s.mu.Unlock()
	s.metrics.SyncRun(result.Success)

	if err != nil {
		s.log.Error("sync failed", "error", err, "duration", result.Duration)
		return result, err
	}
	s.log.Info("sync finished",
		"fetched", result.Fetched,
		"persisted", result.Persisted,
		"duration", result.Duration,
	)
	return result, nil
}

func (s *SyncService) run(ctx context.Context, opts SyncOptions, result *SyncResult) error {
	snap, err := s.fetcher.FetchSnapshot(ctx, opts.Profile)
	if err != nil {
		return fmt.Errorf("fetch snapshot: %w", err)
	}

	byName := make(map[snapshot.Section]*SectionResult, len(snap.Diagnostics.Sections))
	for _, d := range snap.Diagnostics.Sections {
		result.Sections = append(result.Sections, SectionResult{
			Section: d.Section,
			Status:  d.Status,
			Fetched: d.FetchedCount,
			Error:   d.Error,
		})
		result.Fetched += d.FetchedCount
		s.metrics.SectionFetched(string(d.Section), d.FetchedCount)
	}
	for i := range result.Sections {
		byName[result.Sections[i].Section] = &result.Sections[i]
	}

	if len(opts.Sections) == 0 {
		if err := s.persister.PersistAll(ctx, snap); err != nil {
			return err
		}
		s.collectPersisted(ctx, byName, result)
		return nil
	}

	var errs []error
	for _, section := range opts.Sections {
		n, err := s.persister.PersistSection(ctx, snap, section)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		result.Persisted += n
		s.metrics.SectionPersisted(string(section), n)
		if r, ok := byName[section]; ok {
			r.Persisted = n
		}
	}
	return errors.Join(errs...)
}

// collectPersisted reads back the counts PersistAll recorded.
func (s *SyncService) collectPersisted(ctx context.Context, byName map[snapshot.Section]*SectionResult, result *SyncResult) {
	latest, err := s.diag.LatestDiagnostics(ctx)
	if err != nil {
		s.log.Warn("failed to read persisted counts", "error", err)
		return
	}
	for _, d := range latest {
		if d.PersistedCount == nil {
			continue
		}
		result.Persisted += *d.PersistedCount
		s.metrics.SectionPersisted(string(d.Section), *d.PersistedCount)
		if r, ok := byName[d.Section]; ok {
			r.Persisted = *d.PersistedCount
		}
	}
}

// updateStats must be called with mu held.
func (s *SyncService) updateStats(result *SyncResult, err error) {
	s.stats.TotalSyncs++
	if result.Success {
		s.stats.LastSuccessful = result.EndTime
		s.lastSync = result.EndTime
	} else {
		s.stats.LastFailed = result.EndTime
		s.stats.LastError = err.Error()
		s.stats.TotalErrors++
	}
	s.stats.TotalFetched += result.Fetched
	s.stats.TotalPersisted += result.Persisted

	s.stats.AvgSyncDuration = (s.stats.AvgSyncDuration*float64(s.stats.TotalSyncs-1) +
		result.Duration.Seconds()) / float64(s.stats.TotalSyncs)

	s.saveStats()
}

func loadStats(path string) (*SyncStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var stats SyncStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("parse sync stats: %w", err)
	}
	return &stats, nil
}

func (s *SyncService) saveStats() {
	if s.statsPath == "" {
		return
	}
	data, err := json.MarshalIndent(s.stats, "", "  ")
	if err != nil {
		s.log.Error("failed to encode sync stats", "error", err)
		return
	}
	if err := os.WriteFile(s.statsPath, data, 0o600); err != nil {
		s.log.Error("failed to write sync stats", "path", s.statsPath, "error", err)
	}
}

// GetStats returns a copy of the sync statistics.
func (s *SyncService) GetStats() SyncStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.stats
}

func (s *SyncService) GetLastSyncTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}

func (s *SyncService) IsSyncing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isSyncing
}

// ResetStats clears the statistics and rewrites the stats file.
func (s *SyncService) ResetStats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = &SyncStats{}
	s.saveStats()
}
