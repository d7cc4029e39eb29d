package recorder

import "FamilyBudget/internal/model"

// NoopRecorder is used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordEvent(_ *LedgerEvent) error          { return nil }
func (n *NoopRecorder) RecordArchive(_ *model.ArchiveEntry) error { return nil }
func (n *NoopRecorder) RecentEvents(_ int) ([]LedgerEvent, error) { return nil, nil }
func (n *NoopRecorder) Close() error                              { return nil }
