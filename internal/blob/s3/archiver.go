package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alanyoungcy/riskengine/internal/domain"
	"github.com/alanyoungcy/riskengine/internal/metrics"
)

// AuditSource lists audit entries older than a cutoff.
type AuditSource interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.AuditEntry, error)
}

// AuditPruner deletes audit entries older than a cutoff.
type AuditPruner interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AuditArchiver copies audit entries to cold storage as one JSONL object per
// calendar month (archive/audit/YYYY-MM.jsonl) and optionally prunes them
// from the primary store afterwards.
type AuditArchiver struct {
	writer  domain.BlobWriter
	source  AuditSource
	pruner  AuditPruner
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewAuditArchiver creates an AuditArchiver. pruner may be nil, in which case
// archived rows stay in the primary store.
func NewAuditArchiver(writer domain.BlobWriter, source AuditSource, pruner AuditPruner, m *metrics.Metrics, logger *slog.Logger) *AuditArchiver {
	return &AuditArchiver{
		writer:  writer,
		source:  source,
		pruner:  pruner,
		metrics: m,
		logger:  logger.With(slog.String("component", "archiver")),
		now:     time.Now,
	}
}

// Run archives on every interval until ctx is cancelled. Only whole months
// older than retention are archived, so each monthly object is written from
// complete data.
func (a *AuditArchiver) Run(ctx context.Context, interval, retention time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := monthStart(a.now().Add(-retention))
			n, err := a.ArchiveBefore(ctx, cutoff)
			if err != nil {
				a.logger.ErrorContext(ctx, "archiver: archive failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				a.logger.InfoContext(ctx, "archiver: archived audit entries",
					slog.Int64("count", n),
					slog.Time("before", cutoff),
				)
			}
		}
	}
}

// ArchiveBefore uploads every entry created before the cutoff, grouped by
// month, and returns the number of entries written.
func (a *AuditArchiver) ArchiveBefore(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.source.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	byMonth := make(map[string][]domain.AuditEntry)
	for _, e := range entries {
		key := e.CreatedAt.UTC().Format("2006-01")
		byMonth[key] = append(byMonth[key], e)
	}
	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)

	var count int64
	for _, m := range months {
		buf, err := marshalJSONL(byMonth[m])
		if err != nil {
			return count, fmt.Errorf("s3blob: archive audit marshal %s: %w", m, err)
		}
		path := archivePath("audit", m)
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return count, fmt.Errorf("s3blob: archive audit upload: %w", err)
		}
		count += int64(len(byMonth[m]))
	}
	a.metrics.ArchivedEntries.Add(float64(count))

	if a.pruner != nil {
		deleted, err := a.pruner.DeleteBefore(ctx, before)
		if err != nil {
			return count, fmt.Errorf("s3blob: prune archived audit entries: %w", err)
		}
		a.logger.DebugContext(ctx, "archiver: pruned audit entries", slog.Int64("deleted", deleted))
	}
	return count, nil
}

// archivePath builds the object key for one month of a record kind:
//
//	archive/audit/2025-01.jsonl
func archivePath(kind, month string) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, month)
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
