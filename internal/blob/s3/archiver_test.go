package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/riskengine/internal/domain"
	"github.com/alanyoungcy/riskengine/internal/metrics"
)

type memBlob struct {
	objects map[string][]byte
	types   map[string]string
	err     error
}

func (m *memBlob) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if m.err != nil {
		return m.err
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if m.objects == nil {
		m.objects = make(map[string][]byte)
		m.types = make(map[string]string)
	}
	m.objects[path] = b
	m.types[path] = contentType
	return nil
}

type memAudit struct {
	entries []domain.AuditEntry
	deleted time.Time
}

func (m *memAudit) ListBefore(_ context.Context, before time.Time) ([]domain.AuditEntry, error) {
	var out []domain.AuditEntry
	for _, e := range m.entries {
		if e.CreatedAt.Before(before) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memAudit) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	m.deleted = before
	var kept []domain.AuditEntry
	var n int64
	for _, e := range m.entries {
		if e.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return n, nil
}

func entry(id int64, event string, at time.Time) domain.AuditEntry {
	return domain.AuditEntry{ID: id, Event: event, Detail: map[string]any{"position_id": "p1"}, CreatedAt: at}
}

func decodeLines(t *testing.T, b []byte) []domain.AuditEntry {
	t.Helper()
	var out []domain.AuditEntry
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		var e domain.AuditEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		out = append(out, e)
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchiveBeforeGroupsByMonth(t *testing.T) {
	src := &memAudit{entries: []domain.AuditEntry{
		entry(1, "position_liquidated", time.Date(2025, 1, 3, 10, 0, 0, 0, time.UTC)),
		entry(2, "account_failed", time.Date(2025, 1, 31, 23, 59, 0, 0, time.UTC)),
		entry(3, "position_liquidated", time.Date(2025, 2, 14, 8, 0, 0, 0, time.UTC)),
		entry(4, "position_liquidated", time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC)),
	}}
	blob := &memBlob{}
	m := metrics.New()
	a := NewAuditArchiver(blob, src, nil, m, discardLogger())

	n, err := a.ArchiveBefore(context.Background(), time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.Len(t, blob.objects, 2)
	jan := decodeLines(t, blob.objects["archive/audit/2025-01.jsonl"])
	require.Len(t, jan, 2)
	assert.Equal(t, int64(1), jan[0].ID)
	assert.Equal(t, "account_failed", jan[1].Event)
	assert.Len(t, decodeLines(t, blob.objects["archive/audit/2025-02.jsonl"]), 1)
	assert.Equal(t, "application/x-ndjson", blob.types["archive/audit/2025-02.jsonl"])

	assert.Len(t, src.entries, 4)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ArchivedEntries))
}

func TestArchiveBeforePrunesAfterUpload(t *testing.T) {
	cutoff := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	src := &memAudit{entries: []domain.AuditEntry{
		entry(1, "position_liquidated", time.Date(2025, 1, 3, 10, 0, 0, 0, time.UTC)),
		entry(2, "position_liquidated", time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC)),
	}}
	a := NewAuditArchiver(&memBlob{}, src, src, metrics.New(), discardLogger())

	n, err := a.ArchiveBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.True(t, cutoff.Equal(src.deleted))
	require.Len(t, src.entries, 1)
	assert.Equal(t, int64(2), src.entries[0].ID)
}

func TestArchiveBeforeUploadFailureSkipsPrune(t *testing.T) {
	src := &memAudit{entries: []domain.AuditEntry{
		entry(1, "position_liquidated", time.Date(2025, 1, 3, 10, 0, 0, 0, time.UTC)),
	}}
	a := NewAuditArchiver(&memBlob{err: errors.New("access denied")}, src, src, metrics.New(), discardLogger())

	_, err := a.ArchiveBefore(context.Background(), time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Len(t, src.entries, 1)
	assert.True(t, src.deleted.IsZero())
}

func TestArchiveBeforeNothingToDo(t *testing.T) {
	blob := &memBlob{}
	a := NewAuditArchiver(blob, &memAudit{}, nil, metrics.New(), discardLogger())

	n, err := a.ArchiveBefore(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, blob.objects)
}

func TestMonthStart(t *testing.T) {
	got := monthStart(time.Date(2025, 7, 19, 15, 4, 5, 0, time.FixedZone("X", 3600)))
	assert.Equal(t, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("s3.example.com", true))
	assert.Equal(t, "http://minio.local", normaliseEndpoint("minio.local", false))
	assert.Equal(t, "http://already", normaliseEndpoint("http://already", true))
}
