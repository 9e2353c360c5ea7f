package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oddsight/oddsight/internal/domain"
)

// Narrow store interfaces required by the archiver. The Postgres stores
// satisfy them implicitly; the archiver only needs the time-ranged export
// and prune methods, not the full store surface.

// AlertArchiveStore provides read and prune access to settled alerts.
type AlertArchiveStore interface {
	ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Alert, error)
	DeleteSettledBefore(ctx context.Context, before time.Time) (int64, error)
}

// SnapshotArchiveStore provides read and prune access to fixture snapshots.
type SnapshotArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.FixtureSnapshot, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ArchiveImpl implements domain.Archiver by exporting aged records to
// S3 as JSONL and pruning them from the primary store afterwards. The
// exported files are the training corpus for the prediction models, so
// the prune only runs once the upload has succeeded.
type ArchiveImpl struct {
	writer    domain.BlobWriter
	alerts    AlertArchiveStore
	snapshots SnapshotArchiveStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, alerts AlertArchiveStore, snapshots SnapshotArchiveStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer:    writer,
		alerts:    alerts,
		snapshots: snapshots,
	}
}

// ArchiveAlerts exports all settled alerts older than the cutoff to
// archive/alerts/YYYY-MM-DD.jsonl, then deletes them from the store.
// It returns the number of records archived.
func (a *ArchiveImpl) ArchiveAlerts(ctx context.Context, before time.Time) (int64, error) {
	alerts, err := a.alerts.ListSettledBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive alerts query: %w", err)
	}
	if len(alerts) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(alerts)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive alerts marshal: %w", err)
	}

	path := archivePath("alerts", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive alerts upload: %w", err)
	}

	count := int64(len(alerts))

	if _, err := a.alerts.DeleteSettledBefore(ctx, before); err != nil {
		// The upload succeeded, so nothing is lost; the next run
		// re-exports the same records and overwrites the file.
		return count, fmt.Errorf("s3blob: archive alerts prune: %w", err)
	}

	return count, nil
}

// ArchiveSnapshots exports all fixture snapshots older than the cutoff to
// archive/snapshots/YYYY-MM-DD.jsonl, then deletes them from the store.
// It returns the number of records archived.
func (a *ArchiveImpl) ArchiveSnapshots(ctx context.Context, before time.Time) (int64, error) {
	snaps, err := a.snapshots.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive snapshots query: %w", err)
	}
	if len(snaps) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(snaps)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive snapshots marshal: %w", err)
	}

	path := archivePath("snapshots", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive snapshots upload: %w", err)
	}

	count := int64(len(snaps))

	if _, err := a.snapshots.DeleteBefore(ctx, before); err != nil {
		return count, fmt.Errorf("s3blob: archive snapshots prune: %w", err)
	}

	return count, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// cutoff date. The job runs daily, so each run lands on its own key:
//
//	archive/alerts/2026-05-27.jsonl
//	archive/snapshots/2026-05-27.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01-02"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
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

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
