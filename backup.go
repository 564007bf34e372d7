package vdb

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Backup streams a zstd-compressed copy of the database file to w. The
// read lock is held for the duration, so the copy is a consistent
// committed snapshot. Restore turns the stream back into a database file.
func (db *DB) Backup(ctx context.Context, w io.Writer) error {
	start := time.Now()
	n, err := db.backup(ctx, w)
	db.metrics.RecordBackup(time.Since(start), err)
	db.logger.LogBackup(ctx, n, err)
	return err
}

func (db *DB) backup(ctx context.Context, w io.Writer) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	f, err := os.Open(db.store.Path())
	if err != nil {
		return 0, fmt.Errorf("vdb: open for backup: %w", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return 0, fmt.Errorf("vdb: zstd writer: %w", err)
	}

	n, err := io.Copy(zw, f)
	if err != nil {
		_ = zw.Close()
		return n, fmt.Errorf("vdb: backup copy: %w", err)
	}
	if err := zw.Close(); err != nil {
		return n, fmt.Errorf("vdb: backup flush: %w", err)
	}
	return n, nil
}

// Restore decompresses a Backup stream into a new database file at path.
// It fails if path already exists. Open the restored file afterwards.
func Restore(ctx context.Context, r io.Reader, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	zr, err := zstd.NewReader(r)
	if err != nil {
		return fmt.Errorf("vdb: zstd reader: %w", err)
	}
	defer zr.Close()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("vdb: create restore target: %w", err)
	}

	if _, err := io.Copy(f, zr); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("vdb: restore copy: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("vdb: restore sync: %w", err)
	}
	return f.Close()
}
