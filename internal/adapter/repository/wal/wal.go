// Package wal spools produced records to local disk while the stream buffer
// is unreachable, and hands them back in write order once it recovers.
package wal

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/V4T54L/pii-stream-filter/internal/adapter/codec"
	"github.com/V4T54L/pii-stream-filter/internal/domain"
)

const (
	segmentPrefix = "spool-"
	segmentSuffix = ".log"
	filePerm      = 0644

	// A line is "<partition key>\t<base64 payload>\n". Stream records are capped at
	// 1MiB and base64 inflates them by a third.
	maxLineSize = 2 << 20
	fieldSep    = '\t'
)

// ErrWALFull is returned when a write would push the spool past its disk budget.
var ErrWALFull = errors.New("WAL max total size exceeded")

// Log is a segmented append-only spool of partitioned records. The total size
// of all segments is tracked in memory and checked against a disk budget on
// every write.
type Log struct {
	dir         string
	segmentSize int64
	diskBudget  int64
	logger      *slog.Logger

	mu       sync.Mutex
	current  *os.File
	curSize  int64
	diskUsed int64
}

// Open prepares dir and resumes appending to its newest segment.
func Open(dir string, segmentSize, diskBudget int64, logger *slog.Logger) (*Log, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory %s: %w", dir, err)
	}

	l := &Log{
		dir:         dir,
		segmentSize: segmentSize,
		diskBudget:  diskBudget,
		logger:      logger.With("component", "wal"),
	}

	used, err := l.diskUsage()
	if err != nil {
		return nil, err
	}
	l.diskUsed = used

	if err := l.resume(); err != nil {
		return nil, err
	}
	return l, nil
}

// encodeLine frames a record as one spool line.
func encodeLine(record domain.PartitionedRecord) ([]byte, error) {
	if strings.ContainsAny(record.PartitionKey, "\t\n") {
		return nil, fmt.Errorf("partition key %q contains a separator", record.PartitionKey)
	}
	payload := codec.EncodePayload(record.Data)
	line := make([]byte, 0, len(record.PartitionKey)+len(payload)+2)
	line = append(line, record.PartitionKey...)
	line = append(line, fieldSep)
	line = append(line, payload...)
	return append(line, '\n'), nil
}

func decodeLine(line []byte) (domain.PartitionedRecord, error) {
	key, payload, ok := bytes.Cut(line, []byte{fieldSep})
	if !ok {
		return domain.PartitionedRecord{}, errors.New("missing field separator")
	}
	data, err := codec.DecodePayload(string(payload))
	if err != nil {
		return domain.PartitionedRecord{}, err
	}
	return domain.PartitionedRecord{PartitionKey: string(key), Data: data}, nil
}

// Write appends a record to the current segment.
func (l *Log) Write(ctx context.Context, record domain.PartitionedRecord) error {
	line, err := encodeLine(record)
	if err != nil {
		return fmt.Errorf("failed to frame record for WAL: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.diskUsed+int64(len(line)) > l.diskBudget {
		return fmt.Errorf("%w (%d > %d)", ErrWALFull, l.diskUsed, l.diskBudget)
	}
	if l.current == nil {
		if err := l.rotate(); err != nil {
			return err
		}
	}

	n, err := l.current.Write(line)
	l.curSize += int64(n)
	l.diskUsed += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write to WAL segment: %w", err)
	}

	if l.curSize >= l.segmentSize {
		if err := l.rotate(); err != nil {
			l.logger.Error("failed to rotate WAL segment", "error", err)
		}
	}
	return nil
}

// Replay hands every spooled record to handler, oldest segment first. It stops
// at the first handler error. Lines that cannot be decoded, such as a write
// torn by a crash, are skipped.
func (l *Log) Replay(ctx context.Context, handler func(record domain.PartitionedRecord) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closeCurrent()

	paths, err := l.segments()
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		l.logger.Info("WAL is empty, nothing to replay")
		return nil
	}

	replayed := 0
	for _, path := range paths {
		n, err := replaySegment(ctx, path, handler, l.logger)
		replayed += n
		if err != nil {
			return err
		}
	}

	l.logger.Info("WAL replay completed", "segment_count", len(paths), "record_count", replayed)
	return nil
}

func replaySegment(ctx context.Context, path string, handler func(domain.PartitionedRecord) error, logger *slog.Logger) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open segment %s for replay: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	replayed := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return replayed, err
		}
		record, err := decodeLine(scanner.Bytes())
		if err != nil {
			logger.Warn("skipping undecodable WAL line", "segment", filepath.Base(path), "error", err)
			continue
		}
		if err := handler(record); err != nil {
			return replayed, fmt.Errorf("replay handler failed: %w", err)
		}
		replayed++
	}
	if err := scanner.Err(); err != nil {
		return replayed, fmt.Errorf("error scanning segment %s: %w", path, err)
	}
	return replayed, nil
}

// Truncate removes every segment and starts a fresh one.
func (l *Log) Truncate(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closeCurrent()

	paths, err := l.segments()
	if err != nil {
		return err
	}
	for _, path := range paths {
		if err := os.Remove(path); err != nil {
			l.logger.Error("failed to remove WAL segment", "path", path, "error", err)
		}
	}

	used, err := l.diskUsage()
	if err != nil {
		return err
	}
	l.diskUsed = used
	l.logger.Info("WAL truncated", "segment_count", len(paths))
	return l.rotate()
}

// Size reports the bytes currently held across all segments.
func (l *Log) Size() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.diskUsed
}

func (l *Log) closeCurrent() {
	if l.current == nil {
		return
	}
	if err := l.current.Sync(); err != nil {
		l.logger.Error("failed to sync WAL segment", "error", err)
	}
	if err := l.current.Close(); err != nil {
		l.logger.Error("failed to close WAL segment", "error", err)
	}
	l.current = nil
}

func (l *Log) rotate() error {
	l.closeCurrent()

	path := filepath.Join(l.dir, fmt.Sprintf("%s%020d%s", segmentPrefix, time.Now().UnixNano(), segmentSuffix))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to create WAL segment %s: %w", path, err)
	}
	l.current = f
	l.curSize = 0
	l.logger.Debug("rotated WAL segment", "path", path)
	return nil
}

// resume reopens the newest segment for appending, or starts one.
func (l *Log) resume() error {
	paths, err := l.segments()
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return l.rotate()
	}

	latest := paths[len(paths)-1]
	info, err := os.Stat(latest)
	if err != nil {
		return fmt.Errorf("failed to stat segment %s: %w", latest, err)
	}
	if info.Size() >= l.segmentSize {
		return l.rotate()
	}

	f, err := os.OpenFile(latest, os.O_APPEND|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to open segment %s: %w", latest, err)
	}
	l.current = f
	l.curSize = info.Size()
	l.logger.Info("resumed WAL segment", "path", latest, "size", l.curSize, "disk_used", l.diskUsed)
	return nil
}

// segments lists segment paths oldest first. Names carry a zero-padded
// nanosecond timestamp, so lexical order is creation order.
func (l *Log) segments() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read WAL directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, segmentPrefix) && strings.HasSuffix(name, segmentSuffix) {
			paths = append(paths, filepath.Join(l.dir, name))
		}
	}
	slices.Sort(paths)
	return paths, nil
}

func (l *Log) diskUsage() (int64, error) {
	paths, err := l.segments()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

// Close closes the current segment.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return nil
	}
	err := l.current.Close()
	l.current = nil
	return err
}
