package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/V4T54L/pii-stream-filter/internal/domain"
)

// MockRecordStream is a mock implementation of domain.RecordStreamRepository for testing.
type MockRecordStream struct {
	mu              sync.Mutex
	ReadBatchResult []domain.StreamEntry
	ReclaimResult   []domain.StreamEntry
	AckedMessageIDs []string
	DLQEntries      []domain.StreamEntry
	DLQReasons      []string
	ReadErr         error
	ReclaimErr      error
	AckErr          error
	DLQErr          error
}

func (m *MockRecordStream) ReadBatch(ctx context.Context, group, consumer string, count int) ([]domain.StreamEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	return m.ReadBatchResult, nil
}

func (m *MockRecordStream) ReclaimStale(ctx context.Context, group, consumer string, minIdle time.Duration, count int) ([]domain.StreamEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReclaimErr != nil {
		return nil, m.ReclaimErr
	}
	return m.ReclaimResult, nil
}

func (m *MockRecordStream) Acknowledge(ctx context.Context, group string, messageIDs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AckErr != nil {
		return m.AckErr
	}
	m.AckedMessageIDs = append(m.AckedMessageIDs, messageIDs...)
	return nil
}

func (m *MockRecordStream) MoveToDLQ(ctx context.Context, entries []domain.StreamEntry, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DLQErr != nil {
		return m.DLQErr
	}
	m.DLQEntries = append(m.DLQEntries, entries...)
	m.DLQReasons = append(m.DLQReasons, reason)
	return nil
}

// MockSink is a mock implementation of domain.RecordSinkRepository.
// WriteErrs are returned in order, one per call; once exhausted WriteErr applies.
type MockSink struct {
	mu             sync.Mutex
	WrittenRecords []domain.DeliveredRecord
	WriteCalls     int
	WriteErrs      []error
	WriteErr       error
}

func (m *MockSink) WriteBatch(ctx context.Context, records []domain.DeliveredRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WriteCalls++
	if len(m.WriteErrs) > 0 {
		err := m.WriteErrs[0]
		m.WriteErrs = m.WriteErrs[1:]
		if err != nil {
			return err
		}
	} else if m.WriteErr != nil {
		return m.WriteErr
	}
	m.WrittenRecords = append(m.WrittenRecords, records...)
	return nil
}

// MockPublisher is a mock implementation of domain.RecordPublisher.
// When FailAfter is positive, calls beyond that many successes return PutErr.
type MockPublisher struct {
	mu        sync.Mutex
	Records   []domain.PartitionedRecord
	PutErr    error
	FailAfter int
}

func (m *MockPublisher) PutRecord(ctx context.Context, record domain.PartitionedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutErr != nil && len(m.Records) >= m.FailAfter {
		return m.PutErr
	}
	m.Records = append(m.Records, record)
	return nil
}

// MockAPIKeyRepository is a mock implementation of domain.APIKeyRepository.
type MockAPIKeyRepository struct {
	ValidKeys map[string]bool
	Err       error
}

func (m *MockAPIKeyRepository) IsValid(ctx context.Context, key string) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	return m.ValidKeys[key], nil
}
