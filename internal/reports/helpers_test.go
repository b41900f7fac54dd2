package reports

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"financial-reporter/internal/llm"
	"financial-reporter/internal/queue"
	"financial-reporter/internal/shared/storage/object"
	"financial-reporter/internal/shared/storage/object/local"
)

type countingStore struct {
	object.ObjectStore
	saves   atomic.Int32
	deletes []string
	mu      sync.Mutex
}

func (s *countingStore) Save(ctx context.Context, userID, fileName string, r io.Reader) (string, int64, string, error) {
	s.saves.Add(1)
	return s.ObjectStore.Save(ctx, userID, fileName, r)
}

func (s *countingStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	s.deletes = append(s.deletes, key)
	s.mu.Unlock()
	return s.ObjectStore.Delete(ctx, key)
}

type recordingQueue struct {
	mu   sync.Mutex
	msgs []queue.Message
	err  error
}

func (q *recordingQueue) Send(ctx context.Context, msg queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.msgs = append(q.msgs, msg)
	return nil
}

func (q *recordingQueue) sent() []queue.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.Message(nil), q.msgs...)
}

type llmFunc func(ctx context.Context, input llm.AnalyzeInput) (json.RawMessage, error)

func (f llmFunc) AnalyzeReport(ctx context.Context, input llm.AnalyzeInput) (json.RawMessage, error) {
	return f(ctx, input)
}

// newTestService builds a service over a temp-dir store and the memory repo.
// Steps are recorded on a queue instead of running in the background.
func newTestService(t *testing.T) (*Service, *MemoryRepo, *countingStore, *recordingQueue) {
	t.Helper()
	repo := NewMemoryRepo()
	store := &countingStore{ObjectStore: local.New(t.TempDir())}
	q := &recordingQueue{}
	svc := &Service{
		Repo:       repo,
		Store:      store,
		LLM:        llm.MockClient{},
		Queue:      q,
		retryDelay: time.Millisecond,
	}
	return svc, repo, store, q
}

func waitForStatus(t *testing.T, svc *Service, reportID string, want ...string) Report {
	t.Helper()
	var last Report
	require.Eventually(t, func() bool {
		report, err := svc.Get(context.Background(), reportID)
		if err != nil {
			return false
		}
		last = report
		for _, status := range want {
			if report.Status == status {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond, "report %s never reached %v", reportID, want)
	return last
}

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return parsed
}
