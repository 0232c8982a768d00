package recording

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sipdeck/sipdeck/internal/database"
	"github.com/sipdeck/sipdeck/internal/database/models"
)

type fakeCalls struct {
	mu      sync.Mutex
	expired []string
	calls   int
}

func (f *fakeCalls) DeleteExpiredRecordings(context.Context, int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	paths := f.expired
	f.expired = nil
	return paths, nil
}

func (f *fakeCalls) invocations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeCalls) Create(context.Context, *models.Call) error               { return nil }
func (f *fakeCalls) GetByID(context.Context, int64) (*models.Call, error)     { return nil, nil }
func (f *fakeCalls) GetByCallID(context.Context, string) (*models.Call, error) {
	return nil, nil
}
func (f *fakeCalls) SetTranscript(context.Context, int64, string) error         { return nil }
func (f *fakeCalls) SetSentiment(context.Context, int64, string) error          { return nil }
func (f *fakeCalls) SetSummary(context.Context, int64, string) error            { return nil }
func (f *fakeCalls) SetAnalyticsState(context.Context, int64, string) error     { return nil }
func (f *fakeCalls) CountByDirection(context.Context) (map[string]int64, error) { return nil, nil }
func (f *fakeCalls) ListRecent(context.Context, int) ([]models.Call, error)     { return nil, nil }
func (f *fakeCalls) Delete(context.Context, int64) error                        { return nil }
func (f *fakeCalls) List(context.Context, database.CallListFilter) ([]models.Call, int, error) {
	return nil, 0, nil
}

func TestCleanupRemovesExpiredFiles(t *testing.T) {
	dir := t.TempDir()
	wav := filepath.Join(dir, "old.wav")
	if err := os.WriteFile(wav, []byte("RIFF"), 0644); err != nil {
		t.Fatalf("writing test file: %v", err)
	}

	repo := &fakeCalls{expired: []string{wav, filepath.Join(dir, "already-gone.wav")}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartCleanupTicker(ctx, repo, 30, 10*time.Millisecond)

	deadline := time.After(2 * time.Second)
	for {
		if _, err := os.Stat(wav); os.IsNotExist(err) {
			return
		}
		select {
		case <-deadline:
			t.Fatal("expired recording was not removed")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestCleanupDisabledWithZeroRetention(t *testing.T) {
	repo := &fakeCalls{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartCleanupTicker(ctx, repo, 0, time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	if n := repo.invocations(); n != 0 {
		t.Errorf("cleanup ran %d times with retention disabled", n)
	}
}
