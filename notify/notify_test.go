package notify

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"go.viam.com/test"
)

type recordingIngestor struct {
	mu    sync.Mutex
	calls []string
	done  chan struct{}
}

func (r *recordingIngestor) LoadAndProcessSubmap(_ context.Context, robotName, submapPath string) error {
	r.mu.Lock()
	r.calls = append(r.calls, robotName+":"+submapPath)
	r.mu.Unlock()
	close(r.done)
	return nil
}

func TestWatcherDispatchesOnCreate(t *testing.T) {
	dir := t.TempDir()
	ingestor := &recordingIngestor{done: make(chan struct{})}

	w, err := New([]string{dir}, ingestor, func(path string) (string, bool) {
		return "robotA", true
	}, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	path := filepath.Join(dir, "submap1.json")
	test.That(t, os.WriteFile(path, []byte("{}"), 0o644), test.ShouldBeNil)

	select {
	case <-ingestor.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for ingest dispatch")
	}

	ingestor.mu.Lock()
	defer ingestor.mu.Unlock()
	test.That(t, len(ingestor.calls), test.ShouldEqual, 1)
}
