package app

import (
	"context"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestWatchRerunsOnChange(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	a, cfg, _ := newTestApp(t, Config{StudyPath: writeStudy(t, dir, "2"), Debounce: 20 * time.Millisecond})

	results := make(chan *Result, 8)
	a.onRun = func(res *Result, err error) {
		if err == nil {
			results <- res
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Watch(ctx, cfg) }()

	select {
	case res := <-results:
		assert.Equal(t, 10.0, res.Outputs["usecase.y"])
	case <-time.After(5 * time.Second):
		t.Fatal("no initial run")
	}

	writeStudy(t, dir, "5")

	deadline := time.After(5 * time.Second)
	for found := false; !found; {
		select {
		case res := <-results:
			found = res.Outputs["usecase.y"] == 19.0
		case <-deadline:
			t.Fatal("no rerun after the study changed")
		}
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestRelevantEvents(t *testing.T) {
	assert.True(t, relevant(fsnotify.Event{Name: "a/study.hcl", Op: fsnotify.Write}))
	assert.True(t, relevant(fsnotify.Event{Name: "a/usecase.yaml", Op: fsnotify.Create}))
	assert.False(t, relevant(fsnotify.Event{Name: "a/notes.txt", Op: fsnotify.Write}))
	assert.False(t, relevant(fsnotify.Event{Name: "a/study.hcl", Op: fsnotify.Chmod}))
}

func TestWatchRequiresStudy(t *testing.T) {
	a, cfg, _ := newTestApp(t, Config{})
	assert.Error(t, a.Watch(context.Background(), cfg))
}
