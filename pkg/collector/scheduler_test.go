package collector

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aifeedco/aifeed/pkg/storage/postgres"
)

func newTestScheduler(interval time.Duration, provider *fakeProvider, tasks *fakeTasks) *Scheduler {
	logger := zerolog.Nop()
	cfg := &Config{
		SourceConcurrency:  2,
		ContentConcurrency: 2,
		AIEnabled:          false,
		Interval:           interval,
	}
	articles := newFakeCollArticles()
	sources := &fakeSourceList{sources: []*postgres.Source{testSource(1, "ai blog")}}
	orch := NewOrchestrator(&logger, cfg, NewRegistry(provider), articles, sources, tasks, nil)
	return NewScheduler(&logger, cfg, orch)
}

func TestSchedulerRunsPeriodically(t *testing.T) {
	provider := &fakeProvider{
		kind:  "rss",
		items: map[string][]Item{"ai blog": {{URL: "https://a.example/1", Title: "First"}}},
	}
	tasks := &fakeTasks{}
	sched := newTestScheduler(20*time.Millisecond, provider, tasks)

	sched.Start()
	time.Sleep(150 * time.Millisecond)
	sched.Stop()

	tasks.mu.Lock()
	created := len(tasks.created)
	tasks.mu.Unlock()
	if created < 2 {
		t.Errorf("created tasks = %d, want at least 2", created)
	}
}

func TestSchedulerSkipsTicksWhileRunning(t *testing.T) {
	blocker := make(chan struct{})
	provider := &fakeProvider{
		kind:        "rss",
		items:       map[string][]Item{"ai blog": {{URL: "https://a.example/1", Title: "First"}}},
		listBlocker: blocker,
	}
	done := make(chan struct{})
	tasks := &fakeTasks{done: done}
	sched := newTestScheduler(15*time.Millisecond, provider, tasks)

	sched.Start()
	time.Sleep(100 * time.Millisecond)

	tasks.mu.Lock()
	created := len(tasks.created)
	tasks.mu.Unlock()
	if created != 1 {
		t.Errorf("created tasks = %d, want 1 while the first run blocks", created)
	}

	close(blocker)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("blocked run did not finish")
	}
	sched.Stop()
}

func TestSchedulerStopBeforeStart(t *testing.T) {
	sched := newTestScheduler(time.Hour, &fakeProvider{kind: "rss"}, &fakeTasks{})
	sched.Stop() // no-op
}
