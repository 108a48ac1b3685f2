package generation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"genstudio/internal/adapter/sqlite"
	"genstudio/internal/domain"
	"genstudio/internal/events"
	"genstudio/internal/providers/falqueue"
	"genstudio/internal/storage"
)

type submitCall struct {
	endpoint string
	body     map[string]any
}

type fakeQueue struct {
	mu          sync.Mutex
	submitErr   error
	submitted   []submitCall
	state       falqueue.State
	position    *int
	logs        []string
	statusErr   error
	statusCalls int
	artifacts   []falqueue.Artifact
	resultErr   error
	resultCalls int
	gate        chan struct{}
}

func (q *fakeQueue) Submit(_ context.Context, endpoint string, body any) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.submitErr != nil {
		return "", q.submitErr
	}
	q.submitted = append(q.submitted, submitCall{endpoint: endpoint, body: body.(map[string]any)})
	return fmt.Sprintf("req-%d", len(q.submitted)), nil
}

func (q *fakeQueue) Status(context.Context, string, string) (*falqueue.QueueStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.statusCalls++
	if q.statusErr != nil {
		return nil, q.statusErr
	}
	return &falqueue.QueueStatus{State: q.state, QueuePosition: q.position, Logs: q.logs}, nil
}

func (q *fakeQueue) Result(context.Context, string, string) (*falqueue.QueueResult, error) {
	q.mu.Lock()
	q.resultCalls++
	gate := q.gate
	q.mu.Unlock()
	if gate != nil {
		<-gate
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.resultErr != nil {
		return nil, q.resultErr
	}
	return &falqueue.QueueResult{Artifacts: q.artifacts, Raw: []byte(`{"images":"stub"}`)}, nil
}

func (q *fakeQueue) lastSubmit() submitCall {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.submitted[len(q.submitted)-1]
}

func (q *fakeQueue) counts() (status, result int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.statusCalls, q.resultCalls
}

type fakeObjects struct {
	mu      sync.Mutex
	failErr error
	uploads []string
	meta    []storage.Metadata
}

func (o *fakeObjects) UploadFromURL(_ context.Context, sourceURL, key string, meta storage.Metadata) (*storage.Object, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failErr != nil {
		return nil, o.failErr
	}
	o.uploads = append(o.uploads, key)
	o.meta = append(o.meta, meta)
	return &storage.Object{Key: key, URL: o.URL(key), ContentType: "image/png", Size: 42}, nil
}

func (o *fakeObjects) PresignUpload(context.Context, storage.UploadRequest) (*storage.PresignedUpload, error) {
	return nil, storage.ErrPresignUnsupported
}

func (o *fakeObjects) ConfirmUpload(context.Context, string) (*storage.Object, error) {
	return nil, domain.ErrNotFound
}

func (o *fakeObjects) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("png")), nil
}

func (o *fakeObjects) URL(key string) string {
	return "https://cdn.test/" + key
}

func (o *fakeObjects) uploadCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.uploads)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type eventLog struct {
	mu     sync.Mutex
	events []events.JobEvent
}

func (l *eventLog) Publish(_ context.Context, evt events.JobEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, evt)
}

func (l *eventLog) types() []events.Type {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]events.Type, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Type)
	}
	return out
}

type testEnv struct {
	ctrl    *Controller
	db      *sql.DB
	jobs    *sqlite.JobRepository
	images  *sqlite.ImageRepository
	queue   *fakeQueue
	objects *fakeObjects
	clock   *fakeClock
	events  *eventLog
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := sqlite.EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("schema: %v", err)
	}

	env := &testEnv{
		db:     db,
		jobs:   sqlite.NewJobRepository(db),
		images: sqlite.NewImageRepository(db),
		queue: &fakeQueue{
			state: falqueue.StateQueued,
			artifacts: []falqueue.Artifact{
				{URL: "https://fal.test/out-1.png", Width: 1024, Height: 1024, ContentType: "image/png"},
				{URL: "https://fal.test/out-2.png", Width: 1024, Height: 1024, ContentType: "image/png"},
			},
		},
		objects: &fakeObjects{},
		clock:   &fakeClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)},
		events:  &eventLog{},
	}
	ctrl, err := NewController(Deps{
		Jobs:    env.jobs,
		Images:  env.images,
		Queue:   env.queue,
		Objects: env.objects,
		Events:  env.events,
		Logger:  zerolog.Nop(),
		Clock:   env.clock.Now,
	}, Options{LockTTL: 60 * time.Second})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	env.ctrl = ctrl
	return env
}

func (e *testEnv) countJobs(t *testing.T) int {
	t.Helper()
	var n int
	if err := e.db.QueryRow(`select count(*) from generation_jobs`).Scan(&n); err != nil {
		t.Fatalf("count jobs: %v", err)
	}
	return n
}

func (e *testEnv) job(t *testing.T, id string) *domain.Job {
	t.Helper()
	job, err := e.jobs.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%s): %v", id, err)
	}
	return job
}

func (e *testEnv) submit(t *testing.T, count int) string {
	t.Helper()
	res, err := e.ctrl.Submit(context.Background(), SubmitRequest{Prompt: "cat", Model: "flux-2-pro", NumImages: intPtr(count)})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return res.JobID
}

func mustBe(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("error = %v, want %v", err, target)
	}
}
