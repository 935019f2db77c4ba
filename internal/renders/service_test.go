package renders

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/heimdex/heimdex-render/internal/db"
	"github.com/heimdex/heimdex-render/internal/melt"
	"github.com/heimdex/heimdex-render/internal/render"
	"github.com/heimdex/heimdex-render/internal/session"
)

func setupTestDB(t *testing.T) (*db.DB, Repository) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	database, err := db.New(dbPath, nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	repo := NewRepository(database.Conn())
	return database, repo
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

type fakeLauncher struct {
	handle render.Handle
	err    error
}

func (f *fakeLauncher) RenderTarget(ctx context.Context, target string) (render.Handle, error) {
	return f.handle, f.err
}

type fakePoller struct {
	mu      sync.Mutex
	percent int
	ok      bool
	calls   int
	peeks   int
	delay   time.Duration

	inflight    int
	maxInflight int
}

func (f *fakePoller) Poll(ctx context.Context, h render.Handle) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.percent, f.ok
}

func (f *fakePoller) Peek(ctx context.Context, h render.Handle) (int, bool, bool) {
	f.mu.Lock()
	f.peeks++
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	percent, ok, delay := f.percent, f.ok, f.delay
	f.mu.Unlock()

	time.Sleep(delay)

	f.mu.Lock()
	f.inflight--
	f.mu.Unlock()
	return percent, percent >= 99, ok
}

func (f *fakePoller) peekCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peeks
}

func (f *fakePoller) set(percent int, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.percent, f.ok = percent, ok
}

func (f *fakePoller) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestService_StartRecordsRender(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, &fakePoller{}, quietLogger())
	launcher := &fakeLauncher{handle: render.Handle{PID: 42, LogPath: "/tmp/log_abc.txt", RunID: "abc", Command: "melt a.mp4"}}

	ctx := session.WithID(context.Background(), "visitor-1")
	rd, err := svc.Start(ctx, launcher, "main", "/out/a.webm")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if rd.ID != "abc" || rd.Status != StatusRunning || rd.SessionID != "visitor-1" {
		t.Errorf("render = %+v", rd)
	}

	stored, err := svc.Get(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.PID != 42 || stored.Command != "melt a.mp4" || stored.OutputPath != "/out/a.webm" {
		t.Errorf("stored = %+v", stored)
	}
}

func TestService_StartNothingToRender(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, &fakePoller{}, quietLogger())
	_, err := svc.Start(context.Background(), &fakeLauncher{err: render.ErrNothingToRender}, "main", "")
	if !errors.Is(err, render.ErrNothingToRender) {
		t.Fatalf("Start() error = %v, want ErrNothingToRender", err)
	}

	list, err := svc.List(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("List() = %d rows, want 0", len(list))
	}
}

func TestService_StartLaunchFailureIsStored(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, &fakePoller{}, quietLogger())
	launcher := &fakeLauncher{
		handle: render.Handle{LogPath: "/tmp/log_bad.txt", RunID: "bad", Command: "melt x"},
		err:    render.ErrLaunchFailed,
	}

	rd, err := svc.Start(context.Background(), launcher, "main", "")
	if !errors.Is(err, render.ErrLaunchFailed) {
		t.Fatalf("Start() error = %v, want ErrLaunchFailed", err)
	}
	if rd == nil || rd.Status != StatusFailed {
		t.Fatalf("render = %+v, want failed row", rd)
	}

	stored, err := svc.Get(context.Background(), "bad")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != StatusFailed || stored.Error == "" {
		t.Errorf("stored = %+v", stored)
	}
	if stored.SessionID != session.DefaultID {
		t.Errorf("SessionID = %q, want %q", stored.SessionID, session.DefaultID)
	}
}

func TestService_GetNotFound(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, &fakePoller{}, quietLogger())
	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if _, err := svc.Poll(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Poll() error = %v, want ErrNotFound", err)
	}
}

func TestService_Poll(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	poller := &fakePoller{percent: 37, ok: true}
	svc := NewService(repo, poller, quietLogger())
	launcher := &fakeLauncher{handle: render.Handle{PID: 7, LogPath: "/tmp/log_r1.txt", RunID: "r1"}}
	if _, err := svc.Start(context.Background(), launcher, "main", ""); err != nil {
		t.Fatal(err)
	}

	rd, err := svc.Poll(context.Background(), "r1")
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if rd.Progress != 37 || rd.Status != StatusRunning {
		t.Errorf("after first poll = %d %s", rd.Progress, rd.Status)
	}

	poller.set(100, true)
	rd, err = svc.Poll(context.Background(), "r1")
	if err != nil {
		t.Fatal(err)
	}
	if rd.Progress != 100 || rd.Status != StatusCompleted {
		t.Errorf("after completion = %d %s", rd.Progress, rd.Status)
	}

	calls := poller.callCount()
	if _, err := svc.Poll(context.Background(), "r1"); err != nil {
		t.Fatal(err)
	}
	if poller.callCount() != calls {
		t.Error("completed render was polled again")
	}
}

func TestService_PollMissingLogCompletes(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, &fakePoller{ok: false}, quietLogger())
	launcher := &fakeLauncher{handle: render.Handle{PID: 7, LogPath: "/tmp/log_gone.txt", RunID: "gone"}}
	if _, err := svc.Start(context.Background(), launcher, "main", ""); err != nil {
		t.Fatal(err)
	}

	rd, err := svc.Poll(context.Background(), "gone")
	if err != nil {
		t.Fatal(err)
	}
	if rd.Status != StatusCompleted || rd.Progress != 100 {
		t.Errorf("render = %d %s, want completed", rd.Progress, rd.Status)
	}
}

func TestRepository_ListOrderAndRunning(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"first", "second", "third"} {
		rd := &Render{
			ID: id, Target: "main", LogPath: "/tmp/log_" + id + ".txt", Command: "melt",
			Status: StatusRunning, CreatedAt: base.Add(time.Duration(i) * time.Minute), UpdatedAt: base,
		}
		if err := repo.CreateRender(ctx, rd); err != nil {
			t.Fatal(err)
		}
	}
	if err := repo.UpdateStatus(ctx, "second", StatusFailed, "boom"); err != nil {
		t.Fatal(err)
	}

	list, err := repo.ListRenders(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 || list[0].ID != "third" {
		t.Errorf("ListRenders order = %v", ids(list))
	}

	running, err := repo.ListRunning(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(running) != 2 || running[0].ID != "first" || running[1].ID != "third" {
		t.Errorf("ListRunning = %v", ids(running))
	}
}

func TestRepository_Config(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()
	ctx := context.Background()

	if v, err := repo.GetConfig(ctx, "auth_token"); err != nil || v != "" {
		t.Errorf("GetConfig(missing) = %q, %v", v, err)
	}
	if err := repo.SetConfig(ctx, "auth_token", "one"); err != nil {
		t.Fatal(err)
	}
	if err := repo.SetConfig(ctx, "auth_token", "two"); err != nil {
		t.Fatal(err)
	}
	if v, _ := repo.GetConfig(ctx, "auth_token"); v != "two" {
		t.Errorf("GetConfig = %q, want two", v)
	}
}

func ids(list []*Render) []string {
	out := make([]string, len(list))
	for i, rd := range list {
		out[i] = rd.ID
	}
	return out
}

func TestService_PollReleasesOwnerSlot(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	tmpDir := t.TempDir()
	sessions := session.NewMemory()
	tracker := render.NewTracker(melt.Config{MeltPath: "melt", TmpDir: tmpDir}, &fakeLister{}, sessions, quietLogger())
	tracker.SetSettleDelay(0)
	svc := NewService(repo, tracker, quietLogger())

	logPath := render.ProgressLogPath(tmpDir, "own")
	if err := os.WriteFile(logPath, []byte("percentage: 99\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	owner := session.WithID(context.Background(), "owner")
	if err := sessions.Save(owner, render.Slot{PID: 9, RunID: "own"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Start(owner, &fakeLauncher{handle: render.Handle{PID: 9, LogPath: logPath, RunID: "own"}}, "main", ""); err != nil {
		t.Fatal(err)
	}

	other := session.WithID(context.Background(), "someone-else")
	rd, err := svc.Poll(other, "own")
	if err != nil {
		t.Fatal(err)
	}
	if rd.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", rd.Status)
	}
	if _, found, _ := sessions.Load(owner); found {
		t.Error("owner slot still points at a finished render")
	}
	if _, err := os.Stat(logPath); !os.IsNotExist(err) {
		t.Error("progress log not removed")
	}
}

func TestService_RefreshKeepsLog(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	poller := &fakePoller{percent: 99, ok: true}
	svc := NewService(repo, poller, quietLogger())
	if _, err := svc.Start(context.Background(), &fakeLauncher{handle: render.Handle{PID: 1, LogPath: "/tmp/log_k.txt", RunID: "k"}}, "main", ""); err != nil {
		t.Fatal(err)
	}

	rd, err := svc.Refresh(context.Background(), "k")
	if err != nil {
		t.Fatal(err)
	}
	if rd.Status != StatusCompleted || rd.Progress != 100 {
		t.Errorf("render = %d %s, want completed", rd.Progress, rd.Status)
	}
	if poller.callCount() != 0 {
		t.Error("Refresh consumed the completion through Poll")
	}
}
