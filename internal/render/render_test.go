package render

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/heimdex/heimdex-render/internal/melt"
)

type fakeLauncher struct {
	pid  int
	err  error
	cmds []string
}

func (f *fakeLauncher) Launch(_ context.Context, cmdline string) (int, error) {
	f.cmds = append(f.cmds, cmdline)
	return f.pid, f.err
}

type fakeLister struct {
	pids  []int
	err   error
	calls int
}

func (f *fakeLister) RunningPIDs(context.Context, string) ([]int, error) {
	f.calls++
	return f.pids, f.err
}

type fakeSessions struct {
	slot    Slot
	has     bool
	cleared int
}

func (f *fakeSessions) Load(context.Context) (Slot, bool, error) { return f.slot, f.has, nil }

func (f *fakeSessions) Save(_ context.Context, s Slot) error {
	f.slot, f.has = s, true
	return nil
}

func (f *fakeSessions) Clear(context.Context) error {
	f.slot, f.has = Slot{}, false
	f.cleared++
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func testConfig(t *testing.T) melt.Config {
	t.Helper()
	cfg := melt.DefaultConfig()
	cfg.MeltPath = "melt"
	cfg.TmpDir = filepath.Join(t.TempDir(), "tmp")
	return cfg
}

func builderWithClip(cfg melt.Config) *melt.Builder {
	b := melt.NewBuilder(cfg, testLogger())
	b.AddOption(melt.Values(melt.Str("a.mp4")), "")
	b.SetOutputVideoOptions("out.mp4", melt.Node{}, "")
	return b
}

func TestRunner_RenderSavesSlot(t *testing.T) {
	cfg := testConfig(t)
	launcher := &fakeLauncher{pid: 4242}
	sessions := &fakeSessions{}
	r := NewRunner(builderWithClip(cfg), launcher, sessions, testLogger())
	r.newID = func() string { return "run1" }

	h, err := r.Render(context.Background())
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	wantLog := filepath.Join(cfg.TmpDir, "log_run1.txt")
	if h.PID != 4242 || h.LogPath != wantLog || h.RunID != "run1" || h.Command != launcher.cmds[0] {
		t.Errorf("handle = %+v", h)
	}
	if sessions.slot != (Slot{PID: 4242, RunID: "run1"}) {
		t.Errorf("slot = %+v", sessions.slot)
	}
	if len(launcher.cmds) != 1 {
		t.Fatalf("launched %d commands, want 1", len(launcher.cmds))
	}
	if !strings.HasPrefix(launcher.cmds[0], "melt a.mp4 \\\n-profile hdv_720_25p -progress") {
		t.Errorf("cmd = %q", launcher.cmds[0])
	}
	if !strings.HasSuffix(launcher.cmds[0], " \\\n2> \""+wantLog+"\"") {
		t.Errorf("cmd %q missing stderr redirect", launcher.cmds[0])
	}
	if _, err := os.Stat(cfg.TmpDir); err != nil {
		t.Errorf("tmp dir not created: %v", err)
	}
}

func TestRunner_LaunchFailureClearsSlot(t *testing.T) {
	tests := []struct {
		name     string
		launcher *fakeLauncher
	}{
		{"error", &fakeLauncher{err: errors.New("exec: not found")}},
		{"no pid", &fakeLauncher{pid: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			sessions := &fakeSessions{slot: Slot{PID: 1, RunID: "old"}, has: true}
			r := NewRunner(builderWithClip(cfg), tt.launcher, sessions, testLogger())

			_, err := r.Render(context.Background())
			if !errors.Is(err, ErrLaunchFailed) {
				t.Fatalf("err = %v, want ErrLaunchFailed", err)
			}
			if sessions.has || sessions.cleared != 1 {
				t.Errorf("slot should be cleared, got %+v cleared=%d", sessions.slot, sessions.cleared)
			}
		})
	}
}

func TestRunner_NothingToRender(t *testing.T) {
	cfg := testConfig(t)
	launcher := &fakeLauncher{pid: 1}
	r := NewRunner(melt.NewBuilder(cfg, testLogger()), launcher, nil, testLogger())

	if _, err := r.Render(context.Background()); !errors.Is(err, ErrNothingToRender) {
		t.Fatalf("err = %v, want ErrNothingToRender", err)
	}
	if len(launcher.cmds) != 0 {
		t.Error("nothing should be launched")
	}
}

func TestRunner_NilSessionStore(t *testing.T) {
	cfg := testConfig(t)
	r := NewRunner(builderWithClip(cfg), &fakeLauncher{pid: 7}, nil, testLogger())
	h, err := r.Render(context.Background())
	if err != nil || h.PID != 7 {
		t.Fatalf("Render = %+v, %v", h, err)
	}
}

func writeLog(t *testing.T, dir, runID, content string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := ProgressLogPath(dir, runID)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestTracker(cfg melt.Config, lister *fakeLister, sessions SessionStore) *Tracker {
	tr := NewTracker(cfg, lister, sessions, testLogger())
	tr.SetSettleDelay(time.Millisecond)
	return tr
}

func TestTracker_ReportsLastPercentage(t *testing.T) {
	cfg := testConfig(t)
	path := writeLog(t, cfg.TmpDir, "r1", "Current Frame: 1, percentage:  12\rCurrent Frame: 50, percentage:   47\r")
	tr := newTestTracker(cfg, &fakeLister{pids: []int{10}}, nil)

	got, ok := tr.Poll(context.Background(), Handle{PID: 10, LogPath: path})
	if !ok || got != 47 {
		t.Errorf("Poll = %d, %v; want 47, true", got, ok)
	}
	if _, err := os.Stat(path); err != nil {
		t.Error("log must survive an unfinished poll")
	}
}

func TestTracker_NoMatchesIsZero(t *testing.T) {
	cfg := testConfig(t)
	path := writeLog(t, cfg.TmpDir, "r1", "[producer avformat] opening clip\n")
	tr := newTestTracker(cfg, &fakeLister{pids: []int{10}}, nil)

	if got, ok := tr.Poll(context.Background(), Handle{PID: 10, LogPath: path}); !ok || got != 0 {
		t.Errorf("Poll = %d, %v; want 0, true", got, ok)
	}
}

func TestTracker_SettlesNinetyNine(t *testing.T) {
	cfg := testConfig(t)
	path := writeLog(t, cfg.TmpDir, "r1", "percentage: 47\npercentage: 99\n")
	lister := &fakeLister{pids: []int{10}}
	tr := newTestTracker(cfg, lister, nil)

	got, ok := tr.Poll(context.Background(), Handle{PID: 10, LogPath: path})
	if !ok || got != 100 {
		t.Fatalf("Poll = %d, %v; want 100, true", got, ok)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("log should be removed at 100")
	}
	if _, ok := tr.Poll(context.Background(), Handle{PID: 10, LogPath: path}); ok {
		t.Error("second poll should report none")
	}
}

func TestTracker_SettleHonoursContext(t *testing.T) {
	cfg := testConfig(t)
	path := writeLog(t, cfg.TmpDir, "r1", "percentage: 99\n")
	tr := newTestTracker(cfg, &fakeLister{pids: []int{10}}, nil)
	tr.SetSettleDelay(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got, ok := tr.Poll(ctx, Handle{PID: 10, LogPath: path})
	if !ok || got != 99 {
		t.Errorf("Poll = %d, %v; want 99, true", got, ok)
	}
	if _, err := os.Stat(path); err != nil {
		t.Error("cancelled poll must not remove the log")
	}
}

func TestTracker_DeadProcessCompletes(t *testing.T) {
	cfg := testConfig(t)
	path := writeLog(t, cfg.TmpDir, "r1", "percentage: 30\n")
	tr := newTestTracker(cfg, &fakeLister{pids: []int{11, 12}}, nil)

	got, ok := tr.Poll(context.Background(), Handle{PID: 10, LogPath: path})
	if !ok || got != 100 {
		t.Fatalf("Poll = %d, %v; want 100, true", got, ok)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("log should be deleted")
	}
	if _, ok := tr.Poll(context.Background(), Handle{PID: 10, LogPath: path}); ok {
		t.Error("poll after completion should report none")
	}
}

func TestTracker_ListerErrorSkipsLiveness(t *testing.T) {
	cfg := testConfig(t)
	path := writeLog(t, cfg.TmpDir, "r1", "percentage: 30\n")
	tr := newTestTracker(cfg, &fakeLister{err: errors.New("permission denied")}, nil)

	if got, ok := tr.Poll(context.Background(), Handle{PID: 10, LogPath: path}); !ok || got != 30 {
		t.Errorf("Poll = %d, %v; want 30, true", got, ok)
	}
}

func TestTracker_NoPIDSkipsLister(t *testing.T) {
	cfg := testConfig(t)
	path := writeLog(t, cfg.TmpDir, "r1", "percentage: 30\n")
	lister := &fakeLister{}
	tr := newTestTracker(cfg, lister, nil)

	if got, _ := tr.Poll(context.Background(), Handle{LogPath: path}); got != 30 {
		t.Errorf("Poll = %d, want 30", got)
	}
	if lister.calls != 0 {
		t.Errorf("lister called %d times without a pid", lister.calls)
	}
}

func TestTracker_SessionSlot(t *testing.T) {
	cfg := testConfig(t)
	writeLog(t, cfg.TmpDir, "r1", "percentage: 55\n")
	sessions := &fakeSessions{slot: Slot{PID: 10, RunID: "r1"}, has: true}
	lister := &fakeLister{pids: []int{10}}
	tr := newTestTracker(cfg, lister, sessions)

	if got, ok := tr.Poll(context.Background(), Handle{}); !ok || got != 55 {
		t.Fatalf("Poll = %d, %v; want 55, true", got, ok)
	}
	if lister.calls != 1 {
		t.Errorf("lister calls = %d, want 1", lister.calls)
	}

	lister.pids = nil
	if got, _ := tr.Poll(context.Background(), Handle{}); got != 100 {
		t.Fatalf("Poll = %d, want 100", got)
	}
	if sessions.has {
		t.Error("slot should be cleared on completion")
	}
	if _, ok := tr.Poll(context.Background(), Handle{}); ok {
		t.Error("poll with cleared slot should report none")
	}
}

func TestTracker_KeepsSlotOfNewerRun(t *testing.T) {
	cfg := testConfig(t)
	old := writeLog(t, cfg.TmpDir, "old", "percentage: 99\n")
	sessions := &fakeSessions{slot: Slot{PID: 20, RunID: "new"}, has: true}
	tr := newTestTracker(cfg, &fakeLister{pids: []int{20}}, sessions)

	if got, _ := tr.Poll(context.Background(), Handle{PID: 10, LogPath: old}); got != 100 {
		t.Fatalf("Poll = %d, want 100", got)
	}
	if !sessions.has || sessions.slot.RunID != "new" {
		t.Errorf("slot of another run was cleared: %+v", sessions.slot)
	}
}

func TestTracker_NoneWithoutLog(t *testing.T) {
	cfg := testConfig(t)
	tests := []struct {
		name     string
		sessions SessionStore
		handle   Handle
	}{
		{"nil store and empty handle", nil, Handle{}},
		{"empty slot", &fakeSessions{}, Handle{}},
		{"missing file", nil, Handle{LogPath: filepath.Join(cfg.TmpDir, "log_gone.txt")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTracker(cfg, &fakeLister{}, tt.sessions)
			if got, ok := tr.Poll(context.Background(), tt.handle); ok {
				t.Errorf("Poll = %d, true; want none", got)
			}
		})
	}
}

func TestRunIDFromLogPath(t *testing.T) {
	if got := RunIDFromLogPath(ProgressLogPath("/tmp", "abc")); got != "abc" {
		t.Errorf("RunIDFromLogPath = %q, want abc", got)
	}
	if got := RunIDFromLogPath("/tmp/other.txt"); got != "" {
		t.Errorf("RunIDFromLogPath = %q, want empty", got)
	}
}

func TestTracker_PeekLeavesLogAndSlot(t *testing.T) {
	cfg := testConfig(t)
	tests := []struct {
		name     string
		content  string
		pids     []int
		wantPct  int
		wantDone bool
	}{
		{"running", "percentage: 30\n", []int{10}, 30, false},
		{"dead process", "percentage: 30\n", nil, 30, true},
		{"ninety nine", "percentage: 99\n", []int{10}, 99, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeLog(t, cfg.TmpDir, "peek", tt.content)
			sessions := &fakeSessions{slot: Slot{PID: 10, RunID: "peek"}, has: true}
			tr := newTestTracker(cfg, &fakeLister{pids: tt.pids}, sessions)

			pct, done, ok := tr.Peek(context.Background(), Handle{PID: 10, LogPath: path})
			if !ok || pct != tt.wantPct || done != tt.wantDone {
				t.Errorf("Peek = %d, %v, %v; want %d, %v, true", pct, done, ok, tt.wantPct, tt.wantDone)
			}
			if _, err := os.Stat(path); err != nil {
				t.Error("Peek removed the progress log")
			}
			if !sessions.has || sessions.cleared != 0 {
				t.Errorf("Peek touched the session slot: %+v", sessions)
			}
		})
	}

	tr := newTestTracker(cfg, &fakeLister{}, nil)
	if _, _, ok := tr.Peek(context.Background(), Handle{}); ok {
		t.Error("Peek without a log path reported progress")
	}
}
