package launcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nvandessel/simsweep/internal/constants"
	"github.com/nvandessel/simsweep/internal/ratelimit"
	"github.com/nvandessel/simsweep/internal/store"
	"github.com/nvandessel/simsweep/internal/sweep"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeProcess is a Process whose Wait blocks until release is closed.
type fakeProcess struct {
	pid        int
	release    chan struct{}
	released   atomic.Bool
	releaseErr error
}

func (p *fakeProcess) PID() int { return p.pid }

func (p *fakeProcess) Wait() error {
	if p.release != nil {
		<-p.release
	}
	return nil
}

func (p *fakeProcess) Release() error {
	p.released.Store(true)
	return p.releaseErr
}

// fakeSpawner records started jobs and hands out fake processes.
type fakeSpawner struct {
	mu      sync.Mutex
	jobs    []Job
	procs   []*fakeProcess
	failOn  map[string]error
	release chan struct{} // shared by all processes when set

	live    atomic.Int32
	maxLive atomic.Int32
}

func (s *fakeSpawner) Start(ctx context.Context, job Job) (Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.failOn[job.Identity]; ok {
		return nil, err
	}
	s.jobs = append(s.jobs, job)
	p := &fakeProcess{pid: 1000 + len(s.jobs), release: s.release}
	s.procs = append(s.procs, p)

	if s.release != nil {
		n := s.live.Add(1)
		for {
			m := s.maxLive.Load()
			if n <= m || s.maxLive.CompareAndSwap(m, n) {
				break
			}
		}
		return &countingProcess{fakeProcess: p, live: &s.live}, nil
	}
	return p, nil
}

func (s *fakeSpawner) identities() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.jobs))
	for i, j := range s.jobs {
		ids[i] = j.Identity
	}
	return ids
}

// countingProcess decrements the live count when it exits.
type countingProcess struct {
	*fakeProcess
	live *atomic.Int32
}

func (p *countingProcess) Wait() error {
	err := p.fakeProcess.Wait()
	p.live.Add(-1)
	return err
}

func testPlan(root string, executions int) sweep.Plan {
	return sweep.Plan{
		Params: sweep.Params{
			MapSizes:             []string{"400", "800"},
			NumHGs:               []string{"100"},
			Controllers:          []string{"DecisionTree", "MDP"},
			BiomassDistributions: []string{"linDecayFromWater"},
			Executions:           executions,
		},
		Layout:         sweep.DefaultLayout(root),
		Tokens:         sweep.DefaultTokens(),
		Simulator:      "../gujarat",
		SeedUpperBound: sweep.DefaultSeedUpperBound,
	}
}

func TestNewJob(t *testing.T) {
	layout := sweep.DefaultLayout("/work")
	tup := sweep.Tuple{MapSize: "1600", NumHG: "100", Controller: "DecisionTree", BiomassDistribution: "linDecayFromWater", Execution: 1}

	job := NewJob(layout, tup)
	id := "results_size1600_numHG100_controller_DecisionTree_biodist_linDecayFromWater_ex1"
	want := Job{
		Tuple:      tup,
		Identity:   id,
		Dir:        filepath.Join("/work", id),
		ConfigPath: filepath.Join("/work", id, "config.xml"),
		LogPath:    filepath.Join("/work", id, "simulator.log"),
		ErrPath:    filepath.Join("/work", id, "simulator.err"),
		WorkDir:    "/work",
	}
	if diff := cmp.Diff(want, job); diff != "" {
		t.Errorf("NewJob() mismatch (-want +got):\n%s", diff)
	}
}

func TestLaunch_DetachedLaunchesEveryRunInLaunchOrder(t *testing.T) {
	plan := testPlan(t.TempDir(), 2)
	spawner := &fakeSpawner{}
	ledger := store.NewMemoryLedger()
	var out bytes.Buffer

	report, err := New(plan, spawner, ledger, &Config{Out: &out}).Launch(context.Background())
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if err := report.Err(); err != nil {
		t.Fatalf("Launch() failures = %v", err)
	}

	var want []string
	for _, tup := range plan.Params.LaunchOrder() {
		want = append(want, plan.Layout.Identity(tup))
	}
	if diff := cmp.Diff(want, spawner.identities()); diff != "" {
		t.Errorf("launch order mismatch (-want +got):\n%s", diff)
	}
	for _, p := range spawner.procs {
		if !p.released.Load() {
			t.Errorf("process %d was not released", p.pid)
		}
	}

	runs, err := ledger.ListRuns(context.Background(), report.SweepID)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != plan.Params.Size() {
		t.Fatalf("ledger has %d runs, want %d", len(runs), plan.Params.Size())
	}
	for _, r := range runs {
		if r.Status != constants.RunStatusLaunched || r.PID == 0 {
			t.Errorf("run %s = status %q pid %d", r.Identity, r.Status, r.PID)
		}
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if lines[0] != "submitting tasks" || len(lines) != plan.Params.Size()+1 {
		t.Errorf("unexpected progress output:\n%s", out.String())
	}
	if lines[2] != "submitting instance: 1 for map: 400 numHG: 100 with controller: DecisionTree biomass distribution: linDecayFromWater and execution: 1" {
		t.Errorf("line 2 = %q", lines[2])
	}
}

func TestLaunch_SameSetAsGeneration(t *testing.T) {
	plan := testPlan(t.TempDir(), 3)
	spawner := &fakeSpawner{}

	if _, err := New(plan, spawner, nil, nil).Launch(context.Background()); err != nil {
		t.Fatal(err)
	}

	var generated []string
	for _, tup := range plan.Params.GenerationOrder() {
		generated = append(generated, plan.Layout.Identity(tup))
	}
	launched := spawner.identities()
	sort.Strings(generated)
	sort.Strings(launched)
	if diff := cmp.Diff(generated, launched); diff != "" {
		t.Errorf("launched set differs from generated set (-gen +launch):\n%s", diff)
	}
}

func TestLaunch_CollectsFailures(t *testing.T) {
	plan := testPlan(t.TempDir(), 2)
	first := plan.Layout.Identity(plan.Params.LaunchOrder()[0])
	spawner := &fakeSpawner{failOn: map[string]error{first: errors.New("exec: no such file")}}
	ledger := store.NewMemoryLedger()

	report, err := New(plan, spawner, ledger, nil).Launch(context.Background())
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if len(report.Failures) != 1 || report.Failures[0].Identity != first {
		t.Fatalf("failures = %v, want one for %s", report.Err(), first)
	}
	if len(report.Launched) != plan.Params.Size()-1 {
		t.Errorf("launched %d, want %d", len(report.Launched), plan.Params.Size()-1)
	}

	runs, _ := ledger.ListRuns(context.Background(), report.SweepID)
	var failed int
	for _, r := range runs {
		if r.Status == constants.RunStatusFailed {
			failed++
			if r.Phase != "launch" {
				t.Errorf("failed run phase = %q, want launch", r.Phase)
			}
		}
	}
	if failed != 1 {
		t.Errorf("ledger failed runs = %d, want 1", failed)
	}
}

func TestLaunch_FailFast(t *testing.T) {
	plan := testPlan(t.TempDir(), 2)
	first := plan.Layout.Identity(plan.Params.LaunchOrder()[0])
	spawner := &fakeSpawner{failOn: map[string]error{first: errors.New("boom")}}

	report, err := New(plan, spawner, nil, &Config{FailFast: true}).Launch(context.Background())
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("Launch() error = %v, want ErrAborted", err)
	}
	var jobErr *JobError
	if !errors.As(err, &jobErr) || jobErr.Identity != first {
		t.Errorf("aborting error = %v, want JobError for %s", err, first)
	}
	if len(spawner.identities()) != 0 || len(report.Launched) != 0 {
		t.Errorf("launched %v after abort, want none", spawner.identities())
	}
}

func TestLaunch_BoundedCapsLiveProcesses(t *testing.T) {
	plan := testPlan(t.TempDir(), 3) // 12 runs
	release := make(chan struct{})
	spawner := &fakeSpawner{release: release}
	const limit = 2

	done := make(chan struct{})
	var report *Report
	var err error
	go func() {
		defer close(done)
		report, err = New(plan, spawner, nil, &Config{Policy: NewBounded(limit, nil)}).Launch(context.Background())
	}()

	// Wait until the cap is reached, then confirm Launch is blocked on it.
	deadline := time.Now().Add(5 * time.Second)
	for spawner.live.Load() < limit && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	select {
	case <-done:
		t.Fatal("Launch() returned while processes were still running")
	case <-time.After(50 * time.Millisecond):
	}
	if got := len(spawner.identities()); got != limit {
		t.Errorf("started %d processes before any exited, want %d", got, limit)
	}

	close(release)
	<-done

	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if len(report.Launched) != plan.Params.Size() {
		t.Errorf("launched %d, want %d", len(report.Launched), plan.Params.Size())
	}
	if m := spawner.maxLive.Load(); m > limit {
		t.Errorf("max live processes = %d, want <= %d", m, limit)
	}
}

func TestLaunch_BoundedStopsOnCancel(t *testing.T) {
	plan := testPlan(t.TempDir(), 2) // 8 runs
	release := make(chan struct{})
	defer close(release)
	spawner := &fakeSpawner{release: release}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		_, err = New(plan, spawner, nil, &Config{Policy: NewBounded(1, nil)}).Launch(ctx)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for spawner.live.Load() < 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Launch() still blocked after cancel; started=%d", len(spawner.identities()))
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Launch() error = %v, want context.Canceled", err)
	}
	if got := len(spawner.identities()); got != 1 {
		t.Errorf("started %d processes, want 1", got)
	}
}

func TestDetached_LogsReleaseError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	p := &fakeProcess{pid: 42, releaseErr: errors.New("already released")}

	err := Detached{Logger: logger}.Submit(context.Background(), func() (Process, error) { return p, nil })
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !p.released.Load() {
		t.Error("process was not released")
	}
	if out := buf.String(); !strings.Contains(out, "failed to release") || !strings.Contains(out, "pid=42") {
		t.Errorf("log = %q, want release failure for pid 42", out)
	}
}

func TestLaunch_Paced(t *testing.T) {
	plan := testPlan(t.TempDir(), 1) // 4 runs
	spawner := &fakeSpawner{}
	limiter := ratelimit.NewLaunchLimiter(40, 1)

	start := time.Now()
	if _, err := New(plan, spawner, nil, &Config{Limiter: limiter}).Launch(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Burst of 1 then 3 waits at 40/s.
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Errorf("paced launch took %v, want at least 60ms", elapsed)
	}
	if len(spawner.identities()) != 4 {
		t.Errorf("launched %d, want 4", len(spawner.identities()))
	}
}

func TestLaunch_ContextCancelled(t *testing.T) {
	plan := testPlan(t.TempDir(), 2)
	spawner := &fakeSpawner{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(plan, spawner, nil, nil).Launch(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Launch() error = %v, want context.Canceled", err)
	}
	if len(spawner.identities()) != 0 {
		t.Errorf("launched %v with cancelled context", spawner.identities())
	}
}

func TestLaunch_ReusesLatestSweepOfWorkspace(t *testing.T) {
	root := t.TempDir()
	plan := testPlan(root, 1)
	ledger := store.NewMemoryLedger()
	sw := store.NewSweep(root, plan.Params.Size(), 0)
	if err := ledger.BeginSweep(context.Background(), sw); err != nil {
		t.Fatal(err)
	}

	report, err := New(plan, &fakeSpawner{}, ledger, nil).Launch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.SweepID != sw.ID {
		t.Errorf("SweepID = %s, want latest %s", report.SweepID, sw.ID)
	}
}

func TestExecSpawner_RedirectsOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script simulator stub requires a Unix shell")
	}

	root := t.TempDir()
	stub := filepath.Join(root, "gujarat")
	script := "#!/bin/sh\necho \"config=$1\"\necho oops >&2\n"
	if err := os.WriteFile(stub, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}

	plan := testPlan(root, 1)
	plan.Simulator = stub
	tup := plan.Params.LaunchOrder()[0]
	job := NewJob(plan.Layout, tup)
	if err := os.Mkdir(job.Dir, 0755); err != nil {
		t.Fatal(err)
	}

	p, err := (&ExecSpawner{Binary: stub}).Start(context.Background(), job)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if p.PID() <= 0 {
		t.Errorf("PID() = %d", p.PID())
	}
	if err := p.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	logData, err := os.ReadFile(job.LogPath)
	if err != nil {
		t.Fatal(err)
	}
	wantLog := fmt.Sprintf("config=%s\n", job.ConfigPath)
	if string(logData) != wantLog {
		t.Errorf("log = %q, want %q", logData, wantLog)
	}
	errData, err := os.ReadFile(job.ErrPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(errData) != "oops\n" {
		t.Errorf("err = %q, want %q", errData, "oops\n")
	}
}

func TestExecSpawner_MissingBinary(t *testing.T) {
	root := t.TempDir()
	plan := testPlan(root, 1)
	job := NewJob(plan.Layout, plan.Params.LaunchOrder()[0])
	if err := os.Mkdir(job.Dir, 0755); err != nil {
		t.Fatal(err)
	}

	_, err := (&ExecSpawner{Binary: filepath.Join(root, "missing")}).Start(context.Background(), job)
	if err == nil {
		t.Fatal("Start() with missing binary should fail")
	}
}

func TestExecSpawner_MissingRunDir(t *testing.T) {
	plan := testPlan(t.TempDir(), 1)
	job := NewJob(plan.Layout, plan.Params.LaunchOrder()[0])

	_, err := (&ExecSpawner{Binary: "/bin/true"}).Start(context.Background(), job)
	if err == nil || !strings.Contains(err.Error(), "log file") {
		t.Fatalf("Start() error = %v, want log file error", err)
	}
}
