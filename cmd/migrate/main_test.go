package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"
)

type fakeMigrator struct {
	upSteps   []int
	downSteps []int
	upErr     error
	statusErr error
	version   int64
	applied   int
	closed    bool
}

func (f *fakeMigrator) MigrateUp(_ context.Context, steps int) error {
	f.upSteps = append(f.upSteps, steps)
	return f.upErr
}

func (f *fakeMigrator) MigrateDown(_ context.Context, steps int) error {
	f.downSteps = append(f.downSteps, steps)
	return nil
}

func (f *fakeMigrator) MigrationStatus(context.Context) (int64, int, error) {
	return f.version, f.applied, f.statusErr
}

func (f *fakeMigrator) Close() error {
	f.closed = true
	return nil
}

func withMigrator(t *testing.T, m migrator, openErr error) {
	t.Helper()

	old := openMigrator
	openMigrator = func(context.Context, string) (migrator, error) {
		if openErr != nil {
			return nil, openErr
		}
		return m, nil
	}
	t.Cleanup(func() { openMigrator = old })
}

func envLookup(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestParseArgs_Defaults(t *testing.T) {
	opts, err := parseArgs(nil, envLookup(map[string]string{envPostgresDSN: " postgres://env "}))
	if err != nil {
		t.Fatalf("parseArgs failed: %v", err)
	}
	if opts.direction != "up" || opts.steps != 0 || opts.dsn != "postgres://env" || opts.timeout != defaultTimeout {
		t.Fatalf("unexpected options: %+v", opts)
	}
}

func TestParseArgs_FlagsWinOverEnv(t *testing.T) {
	opts, err := parseArgs(
		[]string{"-direction=DOWN", "-dsn=postgres://flag", "-timeout=5s"},
		envLookup(map[string]string{envPostgresDSN: "postgres://env"}),
	)
	if err != nil {
		t.Fatalf("parseArgs failed: %v", err)
	}
	if opts.dsn != "postgres://flag" {
		t.Fatalf("unexpected dsn: %s", opts.dsn)
	}
	if opts.direction != "down" || opts.steps != 1 {
		t.Fatalf("expected down with one step by default, got %+v", opts)
	}
	if opts.timeout != 5*time.Second {
		t.Fatalf("unexpected timeout: %s", opts.timeout)
	}
}

func TestParseArgs_Errors(t *testing.T) {
	cases := map[string][]string{
		"OIS_POSTGRES_DSN":      {"-direction=status"},
		"unsupported direction": {"-direction=sideways", "-dsn=x"},
		"steps must be >= 0":    {"-steps=-1", "-dsn=x"},
		"timeout must be > 0":   {"-timeout=0s", "-dsn=x"},
		"flag provided but not": {"-unknown"},
	}
	for want, args := range cases {
		_, err := parseArgs(args, envLookup(nil))
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("args %v: expected %q, got %v", args, want, err)
		}
	}
}

func TestRun_Directions(t *testing.T) {
	m := &fakeMigrator{version: 2, applied: 2}
	withMigrator(t, m, nil)

	var out bytes.Buffer
	if err := run(context.Background(), options{direction: "up", steps: 0, dsn: "x"}, &out); err != nil {
		t.Fatalf("run up failed: %v", err)
	}
	if err := run(context.Background(), options{direction: "down", steps: 1, dsn: "x"}, &out); err != nil {
		t.Fatalf("run down failed: %v", err)
	}
	if err := run(context.Background(), options{direction: "status", dsn: "x"}, &out); err != nil {
		t.Fatalf("run status failed: %v", err)
	}

	if len(m.upSteps) != 1 || m.upSteps[0] != 0 {
		t.Fatalf("unexpected up calls: %v", m.upSteps)
	}
	if len(m.downSteps) != 1 || m.downSteps[0] != 1 {
		t.Fatalf("unexpected down calls: %v", m.downSteps)
	}
	if !m.closed {
		t.Fatal("expected store to be closed")
	}
	want := "up ok: version=2 applied=2\ndown ok: version=2 applied=2\nstatus ok: version=2 applied=2\n"
	if out.String() != want {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}

func TestRun_Errors(t *testing.T) {
	withMigrator(t, nil, errors.New("dial failed"))
	if err := run(context.Background(), options{direction: "up", dsn: "x"}, &bytes.Buffer{}); err == nil || !strings.Contains(err.Error(), "open postgres store") {
		t.Fatalf("expected open error, got %v", err)
	}

	m := &fakeMigrator{upErr: errors.New("lock timeout")}
	withMigrator(t, m, nil)
	if err := run(context.Background(), options{direction: "up", dsn: "x"}, &bytes.Buffer{}); err == nil || !strings.Contains(err.Error(), "migrate up failed") {
		t.Fatalf("expected migrate error, got %v", err)
	}
	if !m.closed {
		t.Fatal("expected store to be closed on error")
	}

	m = &fakeMigrator{statusErr: errors.New("no table")}
	withMigrator(t, m, nil)
	if err := run(context.Background(), options{direction: "status", dsn: "x"}, &bytes.Buffer{}); err == nil || !strings.Contains(err.Error(), "migration status failed") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestRun_RealPostgres(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("OIS_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("OIS_POSTGRES_TEST_DSN is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out bytes.Buffer
	for _, direction := range []string{"up", "status"} {
		if err := run(ctx, options{direction: direction, dsn: dsn}, &out); err != nil {
			t.Fatalf("run %s failed: %v", direction, err)
		}
	}
	if !strings.Contains(out.String(), "status ok") {
		t.Fatalf("unexpected output: %s", out.String())
	}
}

func TestFailExits(t *testing.T) {
	if os.Getenv("MIGRATE_TEST_FAIL_EXIT") == "1" {
		fail("forced failure %d", 42)
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "MIGRATE_TEST_FAIL_EXIT=1")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected subprocess to exit with error")
	}
	if exitErr, ok := err.(*exec.ExitError); !ok || exitErr.ExitCode() == 0 {
		t.Fatalf("expected non-zero exit code, got %v", err)
	}
}
