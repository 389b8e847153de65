package launch

import (
	"os"
	"testing"
	"time"
)

func TestStartReapsAndReportsExitCode(t *testing.T) {
	p, err := Start("true", nil)
	if err != nil {
		t.Fatalf("Start(true) failed: %v", err)
	}

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("child was not reaped")
	}

	if code := p.ExitCode(); code != 0 {
		t.Errorf("ExitCode() = %d, want 0", code)
	}
	if p.Info.PID <= 0 {
		t.Errorf("Info.PID = %d, want > 0", p.Info.PID)
	}
	if p.Info.Name != "true" {
		t.Errorf("Info.Name = %q, want %q", p.Info.Name, "true")
	}
	if p.Info.CreateTimeMS == 0 {
		t.Error("Info.CreateTimeMS not populated")
	}
}

func TestStartNonZeroExit(t *testing.T) {
	p, err := Start("false", nil)
	if err != nil {
		t.Fatalf("Start(false) failed: %v", err)
	}

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("child was not reaped")
	}

	if code := p.ExitCode(); code != 1 {
		t.Errorf("ExitCode() = %d, want 1", code)
	}
}

func TestStartMissingBinary(t *testing.T) {
	if _, err := Start("/nonexistent/procwatch-test-binary", nil); err == nil {
		t.Fatal("expected error for missing binary")
	}
}

func TestExitCodeBeforeExit(t *testing.T) {
	p, err := Start("sleep", []string{"30"})
	if err != nil {
		t.Fatalf("Start(sleep) failed: %v", err)
	}
	defer p.Terminate(0)

	if code := p.ExitCode(); code != -1 {
		t.Errorf("ExitCode() before exit = %d, want -1", code)
	}
}

func TestTerminateEndsChild(t *testing.T) {
	p, err := Start("sleep", []string{"30"})
	if err != nil {
		t.Fatalf("Start(sleep) failed: %v", err)
	}

	start := time.Now()
	p.Terminate(time.Second)

	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Terminate took %v", elapsed)
	}
	select {
	case <-p.Done():
	default:
		t.Error("Done() not closed after Terminate")
	}
	if code := p.ExitCode(); code == 0 {
		t.Error("signaled child reported exit code 0")
	}
}

func TestAttachSelf(t *testing.T) {
	info, err := Attach(int32(os.Getpid()))
	if err != nil {
		t.Fatalf("Attach(self) failed: %v", err)
	}
	if info.PID != int32(os.Getpid()) {
		t.Errorf("PID = %d, want %d", info.PID, os.Getpid())
	}
	if info.Name == "" {
		t.Error("Name not populated")
	}
	if info.StartedAt.IsZero() {
		t.Error("StartedAt not populated")
	}
}

func TestAttachMissingProcess(t *testing.T) {
	if _, err := Attach(1<<22 - 7); err == nil {
		t.Fatal("expected error attaching to nonexistent pid")
	}
}
