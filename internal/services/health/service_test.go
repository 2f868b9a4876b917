package health

import (
	"context"
	"errors"
	"testing"
)

type fakePinger struct{ err error }

func (f fakePinger) PingContext(ctx context.Context) error { return f.err }

func TestStatusWithoutDatabase(t *testing.T) {
	status, ok := NewService(nil).Status(context.Background())
	if !ok || status["database"] != "memory" {
		t.Fatalf("unexpected status %v ok=%v", status, ok)
	}
}

func TestStatusReportsUnreachableDatabase(t *testing.T) {
	status, ok := NewService(fakePinger{err: errors.New("refused")}).Status(context.Background())
	if ok {
		t.Fatalf("expected not ok")
	}
	if status["ok"] != false || status["database"] != "unreachable" {
		t.Fatalf("unexpected status %v", status)
	}
}

func TestStatusHealthyDatabase(t *testing.T) {
	status, ok := NewService(fakePinger{}).Status(context.Background())
	if !ok || status["database"] != "ok" {
		t.Fatalf("unexpected status %v ok=%v", status, ok)
	}
}
