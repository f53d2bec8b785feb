package logging

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	logger, err := NewLogger("debug")
	if err != nil {
		t.Fatalf("expected logger, got %v", err)
	}
	if !logger.Core().Enabled(zap.DebugLevel) {
		t.Fatal("expected debug level to be enabled")
	}
}

func TestOperationErrorFormatting(t *testing.T) {
	base := errors.New("boom")
	err := NewOperationError("annotate.draw", "req-1", base)
	if err.Error() != "annotate.draw (request_id=req-1): boom" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
	if !errors.Is(err, base) {
		t.Fatal("expected wrapped error to match base")
	}
	if NewOperationError("noop", "", nil) != nil {
		t.Fatal("expected nil for nil error")
	}

	nested := NewOperationError("batch.image", "req-1", fmt.Errorf("ctx: %w", NewOperationError("classifier.grpc", "", base)))
	if op := OperationOf(nested); op != "classifier.grpc" {
		t.Fatalf("expected innermost operation, got %q", op)
	}
}

func TestGormLoggerTraceLevels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Warn)

	sql := func() (string, int64) { return "SELECT 1", 1 }
	gl.Trace(context.Background(), time.Now(), sql, nil)
	if logs.Len() != 0 {
		t.Fatalf("expected fast successful query to be dropped, got %d entries", logs.Len())
	}

	gl.Trace(context.Background(), time.Now(), sql, gormlogger.ErrRecordNotFound)
	if logs.Len() != 0 {
		t.Fatalf("expected record-not-found to be ignored, got %d entries", logs.Len())
	}

	gl.Trace(context.Background(), time.Now(), sql, errors.New("connection reset"))
	if logs.FilterMessage("query failed").Len() != 1 {
		t.Fatal("expected failed query to be logged")
	}

	gl.LogMode(gormlogger.Silent).Trace(context.Background(), time.Now(), sql, errors.New("ignored"))
	if logs.Len() != 1 {
		t.Fatalf("expected silent mode to drop entries, got %d", logs.Len())
	}
}

type timeoutError struct{}

func (timeoutError) Error() string { return "i/o timeout" }
func (timeoutError) Timeout() bool { return true }

func TestIsTransient(t *testing.T) {
	cases := map[string]struct {
		err  error
		want bool
	}{
		"nil":       {err: nil, want: false},
		"plain":     {err: errors.New("constraint violation"), want: false},
		"deadline":  {err: fmt.Errorf("query: %w", context.DeadlineExceeded), want: true},
		"timeout":   {err: NewOperationError("repo.insert", "", timeoutError{}), want: true},
		"cancelled": {err: context.Canceled, want: false},
	}
	for name, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Errorf("%s: IsTransient() = %v, want %v", name, got, tc.want)
		}
	}
}
