package tracing

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestSpanTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "import", "trace-1")
	cctx, child := StartChildSpan(ctx, "index")
	_, grandchild := StartChildSpan(cctx, "walk")

	if SpanFromContext(cctx) != child || child.TraceID != "trace-1" || grandchild.TraceID != "trace-1" {
		t.Fatal("child spans not linked")
	}
	if len(root.Children) != 1 || len(child.Children) != 1 {
		t.Fatalf("children = %d, %d", len(root.Children), len(child.Children))
	}
	if root.Failed() {
		t.Fatal("no span failed yet")
	}
	grandchild.SetError(errors.New("bad id"))
	if !root.Failed() {
		t.Fatal("failure not propagated")
	}

	root.End()
	end := root.EndTime
	root.End()
	if root.EndTime != end {
		t.Fatal("End moved the end time")
	}
}

func TestOrphanChildStartsTrace(t *testing.T) {
	_, span := StartChildSpan(context.Background(), "build")
	if span.TraceID == "" {
		t.Fatal("orphan span has no trace id")
	}
}

func TestLogLevels(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	_, ok := StartSpan(context.Background(), "import", "t")
	ok.End()
	ok.Log()
	if buf.Len() != 0 {
		t.Fatalf("successful trace logged at info: %s", buf.String())
	}

	ctx, failed := StartSpan(context.Background(), "import", "t")
	_, child := StartChildSpan(ctx, "build")
	child.SetError(errors.New("type mismatch"))
	child.End()
	failed.End()
	failed.Log()
	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "type mismatch") || strings.Count(out, "span=") != 2 {
		t.Fatalf("log = %s", out)
	}
}
