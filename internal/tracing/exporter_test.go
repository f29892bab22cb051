package tracing

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestFileExporter_WritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "traces.jsonl")
	exp, err := NewFileExporter(path)
	require.NoError(t, err)

	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	tracer := tp.Tracer("test")

	ctx, parent := tracer.Start(context.Background(), "parent")
	_, child := Start(ctx, tracer, "child", attribute.String(AttrSpecID, "dd2326"))
	End(child, errors.New("boom"))
	End(parent, nil)
	require.NoError(t, tp.Shutdown(context.Background()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var records []SpanRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec SpanRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		records = append(records, rec)
	}
	require.Len(t, records, 2)

	require.Equal(t, "child", records[0].Name)
	require.Equal(t, "ERROR", records[0].Status)
	require.Equal(t, "boom", records[0].StatusMsg)
	require.Equal(t, "dd2326", records[0].Attributes[AttrSpecID])
	require.Equal(t, records[1].SpanID, records[0].ParentSpanID)
	require.Equal(t, records[1].TraceID, records[0].TraceID)

	require.Equal(t, "parent", records[1].Name)
	require.Equal(t, "OK", records[1].Status)
	require.Empty(t, records[1].ParentSpanID)
}

func TestFileExporter_ShutdownTwice(t *testing.T) {
	exp, err := NewFileExporter(filepath.Join(t.TempDir(), "t.jsonl"))
	require.NoError(t, err)
	require.NoError(t, exp.Shutdown(context.Background()))
	require.NoError(t, exp.Shutdown(context.Background()))
}
