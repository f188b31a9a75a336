package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/qxwatch/internal/domain"
	"github.com/alanyoungcy/qxwatch/internal/store/memory"
)

type recordingWriter struct {
	objects   map[string][]byte
	multipart int
	err       error
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{objects: make(map[string][]byte)}
}

func (w *recordingWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if w.err != nil {
		return w.err
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if contentType != jsonlContentType {
		return errors.New("unexpected content type " + contentType)
	}
	w.objects[path] = b
	return nil
}

func (w *recordingWriter) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	w.multipart++
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.objects[path] = b
	return nil
}

func seedEvents(t *testing.T, times ...time.Time) *memory.EventStore {
	t.Helper()
	s := memory.NewEventStore()
	for i, ts := range times {
		e := domain.Event{
			ProcedureTypeName: "AddToBidOrder",
			SourceID:          "SRC",
			Amount:            "1",
			TickNumber:        int64(i + 1),
			CreatedAt:         ts,
		}
		require.NoError(t, s.Insert(context.Background(), &e))
	}
	return s
}

func decodeJSONL(t *testing.T, data []byte) []domain.Event {
	t.Helper()
	var out []domain.Event
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var e domain.Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		out = append(out, e)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestArchiveEvents_PartitionsByMonth(t *testing.T) {
	jan := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)
	events := seedEvents(t, jan, feb, jan.Add(time.Hour), mar)
	audit := memory.NewAuditStore()
	w := newRecordingWriter()

	n, err := NewArchiver(w, events, audit).ArchiveEvents(context.Background(), mar)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.Len(t, w.objects, 2)
	janRows := decodeJSONL(t, w.objects["archive/qx_events/2025-01.jsonl"])
	require.Len(t, janRows, 2)
	assert.Equal(t, int64(1), janRows[0].TickNumber)
	assert.Equal(t, int64(3), janRows[1].TickNumber)
	assert.Len(t, decodeJSONL(t, w.objects["archive/qx_events/2025-02.jsonl"]), 1)

	entries, err := audit.List(context.Background(), domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.AuditEventArchive, entries[0].Event)
	assert.Equal(t, "archive/qx_events/2025-02.jsonl", entries[0].Detail["path"])
}

func TestArchiveEvents_NothingToArchive(t *testing.T) {
	events := seedEvents(t, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	w := newRecordingWriter()
	n, err := NewArchiver(w, events, memory.NewAuditStore()).
		ArchiveEvents(context.Background(), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, w.objects)
}

func TestArchiveEvents_UploadFailure(t *testing.T) {
	events := seedEvents(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	w := newRecordingWriter()
	w.err = errors.New("bucket gone")
	audit := memory.NewAuditStore()

	_, err := NewArchiver(w, events, audit).ArchiveEvents(context.Background(), time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket gone")

	entries, err := audit.List(context.Background(), domain.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPutSized_LargePayloadUsesMultipart(t *testing.T) {
	w := newRecordingWriter()
	require.NoError(t, putSized(context.Background(), w, "small", []byte("x")))
	assert.Zero(t, w.multipart)

	require.NoError(t, putSized(context.Background(), w, "big", make([]byte, minPartSize+1)))
	assert.Equal(t, 1, w.multipart)
	assert.Len(t, w.objects["big"], int(minPartSize+1))
}
