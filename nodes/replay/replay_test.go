package replay

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"

	"github.com/flowdag/flowdag"
	"github.com/flowdag/flowdag/datatype"
	"github.com/flowdag/flowdag/internal/recfile"
)

func writeRecording(t *testing.T, records ...recfile.Record) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.rec")
	f, err := os.Create(path)
	assert.NoError(t, err)
	w := recfile.NewWriter(f)
	for _, rec := range records {
		assert.NoError(t, w.WriteRecord(rec))
	}
	assert.NoError(t, f.Close())
	return path
}

func TestReplayEmitsRecordedStream(t *testing.T) {
	path := writeRecording(t,
		recfile.Record{Kind: uint16(datatype.KindImgFrame), Seq: 0, Timestamp: 100, Payload: []byte("f0")},
		recfile.Record{Kind: uint16(datatype.KindImgFrame), Seq: 1, Timestamp: 200, Payload: []byte("f1")},
	)

	p := flowdag.New()
	n := New()
	n.SetPath(path)
	assert.NoError(t, p.Add(n))

	q := n.Out.Queue()
	assert.NoError(t, p.Start())
	assert.NoError(t, p.Wait())

	ctx := context.Background()
	for i := int64(0); i < 2; i++ {
		frame, err := flowdag.GetAs[*datatype.ImgFrame](ctx, q)
		assert.NoError(t, err)
		assert.Equal(t, i, frame.Sequence())
		assert.Equal(t, time.Unix(0, (i+1)*100), frame.Time())
	}
	assert.False(t, q.Has())
}

func TestReplayDecodesKinds(t *testing.T) {
	path := writeRecording(t,
		recfile.Record{Kind: uint16(datatype.KindNNData), Seq: 0, Payload: []byte("tensor")},
		recfile.Record{Kind: uint16(datatype.KindBuffer), Seq: 1, Payload: []byte("raw")},
	)

	p := flowdag.New()
	n := New()
	n.SetPath(path)
	assert.NoError(t, p.Add(n))

	q := n.Out.Queue()
	assert.NoError(t, p.Start())
	assert.NoError(t, p.Wait())

	msg, ok := q.TryGet()
	assert.True(t, ok)
	assert.Equal(t, datatype.KindNNData, msg.Kind())
	msg, ok = q.TryGet()
	assert.True(t, ok)
	assert.Equal(t, datatype.KindBuffer, msg.Kind())
}

func TestReplayLoops(t *testing.T) {
	path := writeRecording(t,
		recfile.Record{Kind: uint16(datatype.KindBuffer), Seq: 0, Payload: []byte("x")},
	)

	p := flowdag.New()
	n := New()
	n.SetPath(path)
	n.SetLoop(true)
	assert.NoError(t, p.Add(n))

	q := n.Out.Queue()
	assert.NoError(t, p.Start())

	// Looping playback keeps producing past the file's single record.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := 0; i < 3; i++ {
		_, err := q.Get(ctx)
		assert.NoError(t, err)
	}

	assert.NoError(t, p.Stop())
	assert.NoError(t, p.Wait())
}

func TestReplayUnconfigured(t *testing.T) {
	p := flowdag.New()
	n := New()
	assert.NoError(t, p.Add(n))
	assert.IsError(t, p.Start(), flowdag.ErrUnconfiguredNode)
}

func TestReplayConfigure(t *testing.T) {
	n := New()
	assert.NoError(t, n.Configure(map[string]any{"path": "a.rec", "loop": true}))
	assert.Equal(t, "a.rec", n.path)
	assert.True(t, n.loop)

	assert.Error(t, n.Configure(map[string]any{"path": 1}))
	assert.Error(t, n.Configure(map[string]any{"bogus": true}))
}

func TestReplayRegistered(t *testing.T) {
	n, err := flowdag.DefaultRegistry.New("replay")
	assert.NoError(t, err)
	assert.Equal(t, "replay", n.TypeName())
}
