// Package replay provides a source node that plays back a recorded message
// stream from a file in the record format written by nodes/record.
package replay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/flowdag/flowdag"
	"github.com/flowdag/flowdag/datatype"
	"github.com/flowdag/flowdag/internal/recfile"
)

func init() {
	flowdag.Register("replay", func() (flowdag.Node, error) {
		return New(), nil
	})
}

// Node replays records from a file onto its Out port. The path must be
// configured before the pipeline is built.
type Node struct {
	flowdag.ThreadedNode

	Out *flowdag.Output

	path string
	loop bool
}

func New() *Node {
	n := &Node{}
	flowdag.InitBase(n)
	n.Out = flowdag.NewOutput(n, flowdag.OutputConfig{Name: "out"})
	return n
}

func (n *Node) TypeName() string { return "replay" }

// SetPath sets the file to replay from.
func (n *Node) SetPath(path string) { n.path = path }

// SetLoop selects whether playback restarts from the beginning after the
// last record instead of ending the stream.
func (n *Node) SetLoop(loop bool) { n.loop = loop }

// Configure accepts "path" (string, required) and "loop" (bool).
func (n *Node) Configure(params map[string]any) error {
	for key, val := range params {
		switch key {
		case "path":
			s, ok := val.(string)
			if !ok {
				return fmt.Errorf("replay: param %q: expected string, got %T", key, val)
			}
			n.path = s
		case "loop":
			b, ok := val.(bool)
			if !ok {
				return fmt.Errorf("replay: param %q: expected bool, got %T", key, val)
			}
			n.loop = b
		default:
			return fmt.Errorf("replay: unknown param %q", key)
		}
	}
	return nil
}

// BuildStage1 validates the configuration once the graph is assembled.
func (n *Node) BuildStage1() error {
	if n.path == "" {
		return fmt.Errorf("%w: replay node has no path", flowdag.ErrUnconfiguredNode)
	}
	return nil
}

func (n *Node) Run(ctx context.Context) error {
	if n.path == "" {
		return fmt.Errorf("%w: replay node has no path", flowdag.ErrUnconfiguredNode)
	}
	log := n.Log()

	for {
		sent, err := n.playFile(ctx)
		if err != nil {
			return err
		}
		log.Debug("replay pass complete", "path", n.path, "records", sent)
		if !n.loop {
			return flowdag.ErrEndOfStream
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// playFile streams the file once and returns the number of records sent.
func (n *Node) playFile(ctx context.Context) (int, error) {
	f, err := os.Open(n.path)
	if err != nil {
		return 0, fmt.Errorf("replay: %w", err)
	}
	defer f.Close()

	r := recfile.NewReader(bufio.NewReader(f))
	sent := 0
	for {
		rec, err := r.ReadRecord()
		if errors.Is(err, io.EOF) {
			return sent, nil
		}
		if err != nil {
			return sent, fmt.Errorf("replay: %w", err)
		}
		if err := n.Out.Send(ctx, decode(rec)); err != nil {
			return sent, err
		}
		sent++
	}
}

// decode rehydrates a record into a message of the recorded kind. Kinds the
// format carries no extra fields for come back as plain buffers tagged with
// their payload.
func decode(rec recfile.Record) datatype.Message {
	buf := datatype.Buffer{
		Data:      rec.Payload,
		Seq:       rec.Seq,
		Timestamp: time.Unix(0, rec.Timestamp),
	}
	switch datatype.Kind(rec.Kind) {
	case datatype.KindImgFrame:
		return &datatype.ImgFrame{Buffer: buf}
	case datatype.KindEncodedFrame:
		return &datatype.EncodedFrame{Buffer: buf}
	case datatype.KindNNData:
		return &datatype.NNData{Buffer: buf}
	case datatype.KindImgDetections:
		return &datatype.ImgDetections{Buffer: buf}
	case datatype.KindSpatialImgDetections:
		return &datatype.SpatialImgDetections{ImgDetections: datatype.ImgDetections{Buffer: buf}}
	case datatype.KindIMUData:
		return &datatype.IMUData{Buffer: buf}
	default:
		return &buf
	}
}
