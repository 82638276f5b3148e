// Package record provides a sink node that captures its input stream to a
// file replayable with nodes/replay.
package record

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/flowdag/flowdag"
	"github.com/flowdag/flowdag/datatype"
	"github.com/flowdag/flowdag/internal/recfile"
)

func init() {
	flowdag.Register("record", func() (flowdag.Node, error) {
		return New(), nil
	})
}

// Node writes every message arriving on In to its output file. Messages
// without a byte payload are recorded with an empty payload; the kind and
// sequence number are always preserved.
type Node struct {
	flowdag.ThreadedNode

	In *flowdag.Input

	path string

	f *os.File
	w *bufio.Writer
}

func New() *Node {
	n := &Node{}
	flowdag.InitBase(n)
	n.In = flowdag.NewInput(n, flowdag.InputConfig{Name: "in", Kind: flowdag.InputStream})
	return n
}

func (n *Node) TypeName() string { return "record" }

// SetPath sets the file to record into. An existing file is truncated.
func (n *Node) SetPath(path string) { n.path = path }

// Configure accepts "path" (string, required).
func (n *Node) Configure(params map[string]any) error {
	for key, val := range params {
		switch key {
		case "path":
			s, ok := val.(string)
			if !ok {
				return fmt.Errorf("record: param %q: expected string, got %T", key, val)
			}
			n.path = s
		default:
			return fmt.Errorf("record: unknown param %q", key)
		}
	}
	return nil
}

func (n *Node) BuildStage1() error {
	if n.path == "" {
		return fmt.Errorf("%w: record node has no path", flowdag.ErrUnconfiguredNode)
	}
	return nil
}

// Start opens the output file before the run loop begins.
func (n *Node) Start() error {
	if n.path == "" {
		return fmt.Errorf("%w: record node has no path", flowdag.ErrUnconfiguredNode)
	}
	f, err := os.Create(n.path)
	if err != nil {
		return fmt.Errorf("record: %w", err)
	}
	n.f = f
	n.w = bufio.NewWriter(f)
	return n.ThreadedNode.Start()
}

func (n *Node) Run(ctx context.Context) error {
	w := recfile.NewWriter(n.w)
	count := 0
	for {
		msg, err := n.In.Get(ctx)
		if errors.Is(err, flowdag.ErrQueueClosed) {
			n.Log().Debug("record input closed", "records", count)
			return nil
		}
		if err != nil {
			return err
		}
		if werr := w.WriteRecord(encode(msg)); werr != nil {
			return fmt.Errorf("record: %w", werr)
		}
		count++
	}
}

// Wait drains the run loop, then flushes, syncs and closes the file.
func (n *Node) Wait() error {
	err := n.ThreadedNode.Wait()
	if n.w != nil {
		if ferr := n.w.Flush(); err == nil {
			err = ferr
		}
		n.w = nil
	}
	if n.f != nil {
		if serr := n.f.Sync(); err == nil {
			err = serr
		}
		if cerr := n.f.Close(); err == nil {
			err = cerr
		}
		n.f = nil
	}
	return err
}

func encode(msg datatype.Message) recfile.Record {
	rec := recfile.Record{
		Kind:      uint16(msg.Kind()),
		Seq:       msg.Sequence(),
		Timestamp: time.Now().UnixNano(),
	}
	if p, ok := msg.(datatype.Payloader); ok {
		rec.Payload = p.Payload()
	}
	if b, ok := msg.(interface{ Time() time.Time }); ok && !b.Time().IsZero() {
		rec.Timestamp = b.Time().UnixNano()
	}
	return rec
}
