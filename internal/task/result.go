package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gridconnect/gridconnect/internal/models"
	"github.com/gridconnect/gridconnect/internal/transfer"
)

// ErrNoDump is returned by Node.Dump when the server reported no failure dump.
var ErrNoDump = errors.New("no failure dump available")

// ResultTree is the unwrapped result of one task run.
type ResultTree struct {
	Root *Node
}

// Node is the outcome for one object. Children hold the per-step results of a process.
type Node struct {
	Successful           bool
	ObjectID             string
	ObjectName           string
	FailureDumpAvailable bool
	Details              []models.ResultDetail
	Children             []*Node

	endpoint Endpoint
	taskID   string
	nestedID string
	depth    int
}

// BuildTree expands result and its nested results. Nested dumps are addressed by the
// parent task id and the nested object id, so they stay valid only as long as the task.
//
// The dump endpoints take a single nested object id, so only the root and its direct
// children have addressable dumps. Deeper results are kept for rendering.
func BuildTree(ep Endpoint, taskID string, result *models.TaskResult) *ResultTree {
	return &ResultTree{Root: buildNode(ep, taskID, "", 0, result)}
}

func buildNode(ep Endpoint, taskID, nestedID string, depth int, r *models.TaskResult) *Node {
	n := &Node{
		Successful:           r.Successful,
		ObjectID:             r.ObjectID,
		ObjectName:           r.ObjectName,
		FailureDumpAvailable: r.FailureDumpAvailable,
		Details:              r.Details,
		endpoint:             ep,
		taskID:               taskID,
		nestedID:             nestedID,
		depth:                depth,
	}
	for i := range r.NestedResults {
		child := &r.NestedResults[i]
		n.Children = append(n.Children, buildNode(ep, taskID, child.ObjectID, depth+1, child))
	}
	return n
}

// Label names the node in messages and dump file names.
func (n *Node) Label() string {
	switch {
	case n.ObjectName != "" && n.ObjectID != "":
		return fmt.Sprintf("%s (%s)", n.ObjectName, n.ObjectID)
	case n.ObjectName != "":
		return n.ObjectName
	case n.ObjectID != "":
		return n.ObjectID
	default:
		return "task " + n.taskID
	}
}

// Nested reports whether the node is a step of a composite job.
func (n *Node) Nested() bool {
	return n.nestedID != ""
}

// Dump returns the node's failure dump as a chunk source for transfer.Downloader.
func (n *Node) Dump() (transfer.ChunkSource, error) {
	if !n.FailureDumpAvailable {
		return nil, fmt.Errorf("%s: %w", n.Label(), ErrNoDump)
	}
	if !n.dumpAddressable() {
		return nil, fmt.Errorf("%s: %w (nested %d levels deep)", n.Label(), ErrNoDump, n.depth)
	}
	return &dumpSource{node: n}, nil
}

func (n *Node) dumpAddressable() bool {
	return n.depth <= 1
}

// Render writes each detail's text, with its occurrence count when non-zero, one per
// line, followed by the rendering of each child. Non-empty blocks are separated by a
// blank line; a node with nothing to say contributes nothing.
func (n *Node) Render(w io.Writer) error {
	_, err := io.WriteString(w, n.String())
	return err
}

func (n *Node) String() string {
	var b strings.Builder
	n.render(&b)
	return b.String()
}

func (n *Node) render(b *strings.Builder) {
	var own strings.Builder
	for _, d := range n.Details {
		own.WriteString(d.LocalMessageText)
		if d.Occurrences != 0 {
			fmt.Fprintf(&own, " (%d)", d.Occurrences)
		}
		own.WriteByte('\n')
	}
	block := own.String()
	for _, c := range n.Children {
		child := c.String()
		if child == "" {
			continue
		}
		// Blank line only between non-empty blocks.
		if block != "" {
			block += "\n"
		}
		block += child
	}
	b.WriteString(block)
}

// Walk calls fn for the node and every descendant, parents first.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Dumps returns every node of the tree whose failure dump can be downloaded.
func (t *ResultTree) Dumps() []*Node {
	var out []*Node
	t.Root.Walk(func(n *Node) {
		if n.FailureDumpAvailable && n.dumpAddressable() {
			out = append(out, n)
		}
	})
	return out
}

func (t *ResultTree) String() string {
	return t.Root.String()
}

// dumpSource reads a failure dump through the task's endpoint.
type dumpSource struct {
	node *Node
}

func (s *dumpSource) Name() string {
	return "failure dump of " + s.node.Label()
}

func (s *dumpSource) ListChunks(ctx context.Context) ([]models.ChunkSlot, error) {
	n := s.node
	var (
		slots []models.ChunkSlot
		err   error
	)
	if n.nestedID == "" {
		slots, err = n.endpoint.DumpChunks(ctx, n.taskID)
	} else {
		slots, err = n.endpoint.NestedDumpChunks(ctx, n.taskID, n.nestedID)
	}
	if err != nil {
		return nil, err
	}
	return models.NumberSlots(slots), nil
}

func (s *dumpSource) FetchChunk(ctx context.Context, slot models.ChunkSlot) ([]byte, error) {
	return s.node.endpoint.DumpChunk(ctx, s.node.taskID, s.node.nestedID, slot.ID)
}
