package placement

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapLookup struct {
	nodes map[int]*Node
	reads int
}

func (m *mapLookup) GetNode(_ context.Context, id int) (*Node, error) {
	m.reads++
	node, ok := m.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	return node, nil
}

func intPtr(v int) *int { return &v }

// buildTree wires parent -> (left, right) edges; 0 means no child.
func buildTree(edges map[int][2]int) *mapLookup {
	nodes := make(map[int]*Node)
	ensure := func(id int) *Node {
		if n, ok := nodes[id]; ok {
			return n
		}
		n := &Node{ID: id}
		nodes[id] = n
		return n
	}
	for parent, children := range edges {
		n := ensure(parent)
		if children[0] != 0 {
			n.LeftChildID = intPtr(children[0])
			ensure(children[0])
		}
		if children[1] != 0 {
			n.RightChildID = intPtr(children[1])
			ensure(children[1])
		}
	}
	return &mapLookup{nodes: nodes}
}

func TestFindOpenSlot_SponsorWithoutChildren(t *testing.T) {
	lookup := buildTree(map[int][2]int{1: {0, 0}})

	slot, err := FindOpenSlot(context.Background(), lookup, 1)

	require.NoError(t, err)
	assert.Equal(t, Slot{ParentID: 1, Side: SideLeft}, slot)
}

func TestFindOpenSlot_LeftOccupiedReturnsRight(t *testing.T) {
	lookup := buildTree(map[int][2]int{1: {2, 0}})

	slot, err := FindOpenSlot(context.Background(), lookup, 1)

	require.NoError(t, err)
	assert.Equal(t, Slot{ParentID: 1, Side: SideRight}, slot)
}

func TestFindOpenSlot_FullSponsorDescendsToLeftChild(t *testing.T) {
	// Sponsor full, both children childless: A (left child) is dequeued first.
	lookup := buildTree(map[int][2]int{1: {2, 3}})

	slot, err := FindOpenSlot(context.Background(), lookup, 1)

	require.NoError(t, err)
	assert.Equal(t, Slot{ParentID: 2, Side: SideLeft}, slot)
}

func TestFindOpenSlot_QueueOrderSkipsFullSubtreeRoot(t *testing.T) {
	// S(1) full, A(2) full, B(3) has only a left child. Queue after S is [A B];
	// A is full so its children are enqueued behind B, and B's open right slot
	// wins at depth 1.
	lookup := buildTree(map[int][2]int{
		1: {2, 3},
		2: {4, 5},
		3: {6, 0},
	})

	slot, err := FindOpenSlot(context.Background(), lookup, 1)

	require.NoError(t, err)
	assert.Equal(t, Slot{ParentID: 3, Side: SideRight}, slot)
}

func TestFindOpenSlot_ShallowestLeftmostAcrossLevels(t *testing.T) {
	// Depth 2 is full on the left flank; first opening in level order is the
	// left slot of node 4 at depth 2.
	lookup := buildTree(map[int][2]int{
		1: {2, 3},
		2: {4, 5},
		3: {6, 7},
	})

	slot, err := FindOpenSlot(context.Background(), lookup, 1)

	require.NoError(t, err)
	assert.Equal(t, Slot{ParentID: 4, Side: SideLeft}, slot)
}

func TestFindOpenSlot_ReadOnlyAndIdempotent(t *testing.T) {
	lookup := buildTree(map[int][2]int{1: {2, 3}, 2: {4, 0}})

	first, err := FindOpenSlot(context.Background(), lookup, 1)
	require.NoError(t, err)
	second, err := FindOpenSlot(context.Background(), lookup, 1)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestFindOpenSlot_MonotonicGrowth(t *testing.T) {
	lookup := buildTree(map[int][2]int{1: {2, 0}})

	slot, err := FindOpenSlot(context.Background(), lookup, 1)
	require.NoError(t, err)
	require.Equal(t, Slot{ParentID: 1, Side: SideRight}, slot)

	// Simulate the caller's attach, then resolve again: the filled slot must
	// never be handed out a second time.
	lookup.nodes[1].RightChildID = intPtr(9)
	lookup.nodes[9] = &Node{ID: 9}

	next, err := FindOpenSlot(context.Background(), lookup, 1)
	require.NoError(t, err)
	assert.NotEqual(t, slot, next)
	assert.Equal(t, Slot{ParentID: 2, Side: SideLeft}, next)
}

func TestFindOpenSlot_SubtreeSearchDoesNotEscapeSponsor(t *testing.T) {
	// Node 3 is outside sponsor 2's subtree and must never be considered.
	lookup := buildTree(map[int][2]int{
		1: {2, 3},
		2: {4, 5},
	})

	slot, err := FindOpenSlot(context.Background(), lookup, 2)

	require.NoError(t, err)
	assert.Equal(t, Slot{ParentID: 4, Side: SideLeft}, slot)
}

func TestFindOpenSlot_NoSlotOnlyWhenEveryNodeFull(t *testing.T) {
	lookup := buildTree(map[int][2]int{
		1: {2, 3},
		2: {4, 5},
		3: {6, 7},
	})
	// Artificially close the frontier with self-referencing duplicate edges so
	// every reachable node reports both children set; the visited set must
	// terminate the walk.
	for _, id := range []int{4, 5, 6, 7} {
		lookup.nodes[id].LeftChildID = intPtr(1)
		lookup.nodes[id].RightChildID = intPtr(2)
	}

	_, err := FindOpenSlot(context.Background(), lookup, 1)

	assert.ErrorIs(t, err, ErrNoSlotAvailable)
}

func TestFindOpenSlot_SponsorMissing(t *testing.T) {
	lookup := buildTree(map[int][2]int{1: {0, 0}})

	_, err := FindOpenSlot(context.Background(), lookup, 42)

	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestFindOpenSlot_DanglingChildReferenceSkipped(t *testing.T) {
	lookup := buildTree(map[int][2]int{1: {2, 3}})
	delete(lookup.nodes, 2) // dangling left child reference

	slot, err := FindOpenSlot(context.Background(), lookup, 1)

	require.NoError(t, err)
	assert.Equal(t, Slot{ParentID: 3, Side: SideLeft}, slot)
}

func TestFindOpenSlot_ContextCancellation(t *testing.T) {
	lookup := buildTree(map[int][2]int{1: {2, 3}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FindOpenSlot(ctx, lookup, 1)

	assert.True(t, errors.Is(err, context.Canceled))
}
