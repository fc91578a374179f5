package placement

import (
	"context"
	"errors"
)

type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// ValidSide reports whether s names one of the two binary tree legs.
func ValidSide(s Side) bool {
	return s == SideLeft || s == SideRight
}

var (
	// ErrNoSlotAvailable is returned when every node reachable from the sponsor
	// already has both children filled.
	ErrNoSlotAvailable = errors.New("no placement slot available under this sponsor")

	// ErrNodeNotFound is returned by a NodeLookup when the id does not resolve.
	ErrNodeNotFound = errors.New("placement node not found")
)

// Node is the slice of a member record the resolver cares about: its identity
// and the two child pointers.
type Node struct {
	ID           int
	LeftChildID  *int
	RightChildID *int
}

// NodeLookup fetches a single node by id. Implementations are expected to
// return ErrNodeNotFound for missing ids and propagate storage errors as-is.
type NodeLookup interface {
	GetNode(ctx context.Context, id int) (*Node, error)
}

// Slot is an open attachment point in the binary tree.
type Slot struct {
	ParentID int  `json:"parent_id"`
	Side     Side `json:"side"`
}

// FindOpenSlot walks the sponsor's subtree breadth-first and returns the first
// open child slot in level order, preferring left over right at equal depth.
// The traversal is read-only; the caller performs the attach as a separate,
// conditional write. A visited set guards against duplicate edges in a
// corrupted tree.
//
// The sponsor node itself must exist; ErrNodeNotFound from the lookup
// propagates to the caller. ErrNoSlotAvailable is returned only when the queue
// empties with every reachable node fully occupied.
func FindOpenSlot(ctx context.Context, lookup NodeLookup, sponsorID int) (Slot, error) {
	queue := []int{sponsorID}
	visited := make(map[int]struct{})

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return Slot{}, err
		}

		currentID := queue[0]
		queue = queue[1:]

		if _, seen := visited[currentID]; seen {
			continue
		}
		visited[currentID] = struct{}{}

		node, err := lookup.GetNode(ctx, currentID)
		if err != nil {
			if errors.Is(err, ErrNodeNotFound) && currentID != sponsorID {
				// Dangling child reference; skip it rather than abort the search.
				continue
			}
			return Slot{}, err
		}

		if node.LeftChildID == nil {
			return Slot{ParentID: currentID, Side: SideLeft}, nil
		}
		if node.RightChildID == nil {
			return Slot{ParentID: currentID, Side: SideRight}, nil
		}

		queue = append(queue, *node.LeftChildID, *node.RightChildID)
	}

	return Slot{}, ErrNoSlotAvailable
}
