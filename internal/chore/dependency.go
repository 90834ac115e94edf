package chore

import (
	"errors"
	"fmt"
)

var (
	ErrBlocked         = errors.New("chore is blocked by incomplete dependencies")
	ErrDependencyCycle = errors.New("chore dependencies form a cycle")
	ErrSelfDependency  = errors.New("chore cannot depend on itself")
)

// Graph maps a chore ID to the IDs it depends on.
type Graph map[int64][]int64

// CheckDependencies validates that giving choreID the dependencies deps keeps
// the graph acyclic. choreID is 0 for a chore that does not exist yet, which
// cannot close a cycle.
func CheckDependencies(g Graph, choreID int64, deps []int64) error {
	for _, d := range deps {
		if choreID != 0 && d == choreID {
			return ErrSelfDependency
		}
	}
	if choreID == 0 {
		return nil
	}

	next := make(Graph, len(g)+1)
	for k, v := range g {
		next[k] = v
	}
	next[choreID] = deps

	// a cycle through choreID exists iff choreID is reachable from one of deps
	seen := make(map[int64]bool)
	stack := append([]int64(nil), deps...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == choreID {
			return fmt.Errorf("%w: chore %d", ErrDependencyCycle, choreID)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		stack = append(stack, next[id]...)
	}
	return nil
}

// Blockers returns the dependencies of deps that are not yet completed.
// done reports completion for a chore ID; unknown IDs count as done since a
// deleted dependency no longer blocks anything.
func Blockers(deps []int64, done func(id int64) (bool, error)) ([]int64, error) {
	var blocking []int64
	for _, id := range deps {
		ok, err := done(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			blocking = append(blocking, id)
		}
	}
	return blocking, nil
}
