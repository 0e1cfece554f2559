package backend

import (
	"sync"

	"github.com/vajrock/dapctl/internal/types"
)

// breakpointStore is the in-memory source of truth for every breakpoint
// the backend has been asked to set. DAP's setBreakpoints request is
// total, not incremental: every mutation returns the full, current list
// for the affected source (or every now-empty source, when clearing) so
// the caller can reconcile the adapter in one request per source.
type breakpointStore struct {
	mu        sync.Mutex
	bySource  map[string][]types.Breakpoint
	functions []types.Breakpoint
}

func newBreakpointStore() *breakpointStore {
	return &breakpointStore{bySource: make(map[string][]types.Breakpoint)}
}

// AddSource appends a source breakpoint for path and returns the full,
// current breakpoint list for that path.
func (s *breakpointStore) AddSource(path string, bp types.Breakpoint) []types.Breakpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySource[path] = append(s.bySource[path], bp)
	return cloneBreakpoints(s.bySource[path])
}

// ReplaceSource overwrites the breakpoint list for path wholesale and
// returns the new, full list.
func (s *breakpointStore) ReplaceSource(path string, bps []types.Breakpoint) []types.Breakpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySource[path] = cloneBreakpoints(bps)
	return cloneBreakpoints(s.bySource[path])
}

// RemoveSource drops the breakpoint at line from path's list and returns
// the list afterward. When the list becomes empty the path is dropped
// from the store entirely and nil is returned.
func (s *breakpointStore) RemoveSource(path string, line int) []types.Breakpoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.Breakpoint
	for _, bp := range s.bySource[path] {
		if bp.Line == line {
			continue
		}
		out = append(out, bp)
	}
	if len(out) == 0 {
		delete(s.bySource, path)
		return nil
	}
	s.bySource[path] = out
	return cloneBreakpoints(out)
}

// ClearSource empties path's breakpoint list and returns the (empty) list,
// so the caller can still issue an explicit setBreakpoints reconciliation
// rather than assuming the adapter infers removal from a missing request.
func (s *breakpointStore) ClearSource(path string) []types.Breakpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bySource, path)
	return nil
}

// ClearAll empties every source's breakpoint list and all function
// breakpoints, returning the set of paths that held breakpoints so the
// caller can reconcile each one to empty.
func (s *breakpointStore) ClearAll() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.bySource))
	for p := range s.bySource {
		paths = append(paths, p)
	}
	s.bySource = make(map[string][]types.Breakpoint)
	s.functions = nil
	return paths
}

// SetFunctions overwrites the function breakpoint list and returns the new,
// full list.
func (s *breakpointStore) SetFunctions(names []types.Breakpoint) []types.Breakpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.functions = cloneBreakpoints(names)
	return cloneBreakpoints(s.functions)
}

// Sources returns every source path with a non-empty breakpoint list,
// paired with its current breakpoint list. Used to re-send everything
// after a restart, since the adapter's own state is gone.
func (s *breakpointStore) Sources() map[string][]types.Breakpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]types.Breakpoint, len(s.bySource))
	for p, bps := range s.bySource {
		out[p] = cloneBreakpoints(bps)
	}
	return out
}

// Functions returns the current function breakpoint list.
func (s *breakpointStore) Functions() []types.Breakpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneBreakpoints(s.functions)
}

func cloneBreakpoints(in []types.Breakpoint) []types.Breakpoint {
	if len(in) == 0 {
		return nil
	}
	out := make([]types.Breakpoint, len(in))
	copy(out, in)
	return out
}
