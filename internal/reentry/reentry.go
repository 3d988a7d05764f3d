// Package reentry tracks which keys are currently being visited so that a
// recursive walk can detect that it re-entered itself.
package reentry

// Stack is the set of keys currently being visited, in visiting order.
// The zero value is ready for use. Not thread-safe.
type Stack[K comparable] struct {
	keys []K
}

// Enter pushes k unless it is already on the stack. When ok is true the
// caller must call exit, typically deferred, to pop k. exit pops k
// together with anything pushed after it that was not popped.
func (s *Stack[K]) Enter(k K) (exit func(), ok bool) {
	if s.Contains(k) {
		return func() {}, false
	}
	depth := len(s.keys)
	s.keys = append(s.keys, k)
	return func() {
		if len(s.keys) > depth {
			clear(s.keys[depth:])
			s.keys = s.keys[:depth]
		}
	}, true
}

// Contains reports whether k is being visited.
func (s *Stack[K]) Contains(k K) bool {
	for _, v := range s.keys {
		if v == k {
			return true
		}
	}
	return false
}

// Len returns the visiting depth.
func (s *Stack[K]) Len() int {
	return len(s.keys)
}
