package pool

// unusedList is a doubly-linked list of unused entries.
// The front is the most recently unused entry, the back the oldest.
// Not thread-safe; the pool is confined to its origin thread.
type unusedList struct {
	head *entry
	tail *entry
	len  int
}

// Len returns the number of entries in the list.
func (l *unusedList) Len() int {
	return l.len
}

// PushFront inserts e as the most recently unused entry.
func (l *unusedList) PushFront(e *entry) {
	e.prev = nil
	e.next = l.head
	if l.head != nil {
		l.head.prev = e
	} else {
		l.tail = e
	}
	l.head = e
	l.len++
}

// Remove unlinks e from the list.
func (l *unusedList) Remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		l.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		l.tail = e.prev
	}
	e.prev = nil
	e.next = nil
	l.len--
}

// Oldest returns the least recently unused entry, or nil.
func (l *unusedList) Oldest() *entry {
	return l.tail
}

// Front returns the most recently unused entry, or nil.
func (l *unusedList) Front() *entry {
	return l.head
}
