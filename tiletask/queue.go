package tiletask

// Item is one entry of a TileTaskQueue.
type Item struct {
	Task     *Task
	TaskSets TaskSetCollection
}

// TileTaskQueue is an ordered batch of tasks handed to the runner in one
// ScheduleTasks call. A task must appear at most once. Dependencies of a
// task are scheduled implicitly and need not be listed.
type TileTaskQueue struct {
	Items []Item
}

// Append adds t tagged with sets.
func (q *TileTaskQueue) Append(t *Task, sets TaskSetCollection) {
	q.Items = append(q.Items, Item{Task: t, TaskSets: sets})
}

// Reset empties the queue, keeping its capacity.
func (q *TileTaskQueue) Reset() {
	clear(q.Items)
	q.Items = q.Items[:0]
}

// Len returns the number of items.
func (q *TileTaskQueue) Len() int {
	return len(q.Items)
}
