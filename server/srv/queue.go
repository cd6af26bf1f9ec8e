package srv

// queue is the FIFO of players waiting for a slot on one level.
type queue struct {
	items []*Player
}

func (q *queue) push(p *Player) { q.items = append(q.items, p) }

func (q *queue) len() int { return len(q.items) }

func (q *queue) contains(connID string) bool {
	for _, p := range q.items {
		if p.ConnID == connID {
			return true
		}
	}
	return false
}

func (q *queue) remove(connID string) bool {
	for i, p := range q.items {
		if p.ConnID == connID {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// popLive takes up to n live players from the head in arrival order.
// Dead entries met on the way are discarded.
func (q *queue) popLive(n int, isLive func(string) bool) []*Player {
	var out []*Player
	i := 0
	for ; i < len(q.items) && len(out) < n; i++ {
		if isLive(q.items[i].ConnID) {
			out = append(out, q.items[i])
		}
	}
	q.items = append(q.items[:0:0], q.items[i:]...)
	return out
}
