package cache

// ringNode is a node of clockRing.
type ringNode[V any] struct {
	next, prev *ringNode[V]
	Value      V
}

// clockRing is a circular doubly linked list; the CLOCK hand sweeps over it forever by following next pointers.
type clockRing[V any] struct {
	head *ringNode[V] // Oldest inserted node; nil when empty.
	size int
}

func (r *clockRing[V]) Len() int {
	return r.size
}

// Front returns the oldest node or nil.
func (r *clockRing[V]) Front() *ringNode[V] {
	return r.head
}

// Insert links a new node right behind the head, i.e. as the newest node.
func (r *clockRing[V]) Insert(v V) *ringNode[V] {
	n := &ringNode[V]{Value: v}
	if r.head == nil {
		n.next, n.prev = n, n
		r.head = n
	} else {
		tail := r.head.prev
		n.prev, n.next = tail, r.head
		tail.next = n
		r.head.prev = n
	}
	r.size++
	return n
}

// Remove unlinks the node and returns the node that followed it, or nil if the ring became empty.
func (r *clockRing[V]) Remove(n *ringNode[V]) *ringNode[V] {
	if n.next == nil { // Already unlinked.
		return r.head
	}
	next := n.next
	if r.size == 1 {
		r.head, next = nil, nil
	} else {
		n.prev.next = n.next
		n.next.prev = n.prev
		if r.head == n {
			r.head = next
		}
	}
	n.next, n.prev = nil, nil
	r.size--
	return next
}

// Values returns the values from the oldest to the newest.
func (r *clockRing[V]) Values() []V {
	values := make([]V, 0, r.size)
	for n, i := r.head, 0; i < r.size; n, i = n.next, i+1 {
		values = append(values, n.Value)
	}
	return values
}
