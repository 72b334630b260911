package app

import "testing"

func TestPriorityQueue_Order(t *testing.T) {
	tests := []struct {
		name  string
		setup func(q *PriorityQueue[string])
		want  []string
	}{
		{
			name: "highest priority first",
			setup: func(q *PriorityQueue[string]) {
				q.Add(1, "low", 1)
				q.Add(2, "high", 10)
				q.Add(3, "mid", 5)
			},
			want: []string{"high", "mid", "low"},
		},
		{
			name: "ties keep insertion order",
			setup: func(q *PriorityQueue[string]) {
				q.Add(1, "a", 0)
				q.Add(2, "b", 0)
				q.Add(3, "c", 0)
			},
			want: []string{"a", "b", "c"},
		},
		{
			name: "add overwrites existing id",
			setup: func(q *PriorityQueue[string]) {
				q.Add(1, "a", 0)
				q.Add(2, "b", 0)
				q.Add(1, "a2", 0)
			},
			want: []string{"a2", "b"},
		},
		{
			name: "set priority reorders",
			setup: func(q *PriorityQueue[string]) {
				q.Add(1, "a", 0)
				q.Add(2, "b", 0)
				q.SetPriority(2, 3)
			},
			want: []string{"b", "a"},
		},
		{
			name: "set priority ignores unknown id",
			setup: func(q *PriorityQueue[string]) {
				q.Add(1, "a", 0)
				q.SetPriority(42, 100)
			},
			want: []string{"a"},
		},
		{
			name: "remove skips element",
			setup: func(q *PriorityQueue[string]) {
				q.Add(1, "a", 0)
				q.Add(2, "b", 5)
				q.Add(3, "c", 1)
				q.Remove(2)
			},
			want: []string{"c", "a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewPriorityQueue[string]()
			tt.setup(q)

			got := q.Drain()
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestPriorityQueue_RemoveAbsentIsNoOp(t *testing.T) {
	q := NewPriorityQueue[int]()
	q.Add(1, 10, 0)

	if _, ok := q.Remove(99); ok {
		t.Fatal("Remove of absent id reported success")
	}
	if q.Size() != 1 {
		t.Fatalf("size = %d, want 1", q.Size())
	}

	v, ok := q.Remove(1)
	if !ok || v != 10 {
		t.Fatalf("Remove = (%d, %v), want (10, true)", v, ok)
	}
}

func TestPriorityQueue_NextOnEmpty(t *testing.T) {
	q := NewPriorityQueue[int]()
	if _, ok := q.Next(); ok {
		t.Fatal("Next on empty queue reported an element")
	}

	q.Add(1, 1, 0)
	q.Next()
	if q.Size() != 0 {
		t.Fatalf("size = %d, want 0", q.Size())
	}
	// A popped id can be added again.
	q.Add(1, 2, 0)
	if v, ok := q.Next(); !ok || v != 2 {
		t.Fatalf("Next = (%d, %v)", v, ok)
	}
}
