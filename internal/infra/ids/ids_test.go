package ids

import (
	"testing"
	"time"
)

func TestSortableIsMonotonic(t *testing.T) {
	at := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	prev := Sortable(at)
	for i := 0; i < 100; i++ {
		next := Sortable(at)
		if next <= prev {
			t.Fatalf("expected %s > %s", next, prev)
		}
		prev = next
	}
}
