// Package slots computes free appointment times for a clinic day.
package slots

// HourRange blocks every slot whose hour falls in [Start, End).
type HourRange struct {
	Start int
	End   int
}

// Contains reports whether the slot's hour is inside the range.
func (r HourRange) Contains(c Clock) bool {
	return c.hour >= r.Start && c.hour < r.End
}

// Free returns canonical in order, minus occupied times and blocked hours.
func Free(canonical []Clock, occupied []Clock, blocks []HourRange) []Clock {
	taken := make(map[Clock]struct{}, len(occupied))
	for _, c := range occupied {
		taken[c] = struct{}{}
	}

	free := make([]Clock, 0, len(canonical))
	for _, slot := range canonical {
		if _, ok := taken[slot]; ok {
			continue
		}
		if blocked(slot, blocks) {
			continue
		}
		free = append(free, slot)
	}
	return free
}

// FreeSlots is Free rendered in display form.
func FreeSlots(canonical []Clock, occupied []Clock, blocks []HourRange) []string {
	free := Free(canonical, occupied, blocks)
	labels := make([]string, len(free))
	for i, c := range free {
		labels[i] = c.Display()
	}
	return labels
}

func blocked(slot Clock, blocks []HourRange) bool {
	for _, r := range blocks {
		if r.Contains(slot) {
			return true
		}
	}
	return false
}
