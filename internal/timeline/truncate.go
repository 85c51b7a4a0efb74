package timeline

import (
	"fmt"
	"slices"
	"sort"
	"unicode/utf8"

	"basegraph.app/courier/internal/model"
)

// newestBurst is how many items the newest side may admit per round before the
// oldest side gets its single turn.
const newestBurst = 3

// Result is the bounded history returned by Truncate.
type Result struct {
	Items     []model.TimelineItem // ascending, with gap notices between non-adjacent picks
	Admitted  int                  // non-notice items kept
	Truncated bool                 // Admitted < len(input)
}

// Truncate bounds items (ascending by timestamp) to budget characters of body text.
//
// Each round admits up to three items from the newest end, then one from the oldest
// end. A side that meets an item that does not fit is locked out for the rest of the
// run, so one oversized item never blocks the other end. The newest item is kept even
// when it alone exceeds the budget. Omitted runs are replaced by one system_notice each.
func Truncate(items []model.TimelineItem, budget int) Result {
	if len(items) == 0 {
		return Result{}
	}

	admitted := make([]int, 0, len(items))
	total := 0

	left, right := 0, len(items)-1
	leftActive, rightActive := true, true

	fits := func(i int) bool {
		return total+bodyLen(items[i]) <= budget
	}

	for left <= right && (leftActive || rightActive) {
		for n := 0; n < newestBurst && rightActive && left <= right; n++ {
			if !fits(right) {
				rightActive = false
				break
			}
			total += bodyLen(items[right])
			admitted = append(admitted, right)
			right--
		}

		if leftActive && left <= right {
			if !fits(left) {
				leftActive = false
				continue
			}
			total += bodyLen(items[left])
			admitted = append(admitted, left)
			left++
		}
	}

	// The newest item is the likeliest trigger; it is kept even over budget.
	if !slices.Contains(admitted, len(items)-1) {
		admitted = append(admitted, len(items)-1)
	}

	sort.Ints(admitted)

	out := make([]model.TimelineItem, 0, len(admitted)*2)
	for i, idx := range admitted {
		out = append(out, items[idx])
		if i == len(admitted)-1 {
			break
		}
		next := admitted[i+1]
		if omitted := next - idx - 1; omitted > 0 {
			out = append(out, gapNotice(items[idx], idx, next, omitted))
		}
	}

	return Result{
		Items:     out,
		Admitted:  len(admitted),
		Truncated: len(admitted) < len(items),
	}
}

// OmittedCount returns how many items a gap notice stands for, or 0 for other items.
func OmittedCount(item model.TimelineItem) int {
	if item.Kind != model.ItemKindSystemNotice {
		return 0
	}
	var from, to int
	if _, err := fmt.Sscanf(item.ID, "gap_%d_%d", &from, &to); err != nil {
		return 0
	}
	return to - from - 1
}

func gapNotice(prev model.TimelineItem, from, to, omitted int) model.TimelineItem {
	return model.TimelineItem{
		ID:        fmt.Sprintf("gap_%d_%d", from, to),
		Body:      fmt.Sprintf("--- [system notice: %d earlier items omitted here] ---", omitted),
		Timestamp: prev.Timestamp,
		Author:    "system",
		Kind:      model.ItemKindSystemNotice,
	}
}

// bodyLen counts characters, not bytes, to match the downstream limit's unit.
func bodyLen(item model.TimelineItem) int {
	return utf8.RuneCountInString(item.Body)
}
