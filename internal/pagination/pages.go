// Package pagination computes the page controls a paginated list renders.
package pagination

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Delta is how many pages either side of the current page are always shown
const Delta = 2

// EllipsisText is the JSON and text form of an elided range
const EllipsisText = "..."

// Label is either a page number or a marker for an elided range of pages
type Label struct {
	Page     int
	Ellipsis bool
}

// PageLabel returns the label for page p
func PageLabel(p int) Label { return Label{Page: p} }

// EllipsisLabel returns the elided-range marker
func EllipsisLabel() Label { return Label{Ellipsis: true} }

func (l Label) String() string {
	if l.Ellipsis {
		return EllipsisText
	}
	return strconv.Itoa(l.Page)
}

// MarshalJSON encodes a page as a number and an ellipsis as "..."
func (l Label) MarshalJSON() ([]byte, error) {
	if l.Ellipsis {
		return json.Marshal(EllipsisText)
	}
	return json.Marshal(l.Page)
}

// UnmarshalJSON accepts a positive number or "..."
func (l *Label) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != EllipsisText {
			return fmt.Errorf("pagination: unexpected label %q", s)
		}
		*l = EllipsisLabel()
		return nil
	}

	var p int
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("pagination: label must be a page number or %q: %w", EllipsisText, err)
	}
	*l = PageLabel(p)
	return nil
}

// PageNumbers returns the labels to render for currentPage out of totalPages.
//
// Page 1 and totalPages are always present, as is every page within Delta of
// the current page. Between consecutive shown pages a single hidden page is
// shown explicitly, and any longer gap becomes one ellipsis.
//
// totalPages <= 0 yields no labels. currentPage is clamped to [1, totalPages].
func PageNumbers(currentPage, totalPages int) []Label {
	if totalPages <= 0 {
		return []Label{}
	}
	currentPage = min(max(currentPage, 1), totalPages)

	kept := make([]int, 0, 2*Delta+3)
	kept = append(kept, 1)
	for p := max(2, currentPage-Delta); p <= min(totalPages-1, currentPage+Delta); p++ {
		kept = append(kept, p)
	}
	if totalPages > 1 {
		kept = append(kept, totalPages)
	}

	labels := make([]Label, 0, len(kept)+2)
	prev := 0
	for _, p := range kept {
		if prev > 0 {
			switch gap := p - prev; {
			case gap == 2:
				labels = append(labels, PageLabel(prev+1))
			case gap > 2:
				labels = append(labels, EllipsisLabel())
			}
		}
		labels = append(labels, PageLabel(p))
		prev = p
	}

	return labels
}
