package coverage

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// LineSet is a sorted, duplicate-free set of 1-based line numbers.
type LineSet []int

// NewLineSet builds a LineSet from arbitrary line numbers.
// Non-positive numbers are dropped.
func NewLineSet(lines ...int) LineSet {
	if len(lines) == 0 {
		return nil
	}
	out := make([]int, 0, len(lines))
	for _, n := range lines {
		if n > 0 {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	j := 0
	for i, n := range out {
		if i > 0 && n == out[j-1] {
			continue
		}
		out[j] = n
		j++
	}
	if j == 0 {
		return nil
	}
	return LineSet(out[:j])
}

// Len returns the number of lines in the set.
func (s LineSet) Len() int { return len(s) }

// Contains reports whether n is in the set.
func (s LineSet) Contains(n int) bool {
	i := sort.SearchInts(s, n)
	return i < len(s) && s[i] == n
}

// Difference returns the lines of s that are not in other.
func (s LineSet) Difference(other LineSet) LineSet {
	var out LineSet
	j := 0
	for _, n := range s {
		for j < len(other) && other[j] < n {
			j++
		}
		if j < len(other) && other[j] == n {
			continue
		}
		out = append(out, n)
	}
	return out
}

// Union returns every line in s or other.
func (s LineSet) Union(other LineSet) LineSet {
	merged := make([]int, 0, len(s)+len(other))
	merged = append(merged, s...)
	merged = append(merged, other...)
	return NewLineSet(merged...)
}

// Range is a closed interval of line numbers.
type Range struct {
	Start int
	End   int
}

// String renders the range as "12-15", or "7" for a single line.
func (r Range) String() string {
	if r.Start == r.End {
		return strconv.Itoa(r.Start)
	}
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// Lines expands the range into its line numbers.
func (r Range) Lines() []int {
	if r.End < r.Start {
		return nil
	}
	out := make([]int, 0, r.End-r.Start+1)
	for n := r.Start; n <= r.End; n++ {
		out = append(out, n)
	}
	return out
}

// Ranges collapses consecutive lines into closed ranges.
func (s LineSet) Ranges() []Range {
	if len(s) == 0 {
		return nil
	}
	var out []Range
	cur := Range{Start: s[0], End: s[0]}
	for _, n := range s[1:] {
		if n == cur.End+1 {
			cur.End = n
			continue
		}
		out = append(out, cur)
		cur = Range{Start: n, End: n}
	}
	return append(out, cur)
}

// Compact renders the set as range strings, e.g. ["1-10", "14"].
func (s LineSet) Compact() []string {
	ranges := s.Ranges()
	out := make([]string, len(ranges))
	for i, r := range ranges {
		out[i] = r.String()
	}
	return out
}

// String renders the set as a comma separated compact list.
func (s LineSet) String() string {
	return strings.Join(s.Compact(), ", ")
}

// ParseRange parses "12-15" or "7".
func ParseRange(text string) (Range, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Range{}, fmt.Errorf("empty line range")
	}
	startText, endText, isSpan := strings.Cut(text, "-")
	start, err := strconv.Atoi(strings.TrimSpace(startText))
	if err != nil {
		return Range{}, fmt.Errorf("invalid line range %q: %w", text, err)
	}
	end := start
	if isSpan {
		end, err = strconv.Atoi(strings.TrimSpace(endText))
		if err != nil {
			return Range{}, fmt.Errorf("invalid line range %q: %w", text, err)
		}
	}
	if start <= 0 || end < start {
		return Range{}, fmt.Errorf("invalid line range %q", text)
	}
	return Range{Start: start, End: end}, nil
}

// ParseRanges expands compact range strings back into a LineSet.
// It accepts both separate entries and comma separated lists.
func ParseRanges(parts []string) (LineSet, error) {
	var lines []int
	for _, part := range parts {
		for _, piece := range strings.Split(part, ",") {
			if strings.TrimSpace(piece) == "" {
				continue
			}
			r, err := ParseRange(piece)
			if err != nil {
				return nil, err
			}
			lines = append(lines, r.Lines()...)
		}
	}
	return NewLineSet(lines...), nil
}
