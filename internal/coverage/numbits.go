package coverage

// coverage.py stores executed line numbers as "numbits": byte i, bit j
// (least significant first) is set when line i*8+j ran.

// NumbitsToLines decodes a numbits blob.
func NumbitsToLines(numbits []byte) []int {
	var lines []int
	for i, b := range numbits {
		if b == 0 {
			continue
		}
		for j := 0; j < 8; j++ {
			if b&(1<<uint(j)) != 0 {
				lines = append(lines, i*8+j)
			}
		}
	}
	return lines
}

// LinesToNumbits encodes line numbers the way coverage.py does.
func LinesToNumbits(lines []int) []byte {
	max := -1
	for _, n := range lines {
		if n > max {
			max = n
		}
	}
	if max < 0 {
		return []byte{}
	}
	out := make([]byte, max/8+1)
	for _, n := range lines {
		if n < 0 {
			continue
		}
		out[n/8] |= 1 << uint(n%8)
	}
	return out
}
