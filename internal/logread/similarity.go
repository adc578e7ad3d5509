package logread

// Ratio reports how similar two strings are as a value in [0, 1], computed as
// 2*M/T where M is the number of characters in all longest matching blocks
// and T is the total length of both strings. OCR output of the same log line
// differs by a few misread glyphs between frames, so dedup needs a similarity
// score rather than exact equality; anything above the dedup threshold is the
// same line.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}

	b2j := make(map[rune][]int, len(rb))
	for j, c := range rb {
		b2j[c] = append(b2j[c], j)
	}

	type span struct {
		alo, ahi, blo, bhi int
	}
	matches := 0
	stack := []span{{0, len(ra), 0, len(rb)}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		besti, bestj, bestSize := s.alo, s.blo, 0
		j2len := map[int]int{}
		for i := s.alo; i < s.ahi; i++ {
			newJ2len := map[int]int{}
			for _, j := range b2j[ra[i]] {
				if j < s.blo {
					continue
				}
				if j >= s.bhi {
					break
				}
				k := j2len[j-1] + 1
				newJ2len[j] = k
				if k > bestSize {
					besti, bestj, bestSize = i-k+1, j-k+1, k
				}
			}
			j2len = newJ2len
		}

		if bestSize > 0 {
			matches += bestSize
			stack = append(stack, span{s.alo, besti, s.blo, bestj})
			stack = append(stack, span{besti + bestSize, s.ahi, bestj + bestSize, s.bhi})
		}
	}

	return 2 * float64(matches) / float64(total)
}
