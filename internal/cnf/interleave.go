package cnf

import (
	"bufio"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
)

// Interleave copies the instance in src to dst, inserting at most
// maxCheckpoints checkpoint markers between body lines. Positions increase
// monotonically and are spread so that consecutive markers sit about
// bodyLines/n lines apart. It returns the number of markers written.
func Interleave(dst io.Writer, src io.Reader, rng *rand.Rand, maxCheckpoints int) (int, error) {
	var lines []string
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	body := 0
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		lines = append(lines, line)
		if isBody(line) {
			body++
		}
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("scan generated instance: %w", err)
	}

	n := 0
	if maxCheckpoints > 0 {
		n = rng.IntN(maxCheckpoints + 1)
	}

	bw := bufio.NewWriter(dst)
	inserted := 0
	next := -1
	if n > 0 {
		next = 1 + rng.IntN(2*n)
	}
	at := 0
	for _, line := range lines {
		if isBody(line) {
			at++
			if next > 0 && at >= next && inserted < n {
				if _, err := bw.WriteString(CheckpointMarker + "\n"); err != nil {
					return inserted, err
				}
				inserted++
				next = at + 1 + rng.IntN((body/n)*2+1)
			}
		}
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return inserted, err
		}
	}
	return inserted, bw.Flush()
}

func isBody(line string) bool {
	return line != "" && line[0] != 'c' && line[0] != 'p' && line[0] != '%'
}
