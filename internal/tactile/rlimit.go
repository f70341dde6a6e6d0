package tactile

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// shimArg is the sentinel first argument that puts a satharness binary in
// limit-shim mode: apply the encoded rlimits, then exec the real target.
const shimArg = "__tactile_rlimit_exec"

// encodeRlimits renders rlimits as "res=cur:max;res=cur:max" with the
// resources in ascending order.
func encodeRlimits(rlimits map[int]Rlimit) string {
	keys := make([]int, 0, len(rlimits))
	for k := range rlimits {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%d=%d:%d", k, rlimits[k].Cur, rlimits[k].Max))
	}
	return strings.Join(parts, ";")
}

func decodeRlimits(s string) (map[int]Rlimit, error) {
	rlimits := make(map[int]Rlimit)
	if s == "" {
		return rlimits, nil
	}
	for _, part := range strings.Split(s, ";") {
		res, bounds, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("bad rlimit %q", part)
		}
		cur, hard, ok := strings.Cut(bounds, ":")
		if !ok {
			return nil, fmt.Errorf("bad rlimit bounds %q", part)
		}
		r, err := strconv.Atoi(res)
		if err != nil {
			return nil, fmt.Errorf("bad rlimit resource %q", res)
		}
		c, err := strconv.ParseUint(cur, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad rlimit value %q", cur)
		}
		m, err := strconv.ParseUint(hard, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad rlimit value %q", hard)
		}
		rlimits[r] = Rlimit{Cur: c, Max: m}
	}
	return rlimits, nil
}
