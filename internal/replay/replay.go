// Package replay checks the intermediate answers an incremental solver run
// leaves behind, one output segment per checkpoint marker.
package replay

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"satharness/internal/cnf"
	"satharness/internal/logging"
	"satharness/internal/oracle"
	"satharness/internal/outcome"
	"satharness/internal/transcript"
	"satharness/internal/verify"
)

// SegmentPattern is the file name a solver writes for checkpoint N.
const SegmentPattern = "debugLibPart%d.output"

var segmentName = regexp.MustCompile(`^debugLibPart(\d+)\.output$`)

// Segment is one captured checkpoint answer on disk.
type Segment struct {
	Index int
	Path  string
}

// Segments lists the segment files in dir, sorted by index. The listing is
// taken once; files appearing later are not seen.
func Segments(dir string) ([]Segment, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	var segs []Segment
	for _, e := range entries {
		m := segmentName.FindStringSubmatch(e.Name())
		if m == nil || e.IsDir() {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			continue
		}
		segs = append(segs, Segment{Index: n, Path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].Index < segs[j].Index })
	return segs, nil
}

// Summary counts what a replay did.
type Summary struct {
	Segments  int
	Replayed  int
	Confirmed int
	Abstained int
}

func (s Summary) String() string {
	return fmt.Sprintf("%d/%d segments replayed (%d confirmed, %d abstained)",
		s.Replayed, s.Segments, s.Confirmed, s.Abstained)
}

// Replayer checks segments against the prefixes of one instance.
type Replayer struct {
	Oracle oracle.Oracle
	// Budget bounds each oracle call.
	Budget time.Duration
	// TempDir receives the materialized sub-instances. Empty means os.TempDir.
	TempDir string
	Parse   transcript.Options
}

// Replay consumes every segment in dir in checkpoint order. Segment i is
// the solver's answer for the clauses before checkpoint i. Replay stops
// after the last available segment or the last checkpoint, whichever
// comes first; every segment file is deleted, replayed or not.
//
// The returned result halts on the first violation, disagreement or
// malformed segment; otherwise it is Confirmed with the summary as detail.
func (r *Replayer) Replay(ctx context.Context, inst *cnf.Instance, dir string) (Summary, outcome.Result) {
	segs, err := Segments(dir)
	if err != nil {
		return Summary{}, outcome.Fatal(outcome.ClassInternal, "%v", err)
	}
	defer discard(segs)

	sum := Summary{Segments: len(segs)}
	for i, seg := range segs {
		if seg.Index != i+1 {
			return sum, outcome.Fatal(outcome.ClassMalformedOutput,
				"checkpoint segment %d missing (next present is %d)", i+1, seg.Index)
		}
		if seg.Index > inst.Checkpoints {
			logging.Get(logging.CategoryReplay).Warn("%d segments for %d checkpoints; ignoring the rest",
				len(segs), inst.Checkpoints)
			break
		}

		res := r.replayOne(ctx, inst, seg)
		sum.Replayed++
		switch res.Kind {
		case outcome.KindConfirmed:
			sum.Confirmed++
		case outcome.KindAbstained:
			sum.Abstained++
		default:
			res.Detail = fmt.Sprintf("checkpoint %d: %s", seg.Index, res.Detail)
			return sum, res
		}
	}

	logging.Replay("Replay done: %s", sum)
	return sum, outcome.Confirmed(sum.String())
}

func (r *Replayer) replayOne(ctx context.Context, inst *cnf.Instance, seg Segment) outcome.Result {
	verdict, err := readSegment(seg.Path, r.Parse)
	if err != nil {
		return outcome.Fatal(outcome.ClassInternal, "%v", err)
	}
	sub := inst.Prefix(seg.Index)
	logging.ReplayDebug("Checkpoint %d: %s over %d clauses", seg.Index, verdict.Status, len(sub.Clauses))

	switch verdict.Status {
	case transcript.Satisfiable:
		if v := verify.Check(sub, verdict.Assignment); v != nil {
			return v.Result()
		}
		return outcome.Confirmed("assignment satisfies the prefix")

	case transcript.Unsatisfiable:
		if verdict.Unverifiable {
			return outcome.Abstained(verdict.Reason)
		}
		return r.confirmUnsat(ctx, sub)

	default:
		return verdict.Result()
	}
}

func (r *Replayer) confirmUnsat(ctx context.Context, sub *cnf.Instance) outcome.Result {
	if r.Oracle == nil {
		return outcome.Abstained("no reference solver")
	}
	f, err := os.CreateTemp(r.TempDir, "checkpoint-*.cnf")
	if err != nil {
		return outcome.Fatal(outcome.ClassInternal, "create sub-instance: %v", err)
	}
	defer os.Remove(f.Name())

	werr := cnf.Write(f, sub)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return outcome.Fatal(outcome.ClassInternal, "write sub-instance: %v", werr)
	}
	return r.Oracle.ConfirmUnsat(ctx, f.Name(), r.Budget)
}

// readSegment parses a segment and deletes it, even when reading fails.
func readSegment(path string, opts transcript.Options) (transcript.Verdict, error) {
	defer os.Remove(path)

	f, err := os.Open(path)
	if err != nil {
		return transcript.Verdict{}, fmt.Errorf("open segment: %w", err)
	}
	defer f.Close()
	return transcript.ParseReader(f, opts)
}

func discard(segs []Segment) {
	for _, s := range segs {
		if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
			logging.Get(logging.CategoryReplay).Warn("remove %s: %v", s.Path, err)
		}
	}
}
