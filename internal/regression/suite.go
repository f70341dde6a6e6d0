// Package regression runs ordered suites of instance checks: a directory of
// instances, a directory of stored solver transcripts, or a YAML suite
// file. Suites are fail-fast: the first halting result ends the run.
package regression

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"satharness/internal/logging"
	"satharness/internal/outcome"
	"satharness/internal/runner"
)

// Instance file suffixes a directory suite picks up.
var instanceSuffixes = []string{".cnf.gz", ".cnf.xz", ".cnf"}

// SolutionSuffix marks a stored transcript: <instance>.out.
const SolutionSuffix = ".out"

// Checker is the run controller as a suite sees it.
type Checker interface {
	Check(ctx context.Context, req runner.Request) outcome.Result
}

// Suite is a collection of regression cases.
type Suite struct {
	Version int    `yaml:"version"`
	Cases   []Case `yaml:"cases"`
}

// Case is a single regression check.
type Case struct {
	ID       string `yaml:"id"`
	Instance string `yaml:"instance"`
	// Solution is a stored transcript; when set the solver is not run.
	Solution   string `yaml:"solution,omitempty"`
	NewVar     bool   `yaml:"new_var,omitempty"`
	TimeoutSec int    `yaml:"timeout_sec,omitempty"`
}

// Result captures the outcome of one case.
type Result struct {
	CaseID     string
	Result     outcome.Result
	DurationMs int64
}

// LoadSuite reads a YAML suite file. Relative paths in it are resolved
// against the file's directory.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse suite YAML: %w", err)
	}
	base := filepath.Dir(path)
	for i := range s.Cases {
		c := &s.Cases[i]
		if c.Instance == "" {
			return nil, fmt.Errorf("case %d (%s): instance is required", i, c.ID)
		}
		c.Instance = resolve(base, c.Instance)
		if c.Solution != "" {
			c.Solution = resolve(base, c.Solution)
		}
		if c.ID == "" {
			c.ID = filepath.Base(c.Instance)
		}
	}
	return &s, nil
}

func resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// DirSuite has one case per instance file in dir, in name order.
func DirSuite(dir string, newVar bool) (*Suite, error) {
	names, err := listDir(dir)
	if err != nil {
		return nil, err
	}
	s := &Suite{Version: 1}
	for _, name := range names {
		if !isInstance(name) {
			continue
		}
		s.Cases = append(s.Cases, Case{ID: name, Instance: filepath.Join(dir, name), NewVar: newVar})
	}
	return s, nil
}

// SolutionSuite pairs every stored transcript <name>.out in solDir with the
// instance <name> in probDir.
func SolutionSuite(solDir, probDir string) (*Suite, error) {
	names, err := listDir(solDir)
	if err != nil {
		return nil, err
	}
	s := &Suite{Version: 1}
	for _, name := range names {
		inst := strings.TrimSuffix(name, SolutionSuffix)
		if inst == name || !isInstance(inst) {
			continue
		}
		s.Cases = append(s.Cases, Case{
			ID:       inst,
			Instance: filepath.Join(probDir, inst),
			Solution: filepath.Join(solDir, name),
		})
	}
	return s, nil
}

func listDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, outcome.Usagef("cannot read directory %s: %v", dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func isInstance(name string) bool {
	for _, suffix := range instanceSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// RunSuite checks every case in order and stops at the first halting
// result, which it returns. Otherwise the result summarizes the run.
func RunSuite(ctx context.Context, s *Suite, check Checker) ([]Result, outcome.Result) {
	if s == nil || len(s.Cases) == 0 {
		return nil, outcome.Abstained("empty suite")
	}

	results := make([]Result, 0, len(s.Cases))
	confirmed, abstained := 0, 0

	for _, c := range s.Cases {
		start := time.Now()
		req := runner.Request{
			Instance: c.Instance,
			Solution: c.Solution,
			NewVar:   c.NewVar,
			// A stored transcript may be cut short by the run that made it.
			TolerateMissing: c.Solution != "",
		}

		cctx, cancel := ctx, context.CancelFunc(func() {})
		if c.TimeoutSec > 0 {
			cctx, cancel = context.WithTimeout(ctx, time.Duration(c.TimeoutSec)*time.Second)
		}
		res := check.Check(cctx, req)
		cancel()

		results = append(results, Result{CaseID: c.ID, Result: res, DurationMs: time.Since(start).Milliseconds()})
		logging.Regress("%s: %s", c.ID, res)

		if res.Halts() {
			res.Detail = c.ID + ": " + res.Detail
			return results, res
		}
		if res.Kind == outcome.KindConfirmed {
			confirmed++
		} else {
			abstained++
		}
	}

	summary := fmt.Sprintf("%d cases: %d confirmed, %d unchecked", len(results), confirmed, abstained)
	if abstained > 0 {
		logging.RegressWarn("%s", summary)
	}
	return results, outcome.Confirmed(summary)
}

// DefaultSuitePath returns the conventional suite file inside a directory.
func DefaultSuitePath(dir string) string {
	return filepath.Join(dir, "suite.yaml")
}
