// Package fuzz runs differential fuzzing campaigns: generate an instance,
// sprinkle checkpoint markers into it, check it with the run controller,
// and loop until something fails.
//
// Every iteration owns its files through a Scope. A halting result keeps
// them on disk next to a JSON triage report; any other result deletes them.
package fuzz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/google/uuid"

	"satharness/internal/cnf"
	"satharness/internal/logging"
	"satharness/internal/outcome"
	"satharness/internal/runner"
	"satharness/internal/tactile"
)

// DefaultPrefix names campaign files.
const DefaultPrefix = "fuzzTest"

// DefaultMaxCheckpoints bounds the markers added to one instance.
const DefaultMaxCheckpoints = 10

// Checker is the run controller as the campaign sees it.
type Checker interface {
	Check(ctx context.Context, req runner.Request) outcome.Result
}

// Config configures a campaign.
type Config struct {
	Catalog      []Generator
	GeneratorDir string
	// WorkDir holds every file of the campaign. Campaigns may share it.
	WorkDir string
	Prefix  string

	MaxCheckpoints   int
	GeneratorTimeout time.Duration

	// Iterations stops the campaign after that many iterations; 0 runs
	// until a halting result or ctx ends.
	Iterations int
	Seed       uint64
	Drup       bool

	// Recorder, when wired to the executor's audit events, lets triage
	// reports list every command of the failing iteration.
	Recorder *tactile.Recorder
}

// Campaign is one fuzzing session.
type Campaign struct {
	cfg   Config
	exec  tactile.Executor
	check Checker
	rng   *rand.Rand
	id    string
	stats *Stats

	requestID string
	log       *logging.Logger
}

// New validates the catalog and resolves external generators.
func New(cfg Config, executor tactile.Executor, check Checker) (*Campaign, error) {
	if len(cfg.Catalog) == 0 {
		return nil, outcome.Usagef("empty generator catalog")
	}
	for _, g := range cfg.Catalog {
		if err := g.Validate(); err != nil {
			return nil, outcome.Usagef("%v", err)
		}
		if err := g.Resolve(cfg.GeneratorDir); err != nil {
			return nil, outcome.Usagef("%v", err)
		}
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = "."
	}
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UnixNano())
	}

	id := uuid.NewString()
	return &Campaign{
		cfg:   cfg,
		exec:  executor,
		check: check,
		rng:   rand.New(rand.NewPCG(cfg.Seed, cfg.Seed>>32|1)),
		id:    id,
		stats: NewStats(),
		log:   logging.WithCampaign(logging.CategoryFuzz, id),
	}, nil
}

// ID is the campaign id stamped on logs and triage reports.
func (c *Campaign) ID() string { return c.id }

// Seed is the seed the campaign RNG started from.
func (c *Campaign) Seed() uint64 { return c.cfg.Seed }

// Stats returns the accumulator.
func (c *Campaign) Stats() *Stats { return c.stats }

// Run loops over the catalog until a halting result, the iteration bound
// or the end of ctx. The returned result is the halting one; otherwise it
// carries the statistics and is Confirmed only if some iteration was.
func (c *Campaign) Run(ctx context.Context) outcome.Result {
	c.log.Info("Campaign started: seed=%d generators=%d workdir=%s", c.cfg.Seed, len(c.cfg.Catalog), c.cfg.WorkDir)
	for i := 0; c.cfg.Iterations == 0 || i < c.cfg.Iterations; i++ {
		if ctx.Err() != nil {
			c.log.Warn("Campaign interrupted: %s", c.stats)
			return outcome.Abstained("campaign interrupted after " + c.stats.String())
		}
		g := c.cfg.Catalog[i%len(c.cfg.Catalog)]
		res := c.Iterate(ctx, i, g)
		if res.Halts() {
			c.log.Error("Campaign halted at iteration %d: %s", i, res)
			return res
		}
	}
	c.log.Info("Campaign finished: %s", c.stats)
	if c.stats.Tally.Confirmed == 0 {
		return outcome.Abstained(c.stats.String())
	}
	return outcome.Confirmed(c.stats.String())
}

// Iterate runs one generate, interleave, check cycle with generator g.
func (c *Campaign) Iterate(ctx context.Context, i int, g Generator) (res outcome.Result) {
	c.requestID = fmt.Sprintf("%s-%d", c.id, i)
	if c.cfg.Recorder != nil {
		c.cfg.Recorder.Drain()
	}
	log := c.log.With("iteration", i, "generator", g.Name)

	scope := NewScope(c.cfg.WorkDir, c.cfg.Prefix)
	var calls []Call
	defer func() {
		c.stats.Record(g.Name, res)
		if res.Halts() {
			scope.Preserve()
			if path, err := c.writeTriage(scope, i, g, calls, res); err != nil {
				log.Error("Writing triage report: %v", err)
			} else {
				log.Error("Artifacts kept for triage, report at %s", path)
			}
			return
		}
		if err := scope.Release(); err != nil {
			log.Warn("Cleanup: %v", err)
		}
	}()

	raw, err := scope.Create(".cnf")
	if err != nil {
		return outcome.Fatal(outcome.ClassInternal, "%v", err)
	}
	calls, err = c.generate(ctx, scope, g, raw)
	if err != nil {
		var gf *generatorFailure
		if errors.As(err, &gf) {
			log.Warn("%v", err)
			return outcome.Abstained("generator failed")
		}
		return outcome.Fatal(outcome.ClassInternal, "generate: %v", err)
	}

	inst, err := scope.Create(".cnf")
	if err != nil {
		return outcome.Fatal(outcome.ClassInternal, "%v", err)
	}
	markers, err := interleaveFile(inst, raw, c.rng, c.cfg.MaxCheckpoints)
	if err != nil {
		return outcome.Fatal(outcome.ClassInternal, "interleave checkpoints: %v", err)
	}
	if err := scope.Remove(raw); err != nil {
		log.Warn("Removing %s: %v", raw, err)
	}
	log.Debug("Instance %s with %d checkpoints", inst, markers)

	req := runner.Request{
		Instance:  inst,
		DebugLib:  true,
		LimitTime: true,
		RequestID: c.requestID,
	}
	if c.cfg.Drup {
		if req.ProofPath, err = scope.Create(".drup"); err != nil {
			return outcome.Fatal(outcome.ClassInternal, "%v", err)
		}
	}

	res = c.check.Check(ctx, req)
	log.Info("Iteration %d (%s): %s", i, g.Name, res)
	return res
}

func interleaveFile(dst, src string, rng *rand.Rand, maxCheckpoints int) (int, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := cnf.Interleave(out, in, rng, maxCheckpoints)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// Triage is the report written next to the artifacts of a failed iteration.
type Triage struct {
	Campaign  string    `json:"campaign"`
	Iteration int       `json:"iteration"`
	Seed      uint64    `json:"seed"`
	Generator string    `json:"generator"`
	Calls     []Call    `json:"generator_calls"`
	Commands  []string  `json:"commands,omitempty"`
	Artifacts []string  `json:"artifacts"`
	Kind      string    `json:"kind"`
	Class     string    `json:"class"`
	ExitCode  int       `json:"exit_code"`
	Detail    string    `json:"detail"`
	Time      time.Time `json:"time"`
}

func (c *Campaign) writeTriage(scope *Scope, i int, g Generator, calls []Call, res outcome.Result) (string, error) {
	t := Triage{
		Campaign:  c.id,
		Iteration: i,
		Seed:      c.cfg.Seed,
		Generator: g.Name,
		Calls:     calls,
		Artifacts: scope.Files(),
		Kind:      res.Kind.String(),
		Class:     res.Class.String(),
		ExitCode:  res.ExitCode(),
		Detail:    res.Detail,
		Time:      time.Now(),
	}
	if c.cfg.Recorder != nil {
		t.Commands = c.cfg.Recorder.Commands()
	}

	path, err := scope.Create(".triage.json")
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return "", err
	}
	return path, os.WriteFile(path, append(data, '\n'), 0o644)
}
