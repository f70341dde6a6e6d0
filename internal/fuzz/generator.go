package fuzz

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/go-air/gini/gen"
	"github.com/go-air/gini/z"
	"github.com/google/shlex"

	"satharness/internal/cnf"
	"satharness/internal/tactile"
)

// Arity says how a generator is invoked.
type Arity string

const (
	// ArityPlain generators take no arguments.
	ArityPlain Arity = "plain"
	// AritySeeded generators take a seed after SeedFlag.
	AritySeeded Arity = "seeded"
	// AritySeededExtra generators take an extra parameter after ExtraFlag,
	// then the seed.
	AritySeededExtra Arity = "seeded-extra"
	// ArityCombinator generators take the paths of 2-3 generated instances.
	ArityCombinator Arity = "combinator"
	// ArityBuiltin generators run in-process.
	ArityBuiltin Arity = "builtin"
)

// Extra parameter range of seeded-extra generators.
const (
	minExtra = 1
	maxExtra = 79
)

// Builtin generator names.
const (
	BuiltinRand3Cnf     = "rand3cnf"
	BuiltinHardRand3Cnf = "hardrand3cnf"
	BuiltinPhp          = "php"
	BuiltinBinCycle     = "bincycle"
)

// Generator is one catalog entry. External generators write the instance
// to stdout.
type Generator struct {
	Name  string `yaml:"name"`
	Arity Arity  `yaml:"arity"`
	// Command is split shell-style; a relative program is looked up in the
	// generator directory first.
	Command   string `yaml:"command,omitempty"`
	SeedFlag  string `yaml:"seed_flag,omitempty"`
	ExtraFlag string `yaml:"extra_flag,omitempty"`

	// Builtin selects the in-process generator; N and M are its sizes.
	Builtin string `yaml:"builtin,omitempty"`
	N       int    `yaml:"n,omitempty"`
	M       int    `yaml:"m,omitempty"`
}

// Validate checks that the entry is complete for its arity.
func (g Generator) Validate() error {
	if g.Name == "" {
		return fmt.Errorf("generator without a name")
	}
	switch g.Arity {
	case ArityPlain, ArityCombinator:
	case AritySeeded:
		if g.SeedFlag == "" {
			return fmt.Errorf("generator %s: seeded generators need seed_flag", g.Name)
		}
	case AritySeededExtra:
		if g.SeedFlag == "" || g.ExtraFlag == "" {
			return fmt.Errorf("generator %s: seeded-extra generators need seed_flag and extra_flag", g.Name)
		}
	case ArityBuiltin:
		switch g.Builtin {
		case BuiltinRand3Cnf, BuiltinPhp:
			if g.N < 1 || g.M < 1 {
				return fmt.Errorf("generator %s: %s needs n and m", g.Name, g.Builtin)
			}
		case BuiltinHardRand3Cnf, BuiltinBinCycle:
			if g.N < 1 {
				return fmt.Errorf("generator %s: %s needs n", g.Name, g.Builtin)
			}
		default:
			return fmt.Errorf("generator %s: unknown builtin %q", g.Name, g.Builtin)
		}
		return nil
	default:
		return fmt.Errorf("generator %s: unknown arity %q", g.Name, g.Arity)
	}
	if _, err := g.argv(""); err != nil {
		return err
	}
	return nil
}

func (g Generator) argv(dir string) ([]string, error) {
	argv, err := shlex.Split(g.Command)
	if err != nil {
		return nil, fmt.Errorf("generator %s: %w", g.Name, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("generator %s: empty command", g.Name)
	}
	if dir != "" && !filepath.IsAbs(argv[0]) {
		if p := filepath.Join(dir, argv[0]); fileExists(p) {
			argv[0] = p
		}
	}
	return argv, nil
}

// Resolve checks that an external generator's program can be run.
func (g Generator) Resolve(dir string) error {
	if g.Arity == ArityBuiltin {
		return nil
	}
	argv, err := g.argv(dir)
	if err != nil {
		return err
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		return fmt.Errorf("generator %s: %w", g.Name, err)
	}
	return nil
}

// Call is one concrete generator invocation.
type Call struct {
	Generator string   `json:"generator"`
	Argv      []string `json:"argv"`
	Seed      uint32   `json:"seed"`
	Extra     int      `json:"extra,omitempty"`
}

// command builds the invocation of g writing to out. parts are the inputs
// of a combinator.
func (g Generator) command(dir, out string, rng *rand.Rand, parts []string) (tactile.Command, Call, error) {
	argv, err := g.argv(dir)
	if err != nil {
		return tactile.Command{}, Call{}, err
	}
	call := Call{Generator: g.Name}
	switch g.Arity {
	case AritySeeded:
		call.Seed = rng.Uint32()
		argv = append(argv, g.SeedFlag, strconv.FormatUint(uint64(call.Seed), 10))
	case AritySeededExtra:
		call.Seed = rng.Uint32()
		call.Extra = minExtra + rng.IntN(maxExtra-minExtra+1)
		argv = append(argv, g.ExtraFlag, strconv.Itoa(call.Extra), g.SeedFlag, strconv.FormatUint(uint64(call.Seed), 10))
	case ArityCombinator:
		argv = append(argv, parts...)
	}
	call.Argv = argv
	return tactile.Command{
		Binary:     argv[0],
		Arguments:  argv[1:],
		StdoutPath: out,
		Tags:       map[string]string{"role": "generator", "generator": g.Name},
	}, call, nil
}

// runBuiltin writes a gini-generated instance to out.
func (g Generator) runBuiltin(out string, rng *rand.Rand) (Call, error) {
	seed := rng.Uint32()
	gen.Seed(int64(seed))

	var dst clauseSink
	switch g.Builtin {
	case BuiltinRand3Cnf:
		gen.Rand3Cnf(&dst, g.N, g.M)
	case BuiltinHardRand3Cnf:
		gen.HardRand3Cnf(&dst, g.N)
	case BuiltinPhp:
		gen.Php(&dst, g.N, g.M)
	case BuiltinBinCycle:
		gen.BinCycle(&dst, g.N)
	default:
		return Call{}, fmt.Errorf("unknown builtin %q", g.Builtin)
	}

	call := Call{
		Generator: g.Name,
		Argv:      []string{"builtin:" + g.Builtin, strconv.Itoa(g.N), strconv.Itoa(g.M)},
		Seed:      seed,
	}
	return call, cnf.WriteFile(out, cnf.NewInstance(dst.clauses...))
}

// clauseSink collects the clauses gini's generators add.
type clauseSink struct {
	clauses [][]int
	cur     []int
}

func (s *clauseSink) Add(m z.Lit) {
	if m == z.LitNull {
		s.clauses = append(s.clauses, s.cur)
		s.cur = nil
		return
	}
	s.cur = append(s.cur, m.Dimacs())
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// generate produces one instance at out, recursing once for combinators.
func (c *Campaign) generate(ctx context.Context, scope *Scope, g Generator, out string) ([]Call, error) {
	if g.Arity == ArityBuiltin {
		call, err := g.runBuiltin(out, c.rng)
		return []Call{call}, err
	}

	var calls []Call
	var parts []string
	if g.Arity == ArityCombinator {
		subs, err := c.subGenerators()
		if err != nil {
			return nil, err
		}
		for _, sub := range subs {
			part, err := scope.Create(".cnf")
			if err != nil {
				return calls, err
			}
			subCalls, err := c.generate(ctx, scope, sub, part)
			calls = append(calls, subCalls...)
			if err != nil {
				return calls, err
			}
			parts = append(parts, part)
		}
		defer func() {
			for _, p := range parts {
				scope.Remove(p)
			}
		}()
	}

	cmd, call, err := g.command(c.cfg.GeneratorDir, out, c.rng, parts)
	if err != nil {
		return calls, err
	}
	cmd.RequestID = c.requestID
	if c.cfg.GeneratorTimeout > 0 {
		cmd.Limits = &tactile.ResourceLimits{TimeoutMs: c.cfg.GeneratorTimeout.Milliseconds()}
	}
	calls = append(calls, call)

	res, err := c.exec.Execute(ctx, cmd)
	if err != nil {
		return calls, err
	}
	switch {
	case res.IsError():
		return calls, fmt.Errorf("generator %s: %s", g.Name, res.Error)
	case res.Killed:
		return calls, &generatorFailure{name: g.Name, reason: res.KillReason}
	case res.ExitCode != 0:
		return calls, &generatorFailure{name: g.Name, reason: fmt.Sprintf("exit %d: %s", res.ExitCode, res.Output())}
	}
	return calls, nil
}

// subGenerators picks the parts of a combinator. Half of the time every
// part comes from the first non-combinator entry.
func (c *Campaign) subGenerators() ([]Generator, error) {
	var pool []Generator
	for _, g := range c.cfg.Catalog {
		if g.Arity != ArityCombinator {
			pool = append(pool, g)
		}
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("combinator needs at least one other generator")
	}

	n := 2 + c.rng.IntN(2)
	fixed := c.rng.IntN(2) == 1
	subs := make([]Generator, n)
	for i := range subs {
		if fixed {
			subs[i] = pool[0]
		} else {
			subs[i] = pool[c.rng.IntN(len(pool))]
		}
	}
	return subs, nil
}

// generatorFailure is a generator that ran but produced nothing usable.
type generatorFailure struct {
	name   string
	reason string
}

func (e *generatorFailure) Error() string {
	return fmt.Sprintf("generator %s failed: %s", e.name, e.reason)
}
