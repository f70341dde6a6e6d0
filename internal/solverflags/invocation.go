package solverflags

import "strconv"

// Fixed holds the flag spellings the harness itself relies on.
type Fixed struct {
	DebugLib []string `yaml:"debug_lib"`
	Quiet    []string `yaml:"quiet"`
	NewVar   []string `yaml:"new_var"`
	// Threads is joined to the count with '=' (e.g. --threads=4).
	Threads string `yaml:"threads"`
	// Proof precedes the proof output path.
	Proof []string `yaml:"proof"`
}

// DefaultFixed returns the spellings of the solver this harness targets.
func DefaultFixed() Fixed {
	return Fixed{
		DebugLib: []string{"--debuglib"},
		Quiet:    []string{"--verb", "0"},
		NewVar:   []string{"--debugnewvar"},
		Threads:  "--threads",
		Proof:    []string{"--drupexistscheck", "0"},
	}
}

// Invocation is everything that goes on one solver command line.
type Invocation struct {
	Fixed Fixed
	// Random is a sampled configuration (Space.Sample).
	Random   []string
	DebugLib bool
	Verbose  bool
	NewVar   bool
	Threads  int
	Extra    []string
	Instance string
	// ProofPath requests a proof artifact when set.
	ProofPath string
}

// Argv builds the solver arguments in a fixed order: sampled flags, mode
// flags, threads, extra options, the instance, then the proof request.
func (inv Invocation) Argv() []string {
	args := make([]string, 0, len(inv.Random)+len(inv.Extra)+12)
	args = append(args, inv.Random...)
	if inv.DebugLib {
		args = append(args, inv.Fixed.DebugLib...)
	}
	if !inv.Verbose {
		args = append(args, inv.Fixed.Quiet...)
	}
	if inv.NewVar {
		args = append(args, inv.Fixed.NewVar...)
	}
	if inv.Threads > 0 && inv.Fixed.Threads != "" {
		args = append(args, inv.Fixed.Threads+"="+strconv.Itoa(inv.Threads))
	}
	args = append(args, inv.Extra...)
	args = append(args, inv.Instance)
	if inv.ProofPath != "" {
		args = append(args, inv.Fixed.Proof...)
		args = append(args, inv.ProofPath)
	}
	return args
}
