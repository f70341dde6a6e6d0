package cnf

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// Write renders inst as a plain instance with a fresh header. Checkpoint
// markers are not written: the output is a self-contained sub-problem.
func Write(w io.Writer, inst *Instance) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "p cnf %d %d\n", inst.MaxVar(), len(inst.Clauses)); err != nil {
		return err
	}
	for _, c := range inst.Clauses {
		if _, err := bw.WriteString(c.String()); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes inst to path, truncating any existing content.
func WriteFile(path string, inst *Instance) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create instance file: %w", err)
	}
	if err := Write(f, inst); err != nil {
		f.Close()
		return fmt.Errorf("write instance %s: %w", path, err)
	}
	return f.Close()
}
