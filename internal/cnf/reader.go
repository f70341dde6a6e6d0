package cnf

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"
	"go.uber.org/multierr"
)

// maxLineBytes bounds a single clause line.
const maxLineBytes = 16 * 1024 * 1024

// Open opens an instance file, decompressing .gz and .xz transparently.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open instance: %w", err)
	}

	switch {
	case strings.HasSuffix(path, ".gz"):
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open gzip instance %s: %w", path, err)
		}
		return &stackedReader{Reader: zr, closers: []io.Closer{zr, f}}, nil
	case strings.HasSuffix(path, ".xz"):
		xr, err := xz.NewReader(bufio.NewReader(f))
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open xz instance %s: %w", path, err)
		}
		return &stackedReader{Reader: xr, closers: []io.Closer{f}}, nil
	default:
		return f, nil
	}
}

type stackedReader struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedReader) Close() error {
	var err error
	for _, c := range s.closers {
		err = multierr.Append(err, c.Close())
	}
	return err
}

// ReadFile parses the instance stored at path.
func ReadFile(path string) (*Instance, error) {
	rc, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	inst, err := Read(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return inst, nil
}

// Read parses an instance from r.
func Read(r io.Reader) (*Instance, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	inst := &Instance{}
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		switch line[0] {
		case 'c':
			if strings.Contains(line, checkpointToken) {
				inst.Checkpoints++
			}
			continue
		case '%':
			return inst, nil
		case 'p':
			if err := parseHeader(inst, line); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			continue
		}

		kind := Regular
		if line[0] == 'x' {
			kind = Xor
			line = strings.TrimLeft(line, "x")
		}

		lits, err := parseLits(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		inst.Clauses = append(inst.Clauses, Clause{
			Kind:       kind,
			Lits:       lits,
			Checkpoint: inst.Checkpoints,
			Line:       lineNo,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan instance: %w", err)
	}
	return inst, nil
}

func parseHeader(inst *Instance, line string) error {
	fields := strings.Fields(line)
	if len(fields) != 4 || fields[0] != "p" || fields[1] != "cnf" {
		return fmt.Errorf("expected 'p cnf <vars> <clauses>', got %q", line)
	}
	vars, err := strconv.Atoi(fields[2])
	if err != nil || vars < 0 {
		return fmt.Errorf("invalid variable count %q", fields[2])
	}
	clauses, err := strconv.Atoi(fields[3])
	if err != nil || clauses < 0 {
		return fmt.Errorf("invalid clause count %q", fields[3])
	}
	inst.DeclaredVars = vars
	inst.DeclaredClauses = clauses
	inst.HasHeader = true
	return nil
}

// parseLits reads signed integers up to the first 0.
func parseLits(line string) ([]int, error) {
	fields := strings.Fields(line)
	lits := make([]int, 0, len(fields))
	for _, tok := range fields {
		lit, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("invalid literal %q", tok)
		}
		if lit == 0 {
			break
		}
		lits = append(lits, lit)
	}
	return lits, nil
}
