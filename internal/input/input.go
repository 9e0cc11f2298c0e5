// Package input is the Input Driver: accepts audit targets from
// positional arguments, a file (-i), or standard input, and parses them
// into core.Path values.
package input

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/objaudit/auditor/internal/core"
)

// ReadTargets collects targets from args, then (if present) from the file
// at filePath, then (if neither args nor filePath produced anything and
// stdin is not a terminal) from stdin, one path per line.
//
// It returns an error for any malformed path segment — the caller should
// treat that as an argument parse error.
func ReadTargets(args []string, filePath string, stdin io.Reader, stdinIsTerminal bool) ([]core.Path, error) {
	var raws []string
	raws = append(raws, args...)

	if filePath != "" {
		f, err := os.Open(filePath)
		if err != nil {
			return nil, fmt.Errorf("opening -i file: %s", err)
		}
		defer f.Close()
		lines, err := readLines(f)
		if err != nil {
			return nil, err
		}
		raws = append(raws, lines...)
	}

	if len(raws) == 0 {
		if stdinIsTerminal {
			return nil, fmt.Errorf("no targets given and standard input is a terminal")
		}
		lines, err := readLines(stdin)
		if err != nil {
			return nil, err
		}
		raws = append(raws, lines...)
	}

	out := make([]core.Path, 0, len(raws))
	for _, raw := range raws {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		p, err := core.ParsePath(raw)
		if err != nil {
			return nil, fmt.Errorf("bad target %q: %s", raw, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
