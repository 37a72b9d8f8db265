// Package file contains helpers for reading local files as datasources:
// the Local source itself and resolution of input patterns (glob
// patterns and list files) into concrete paths.
package file

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Resolve expands an input pattern into file paths.
//
//   - "@list.txt" reads paths from a list file (see ReadList); each entry may
//     itself be a glob pattern.
//   - Anything else is a comma-separated list of glob patterns.
//
// Matches of one pattern are sorted; pattern order is preserved. A pattern
// with no match is an error.
func Resolve(spec string) ([]string, error) {
	var patterns []string
	if strings.HasPrefix(spec, "@") {
		list, err := ReadList(spec[1:])
		if err != nil {
			return nil, fmt.Errorf("read input list: %w", err)
		}
		patterns = list
	} else {
		for _, p := range strings.Split(spec, ",") {
			if p = strings.TrimSpace(p); p != "" {
				patterns = append(patterns, p)
			}
		}
	}
	if len(patterns) == 0 {
		return nil, fmt.Errorf("no input given")
	}

	var out []string
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("input pattern %q: %w", p, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("input pattern %q matches no file", p)
		}
		sort.Strings(matches)
		out = append(out, matches...)
	}
	return out, nil
}

// ReadList reads a text file line by line and returns the non-empty,
// non-comment lines.
//
// Lines that are empty or start with '#' (after trimming leading/trailing
// whitespace) are skipped. This makes it convenient to maintain list files
// with comments and blank separators.
//
// The order of lines is preserved. On I/O error, a non-nil error is returned.
func ReadList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
