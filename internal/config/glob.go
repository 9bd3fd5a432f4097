package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ErrNoLogFiles is returned when the arguments name no readable log file.
var ErrNoLogFiles = errors.New("no log files")

// ExpandLogFiles turns command line arguments into the log files to read.
// A literal argument must be a regular file. Glob arguments may match
// directories, which are skipped, but must match at least one file.
// Paths are cleaned, deduplicated and returned sorted.
func ExpandLogFiles(args []string) ([]string, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: no arguments", ErrNoLogFiles)
	}

	var files []string
	for _, arg := range args {
		if !isGlob(arg) {
			if err := requireFile(arg); err != nil {
				return nil, err
			}
			files = append(files, filepath.Clean(arg))
			continue
		}

		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", arg, err)
		}
		found := 0
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			files = append(files, filepath.Clean(m))
			found++
		}
		if found == 0 {
			return nil, fmt.Errorf("%w: pattern %q matched nothing", ErrNoLogFiles, arg)
		}
	}

	slices.Sort(files)
	return slices.Compact(files), nil
}

func isGlob(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return &fs.PathError{Op: "read", Path: path, Err: errors.New("is a directory")}
	}
	return nil
}
