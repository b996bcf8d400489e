package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// expandInputs resolves file arguments and glob patterns in order, dropping
// duplicates and directories. No arguments, or a lone "-", means stdin.
func expandInputs(args []string) ([]string, error) {
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		return nil, nil
	}

	seen := make(map[string]struct{})
	var inputs []string
	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no input matches %q", arg)
		}
		sort.Strings(matches)

		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				return nil, fmt.Errorf("failed to stat %s: %w", m, err)
			}
			if info.IsDir() {
				continue
			}
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			inputs = append(inputs, m)
		}
	}

	if len(inputs) == 0 {
		return nil, fmt.Errorf("no regular files among the inputs")
	}
	return inputs, nil
}
