package flaky

import (
	"regexp"
	"sort"
)

// failures returns the distinct test names the patterns capture in output.
func failures(output []byte, patterns []*regexp.Regexp) []string {
	seen := make(map[string]struct{})
	for _, re := range patterns {
		for _, m := range re.FindAllSubmatch(output, -1) {
			if len(m) < 2 || len(m[1]) == 0 {
				continue
			}
			seen[string(m[1])] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
