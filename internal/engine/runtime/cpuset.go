// Licensed under the MIT License. See LICENSE file in the project root for details.

package runtime

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseCPUSet parses a comma-separated list of CPU indices and inclusive
// ranges ("0,2,4-7") into a de-duplicated slice of CPU indices, in the order
// they first appear in spec. An
// empty spec is an error — callers that want "unset" behavior should check
// for an empty environment variable before calling this.
func ParseCPUSet(spec string) ([]int, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("runtime: empty cpuset")
	}

	seen := make(map[int]bool)
	var cpus []int
	for _, field := range strings.Split(spec, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}

		start, finish, err := parseRange(field)
		if err != nil {
			return nil, fmt.Errorf("runtime: failed to parse cpuset near %q: %w", field, err)
		}
		if start < 0 || finish < 0 || start > finish {
			return nil, fmt.Errorf("runtime: invalid cpuset range %q", field)
		}
		for cpu := start; cpu <= finish; cpu++ {
			if !seen[cpu] {
				seen[cpu] = true
				cpus = append(cpus, cpu)
			}
		}
	}
	if len(cpus) == 0 {
		return nil, fmt.Errorf("runtime: empty cpuset")
	}
	return cpus, nil
}

func parseRange(field string) (start, finish int, err error) {
	if i := strings.IndexByte(field, '-'); i >= 0 {
		start, err = strconv.Atoi(strings.TrimSpace(field[:i]))
		if err != nil {
			return 0, 0, err
		}
		finish, err = strconv.Atoi(strings.TrimSpace(field[i+1:]))
		if err != nil {
			return 0, 0, err
		}
		return start, finish, nil
	}
	v, err := strconv.Atoi(field)
	if err != nil {
		return 0, 0, err
	}
	return v, v, nil
}
