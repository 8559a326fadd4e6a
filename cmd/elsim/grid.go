package main

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// parseValues reads either a comma separated list ("0.1,0.2") or an
// inclusive range "lo:hi:step".
func parseValues(s string) ([]float64, error) {
	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("range %q: want lo:hi:step", s)
		}
		var bounds [3]float64
		for i, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, fmt.Errorf("range %q: %w", s, err)
			}
			bounds[i] = v
		}
		lo, hi, step := bounds[0], bounds[1], bounds[2]
		if !(step > 0) || hi < lo {
			return nil, fmt.Errorf("range %q: need hi >= lo and a positive step", s)
		}
		n := int(math.Floor((hi-lo)/step+1e-9)) + 1
		out := make([]float64, n)
		for i := range out {
			out[i] = lo + float64(i)*step
		}
		return out, nil
	}

	var out []float64
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("value %q: %w", p, err)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no values in %q", s)
	}
	return out, nil
}

// parseGrid turns name=values flags into parallel name and range slices,
// ordered by name.
func parseGrid(grid map[string]string) ([]string, [][]float64, error) {
	names := make([]string, 0, len(grid))
	for name := range grid {
		names = append(names, name)
	}
	sort.Strings(names)

	ranges := make([][]float64, len(names))
	for i, name := range names {
		vals, err := parseValues(grid[name])
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", name, err)
		}
		ranges[i] = vals
	}
	return names, ranges, nil
}

func parseFloats(m map[string]string) (map[string]float64, error) {
	if len(m) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = f
	}
	return out, nil
}
