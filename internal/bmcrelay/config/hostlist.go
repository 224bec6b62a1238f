package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// bracketRange matches a single "[a-b]" range embedded in a hostlist token,
// e.g. "foo-cmm[1-2]". A single-number bracket such as "[a]" does not match
// and is rejected as malformed.
var bracketRange = regexp.MustCompile(`^(.*)\[(\d+)-(\d+)\](.*)$`)

// ExpandHostlist expands a server string from the subscriptions section
// into its constituent hostnames. Accepts either a plain comma-separated
// list or tokens using a bracketed numeric range, e.g. "foo-cmm[1-2]"
// expands to "foo-cmm1", "foo-cmm2". Ranges are zero-padded to match the
// width of the lower bound's literal digits when they share a width;
// otherwise no padding is applied.
func ExpandHostlist(spec string) ([]string, error) {
	var out []string
	for _, token := range strings.Split(spec, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		expanded, err := expandToken(token)
		if err != nil {
			return nil, fmt.Errorf("config: hostlist token %q: %w", token, err)
		}
		out = append(out, expanded...)
	}
	return out, nil
}

func expandToken(token string) ([]string, error) {
	m := bracketRange.FindStringSubmatch(token)
	if m == nil {
		if strings.Contains(token, "[") || strings.Contains(token, "]") {
			return nil, fmt.Errorf("malformed bracket range")
		}
		return []string{token}, nil
	}

	prefix, loStr, hiStr, suffix := m[1], m[2], m[3], m[4]
	lo, err := strconv.Atoi(loStr)
	if err != nil {
		return nil, fmt.Errorf("bad range lower bound: %w", err)
	}
	hi, err := strconv.Atoi(hiStr)
	if err != nil {
		return nil, fmt.Errorf("bad range upper bound: %w", err)
	}
	if hi < lo {
		return nil, fmt.Errorf("range upper bound %d < lower bound %d", hi, lo)
	}

	width := 0
	if len(loStr) == len(hiStr) {
		width = len(loStr)
	}

	out := make([]string, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		num := strconv.Itoa(i)
		if width > 0 && len(num) < width {
			num = strings.Repeat("0", width-len(num)) + num
		}
		out = append(out, prefix+num+suffix)
	}
	return out, nil
}
