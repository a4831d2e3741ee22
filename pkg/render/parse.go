package render

import (
	"bufio"
	"strings"
)

// Section is one [Interface] or [Peer] block parsed back out of rendered
// config text.
type Section struct {
	Name   string
	Fields map[string]string
}

// Parse splits rendered config text back into its sections. Comment and
// blank lines are skipped; duplicate keys within a section keep the last
// value. Used to verify that rendering is lossless for the functional fields
// and by the startup reconciler to sanity-check on-disk artifacts.
func Parse(text string) []Section {
	var out []Section
	var cur *Section

	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			out = append(out, Section{
				Name:   strings.Trim(line, "[]"),
				Fields: make(map[string]string),
			})
			cur = &out[len(out)-1]
			continue
		}
		if cur == nil {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		cur.Fields[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}
