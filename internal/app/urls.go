package app

import (
	"sort"
	"strings"
)

// ExtractOutputURLs collects HTTP(S) URLs from an arbitrary provider output
// structure. Output shapes vary by model (a bare string, lists, nested maps),
// so the walk is fully generic. Order of first appearance is preserved and
// duplicates are dropped.
func ExtractOutputURLs(output any) []string {
	var urls []string
	var walk func(value any)
	walk = func(value any) {
		switch v := value.(type) {
		case string:
			candidate := strings.Trim(strings.TrimSpace(v), `"`)
			if strings.HasPrefix(candidate, "http://") || strings.HasPrefix(candidate, "https://") {
				urls = append(urls, candidate)
			}
		case []any:
			for _, item := range v {
				walk(item)
			}
		case []string:
			for _, item := range v {
				walk(item)
			}
		case map[string]any:
			// Map iteration order is randomized in Go; sort keys so the
			// collected order is stable across invocations.
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				walk(v[k])
			}
		}
	}
	walk(output)

	seen := make(map[string]struct{}, len(urls))
	deduped := urls[:0]
	for _, url := range urls {
		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}
		deduped = append(deduped, url)
	}
	return deduped
}
