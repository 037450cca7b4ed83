package utils

import "strings"

// NormalizeIDs trims ids, drops empty ones and removes duplicates, keeping order.
func NormalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	list := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		list = append(list, id)
	}
	return list
}
