package stations

import "strings"

var nameSuffixes = []string{
	"underground station",
	"dlr station",
	"rail station",
	"station",
}

// Normalize reduces a free text station name to its index key.
func Normalize(name string) string {
	normalized := strings.TrimSpace(strings.ToLower(name))

	for _, suffix := range nameSuffixes {
		if strings.HasSuffix(normalized, suffix) {
			normalized = strings.TrimSuffix(normalized, suffix)
			break
		}
	}

	return strings.Join(strings.Fields(normalized), " ")
}
