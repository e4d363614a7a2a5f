package util

import "strings"

func RemoveDuplicateStrings(strings []string, ignoreList []string) []string {
	presentStrings := make(map[string]bool)
	var list []string

	for _, ignoreString := range ignoreList {
		presentStrings[ignoreString] = true
	}

	for _, item := range strings {
		if _, value := presentStrings[item]; !value && item != "" {
			presentStrings[item] = true
			list = append(list, item)
		}
	}
	return list
}

// LowerAll returns a lowercased, whitespace trimmed copy of the list
func LowerAll(values []string) []string {
	lowered := make([]string, 0, len(values))

	for _, value := range values {
		lowered = append(lowered, strings.ToLower(strings.TrimSpace(value)))
	}

	return lowered
}
