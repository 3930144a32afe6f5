package rules

import (
	"slices"
	"strings"

	"github.com/allsafeASM/rulegen/internal/models"
)

// BuildRule turns the invalid suffixes of one owner into a single pattern
// matching any string that ends with one of them. Only '.' is escaped.
// Suffixes are sorted so equal sets always produce equal patterns.
func BuildRule(ownerID string, suffixes []string) models.Rule {
	escaped := make([]string, 0, len(suffixes))
	for _, suffix := range slices.Sorted(slices.Values(suffixes)) {
		escaped = append(escaped, strings.ReplaceAll(suffix, ".", `\.`))
	}

	return models.Rule{
		OwnerID: ownerID,
		Pattern: ".*(" + strings.Join(escaped, "|") + ")$",
	}
}
