package engine

import (
	"fmt"
	"math/rand"
	"strings"
)

// sanitizeName trims, clamps to maxNameLen, and replaces an empty result
// with a randomized fallback (spec.md §4.1).
func sanitizeName(name string) string {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) > maxNameLen {
		trimmed = trimmed[:maxNameLen]
	}
	if trimmed == "" {
		return fmt.Sprintf("Player-%04d", rand.Intn(10000))
	}
	return trimmed
}

// nextColor assigns the next palette entry round-robin based on the
// number of non-spectator players already present.
func nextColor(nonSpectatorCount int) string {
	return colorPalette[nonSpectatorCount%len(colorPalette)]
}
