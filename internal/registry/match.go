package registry

// Score counts how many of required appear in capabilities.
// Duplicate entries in required are counted once.
func Score(required, capabilities []string) int {
	if len(required) == 0 || len(capabilities) == 0 {
		return 0
	}
	have := make(map[string]struct{}, len(capabilities))
	for _, c := range capabilities {
		have[c] = struct{}{}
	}

	seen := make(map[string]struct{}, len(required))
	score := 0
	for _, r := range required {
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		if _, ok := have[r]; ok {
			score++
		}
	}
	return score
}
