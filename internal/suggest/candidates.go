package suggest

import (
	"sort"
	"strings"

	"github.com/edgard/nexa/internal/config"
)

// Candidates orders the models to try. With a successful listing the order is
// the preferred model, the ranked fallbacks, the remaining models of the
// provider family, then every other model; only available models are kept.
// Without a listing the order is preferred (or the first static model)
// followed by the static models. limit > 0 caps the result.
func Candidates(preferred string, ranked, static []string, family string, available []string, limit int) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(m string) {
		if m == "" || seen[m] {
			return
		}
		seen[m] = true
		out = append(out, m)
	}

	if len(available) == 0 {
		if preferred == "" && len(static) > 0 {
			preferred = static[0]
		}
		add(preferred)
		for _, m := range static {
			add(m)
		}
		return capped(out, limit)
	}

	avail := make(map[string]bool, len(available))
	for _, m := range available {
		avail[m] = true
	}

	for _, m := range append([]string{preferred}, ranked...) {
		if avail[m] {
			add(m)
		}
	}

	rest := append([]string(nil), available...)
	sort.Strings(rest)
	for _, m := range rest {
		if family != "" && strings.HasPrefix(m, family) {
			add(m)
		}
	}
	for _, m := range rest {
		add(m)
	}

	return capped(out, limit)
}

func capped(models []string, limit int) []string {
	if limit > 0 && len(models) > limit {
		return models[:limit]
	}
	return models
}

// ParseLines splits model output into trimmed, non-empty lines.
func ParseLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// fallbackModels returns the ranked and static model lists. Configured
// fallbacks serve both; otherwise the provider's defaults apply.
func fallbackModels(cfg config.AIConfig) (ranked, static []string) {
	if len(cfg.Fallbacks) > 0 {
		return cfg.Fallbacks, cfg.Fallbacks
	}
	provider := cfg.Provider
	if _, ok := config.DefaultFallbackModels[provider]; !ok {
		provider = "openai"
	}
	return config.DefaultFallbackModels[provider], config.DefaultStaticModels[provider]
}
