package prompts

import (
	"sort"
	"strings"

	"github.com/jwebster45206/story-relay/pkg/chat"
)

const (
	loreHeader = "[LOREBOOK - Injected Knowledge]"
	loreFooter = "[END LOREBOOK]"
)

// InjectLore appends a lorebook block to the prompt. Pinned entries are
// listed first; otherwise the given order is kept. Entries with a blank key
// are skipped.
func InjectLore(prompt string, entries []chat.LoreEntry) string {
	lines := make([]chat.LoreEntry, 0, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e.Key) == "" {
			continue
		}
		lines = append(lines, e)
	}
	if len(lines) == 0 {
		return prompt
	}
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].Pinned && !lines[j].Pinned
	})

	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString("\n\n" + loreHeader + "\n")
	for _, e := range lines {
		sb.WriteString("- " + strings.TrimSpace(e.Key) + ": " + strings.TrimSpace(e.Value) + "\n")
	}
	sb.WriteString(loreFooter)
	return sb.String()
}
