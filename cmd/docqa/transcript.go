package main

import (
	"fmt"
	"path"
	"strings"
	"time"
)

type turn struct {
	Question string
	Answer   string
	Sources  []string
}

// uniqueBasenames keeps the first occurrence of each file name, in order.
func uniqueBasenames(sources []string) []string {
	seen := make(map[string]bool, len(sources))
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		name := path.Base(strings.ReplaceAll(s, "\\", "/"))
		if s == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func renderTranscript(turns []turn, at time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Chat history\n\n_Exported %s_\n", at.Format(time.RFC1123))
	for _, t := range turns {
		fmt.Fprintf(&sb, "\n## You\n\n%s\n\n## Assistant\n\n%s\n", t.Question, t.Answer)
		if len(t.Sources) > 0 {
			sb.WriteString("\n**Sources:**\n\n")
			for _, s := range t.Sources {
				fmt.Fprintf(&sb, "- %s\n", s)
			}
		}
	}
	return sb.String()
}
