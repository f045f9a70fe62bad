package ui

import (
	"fmt"
	"strings"

	"github.com/cipherstudio/cipherstudio/internal/studio/tree"
)

// RenderTree draws s as an indented tree, siblings in name order.
func RenderTree(title string, s *tree.Snapshot) string {
	var b strings.Builder
	b.WriteString(RenderAccent(title))
	b.WriteByte('\n')
	if s.Len() == 0 {
		b.WriteString(RenderMuted("  (empty)"))
		b.WriteByte('\n')
		return b.String()
	}
	renderLevel(&b, s, tree.Root, "")
	return b.String()
}

func renderLevel(b *strings.Builder, s *tree.Snapshot, parentID, prefix string) {
	kids, err := s.ChildrenOf(parentID)
	if err != nil {
		return
	}
	for i, n := range kids {
		branch, next := "├── ", "│   "
		if i == len(kids)-1 {
			branch, next = "└── ", "    "
		}
		b.WriteString(prefix)
		b.WriteString(branch)
		if n.IsFolder() {
			b.WriteString(folderStyle.Render(n.Name + "/"))
			b.WriteByte('\n')
			renderLevel(b, s, n.ID, prefix+next)
			continue
		}
		b.WriteString(n.Name)
		b.WriteString(RenderMuted(fmt.Sprintf("  %s", FormatSize(len(n.Content)))))
		b.WriteByte('\n')
	}
}

// FormatSize renders a byte count as B, KB or MB.
func FormatSize(n int) string {
	switch {
	case n > 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	case n > 1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%d B", n)
	}
}
