package export

import (
	"fmt"
	"io"
	"strings"
)

// MarkdownExporter renders a readable transcript.
type MarkdownExporter struct{}

func (e *MarkdownExporter) Export(view *View, w io.Writer) error {
	sess := view.Session

	title := sess.Title
	if title == "" {
		title = "Session " + sess.ID
	}
	_, _ = fmt.Fprintf(w, "# %s\n\n", title)
	_, _ = fmt.Fprintf(w, "**Provider:** %s  \n", sess.Provider)
	if sess.Model != "" {
		_, _ = fmt.Fprintf(w, "**Model:** %s  \n", sess.Model)
	}
	_, _ = fmt.Fprintf(w, "**Branch:** %s  \n", sess.CurrentBranch)
	_, _ = fmt.Fprintf(w, "**Messages:** %d\n\n", len(view.Messages))

	if len(view.Branches) > 1 {
		_, _ = fmt.Fprintf(w, "**Branches:** %s\n\n", strings.Join(view.Branches, ", "))
	}

	_, _ = fmt.Fprintf(w, "---\n\n")

	for i, msg := range view.Messages {
		stamp := ""
		if !msg.CreatedAt.IsZero() {
			stamp = fmt.Sprintf(" (%s)", msg.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		_, _ = fmt.Fprintf(w, "**%s:**%s\n\n%s\n\n", msg.Role, stamp, escapeMarkdown(msg.Content))

		if i < len(view.Messages)-1 {
			_, _ = fmt.Fprintf(w, "---\n\n")
		}
	}
	return nil
}

// escapeMarkdown neutralizes emphasis markers outside code blocks so
// message content cannot restyle the transcript.
func escapeMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	result := make([]string, 0, len(lines))
	inCodeBlock := false

	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "```"):
			inCodeBlock = !inCodeBlock
		case !inCodeBlock:
			line = strings.ReplaceAll(line, "**", "\\*\\*")
			line = strings.ReplaceAll(line, "__", "\\_\\_")
		}
		result = append(result, line)
	}
	return strings.Join(result, "\n")
}

func (e *MarkdownExporter) Extension() string {
	return "md"
}
