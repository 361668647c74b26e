package analyze

import (
	"fmt"
	"strings"

	"github.com/rovda/clipd/internal/storage"
)

const summarySystemPrompt = `You summarize saved web content. Write 2-3 plain
sentences capturing what the content is and why someone saved it. No markdown,
no bullet points, no preamble.`

func summaryUserPrompt(title, content string) string {
	return fmt.Sprintf("Title: %s\n\nContent:\n%s", title, content)
}

func categorySystemPrompt(categories []storage.Category) string {
	var b strings.Builder
	b.WriteString("Classify saved web content into exactly one category and 2-4 short lowercase tags.\n")
	b.WriteString("Available categories:\n")
	for _, c := range categories {
		fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Description)
	}
	b.WriteString(`Respond with JSON only: {"category": "<name>", "tags": ["tag1", "tag2"]}`)
	return b.String()
}

func categoryUserPrompt(title, content string) string {
	return fmt.Sprintf("Title: %s\n\nContent:\n%s", title, content)
}

const scoresSystemPrompt = `You rate saved web content from its summary.
Quality: how substantive and well-made the content is, 1-10.
Actionability: how directly a reader can act on it, 1-10.
Respond with JSON only: {"quality": <int>, "actionability": <int>}`

func scoresUserPrompt(title, summary string) string {
	return fmt.Sprintf("Title: %s\n\nSummary:\n%s", title, summary)
}

const titleSystemPrompt = `You clean up titles of saved web pages. Produce one
human-readable title of at most 80 characters. Remove site-name prefixes and
suffixes, embedded URLs, and tracking junk. Respond with the title only, no
quotes.`

func titleUserPrompt(title, content string) string {
	snippet := content
	if len(snippet) > 500 {
		snippet = snippet[:500]
	}
	return fmt.Sprintf("Original title: %s\n\nPage content starts:\n%s", title, snippet)
}

const insightsSystemPrompt = `You extract insights from saved web content.
Produce 3-5 key takeaways (short, standalone statements) and 0-3 action items
(concrete things the reader could do). Respond with JSON only:
{"takeaways": ["..."], "action_items": ["..."]}`

func insightsUserPrompt(title, content string) string {
	return fmt.Sprintf("Title: %s\n\nContent:\n%s", title, content)
}
