// Package summary turns a finished transcript into structured meeting notes:
// an optional correction pass followed by one extraction request whose answer
// is normalized into a fixed set of sections.
package summary

import (
	"fmt"
	"strings"
	"time"
)

// Key identifies a section of the notes.
type Key string

const (
	KeyOverview         Key = "overview"
	KeyDiscussionPoints Key = "discussion_points"
	KeyDecisions        Key = "decisions"
	KeyActionItems      Key = "action_items"
	KeyNextSteps        Key = "next_steps"
	KeyTranscript       Key = "corrected_transcript"
)

// Keys lists every section in rendering order.
var Keys = []Key{KeyOverview, KeyDiscussionPoints, KeyDecisions, KeyActionItems, KeyNextSteps, KeyTranscript}

// generatedKeys are the sections the backend is expected to write.
var generatedKeys = Keys[:5]

// Title is the Markdown heading text of a section.
func (k Key) Title() string {
	switch k {
	case KeyOverview:
		return "Overview"
	case KeyDiscussionPoints:
		return "Discussion Points"
	case KeyDecisions:
		return "Decisions"
	case KeyActionItems:
		return "Action Items"
	case KeyNextSteps:
		return "Next Steps"
	case KeyTranscript:
		return "Corrected Full Transcript"
	}
	return string(k)
}

// isList reports whether the section renders as a bullet list.
func (k Key) isList() bool {
	switch k {
	case KeyDiscussionPoints, KeyDecisions, KeyActionItems, KeyNextSteps:
		return true
	}
	return false
}

// Placeholders rendered for sections without content.
const (
	NotAvailable = "_Not available._"
	None         = "_None._"
)

// Section is one part of the notes. A section the backend omitted is
// Missing; a section it wrote with nothing in it is present but empty.
type Section struct {
	Key     Key      `json:"key"`
	Body    string   `json:"body,omitempty"`
	Items   []string `json:"items,omitempty"`
	Missing bool     `json:"missing,omitempty"`
}

// Empty reports whether the section carries no content.
func (s *Section) Empty() bool {
	return strings.TrimSpace(s.Body) == "" && len(s.Items) == 0
}

// Document is the structured meeting notes. Every key in Keys is always present.
type Document struct {
	Sections  map[Key]*Section `json:"sections"`
	Model     string           `json:"model,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// NewDocument returns a document with every section marked missing.
func NewDocument() *Document {
	d := &Document{Sections: make(map[Key]*Section, len(Keys)), CreatedAt: time.Now()}
	for _, k := range Keys {
		d.Sections[k] = &Section{Key: k, Missing: true}
	}
	return d
}

// Section returns the section for k, creating a missing one if needed.
func (d *Document) Section(k Key) *Section {
	if d.Sections == nil {
		d.Sections = make(map[Key]*Section)
	}
	s, ok := d.Sections[k]
	if !ok {
		s = &Section{Key: k, Missing: true}
		d.Sections[k] = s
	}
	return s
}

// SetTranscript fills the transcript section.
func (d *Document) SetTranscript(text string) {
	s := d.Section(KeyTranscript)
	s.Body = strings.TrimSpace(text)
	s.Items = nil
	s.Missing = false
}

// Missing lists the generated sections the backend did not provide.
func (d *Document) Missing() []Key {
	var out []Key
	for _, k := range generatedKeys {
		if d.Section(k).Missing {
			out = append(out, k)
		}
	}
	return out
}

// Validate returns a *MalformedSectionError when generated sections are missing.
func (d *Document) Validate() error {
	if missing := d.Missing(); len(missing) > 0 {
		return &MalformedSectionError{Missing: missing}
	}
	return nil
}

// Markdown renders the notes with fixed headings in fixed order.
func (d *Document) Markdown() string {
	var b strings.Builder
	b.WriteString("# Meeting Notes\n")
	for _, k := range Keys {
		s := d.Section(k)
		fmt.Fprintf(&b, "\n## %s\n", k.Title())
		switch {
		case s.Missing:
			b.WriteString(NotAvailable + "\n")
		case s.Empty():
			b.WriteString(None + "\n")
		case k.isList():
			for _, item := range s.Items {
				if k == KeyActionItems {
					b.WriteString("- [ ] ")
				} else {
					b.WriteString("- ")
				}
				b.WriteString(singleLine(item) + "\n")
			}
			if body := strings.TrimSpace(s.Body); body != "" && len(s.Items) == 0 {
				b.WriteString(body + "\n")
			}
		default:
			b.WriteString(strings.TrimSpace(s.Body) + "\n")
		}
	}
	return b.String()
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
