package summary

import (
	"errors"
	"strings"
)

// ErrEmptyTranscript is returned when there is nothing to summarize.
var ErrEmptyTranscript = errors.New("transcript is empty")

// ErrCodeMalformedSection is the code reported for missing sections.
const ErrCodeMalformedSection = "MALFORMED_SECTION"

// MalformedSectionError lists the sections the backend omitted. It is
// recovered locally: the document still carries every section.
type MalformedSectionError struct {
	Missing []Key
}

func (e *MalformedSectionError) Error() string {
	names := make([]string, len(e.Missing))
	for i, k := range e.Missing {
		names[i] = k.Title()
	}
	return "[" + ErrCodeMalformedSection + "] backend output is missing sections: " + strings.Join(names, ", ")
}
