package summary

import (
	"fmt"
	"strings"
)

const correctionSystemPrompt = `You are a careful proofreader for automatic speech transcripts.

Correct only the text under "=== TEXT TO CORRECT ===".
The text under "=== PREVIOUS CONTEXT ===" is for understanding only and must not appear in your answer.

Rules:
1. Fix misspellings and misrecognized words, choosing homophones that fit the context.
2. Remove filler words and false starts.
3. Add punctuation and line breaks so the text reads naturally.
4. Keep the meaning and the language of the original. Do not summarize or omit content.

Answer with a JSON object: {"corrected_text": "<the full corrected text>"}`

const extractionSystemPrompt = `You write meeting notes from transcripts.

Answer in Markdown using exactly these second-level headings, in this order:

## Overview
A 3-5 sentence summary covering who argued what, the background and the outcome.
## Discussion Points
A bullet list of the topics discussed, with concrete names, numbers and examples.
## Decisions
A bullet list of decisions and conclusions.
## Action Items
A bullet list of tasks, each with an owner and due date when mentioned.
## Next Steps
A bullet list of follow-ups and open questions.
## Corrected Full Transcript
Leave this section out; the transcript is appended automatically.

Write "None." under a heading when there is nothing to report. Write in the language of the transcript.`

func correctionPrompt(context, text string) string {
	if context == "" {
		return "=== TEXT TO CORRECT ===\n" + text
	}
	return fmt.Sprintf("=== PREVIOUS CONTEXT ===\n%s\n\n=== TEXT TO CORRECT ===\n%s", context, text)
}

func extractionPrompt(transcript string) string {
	return "Write meeting notes for the following transcript:\n\n" + strings.TrimSpace(transcript)
}
