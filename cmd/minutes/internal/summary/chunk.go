package summary

// Chunk is a slice of the transcript to correct plus the text before it,
// which is sent for context only.
type Chunk struct {
	Context string
	Text    string
}

// SplitChunks cuts text into chunks of at most size characters, each with
// up to contextSize preceding characters. Lengths count runes.
func SplitChunks(text string, size, contextSize int) []Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if size <= 0 {
		size = len(runes)
	}
	if contextSize < 0 {
		contextSize = 0
	}

	var out []Chunk
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		ctxStart := max(0, start-contextSize)
		out = append(out, Chunk{
			Context: string(runes[ctxStart:start]),
			Text:    string(runes[start:end]),
		})
	}
	return out
}
