package bot

// SplitMessage splits text into ordered chunks of at most limit runes.
// Concatenating the chunks reproduces the input exactly. Splitting counts
// runes, not bytes, so a chunk never ends mid-codepoint.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || text == "" {
		return []string{text}
	}

	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	chunks := make([]string, 0, (len(runes)+limit-1)/limit)
	for start := 0; start < len(runes); start += limit {
		end := start + limit
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
