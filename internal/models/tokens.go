package models

// EstimateTokens approximates the token count of content as ceil(len/4).
// This is a deterministic stand-in for a real tokenizer; both stores must
// record the identical value for a turn, so this is the only place it is
// computed.
func EstimateTokens(content string) int {
	return (len(content) + 3) / 4
}
