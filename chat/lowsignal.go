package chat

import "strings"

// lowSignalTokens is the fixed vocabulary of acknowledgement/greeting/
// thanks/farewell words that make a message low-signal (spec §4.5 step 3).
var lowSignalTokens = map[string]bool{
	"hi": true, "hello": true, "hey": true, "yo": true,
	"thanks": true, "thank": true, "you": true, "ty": true, "thx": true,
	"ok": true, "okay": true, "k": true, "sure": true, "got": true, "it": true,
	"bye": true, "goodbye": true, "later": true, "cool": true, "great": true,
	"awesome": true, "nice": true, "perfect": true, "yes": true, "no": true,
	"yep": true, "nope": true, "alright": true,
}

// maxLowSignalWords bounds how long a message can be and still qualify
// (spec §4.5 step 3 "short").
const maxLowSignalWords = 6

// lowSignalResponse is the canned reply emitted for a low-signal message.
const lowSignalResponse = "You're welcome! Let me know if you'd like to dig into the documents further."

// IsLowSignal reports whether message is an acknowledgement/greeting/
// thanks/farewell: short, no digits, no question mark, every token drawn
// from the fixed low-signal vocabulary (spec §4.5 step 3).
func IsLowSignal(message string) bool {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" || strings.Contains(trimmed, "?") {
		return false
	}
	words := strings.Fields(trimmed)
	if len(words) == 0 || len(words) > maxLowSignalWords {
		return false
	}
	for _, w := range words {
		cleaned := strings.ToLower(strings.Trim(w, ".,!"))
		if cleaned == "" {
			continue
		}
		if strings.ContainsAny(cleaned, "0123456789") {
			return false
		}
		if !lowSignalTokens[cleaned] {
			return false
		}
	}
	return true
}
