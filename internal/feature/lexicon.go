package feature

import (
	"slices"
	"strings"
	"unicode"
)

// NegativeWords is the negative-affect word list used for word-frequency features.
var NegativeWords = map[string]struct{}{
	"sad": {}, "depressed": {}, "anxious": {}, "worried": {}, "stressed": {}, "overwhelmed": {},
	"hopeless": {}, "helpless": {}, "alone": {}, "lonely": {}, "tired": {}, "exhausted": {},
	"angry": {}, "frustrated": {}, "scared": {}, "afraid": {}, "terrible": {}, "awful": {},
	"bad": {}, "worse": {}, "worst": {}, "hate": {}, "cry": {}, "crying": {}, "pain": {}, "hurt": {},
}

// HelpSeekingPhrases mark a request for help or advice.
var HelpSeekingPhrases = []string{
	"help", "need help", "what should i do", "i don't know",
	"advice", "suggest", "recommendation", "what can i",
	"how do i", "struggling", "can't cope", "too much",
}

// DespairPhrases are expressions of despair; each occurrence counts.
var DespairPhrases = []string{
	"hopeless", "pointless", "worthless", "useless", "give up",
	"no point", "why bother", "nothing matters", "end it",
	"can't go on", "no future", "no hope", "meaningless",
}

// IsolationPhrases are expressions of loneliness or withdrawal.
var IsolationPhrases = []string{
	"alone", "lonely", "isolated", "no one", "nobody",
	"by myself", "no friends", "abandoned", "left out",
	"disconnected", "withdrawn", "solitary",
}

// CrisisPhrases are high-severity expressions weighted far above despair.
var CrisisPhrases = []string{
	"suicide", "suicidal", "kill myself", "end my life", "want to die",
	"better off dead", "self harm", "self-harm", "hurt myself", "cut myself",
}

// PositivePhrases soften a single-message real-time score.
var PositivePhrases = []string{
	"great day", "feeling good", "feeling better", "happy", "hopeful",
	"grateful", "excited", "proud", "calm", "relaxed", "better today", "good day",
}

// negators cancel a positive phrase within the two words before it.
var negators = map[string]struct{}{
	"not": {}, "never": {}, "no": {}, "nor": {}, "hardly": {}, "barely": {}, "without": {},
}

func isNegator(w string) bool {
	if _, ok := negators[w]; ok {
		return true
	}
	return strings.HasSuffix(w, "n't")
}

// FirstPositive returns the first positive phrase, in list order, that appears
// in text as whole words and is not negated. "unhappy" does not match "happy",
// and "not hopeful" does not match "hopeful".
func FirstPositive(text string) (string, bool) {
	words := Words(text)
	for _, p := range PositivePhrases {
		pw := strings.Fields(p)
		for i := 0; i+len(pw) <= len(words); i++ {
			if slices.Equal(words[i:i+len(pw)], pw) && !negatedAt(words, i) {
				return p, true
			}
		}
	}
	return "", false
}

func negatedAt(words []string, i int) bool {
	for j := max(0, i-2); j < i; j++ {
		if isNegator(words[j]) {
			return true
		}
	}
	return false
}

// normalize lowercases text and folds curly apostrophes so "can’t" matches "can't".
func normalize(text string) string {
	return strings.ToLower(strings.ReplaceAll(text, "’", "'"))
}

// CountOccurrences sums, over phrases, whether each phrase appears in text.
// A phrase counts at most once per text.
func CountOccurrences(text string, phrases []string) int {
	t := normalize(text)
	n := 0
	for _, p := range phrases {
		if strings.Contains(t, p) {
			n++
		}
	}
	return n
}

// ContainsAny reports whether text contains any of phrases.
func ContainsAny(text string, phrases []string) bool {
	t := normalize(text)
	for _, p := range phrases {
		if strings.Contains(t, p) {
			return true
		}
	}
	return false
}

// FirstMatch returns the first phrase, in list order, contained in text.
func FirstMatch(text string, phrases []string) (string, bool) {
	t := normalize(text)
	for _, p := range phrases {
		if strings.Contains(t, p) {
			return p, true
		}
	}
	return "", false
}

// Words splits text on whitespace, lowercases each word and trims surrounding
// punctuation. Empty tokens are dropped.
func Words(text string) []string {
	raw := strings.Fields(normalize(text))
	out := raw[:0]
	for _, w := range raw {
		w = strings.TrimFunc(w, func(r rune) bool {
			return unicode.IsPunct(r) && r != '\''
		})
		w = strings.Trim(w, "'")
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}
