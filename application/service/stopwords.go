package service

// stopWords is the standard English stop-word list minus words that carry
// sentiment or quantity signal in survey answers (not, no, but, however,
// very, too, more, less, only, just, also, well, much, many, most, all).
var stopWords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"i", "me", "my", "myself", "we", "our", "ours", "ourselves",
		"you", "your", "yours", "yourself", "yourselves",
		"he", "him", "his", "himself", "she", "her", "hers", "herself",
		"it", "its", "itself", "they", "them", "their", "theirs", "themselves",
		"what", "which", "who", "whom", "this", "that", "these", "those",
		"am", "is", "are", "was", "were", "be", "been", "being",
		"have", "has", "had", "having", "do", "does", "did", "doing",
		"a", "an", "the", "and", "if", "or", "because", "as", "until", "while",
		"of", "at", "by", "for", "with", "about", "against", "between",
		"into", "through", "during", "before", "after", "above", "below",
		"to", "from", "up", "down", "in", "out", "on", "off", "over", "under",
		"again", "further", "then", "once", "here", "there",
		"when", "where", "why", "how",
		"any", "both", "each", "few", "other", "some", "such",
		"nor", "own", "same", "so", "than",
		"s", "t", "can", "will", "don", "should", "now",
		"d", "ll", "m", "o", "re", "ve", "y",
		"ain", "aren", "couldn", "didn", "doesn", "hadn", "hasn", "haven",
		"isn", "ma", "mightn", "mustn", "needn", "shan", "shouldn",
		"wasn", "weren", "won", "wouldn",
	} {
		stopWords[w] = struct{}{}
	}
}

// isStopWord reports whether the lowercase token is a stop word.
func isStopWord(w string) bool {
	_, ok := stopWords[w]
	return ok
}
