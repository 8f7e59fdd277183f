// Package tokenizer normalises catalog and request text into terms.
// It lower-cases input, splits on non-alphanumeric boundaries, drops
// single-character fragments and removes stop-words.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Language selects the stop-word set a Normalizer removes.
type Language string

const (
	Russian Language = "russian"
	English Language = "english"
	All     Language = "all"
	None    Language = "none"
)

// Normalizer turns free text into a sequence of terms. It is immutable and
// safe for concurrent use.
type Normalizer struct {
	lang      Language
	stopWords map[string]struct{}
}

var defaultNormalizer = New(All)

// New returns a Normalizer removing the stop-words of lang. Unknown
// languages fall back to All.
func New(lang Language) *Normalizer {
	stop := make(map[string]struct{})
	switch lang {
	case None:
	case Russian:
		addWords(stop, russianStopWords)
	case English:
		addWords(stop, englishStopWords)
	default:
		lang = All
		addWords(stop, russianStopWords)
		addWords(stop, englishStopWords)
	}
	return &Normalizer{lang: lang, stopWords: stop}
}

// Language returns the stop-word set n removes.
func (n *Normalizer) Language() Language {
	return n.lang
}

func addWords(dst map[string]struct{}, words []string) {
	for _, w := range words {
		dst[w] = struct{}{}
	}
}

// Normalize splits text with the default normalizer.
func Normalize(text string) []string {
	return defaultNormalizer.Normalize(text)
}

// Normalize lower-cases text and returns its terms in order of appearance.
// Empty input yields no terms.
func (n *Normalizer) Normalize(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ToLower(text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	terms := make([]string, 0, len(words))
	for _, word := range words {
		if utf8.RuneCountInString(word) < 2 {
			continue
		}
		if n.IsStopWord(word) {
			continue
		}
		terms = append(terms, word)
	}
	return terms
}

// IsStopWord reports whether the lower-cased word is removed by n.
func (n *Normalizer) IsStopWord(word string) bool {
	_, ok := n.stopWords[word]
	return ok
}

var englishStopWords = []string{
	"a", "an", "and", "are", "as", "at",
	"be", "by", "for", "from", "has", "he",
	"in", "is", "it", "its", "of", "on",
	"or", "that", "the", "to", "was", "were",
	"will", "with", "this", "but", "they",
	"have", "had", "what", "when", "where",
	"who", "which", "their", "if", "each",
	"do", "not", "no", "so", "can",
}

var russianStopWords = []string{
	"и", "в", "во", "не", "что", "он", "на", "я", "с", "со", "как", "а",
	"то", "все", "она", "так", "его", "но", "да", "ты", "к", "у", "же",
	"вы", "за", "бы", "по", "только", "ее", "мне", "было", "вот", "от",
	"меня", "еще", "нет", "о", "из", "ему", "теперь", "когда", "даже",
	"ну", "вдруг", "ли", "если", "уже", "или", "ни", "быть", "был", "него",
	"до", "вас", "нибудь", "опять", "уж", "вам", "ведь", "там", "потом",
	"себя", "ничего", "ей", "может", "они", "тут", "где", "есть", "надо",
	"ней", "для", "мы", "тебя", "их", "чем", "была", "сам", "чтоб", "без",
	"будто", "чего", "раз", "тоже", "себе", "под", "будет", "ж", "тогда",
	"кто", "этот", "того", "потому", "этого", "какой", "совсем", "ним",
	"здесь", "этом", "один", "почти", "мой", "тем", "чтобы", "нее",
	"сейчас", "были", "куда", "зачем", "всех", "никогда", "можно", "при",
	"наконец", "два", "об", "другой", "хоть", "после", "над", "больше",
	"тот", "через", "эти", "нас", "про", "всего", "них", "какая", "много",
	"разве", "три", "эту", "моя", "впрочем", "хорошо", "свою", "этой",
	"перед", "иногда", "лучше", "чуть", "том", "нельзя", "такой", "им",
	"более", "всегда", "конечно", "всю", "между",
}
