package extractor

import (
	"strings"
	"sync"

	"github.com/pemistahl/lingua-go"
)

// LanguageDetector reports the ISO 639-1 code of a text's language, or ""
// when it cannot tell.
type LanguageDetector interface {
	Detect(text string) string
}

const (
	minLanguageText = 20
	maxLanguageText = 2000
)

var languages = []lingua.Language{
	lingua.English, lingua.German, lingua.French, lingua.Spanish, lingua.Portuguese,
	lingua.Italian, lingua.Dutch, lingua.Polish, lingua.Russian, lingua.Ukrainian,
	lingua.Swedish, lingua.Danish, lingua.Turkish, lingua.Japanese, lingua.Chinese,
	lingua.Korean, lingua.Arabic, lingua.Hindi, lingua.Indonesian, lingua.Vietnamese,
}

// LinguaDetector detects languages with lingua. The model is built on first
// use.
type LinguaDetector struct {
	once     sync.Once
	detector lingua.LanguageDetector
}

func NewLinguaDetector() *LinguaDetector { return &LinguaDetector{} }

func (l *LinguaDetector) Detect(text string) string {
	if len(text) < minLanguageText {
		return ""
	}
	if len(text) > maxLanguageText {
		text = Truncate(text, maxLanguageText)
	}
	l.once.Do(func() {
		l.detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(languages...).
			WithLowAccuracyMode().
			Build()
	})
	lang, ok := l.detector.DetectLanguageOf(text)
	if !ok {
		return ""
	}
	return strings.ToLower(lang.IsoCode639_1().String())
}
