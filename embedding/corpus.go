package embedding

import (
	"os"
	"strings"
)

// SeedCorpus is always part of the fit corpus so a statistical strategy
// has a vocabulary even before any document is configured.
var SeedCorpus = []string{
	"This is sample text for fitting the vectorizer",
	"Machine learning and artificial intelligence",
	"Document processing and text analysis",
	"Quarterly revenue, profit and growth figures are reported in financial tables",
	"Figures, charts and scanned images contain text extracted with OCR",
}

// LoadCorpus reads representative texts from files. Paragraphs separated
// by blank lines become individual corpus entries.
func LoadCorpus(paths ...string) ([]string, error) {
	var corpus []string
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		for _, paragraph := range strings.Split(string(data), "\n\n") {
			paragraph = strings.TrimSpace(paragraph)
			if paragraph == "" {
				continue
			}

			corpus = append(corpus, paragraph)
		}
	}

	return append(corpus, SeedCorpus...), nil
}
