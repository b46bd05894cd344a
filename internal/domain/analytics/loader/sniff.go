package loader

import "strings"

// candidateDelimiters are counted in the first non-empty line; the one with
// the highest count wins.
var candidateDelimiters = []rune{',', ';', '\t', '|'}

// sniffDelimiter counts each candidate separator in line and returns the
// most frequent one. A tie goes to the candidate listed first in
// candidateDelimiters, so comma wins when none are present.
func sniffDelimiter(line string) rune {
	best := ','
	bestCount := -1
	for _, d := range candidateDelimiters {
		count := strings.Count(line, string(d))
		if count > bestCount {
			bestCount = count
			best = d
		}
	}
	return best
}

// firstNonEmptyLine returns the first line of text with non-whitespace
// content, used as the header line for delimited-text inputs.
func firstNonEmptyLine(text string) (string, int) {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		if strings.TrimSpace(strings.TrimSuffix(l, "\r")) != "" {
			return strings.TrimSuffix(l, "\r"), i
		}
	}
	return "", -1
}
