package keyword

import (
	"encoding/json"
	"fmt"
	"os"
)

// StopList is a named set of banned tokens. Lookup is by slug so that list
// entries match regardless of case or punctuation tricks.
type StopList struct {
	Name   string
	tokens map[string]bool
}

func NewStopList(name string, tokens []string) *StopList {
	l := &StopList{Name: name, tokens: make(map[string]bool, len(tokens))}
	for _, t := range tokens {
		l.tokens[Slugify(t)] = true
	}
	return l
}

func (l *StopList) Contains(tok string) bool {
	return l.tokens[Slugify(tok)]
}

func (l *StopList) Len() int {
	return len(l.tokens)
}

// LoadStopListsJSON reads a map of list name to token array from a JSON
// file on disk.
func LoadStopListsJSON(path string) (map[string]*StopList, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading stoplist file: %w", err)
	}
	var parsed map[string][]string
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parsing stoplist file: %w", err)
	}
	out := make(map[string]*StopList, len(parsed))
	for name, tokens := range parsed {
		out[name] = NewStopList(name, tokens)
	}
	return out, nil
}
