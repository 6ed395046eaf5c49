package simplify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// DefaultDictionaryEndpoint is the free dictionaryapi.dev lookup base.
const DefaultDictionaryEndpoint = "https://api.dictionaryapi.dev/api/v2/entries/en"

const maxDefinitions = 2

type dictionaryEntry struct {
	Word     string `json:"word"`
	Meanings []struct {
		PartOfSpeech string `json:"partOfSpeech"`
		Definitions  []struct {
			Definition string `json:"definition"`
		} `json:"definitions"`
	} `json:"meanings"`
}

// lookupDefinition returns a short formatted definition, or "" when the
// dictionary has nothing usable for the word.
func (r *Requester) lookupDefinition(ctx context.Context, word string) (string, error) {
	if r.dictionary == "" {
		return "", nil
	}
	endpoint := strings.TrimRight(r.dictionary, "/") + "/" + url.PathEscape(strings.ToLower(word))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", fmt.Errorf("dictionary lookup failed: %s (%s)", resp.Status, strings.TrimSpace(string(body)))
	}

	var entries []dictionaryEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return "", fmt.Errorf("decode dictionary response: %w", err)
	}
	return formatDefinitions(entries), nil
}

func formatDefinitions(entries []dictionaryEntry) string {
	var lines []string
	for _, entry := range entries {
		for _, meaning := range entry.Meanings {
			for _, def := range meaning.Definitions {
				text := strings.TrimSpace(def.Definition)
				if text == "" {
					continue
				}
				if pos := strings.TrimSpace(meaning.PartOfSpeech); pos != "" {
					text = fmt.Sprintf("*%s*: %s", pos, text)
				}
				lines = append(lines, text)
				break
			}
			if len(lines) == maxDefinitions {
				return strings.Join(lines, "\n\n")
			}
		}
	}
	return strings.Join(lines, "\n\n")
}
