package moderation

import (
	"bufio"
	"bytes"
	"embed"
	"io/fs"
	"strings"
)

//go:embed words/*.txt
var wordsFS embed.FS

// LoadEmbedded reads the built-in dictionaries, one word per line,
// blank lines and #-comments skipped. Each file under words/ is one
// language list.
func LoadEmbedded() ([]string, error) {
	entries, err := fs.ReadDir(wordsFS, "words")
	if err != nil {
		return nil, err
	}

	unique := make(map[string]struct{})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := wordsFS.ReadFile("words/" + entry.Name())
		if err != nil {
			return nil, err
		}
		// scanner handles \n and \r\n line endings alike
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			unique[strings.ToLower(line)] = struct{}{}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	words := make([]string, 0, len(unique))
	for word := range unique {
		words = append(words, word)
	}
	return words, nil
}
