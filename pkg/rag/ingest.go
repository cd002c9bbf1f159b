package rag

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// IngestDir indexes every .txt and .md file under dir, one passage per blank
// line separated paragraph block. Returns the number of passages indexed.
func (s *Store) IngestDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, errors.Wrap(err, "read docs dir")
	}
	total := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".txt" && ext != ".md" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return total, errors.Wrapf(err, "read %s", entry.Name())
		}
		passages := SplitPassages(string(data))
		for i, passage := range passages {
			if err := s.Ingest(ctx, PassageID(entry.Name(), i), passage, map[string]string{
				"source": entry.Name(),
			}); err != nil {
				return total, errors.Wrapf(err, "index %s", entry.Name())
			}
			total++
		}
		log.Info().Str("file", entry.Name()).Int("passages", len(passages)).Msg("indexed document")
	}
	return total, nil
}

// SplitPassages splits text into paragraph blocks separated by blank lines,
// dropping empty blocks.
func SplitPassages(text string) []string {
	blocks := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		b = strings.TrimSpace(b)
		if b != "" {
			out = append(out, b)
		}
	}
	return out
}
