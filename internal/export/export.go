// Package export writes the harvested bookmark set to CSV and/or JSONL
// files. Both formats carry the same columns; CSV flattens multi-value
// fields with a " | " separator while JSONL keeps them as arrays.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/magpie-cli/internal/collector"
	"github.com/xkilldash9x/magpie-cli/internal/config"
)

// csvFields is the column set, in output order.
var csvFields = []string{
	"timestamp", "author_name", "author_handle",
	"text", "tweet_url", "image_urls",
	"article_url", "article_text", "urls_expanded",
}

const multiValueSep = " | "

// row is the JSONL shape of one record.
type row struct {
	Timestamp    string   `json:"timestamp"`
	AuthorName   string   `json:"author_name"`
	AuthorHandle string   `json:"author_handle"`
	Text         string   `json:"text"`
	TweetURL     string   `json:"tweet_url"`
	ImageURLs    []string `json:"image_urls"`
	ArticleURL   string   `json:"article_url"`
	ArticleText  string   `json:"article_text"`
	URLsExpanded []string `json:"urls_expanded"`
}

func newRow(rec *collector.BookmarkRecord) row {
	var ts string
	if rec.Timestamp != nil {
		ts = rec.Timestamp.UTC().Format(time.RFC3339)
	}
	links := rec.ResolvedLinks
	if links == nil {
		links = rec.RawLinks
	}
	return row{
		Timestamp:    ts,
		AuthorName:   rec.AuthorName,
		AuthorHandle: rec.AuthorHandle,
		Text:         rec.Text,
		TweetURL:     rec.Permalink,
		ImageURLs:    rec.ImageRefs,
		ArticleURL:   rec.ArticleRef,
		ArticleText:  rec.ArticleText,
		URLsExpanded: links,
	}
}

func (r row) csvRecord() []string {
	return []string{
		r.Timestamp, r.AuthorName, r.AuthorHandle,
		r.Text, r.TweetURL, strings.Join(r.ImageURLs, multiValueSep),
		r.ArticleURL, r.ArticleText, strings.Join(r.URLsExpanded, multiValueSep),
	}
}

// Write emits the records in the configured format(s) and returns the paths
// of the files it created. The stem has any .csv/.jsonl suffix stripped
// before the format extensions are applied.
func Write(records []*collector.BookmarkRecord, cfg config.ExportConfig, logger *zap.Logger) ([]string, error) {
	stem := strings.TrimSuffix(strings.TrimSuffix(cfg.Stem, ".jsonl"), ".csv")
	if stem == "" {
		stem = "bookmarks"
	}

	rows := make([]row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, newRow(rec))
	}

	var written []string
	if cfg.Format == "csv" || cfg.Format == "both" {
		path := stem + ".csv"
		if err := writeFile(path, func(w io.Writer) error { return writeCSV(w, rows) }); err != nil {
			return written, err
		}
		logger.Info("Saved export", zap.String("path", path), zap.Int("records", len(rows)))
		written = append(written, path)
	}
	if cfg.Format == "jsonl" || cfg.Format == "both" {
		path := stem + ".jsonl"
		if err := writeFile(path, func(w io.Writer) error { return writeJSONL(w, rows) }); err != nil {
			return written, err
		}
		logger.Info("Saved export", zap.String("path", path), zap.Int("records", len(rows)))
		written = append(written, path)
	}
	if len(written) == 0 {
		return nil, fmt.Errorf("unsupported export format: %q", cfg.Format)
	}
	return written, nil
}

func writeFile(path string, fill func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", path, err)
	}
	if err := fill(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

func writeCSV(w io.Writer, rows []row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvFields); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.csvRecord()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSONL(w io.Writer, rows []row) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, r := range rows {
		// Encode keeps nil slices as null; normalize to empty arrays so
		// downstream consumers always see a list.
		if r.ImageURLs == nil {
			r.ImageURLs = []string{}
		}
		if r.URLsExpanded == nil {
			r.URLsExpanded = []string{}
		}
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
