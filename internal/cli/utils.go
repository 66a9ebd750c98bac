// Package cli renders yomu results for the command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/search"
	"github.com/hyperjump/yomu/pkg/utils"
)

// SearchOutputFormat is the format for search result output.
type SearchOutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText SearchOutputFormat = "text"
	// OutputCompact prints one tab-separated line per result.
	OutputCompact SearchOutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON SearchOutputFormat = "json"
)

const (
	textSnippetLen    = 300
	compactSnippetLen = 80
)

// ParseOutputFormat returns the format named by s. An empty string means OutputText.
func ParseOutputFormat(s string) (SearchOutputFormat, error) {
	switch f := SearchOutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", OutputText:
		return OutputText, nil
	case OutputCompact, OutputJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (use text, compact or json)", s)
	}
}

// WriteSearchResults writes search results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format SearchOutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	case OutputCompact:
		for _, result := range response.Results {
			if _, err := fmt.Fprintf(w, "%d\t%.4f\t%s#%d\t%s\t%s\n",
				result.Rank, result.Similarity, result.DocumentID, result.ChunkIndex,
				result.DocumentTitle, utils.Truncate(oneLine(result.ChunkText), compactSnippetLen)); err != nil {
				return err
			}
		}
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d results in %dms (%d chunks scored, %s weighting)\n\n",
		len(response.Results), response.QueryTime, response.Total, response.Weighting)
	for _, result := range response.Results {
		writeOneResult(w, result, response.Query)
	}
}

func writeOneResult(w io.Writer, result *models.ChunkResult, query string) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Rank: %d | Similarity: %.4f\n", result.Rank, result.Similarity)
	if result.DocumentTitle != "" {
		fmt.Fprintf(w, "Title: %s\n", result.DocumentTitle)
	}
	fmt.Fprintf(w, "Document: %s (chunk %d)\n", result.DocumentID, result.ChunkIndex)
	fmt.Fprintf(w, "\n%s\n", search.Highlight(result.ChunkText, query, textSnippetLen))
	fmt.Fprintln(w)
}

// WriteStatus prints the counts returned by the status endpoint or computed locally.
func WriteStatus(w io.Writer, documents, chunks, diskBytes int64) {
	fmt.Fprintf(w, "Documents: %d\n", documents)
	fmt.Fprintf(w, "Chunks:    %d\n", chunks)
	if diskBytes >= 0 {
		fmt.Fprintf(w, "Disk:      %s\n", FormatBytes(diskBytes))
	}
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
