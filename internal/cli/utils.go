// Package cli provides output formatting for the tanya command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/internal/rag"
	"github.com/hyperjump/tanya/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text", "json" or "" (text).
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (supported: text, json)", s)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

const rule = "─────────────────────────────────────────────────────────"

// WriteAnswer writes a chat answer to w in the given format.
func WriteAnswer(w io.Writer, resp *models.ChatResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "\n%s\n\n", resp.Response)
	switch resp.Source {
	case models.ContextIndex:
		fmt.Fprintf(w, "(answered from %d indexed fragments)\n", len(resp.Context))
	case models.ContextPage, models.ContextSite:
		fmt.Fprintf(w, "(answered from %s)\n", resp.Source)
		writePages(w, resp.Pages)
	default:
		fmt.Fprintln(w, "(answered without context)")
	}
	return nil
}

// WriteSearchResults writes retrieval results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d fragments in %dms\n\n", len(response.Results), response.QueryTime)
	for i, r := range response.Results {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "Rank: %d | Position: %d | Distance: %.4f\n", i+1, r.Position, r.Distance)
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(r.Text, 200))
	}
	return nil
}

// WriteIngestResult writes the outcome of an ingestion to w in the given format.
func WriteIngestResult(w io.Writer, res *models.IngestResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	locator := ""
	if res.Source != nil {
		locator = res.Source.Locator
	}
	if res.Skipped {
		fmt.Fprintf(w, "Already ingested: %s\n", locator)
	} else {
		fmt.Fprintf(w, "Ingested %s: %d chunks\n", locator, res.Chunks)
	}
	writePages(w, res.Pages)
	return nil
}

func writePages(w io.Writer, pages []models.PageStatus) {
	for _, p := range pages {
		if p.Error != "" {
			fmt.Fprintf(w, "  ✗ %s: %s\n", p.URL, p.Error)
			continue
		}
		fmt.Fprintf(w, "  ✓ %s (%d chars)\n", p.URL, p.Chars)
	}
}

// WriteStatus writes engine status to w in the given format.
func WriteStatus(w io.Writer, st *rag.Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "Sources:          %d\n", st.Sources)
	fmt.Fprintf(w, "Chunks:           %d\n", st.Chunks)
	fmt.Fprintf(w, "Vector index:     %d entries (%s, %d dims)\n", st.IndexSize, st.IndexType, st.Dimensions)
	fmt.Fprintf(w, "Chunking:         max %d tokens, overlap %d\n", st.ChunkMaxTokens, st.ChunkOverlap)
	fmt.Fprintf(w, "Top-k:            %d\n", st.TopK)
	fmt.Fprintf(w, "Disk usage:       %s\n", FormatBytes(st.DiskUsageBytes))
	for _, u := range st.DiskUsage {
		fmt.Fprintf(w, "  %-10s %s\n", FormatBytes(u.Bytes), u.Path)
	}
	if st.DatabasePath != "" {
		fmt.Fprintf(w, "Database:         %s\n", st.DatabasePath)
	}
	if st.VectorIndexPath != "" {
		fmt.Fprintf(w, "Index snapshot:   %s\n", st.VectorIndexPath)
	}
	return nil
}

// WriteSources writes a ledger listing to w in the given format.
func WriteSources(w io.Writer, sources []*models.Source, format OutputFormat) error {
	if format == OutputJSON {
		if sources == nil {
			sources = []*models.Source{}
		}
		return writeJSON(w, sources)
	}
	if len(sources) == 0 {
		fmt.Fprintln(w, "No sources ingested.")
		return nil
	}
	for _, src := range sources {
		label := src.Locator
		if src.Title != "" {
			label = TruncateWords(src.Title, 8)
		}
		fmt.Fprintf(w, "%s  %-4s  %4d chunks @%-6d  %s\n",
			src.CreatedAt.Local().Format("2006-01-02 15:04"), src.Kind, src.ChunkCount, src.FirstPosition, label)
		fmt.Fprintf(w, "    id: %s\n", src.ID)
	}
	return nil
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

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
