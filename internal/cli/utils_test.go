package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/yomu/internal/models"
)

func sampleResponse() *models.SearchResponse {
	return &models.SearchResponse{
		Query:     "cats",
		QueryTime: 42,
		Total:     3,
		ClientID:  "acme",
		Weighting: "document",
		Results: []*models.ChunkResult{
			{Rank: 1, Similarity: 0.5, DocumentID: "doc-1", ChunkIndex: 0, DocumentTitle: "Pets", ChunkText: "Cats purr.\n\nThey sleep a lot."},
			{Rank: 2, Similarity: 0, DocumentID: "doc-2", ChunkIndex: 3, DocumentTitle: "Dogs", ChunkText: "Dogs bark."},
		},
	}
}

func TestWriteSearchResults_JSON(t *testing.T) {
	response := sampleResponse()
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, response, OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults(json): %v", err)
	}
	var decoded models.SearchResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Query != "cats" || decoded.QueryTime != 42 || decoded.ClientID != "acme" {
		t.Errorf("decoded header: %+v", decoded)
	}
	if len(decoded.Results) != 2 || decoded.Results[0].DocumentID != "doc-1" || decoded.Results[1].ChunkIndex != 3 {
		t.Errorf("decoded results: %+v", decoded.Results)
	}
}

func TestWriteSearchResults_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"Found 2 results in 42ms (3 chunks scored, document weighting)",
		"Rank: 1 | Similarity: 0.5000",
		"Title: Pets",
		"Document: doc-2 (chunk 3)",
		"Cats purr.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteSearchResults_Compact(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputCompact); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	if want := "1\t0.5000\tdoc-1#0\tPets\tCats purr. They sleep a lot."; lines[0] != want {
		t.Errorf("line 1 = %q, want %q", lines[0], want)
	}
}

func TestWriteSearchResults_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, &models.SearchResponse{}, OutputCompact); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("compact output for no results should be empty, got %q", buf.String())
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    SearchOutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"JSON", OutputJSON, false},
		{" compact ", OutputCompact, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1536, "1.5 KiB"},
		{1 << 20, "1.0 MiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.n); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestWriteStatus(t *testing.T) {
	var buf bytes.Buffer
	WriteStatus(&buf, 2, 5, -1)
	out := buf.String()
	if !strings.Contains(out, "Documents: 2") || !strings.Contains(out, "Chunks:    5") {
		t.Errorf("status output: %q", out)
	}
	if strings.Contains(out, "Disk") {
		t.Errorf("disk line should be omitted for negative size: %q", out)
	}
}
