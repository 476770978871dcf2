package deezer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"tunetag/internal/metadata"
)

func santeriaServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "tunetag/1.0" {
			t.Errorf("unexpected User-Agent: %s", r.Header.Get("User-Agent"))
		}
		json.NewEncoder(w).Encode(searchResponse{
			Data: []trackItem{
				{
					ID:         1,
					Title:      "Santeria",
					TitleShort: "Santeria",
					ISRC:       "ITXXX1700001",
					Duration:   240,
					BPM:        92.5,
					Artist:     artist{ID: 100, Name: "Marracash"},
					Album: albumInfo{
						ID:       200,
						Title:    "Santeria",
						CoverBig: "https://example.com/cover-big.jpg",
						CoverXL:  "https://example.com/cover-xl.jpg",
					},
				},
			},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSearch(t *testing.T) {
	c := New("")
	c.apiURL = santeriaServer(t).URL

	results, err := c.Search(context.Background(), metadata.Query{
		Title:  "Santeria",
		Artist: "Marracash",
		Album:  "Santeria",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	r := results[0]
	if r.Title != "Santeria" {
		t.Errorf("Title = %q, want %q", r.Title, "Santeria")
	}
	if r.Artist != "Marracash" {
		t.Errorf("Artist = %q, want %q", r.Artist, "Marracash")
	}
	if r.Album != "Santeria" {
		t.Errorf("Album = %q, want %q", r.Album, "Santeria")
	}
	if r.ISRC != "ITXXX1700001" {
		t.Errorf("ISRC = %q, want %q", r.ISRC, "ITXXX1700001")
	}
	if r.CoverURL != "https://example.com/cover-xl.jpg" {
		t.Errorf("CoverURL = %q, want cover-xl", r.CoverURL)
	}
	if r.Duration != 240 {
		t.Errorf("Duration = %d, want 240", r.Duration)
	}
	if r.BPM != 92 {
		t.Errorf("BPM = %d, want 92", r.BPM)
	}
}

func TestEnrich(t *testing.T) {
	c := New("")
	c.apiURL = santeriaServer(t).URL

	rec, err := c.Enrich(context.Background(), metadata.Query{Title: "Santeria", Artist: "Marracash"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Album != "Santeria" {
		t.Errorf("Album = %q, want Santeria", rec.Album)
	}
}

func TestEnrichIgnoresUnrelatedResults(t *testing.T) {
	c := New("")
	c.apiURL = santeriaServer(t).URL

	rec, err := c.Enrich(context.Background(), metadata.Query{Title: "Completely Different", Artist: "Someone"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rec.IsEmpty() {
		t.Errorf("expected empty record, got %+v", rec)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	c := New("")
	results, err := c.Search(context.Background(), metadata.Query{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil results for empty query, got %d", len(results))
	}
}

func TestSearchNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(searchResponse{Data: []trackItem{}})
	}))
	defer srv.Close()

	c := New("")
	c.apiURL = srv.URL

	results, err := c.Search(context.Background(), metadata.Query{Title: "nonexistent"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

func TestSearchAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(searchResponse{
			Error: &apiError{Type: "Exception", Message: "Quota exceeded", Code: 4},
		})
	}))
	defer srv.Close()

	c := New("")
	c.apiURL = srv.URL

	_, err := c.Search(context.Background(), metadata.Query{Title: "test"})
	if err == nil {
		t.Fatal("expected error for API error response")
	}
	if _, err := c.Enrich(context.Background(), metadata.Query{Title: "test"}); err == nil {
		t.Fatal("Enrich should surface the API error")
	}
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name  string
		query metadata.Query
		want  string
	}{
		{
			name:  "all fields",
			query: metadata.Query{Title: "Santeria", Artist: "Marracash", Album: "Santeria"},
			want:  `track:"Santeria" artist:"Marracash" album:"Santeria"`,
		},
		{
			name:  "title only",
			query: metadata.Query{Title: "Santeria"},
			want:  `track:"Santeria"`,
		},
		{
			name:  "quotes stripped",
			query: metadata.Query{Title: `Say "Hi"`, Artist: "Marracash"},
			want:  `track:"Say Hi" artist:"Marracash"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildQuery(tt.query)
			if got != tt.want {
				t.Errorf("buildQuery() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseTitleShort(t *testing.T) {
	items := []trackItem{
		{
			Title:      "Salvador Dalí (Live @ Santeria Tour 2017)",
			TitleShort: "Salvador Dalí",
			Artist:     artist{Name: "Marracash"},
			Album:      albumInfo{Title: "Santeria"},
		},
	}
	results := parseResults(items)
	if results[0].Title != "Salvador Dalí" {
		t.Errorf("expected TitleShort, got %q", results[0].Title)
	}
}
