package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const sheetsBaseURL = "https://sheets.googleapis.com"

type SheetTab struct {
	SheetID int    `json:"sheetId"`
	Title   string `json:"title"`
	Index   int    `json:"index"`
}

type SpreadsheetMeta struct {
	ID     string     `json:"id"`
	Title  string     `json:"title"`
	Locale string     `json:"locale,omitempty"`
	Sheets []SheetTab `json:"sheets"`
}

// SheetsClient reads spreadsheet metadata. It never touches cell data.
type SheetsClient struct {
	hc      *http.Client
	baseURL string
}

func NewSheetsClient(hc *http.Client, baseURL string) *SheetsClient {
	if baseURL == "" {
		baseURL = sheetsBaseURL
	}
	return &SheetsClient{hc: hc, baseURL: strings.TrimRight(baseURL, "/")}
}

func (c *SheetsClient) Metadata(ctx context.Context, id string) (*SpreadsheetMeta, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("spreadsheet id required")
	}
	q := url.Values{}
	q.Set("fields", "spreadsheetId,properties(title,locale),sheets(properties(sheetId,title,index))")
	b, err := do(ctx, c.hc, http.MethodGet, c.baseURL+"/v4/spreadsheets/"+url.PathEscape(id)+"?"+q.Encode(), "", nil)
	if err != nil {
		return nil, err
	}
	var raw struct {
		SpreadsheetID string `json:"spreadsheetId"`
		Properties    struct {
			Title  string `json:"title"`
			Locale string `json:"locale"`
		} `json:"properties"`
		Sheets []struct {
			Properties SheetTab `json:"properties"`
		} `json:"sheets"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("decode spreadsheet: %w", err)
	}
	out := &SpreadsheetMeta{ID: raw.SpreadsheetID, Title: raw.Properties.Title, Locale: raw.Properties.Locale, Sheets: make([]SheetTab, 0, len(raw.Sheets))}
	for _, s := range raw.Sheets {
		out.Sheets = append(out.Sheets, s.Properties)
	}
	return out, nil
}
