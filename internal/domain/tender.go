package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/user/tender-scanner/internal/platform"
)

// TenderType classifies a procurement notice.
type TenderType string

const (
	TenderBando     TenderType = "bando"
	TenderGara      TenderType = "gara"
	TenderAvviso    TenderType = "avviso"
	TenderDetermina TenderType = "determina"
)

// Tender is a procurement notice found on a school page. Hash is the
// deduplication key: a repeated scan producing the same hash updates the
// stored row instead of inserting a new one.
type Tender struct {
	ID        int64             `json:"id"`
	SchoolID  int64             `json:"schoolId"`
	Title     string            `json:"title"`
	Excerpt   string            `json:"excerpt"`
	Deadline  *string           `json:"deadline"`
	Type      TenderType        `json:"type"`
	Platform  platform.Platform `json:"platform"`
	PDFURL    *string           `json:"pdfUrl"`
	SourceURL string            `json:"sourceUrl"`
	Hash      string            `json:"hash"`
	CreatedAt time.Time         `json:"createdAt"`
}

// TenderFilter narrows a tender listing. Empty fields match everything.
type TenderFilter struct {
	SchoolIDs []int64
	// Search is matched case-insensitively against title and excerpt.
	Search   string
	Type     TenderType
	Platform platform.Platform
}

// TenderView is a tender enriched with its school for listings.
type TenderView struct {
	Tender
	School *SchoolSummary `json:"school"`
}

// Matches applies the filter to a tender.
func (f TenderFilter) Matches(t *Tender) bool {
	if len(f.SchoolIDs) > 0 && !slices.Contains(f.SchoolIDs, t.SchoolID) {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Platform != "" && t.Platform != f.Platform {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		return strings.Contains(strings.ToLower(t.Title), q) ||
			strings.Contains(strings.ToLower(t.Excerpt), q)
	}
	return true
}
