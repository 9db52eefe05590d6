package crawler

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/user/tender-scanner/internal/domain"
	"github.com/user/tender-scanner/internal/platform"
	"github.com/user/tender-scanner/pkg/utils"
)

// ErrEmptyDocument is returned for a response without any HTML content.
var ErrEmptyDocument = errors.New("empty document")

const excerptLength = 100

var (
	procurementPattern = regexp.MustCompile(`(?i)bando.*gara|gara.*appalt|procedura.*negoziata|appalt|fornitur|servizi`)
	exclusionPattern   = regexp.MustCompile(`(?i)concorso|selezione.*personale|graduatori|albo.*pretorio`)
	datePattern        = regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`)
)

// Path segments portals index their procurement sections under.
var sectionTokens = []string{"bandi", "gara", "amministrazione-trasparente"}

// Extractor turns an HTML page into tender candidates.
type Extractor struct {
	logger *zap.Logger
}

func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract parses body and returns one tender per accepted anchor. Anchors
// are deduplicated by fingerprint, keeping the first occurrence.
func (e *Extractor) Extract(schoolID int64, sourceURL string, p platform.Platform, body []byte) ([]domain.Tender, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyDocument
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	base, _ := url.Parse(sourceURL)

	var tenders []domain.Tender
	seen := make(map[string]struct{})

	doc.Find("a").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		title := strings.Join(strings.Fields(s.Text()), " ")

		if !referencesSection(href, title) {
			return
		}
		if !IsProcurement(title) {
			e.logger.Debug("anchor rejected", zap.String("title", title), zap.String("href", href))
			return
		}

		key := href
		if key == "" {
			key = title
		}
		hash := utils.Fingerprint(schoolID, key, p.String())
		if _, dup := seen[hash]; dup {
			return
		}
		seen[hash] = struct{}{}

		tenders = append(tenders, domain.Tender{
			SchoolID:  schoolID,
			Title:     title,
			Excerpt:   Excerpt(title),
			Deadline:  Deadline(title),
			Type:      Classify(title),
			Platform:  p,
			PDFURL:    pdfURL(base, href),
			SourceURL: sourceURL,
			Hash:      hash,
		})
	})

	return tenders, nil
}

func referencesSection(href, text string) bool {
	href = strings.ToLower(href)
	text = strings.ToLower(text)
	for _, tok := range sectionTokens {
		if strings.Contains(href, tok) || strings.Contains(text, tok) {
			return true
		}
	}
	return false
}

// IsProcurement applies the include pattern with the exclusion override.
func IsProcurement(title string) bool {
	return procurementPattern.MatchString(title) && !exclusionPattern.MatchString(title)
}

// Classify picks the tender type by the first matching token in priority
// order: bando, gara, avviso, otherwise determina.
func Classify(title string) domain.TenderType {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "bando"):
		return domain.TenderBando
	case strings.Contains(t, "gara"):
		return domain.TenderGara
	case strings.Contains(t, "avviso"):
		return domain.TenderAvviso
	default:
		return domain.TenderDetermina
	}
}

// Deadline returns the first D/M/YYYY literal in the title, if any.
func Deadline(title string) *string {
	m := datePattern.FindString(title)
	if m == "" {
		return nil
	}
	return &m
}

// Excerpt truncates the title to 100 characters, marking the cut with "...".
func Excerpt(title string) string {
	r := []rune(title)
	if len(r) <= excerptLength {
		return title
	}
	return string(r[:excerptLength]) + "..."
}

func pdfURL(base *url.URL, href string) *string {
	if href == "" || !strings.Contains(strings.ToLower(href), ".pdf") {
		return nil
	}
	if base != nil {
		if abs, err := utils.ToAbsoluteURL(base, href); err == nil {
			return &abs
		}
	}
	return &href
}
