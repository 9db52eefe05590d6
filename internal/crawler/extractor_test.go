package crawler_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/tender-scanner/internal/crawler"
	"github.com/user/tender-scanner/internal/domain"
	"github.com/user/tender-scanner/internal/platform"
)

const (
	testSchoolID  = int64(1)
	testSourceURL = "https://example.edu.it"
)

// tenderPageHTML mixes procurement links, excluded notices and unrelated anchors.
const tenderPageHTML = `<!DOCTYPE html>
<html>
<head><title>Amministrazione Trasparente</title></head>
<body>
  <nav><a href="/">Home</a><a href="/didattica">Didattica</a></nav>
  <ul>
    <li><a href="/bandi/gara-forniture-2024.pdf">Bando di gara forniture 2024 scadenza 30/06/2024</a></li>
    <li><a href="/amministrazione-trasparente/bandi/pulizie">
        Procedura negoziata servizi di pulizia
    </a></li>
    <li><a href="/bandi/concorso">Bando concorso personale docente</a></li>
    <li><a href="/bandi/graduatoria">Graduatoria fornitura servizi ATA</a></li>
    <li><a href="/news/gita">Gita scolastica</a></li>
    <li><a href="/bandi/gara-forniture-2024.pdf">Bando di gara forniture 2024 (copia)</a></li>
    <li><a>Avviso gara appalto mensa bandi 2024</a></li>
  </ul>
</body>
</html>`

func extract(t *testing.T, html string) []domain.Tender {
	t.Helper()
	tenders, err := crawler.NewExtractor(nil).Extract(testSchoolID, testSourceURL, platform.Edu, []byte(html))
	require.NoError(t, err)
	return tenders
}

func TestExtract_SelectsProcurementAnchors(t *testing.T) {
	tenders := extract(t, tenderPageHTML)
	require.Len(t, tenders, 3)

	first := tenders[0]
	assert.Equal(t, "Bando di gara forniture 2024 scadenza 30/06/2024", first.Title)
	assert.Equal(t, domain.TenderBando, first.Type)
	require.NotNil(t, first.Deadline)
	assert.Equal(t, "30/06/2024", *first.Deadline)
	require.NotNil(t, first.PDFURL)
	assert.Equal(t, "https://example.edu.it/bandi/gara-forniture-2024.pdf", *first.PDFURL)
	assert.Equal(t, platform.Edu, first.Platform)
	assert.Equal(t, testSchoolID, first.SchoolID)
	assert.Equal(t, testSourceURL, first.SourceURL)
	assert.NotEmpty(t, first.Hash)

	second := tenders[1]
	assert.Equal(t, "Procedura negoziata servizi di pulizia", second.Title)
	assert.Equal(t, domain.TenderDetermina, second.Type)
	assert.Nil(t, second.Deadline)
	assert.Nil(t, second.PDFURL)

	third := tenders[2]
	assert.Equal(t, domain.TenderGara, third.Type, "anchor without href is matched on its text")
	assert.Nil(t, third.PDFURL)
}

func TestExtract_FingerprintIsStable(t *testing.T) {
	a := extract(t, tenderPageHTML)
	b := extract(t, tenderPageHTML)
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].Hash, b[i].Hash)
	}

	other, err := crawler.NewExtractor(nil).Extract(testSchoolID, testSourceURL, platform.Argo, []byte(tenderPageHTML))
	require.NoError(t, err)
	assert.NotEqual(t, a[0].Hash, other[0].Hash, "platform is part of the fingerprint")
}

func TestExtract_EmptyDocument(t *testing.T) {
	_, err := crawler.NewExtractor(nil).Extract(testSchoolID, testSourceURL, platform.Edu, []byte("  \n"))
	assert.ErrorIs(t, err, crawler.ErrEmptyDocument)
}

func TestClassify_Priority(t *testing.T) {
	tests := []struct {
		title string
		want  domain.TenderType
	}{
		{"Bando di gara per forniture", domain.TenderBando},
		{"GARA d'appalto servizi assicurativi", domain.TenderGara},
		{"Avviso pubblico fornitura arredi", domain.TenderAvviso},
		{"Affidamento diretto servizi di manutenzione", domain.TenderDetermina},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, crawler.Classify(tt.title))
		})
	}
}

func TestIsProcurement(t *testing.T) {
	tests := []struct {
		title string
		want  bool
	}{
		{"Bando di gara per forniture", true},
		{"Procedura negoziata per servizi di cassa", true},
		{"Appalto servizio mensa", true},
		{"Bando concorso personale docente", false},
		{"Bando di gara servizi - concorso", false},
		{"Selezione del personale esperto fornitura", false},
		{"Albo pretorio: fornitura toner", false},
		{"Circolare n. 12", false},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, crawler.IsProcurement(tt.title))
		})
	}
}

func TestDeadline_FirstMatchWins(t *testing.T) {
	d := crawler.Deadline("Gara pubblicata il 1/3/2024 con scadenza 15/03/2024")
	require.NotNil(t, d)
	assert.Equal(t, "1/3/2024", *d)

	assert.Nil(t, crawler.Deadline("Gara scadenza marzo 2024"))
}

func TestDeadline_EmbeddedInWords(t *testing.T) {
	for _, title := range []string{
		"Gara scadenza30/06/2024",
		"entro 30/06/2024ore12",
		"Bando_gara_30/06/2024",
	} {
		d := crawler.Deadline(title)
		if assert.NotNil(t, d, title) {
			assert.Equal(t, "30/06/2024", *d)
		}
	}
}

func TestExcerpt(t *testing.T) {
	short := "Bando di gara"
	assert.Equal(t, short, crawler.Excerpt(short))

	long := strings.Repeat("è", 120)
	got := crawler.Excerpt(long)
	assert.Equal(t, strings.Repeat("è", 100)+"...", got)

	exact := strings.Repeat("a", 100)
	assert.Equal(t, exact, crawler.Excerpt(exact))
}
