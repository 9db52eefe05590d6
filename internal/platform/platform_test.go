package platform_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/user/tender-scanner/internal/platform"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		url  string
		want platform.Platform
	}{
		{"https://trasparenzascuole.it/scuola/CSIC80000A", platform.Axios},
		{"https://www.portaleargo.it/albo/CSIC80000A", platform.Argo},
		{"https://web.spaggiari.eu/CSIC80000A", platform.Spaggiari},
		{"https://csic80000a.net4market.com", platform.Net4Market},
		{"https://www.icrende.edu.it/bandi", platform.Edu},
		{"https://example.com", platform.Edu},
		{"https://notspaggiari.eu.example.org", platform.Edu},
		{"not a url", platform.Edu},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, platform.Detect(tt.url))
		})
	}
}

func TestResolve_OwnSiteFirstThenPortals(t *testing.T) {
	got := platform.Resolve("www.icrende.edu.it", "CSIC80000A", []string{"net4market", "argo", "axios"})

	assert.Equal(t, []platform.Candidate{
		{URL: "https://www.icrende.edu.it", Role: platform.OwnSite},
		{URL: "https://trasparenzascuole.it/scuola/CSIC80000A", Role: platform.Axios},
		{URL: "https://portaleargo.it/CSIC80000A", Role: platform.Argo},
		{URL: "https://csic80000a.net4market.com", Role: platform.Net4Market},
	}, got)
}

func TestResolve_IgnoresUnknownAndDuplicateTags(t *testing.T) {
	got := platform.Resolve("", "RCIS01200X", []string{"spaggiari", "moodle", "SPAGGIARI", "edu"})

	assert.Equal(t, []platform.Candidate{
		{URL: "https://web.spaggiari.eu/RCIS01200X", Role: platform.Spaggiari},
	}, got)
}

func TestResolve_MissingInputs(t *testing.T) {
	assert.Empty(t, platform.Resolve("", "", nil))
	assert.Empty(t, platform.Resolve("Non Disponibile", "CSIC80000A", nil))
	assert.Empty(t, platform.Resolve("", "", []string{"argo"}), "portal URLs need a code")
}

func TestResolve_OwnSiteOnPortalHostIsNotDuplicated(t *testing.T) {
	got := platform.Resolve("https://portaleargo.it/CSIC80000A", "CSIC80000A", []string{"argo"})

	assert.Len(t, got, 1)
	assert.Equal(t, platform.OwnSite, got[0].Role)
}

func TestParse(t *testing.T) {
	p, ok := platform.Parse(" Argo ")
	assert.True(t, ok)
	assert.Equal(t, platform.Argo, p)

	_, ok = platform.Parse("own-site")
	assert.False(t, ok)
}
