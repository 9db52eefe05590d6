package domain

import (
	"slices"
	"sort"
	"strings"
)

// School mirrors a row of the national schools registry plus the platform
// tags detected for it.
type School struct {
	ID                               int64    `json:"id"`
	CodiceMeccanografico             string   `json:"codiceMeccanografico"`
	DenominazioneScuola              string   `json:"denominazioneScuola"`
	CodiceIstitutoRiferimento        string   `json:"codiceIstitutoRiferimento,omitempty"`
	DenominazioneIstitutoRiferimento string   `json:"denominazioneIstitutoRiferimento,omitempty"`
	IndirizzoEmail                   string   `json:"indirizzoEmail,omitempty"`
	SitoWeb                          string   `json:"sitoWeb,omitempty"`
	Indirizzo                        string   `json:"indirizzo,omitempty"`
	CAP                              string   `json:"cap,omitempty"`
	Comune                           string   `json:"comune,omitempty"`
	Provincia                        string   `json:"provincia,omitempty"`
	Regione                          string   `json:"regione,omitempty"`
	AreaGeografica                   string   `json:"areaGeografica,omitempty"`
	TipoIstituto                     string   `json:"tipoIstituto,omitempty"`
	DetectedPlatforms                []string `json:"detectedPlatforms"`
}

// SchoolFilter narrows a school listing. Empty fields match everything.
type SchoolFilter struct {
	AreaGeografica string
	Regione        string
	Province       []string
	// Search is matched case-insensitively against name, code and comune.
	Search string
}

// GeographicData indexes stored schools by area, region and province.
type GeographicData struct {
	Areas     []string            `json:"areas"`
	Regions   map[string][]string `json:"regions"`
	Provinces map[string][]string `json:"provinces"`
}

// SchoolSummary is the school view embedded in tender listings.
type SchoolSummary struct {
	Name     string `json:"name"`
	Code     string `json:"code"`
	Location string `json:"location"`
}

// Summary builds the listing view of the school.
func (s *School) Summary() *SchoolSummary {
	return &SchoolSummary{
		Name:     s.DenominazioneScuola,
		Code:     s.CodiceMeccanografico,
		Location: s.Comune + " (" + s.Provincia + ")",
	}
}

// Matches applies the filter to a school.
func (f SchoolFilter) Matches(s *School) bool {
	if f.AreaGeografica != "" && s.AreaGeografica != f.AreaGeografica {
		return false
	}
	if f.Regione != "" && s.Regione != f.Regione {
		return false
	}
	if len(f.Province) > 0 && (s.Provincia == "" || !slices.Contains(f.Province, s.Provincia)) {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		return strings.Contains(strings.ToLower(s.DenominazioneScuola), q) ||
			strings.Contains(strings.ToLower(s.CodiceMeccanografico), q) ||
			strings.Contains(strings.ToLower(s.Comune), q)
	}
	return true
}

// GeographicDataFrom indexes the area/region/province triples of schools.
// Schools without an area are ignored; lists are sorted.
func GeographicDataFrom(schools []School) *GeographicData {
	areas := make(map[string]struct{})
	regions := make(map[string]map[string]struct{})
	provinces := make(map[string]map[string]struct{})

	add := func(m map[string]map[string]struct{}, k, v string) {
		if m[k] == nil {
			m[k] = make(map[string]struct{})
		}
		if v != "" {
			m[k][v] = struct{}{}
		}
	}

	for _, s := range schools {
		if s.AreaGeografica == "" {
			continue
		}
		areas[s.AreaGeografica] = struct{}{}
		add(regions, s.AreaGeografica, s.Regione)
		if s.Regione != "" {
			add(provinces, s.Regione, s.Provincia)
		}
	}

	out := &GeographicData{
		Areas:     sortedKeys(areas),
		Regions:   make(map[string][]string, len(regions)),
		Provinces: make(map[string][]string, len(provinces)),
	}
	for k, v := range regions {
		out.Regions[k] = sortedKeys(v)
	}
	for k, v := range provinces {
		out.Provinces[k] = sortedKeys(v)
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
