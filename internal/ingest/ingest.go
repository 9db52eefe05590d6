// Package ingest decodes school registry datasets (CSV or JSON) into
// domain.School records.
//
// Column names follow the MIUR open-data export (CODICEMECCANOGRAFICO,
// SITOWEBSCUOLA, ...); the camelCase field names used by the API are
// accepted as well.
package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/user/tender-scanner/internal/domain"
	"github.com/user/tender-scanner/internal/platform"
)

var (
	// ErrInvalidDataset wraps every decoding failure.
	ErrInvalidDataset = errors.New("invalid dataset")
	// ErrUnsupportedFormat is returned for payloads that are neither a JSON
	// array, a JSON @graph document nor a CSV with a header row.
	ErrUnsupportedFormat = fmt.Errorf("%w: unsupported format", ErrInvalidDataset)
)

// Options controls decoding.
type Options struct {
	// Region keeps only schools whose region contains it, case-insensitively.
	Region string
}

// field maps a School attribute to its accepted column names.
type field struct {
	names []string
	set   func(s *domain.School, v string)
}

var fields = []field{
	{[]string{"CODICEMECCANOGRAFICO", "codiceMeccanografico"}, func(s *domain.School, v string) { s.CodiceMeccanografico = v }},
	{[]string{"DENOMINAZIONESCUOLA", "denominazioneScuola"}, func(s *domain.School, v string) { s.DenominazioneScuola = v }},
	{[]string{"CODICEISTITUTORIFERIMENTO", "codiceIstitutoRiferimento"}, func(s *domain.School, v string) { s.CodiceIstitutoRiferimento = v }},
	{[]string{"DENOMINAZIONEISTITUTORIFERIMENTO", "denominazioneIstitutoRiferimento"}, func(s *domain.School, v string) { s.DenominazioneIstitutoRiferimento = v }},
	{[]string{"INDIRIZZOEMAILSCUOLA", "indirizzoEmail"}, func(s *domain.School, v string) { s.IndirizzoEmail = v }},
	{[]string{"SITOWEBSCUOLA", "sitoWeb"}, func(s *domain.School, v string) { s.SitoWeb = v }},
	{[]string{"INDIRIZZOSCUOLA", "INDIRIZZO", "indirizzo"}, func(s *domain.School, v string) { s.Indirizzo = v }},
	{[]string{"CAPSCUOLA", "CAP", "cap"}, func(s *domain.School, v string) { s.CAP = v }},
	{[]string{"DESCRIZIONECOMUNE", "COMUNE", "comune"}, func(s *domain.School, v string) { s.Comune = v }},
	{[]string{"PROVINCIA", "provincia"}, func(s *domain.School, v string) { s.Provincia = v }},
	{[]string{"REGIONE", "regione"}, func(s *domain.School, v string) { s.Regione = v }},
	{[]string{"AREAGEOGRAFICA", "areaGeografica"}, func(s *domain.School, v string) { s.AreaGeografica = v }},
	{[]string{"DESCRIZIONETIPOLOGIAGRADOISTRUZIONESCUOLA", "TIPOISTRUZIONE", "tipoIstituto"}, func(s *domain.School, v string) { s.TipoIstituto = v }},
}

var platformColumns = []string{"DETECTEDPLATFORMS", "detectedPlatforms"}

// Decode reads a dataset. JSON is chosen by content type or a .json file
// name, CSV otherwise. Rows without a mechanographic code are dropped.
func Decode(r io.Reader, filename, contentType string, opts Options) ([]domain.School, error) {
	var (
		rows []map[string]string
		err  error
	)
	if isJSON(filename, contentType) {
		rows, err = decodeJSON(r)
	} else {
		rows, err = decodeCSV(r)
	}
	if err != nil {
		if !errors.Is(err, ErrInvalidDataset) {
			err = fmt.Errorf("%w: %v", ErrInvalidDataset, err)
		}
		return nil, err
	}

	region := strings.ToLower(strings.TrimSpace(opts.Region))
	schools := make([]domain.School, 0, len(rows))
	for _, row := range rows {
		s := toSchool(row)
		if s.CodiceMeccanografico == "" {
			continue
		}
		if region != "" && !strings.Contains(strings.ToLower(s.Regione), region) {
			continue
		}
		schools = append(schools, s)
	}
	return schools, nil
}

func isJSON(filename, contentType string) bool {
	return strings.HasPrefix(contentType, "application/json") ||
		strings.HasSuffix(strings.ToLower(filename), ".json")
}

func toSchool(row map[string]string) domain.School {
	var s domain.School
	for _, f := range fields {
		if v, ok := lookup(row, f.names); ok {
			f.set(&s, v)
		}
	}
	s.DetectedPlatforms = detectedPlatforms(row, s.SitoWeb)
	return s
}

// detectedPlatforms parses the platform column when present and falls back
// to the host of the school's own site.
func detectedPlatforms(row map[string]string, site string) []string {
	tags := []string{}
	if raw, ok := lookup(row, platformColumns); ok {
		for _, tag := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' || r == '|' }) {
			p, ok := platform.Parse(tag)
			if !ok {
				continue
			}
			if !slices.Contains(tags, p.String()) {
				tags = append(tags, p.String())
			}
		}
		return tags
	}
	if normalized := platform.NormalizeSite(site); normalized != "" {
		if p := platform.Detect(normalized); p.IsPortal() {
			tags = append(tags, p.String())
		}
	}
	return tags
}

func lookup(row map[string]string, names []string) (string, bool) {
	for _, n := range names {
		if v, ok := row[n]; ok {
			if v = strings.TrimSpace(v); v != "" {
				return v, true
			}
		}
	}
	return "", false
}

func decodeJSON(r io.Reader) ([]map[string]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")))

	var records []map[string]any
	switch {
	case len(data) > 0 && data[0] == '[':
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("decode json dataset: %w", err)
		}
	case len(data) > 0 && data[0] == '{':
		var doc struct {
			Graph []map[string]any `json:"@graph"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode json dataset: %w", err)
		}
		records = doc.Graph
	default:
		return nil, ErrUnsupportedFormat
	}

	rows := make([]map[string]string, 0, len(records))
	for _, rec := range records {
		row := make(map[string]string, len(rec))
		for k, v := range rec {
			row[k] = stringify(v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, stringify(e))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(t)
	}
}

func decodeCSV(r io.Reader) ([]map[string]string, error) {
	br := bufio.NewReader(r)
	if bom, _ := br.Peek(3); bytes.Equal(bom, []byte("\xef\xbb\xbf")) {
		_, _ = br.Discard(3)
	}
	first, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, err
	}
	if len(bytes.TrimSpace(first)) == 0 {
		return nil, ErrUnsupportedFormat
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	if header, _, _ := bytes.Cut(first, []byte("\n")); bytes.Count(header, []byte(";")) > bytes.Count(header, []byte(",")) {
		cr.Comma = ';'
	}

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var rows []map[string]string
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(record) {
				row[strings.TrimSpace(name)] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
