// Package mapper translates raw lookup records into canonical person fields.
package mapper

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Ramsey-B/oak/pkg/dates"
	"github.com/Ramsey-B/oak/pkg/identifier"
	"github.com/Ramsey-B/oak/pkg/models"
	"github.com/Ramsey-B/oak/pkg/normalizers"
)

// DefaultSentinel is the value the registry returns for a field with no data.
const DefaultSentinel = "SEM INFORMAÇÃO"

// FieldPaths are the JMESPath expressions used to read each canonical field.
type FieldPaths struct {
	Identifier       string
	FullName         string
	BirthDate        string
	DeathDate        string
	Gender           string
	MotherName       string
	FatherName       string
	Emails           string
	Phones           string
	Address          string
	City             string
	State            string
	PostalCode       string
	RG               string
	VoterID          string
	Occupation       string
	Income           string
	MotherIdentifier string

	// Relatives selects the relative list; the three paths below are evaluated per entry.
	Relatives          string
	RelativeIdentifier string
	RelativeName       string
	RelativeCode       string
	RelativeBirthDate  string
}

// DefaultFieldPaths matches the registry's documented response layout.
func DefaultFieldPaths() FieldPaths {
	return FieldPaths{
		Identifier:         "cpf",
		FullName:           "nome",
		BirthDate:          "nascimento || data_nascimento",
		DeathDate:          "obito || data_obito",
		Gender:             "sexo",
		MotherName:         "mae || nome_mae",
		FatherName:         "pai || nome_pai",
		Emails:             "emails",
		Phones:             "telefones",
		Address:            "endereco.logradouro || endereco",
		City:               "endereco.cidade || cidade",
		State:              "endereco.uf || uf",
		PostalCode:         "endereco.cep || cep",
		RG:                 "rg",
		VoterID:            "titulo_eleitor",
		Occupation:         "profissao",
		Income:             "renda",
		MotherIdentifier:   "cpf_mae",
		Relatives:          "parentes",
		RelativeIdentifier: "cpf",
		RelativeName:       "nome",
		RelativeCode:       "vinculo",
		RelativeBirthDate:  "nascimento",
	}
}

type Config struct {
	Paths     FieldPaths
	Sentinels []string
}

// RelativeRef is one entry of a record's relative list.
type RelativeRef struct {
	Identifier   string
	Name         string
	RelationCode string
	Type         models.RelationshipType
	Known        bool
	BirthDate    *time.Time
}

type Mapper struct {
	paths     FieldPaths
	sentinels map[string]struct{}
	eval      *evaluator
}

// New builds a Mapper, compiling every configured path up front.
func New(cfg Config) (*Mapper, error) {
	if len(cfg.Sentinels) == 0 {
		cfg.Sentinels = []string{DefaultSentinel}
	}
	m := &Mapper{
		paths:     cfg.Paths,
		sentinels: make(map[string]struct{}, len(cfg.Sentinels)),
		eval:      newEvaluator(),
	}
	for _, s := range cfg.Sentinels {
		m.sentinels[sentinelKey(s)] = struct{}{}
	}

	p := cfg.Paths
	for _, expr := range []string{
		p.Identifier, p.FullName, p.BirthDate, p.DeathDate, p.Gender, p.MotherName, p.FatherName,
		p.Emails, p.Phones, p.Address, p.City, p.State, p.PostalCode, p.RG, p.VoterID,
		p.Occupation, p.Income, p.MotherIdentifier, p.Relatives, p.RelativeIdentifier,
		p.RelativeName, p.RelativeCode, p.RelativeBirthDate,
	} {
		if expr == "" {
			continue
		}
		if _, err := m.eval.getOrCompile(expr); err != nil {
			return nil, fmt.Errorf("invalid field path %q: %w", expr, err)
		}
	}
	return m, nil
}

// NewDefault builds a Mapper with the default paths and sentinel.
func NewDefault() *Mapper {
	m, err := New(Config{Paths: DefaultFieldPaths()})
	if err != nil {
		panic(err)
	}
	return m
}

func sentinelKey(s string) string {
	return normalizers.ApplyChain(s, "strip_accents", "uppercase", "collapse_whitespace")
}

// IsSentinel reports whether s is empty or one of the "no data" sentinels.
func (m *Mapper) IsSentinel(s string) bool {
	key := sentinelKey(s)
	if key == "" {
		return true
	}
	_, ok := m.sentinels[key]
	return ok
}

// Clean returns "" for sentinel values and the trimmed string otherwise.
func (m *Mapper) Clean(s string) string {
	if m.IsSentinel(s) {
		return ""
	}
	return strings.TrimSpace(s)
}

func (m *Mapper) str(expr string, data any) string {
	v, err := m.eval.evaluate(expr, data)
	if err != nil || v == nil {
		return ""
	}
	return m.Clean(scalarString(v))
}

func (m *Mapper) date(expr string, data any) *time.Time {
	return dates.ParsePtr(m.str(expr, data))
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool, int, int64:
		return fmt.Sprint(t)
	default:
		return ""
	}
}

// ToPerson reads the canonical person fields from a record.
func (m *Mapper) ToPerson(rec models.PersonRecord) models.PersonFields {
	data := rec.Data
	fields := models.PersonFields{
		FullName:   m.str(m.paths.FullName, data),
		BirthDate:  m.date(m.paths.BirthDate, data),
		DeathDate:  m.date(m.paths.DeathDate, data),
		Gender:     models.ParseGender(m.str(m.paths.Gender, data)),
		MotherName: m.str(m.paths.MotherName, data),
		FatherName: m.str(m.paths.FatherName, data),
	}
	if id := identifier.Normalize(m.str(m.paths.Identifier, data)); identifier.IsValid(id) {
		fields.Identifier = id
	}
	return fields
}

// ToPersonDetail reads contact, document and financial attributes from a record.
func (m *Mapper) ToPersonDetail(rec models.PersonRecord) models.DetailFields {
	data := rec.Data
	detail := models.DetailFields{
		Emails:     m.list(m.paths.Emails, data, normalizers.NormalizeEmail, "email", "endereco"),
		Phones:     m.list(m.paths.Phones, data, normalizers.NormalizePhone, "numero", "telefone"),
		Address:    m.str(m.paths.Address, data),
		City:       m.str(m.paths.City, data),
		State:      m.str(m.paths.State, data),
		PostalCode: normalizers.DigitsOnly(m.str(m.paths.PostalCode, data)),
		RG:         m.str(m.paths.RG, data),
		VoterID:    normalizers.DigitsOnly(m.str(m.paths.VoterID, data)),
		Occupation: m.str(m.paths.Occupation, data),
		Income:     parseIncome(m.str(m.paths.Income, data)),
	}
	if id := identifier.Normalize(m.str(m.paths.MotherIdentifier, data)); identifier.IsValid(id) {
		detail.MotherIdentifier = id
	}
	return detail
}

// ToRelatives reads the record's relative list. Entries without a name or a
// valid identifier are dropped; invalid identifiers are cleared.
func (m *Mapper) ToRelatives(rec models.PersonRecord) []RelativeRef {
	v, err := m.eval.evaluate(m.paths.Relatives, rec.Data)
	if err != nil {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}

	refs := make([]RelativeRef, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		ref := RelativeRef{
			Name:         m.str(m.paths.RelativeName, entry),
			RelationCode: m.str(m.paths.RelativeCode, entry),
			BirthDate:    m.date(m.paths.RelativeBirthDate, entry),
		}
		if id := identifier.Normalize(m.str(m.paths.RelativeIdentifier, entry)); identifier.IsValid(id) {
			ref.Identifier = id
		}
		if ref.Name == "" && ref.Identifier == "" {
			continue
		}
		ref.Type, ref.Known = ToRelationType(ref.RelationCode)
		refs = append(refs, ref)
	}
	return refs
}

// list reads a field that is a string, a list of strings, or a list of objects
// carrying the value under one of keys.
func (m *Mapper) list(expr string, data any, normalize func(string) string, keys ...string) []string {
	v, err := m.eval.evaluate(expr, data)
	if err != nil || v == nil {
		return nil
	}

	var raw []string
	switch t := v.(type) {
	case string:
		raw = append(raw, t)
	case []any:
		for _, item := range t {
			switch it := item.(type) {
			case string:
				raw = append(raw, it)
			case map[string]any:
				for _, k := range keys {
					if s, ok := it[k].(string); ok {
						if ddd, ok := it["ddd"].(string); ok && k == "numero" {
							s = ddd + s
						}
						raw = append(raw, s)
						break
					}
				}
			}
		}
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = m.Clean(s)
		if s == "" {
			continue
		}
		s = normalize(s)
		if _, dup := seen[s]; dup || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// parseIncome accepts plain numbers and Brazilian currency strings such as "R$ 1.234,56".
func parseIncome(s string) *float64 {
	if s == "" {
		return nil
	}
	s = strings.TrimSpace(strings.TrimPrefix(strings.ToUpper(s), "R$"))
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}
