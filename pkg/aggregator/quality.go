package aggregator

import "github.com/Ramsey-B/oak/pkg/models"

type QualityLevel string

const (
	QualityHigh   QualityLevel = "high"
	QualityMedium QualityLevel = "medium"
	QualityLow    QualityLevel = "low"
)

const (
	pointsPerField     = 10
	pointsPerRelative  = 4
	maxRelativePoints  = 20
	pointsPerSibling   = 5
	maxSiblingPoints   = 10
	pointsMultiSource  = 10
	highQualityScore   = 80
	mediumQualityScore = 50
)

type DataQuality struct {
	Score         int          `json:"score"`
	Level         QualityLevel `json:"level"`
	MissingFields []string     `json:"missing_fields"`
}

// Quality scores how complete an aggregation is.
func Quality(person models.PersonFields, relatives, siblings, sources int) DataQuality {
	fields := []struct {
		name    string
		present bool
	}{
		{"identifier", person.Identifier != ""},
		{"full_name", person.FullName != ""},
		{"birth_date", person.BirthDate != nil},
		{"gender", person.Gender != models.GenderUnknown},
		{"mother_name", person.MotherName != ""},
		{"father_name", person.FatherName != ""},
	}

	q := DataQuality{MissingFields: []string{}}
	for _, f := range fields {
		if f.present {
			q.Score += pointsPerField
		} else {
			q.MissingFields = append(q.MissingFields, f.name)
		}
	}
	q.Score += min(relatives*pointsPerRelative, maxRelativePoints)
	q.Score += min(siblings*pointsPerSibling, maxSiblingPoints)
	if sources >= 2 {
		q.Score += pointsMultiSource
	}

	switch {
	case q.Score >= highQualityScore:
		q.Level = QualityHigh
	case q.Score >= mediumQualityScore:
		q.Level = QualityMedium
	default:
		q.Level = QualityLow
	}
	return q
}
