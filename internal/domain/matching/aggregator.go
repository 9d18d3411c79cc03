package matching

import (
	"sort"

	"github.com/google/uuid"
	"github.com/polizalink/backend/internal/domain/contact"
	"github.com/shopspring/decimal"
)

// PolicySummary is one policy held by a contact, as shown for review
type PolicySummary struct {
	Table            string          `json:"table"`
	PolicyNumber     string          `json:"policy_number"`
	LineOfBusiness   string          `json:"line_of_business"`
	PolicyholderName string          `json:"policyholder_name"`
	MatchType        MatchType       `json:"match_type"`
	Score            float64         `json:"score"`
	Premium          decimal.Decimal `json:"premium"`
}

// Relationship groups the policies matched to one contact. Policies is
// never empty.
type Relationship struct {
	Contact      contact.Contact `json:"contact"`
	Policies     []PolicySummary `json:"policies"`
	TotalPremium decimal.Decimal `json:"total_premium"`
}

// Summary holds the statistics of an aggregation
type Summary struct {
	TotalMatches              int               `json:"total_matches"`
	ContactsWithRelationships int               `json:"contacts_with_relationships"`
	ByMatchType               map[MatchType]int `json:"by_match_type"`
	ByTable                   map[string]int    `json:"by_table"`
}

// Aggregation is the output of Aggregate
type Aggregation struct {
	Relationships []Relationship `json:"relationships"`
	Summary       Summary        `json:"summary"`
}

// NewSummary returns a summary with zero counts for every match type and
// every table in tables
func NewSummary(tables []string) Summary {
	s := Summary{
		ByMatchType: map[MatchType]int{
			MatchTypeEmailExact:     0,
			MatchTypeNameSimilarity: 0,
		},
		ByTable: make(map[string]int, len(tables)),
	}
	for _, t := range tables {
		s.ByTable[t] = 0
	}
	return s
}

// ContactIDs returns the distinct contact ids of relationships in order
func ContactIDs(relationships []Relationship) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(relationships))
	ids := make([]uuid.UUID, 0, len(relationships))
	for _, r := range relationships {
		if _, ok := seen[r.Contact.ID]; ok {
			continue
		}
		seen[r.Contact.ID] = struct{}{}
		ids = append(ids, r.Contact.ID)
	}
	return ids
}

// Aggregate orders candidates by score (highest first) and groups them per
// contact. Contacts without candidates do not appear. Relationships are
// ordered by the best score of each contact. Candidates are expected to be
// free of duplicate (contact, table, policy number) triples.
func Aggregate(candidates []Candidate, contacts []contact.Contact, tables []string) Aggregation {
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.PolicyTable != b.PolicyTable {
			return a.PolicyTable < b.PolicyTable
		}
		return a.PolicyNumber < b.PolicyNumber
	})

	byID := make(map[uuid.UUID]contact.Contact, len(contacts))
	for _, c := range contacts {
		byID[c.ID] = c
	}

	summary := NewSummary(tables)
	index := make(map[uuid.UUID]int)
	relationships := make([]Relationship, 0)

	for _, c := range sorted {
		summary.TotalMatches++
		summary.ByMatchType[c.MatchType]++
		summary.ByTable[c.PolicyTable]++

		pos, ok := index[c.ContactID]
		if !ok {
			owner, known := byID[c.ContactID]
			if !known {
				owner.ID = c.ContactID
			}
			relationships = append(relationships, Relationship{
				Contact:      owner,
				TotalPremium: decimal.Zero,
			})
			pos = len(relationships) - 1
			index[c.ContactID] = pos
		}

		rel := &relationships[pos]
		rel.Policies = append(rel.Policies, PolicySummary{
			Table:            c.PolicyTable,
			PolicyNumber:     c.PolicyNumber,
			LineOfBusiness:   c.Record.LineOfBusiness,
			PolicyholderName: c.Record.PolicyholderName,
			MatchType:        c.MatchType,
			Score:            c.Score,
			Premium:          c.Record.Premium,
		})
		rel.TotalPremium = rel.TotalPremium.Add(c.Record.Premium)
	}

	summary.ContactsWithRelationships = len(relationships)

	return Aggregation{
		Relationships: relationships,
		Summary:       summary,
	}
}
