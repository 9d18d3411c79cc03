package matching

import (
	"github.com/google/uuid"
	"github.com/polizalink/backend/internal/domain/policy"
)

// MatchType is how a candidate was found
type MatchType string

const (
	MatchTypeEmailExact     MatchType = "email_exact"
	MatchTypeNameSimilarity MatchType = "name_similarity"
)

// Candidate is a proposed association between one contact and one policy
// record.
type Candidate struct {
	ContactID    uuid.UUID     `json:"contact_id"`
	PolicyTable  string        `json:"policy_table"`
	PolicyNumber string        `json:"policy_number"`
	MatchType    MatchType     `json:"match_type"`
	Score        float64       `json:"score"`
	Record       policy.Record `json:"record"`
}

type candidateKey struct {
	contactID    uuid.UUID
	table        string
	policyNumber string
}

func (c *Candidate) key() candidateKey {
	return candidateKey{contactID: c.ContactID, table: c.PolicyTable, policyNumber: c.PolicyNumber}
}
