package linkage

import (
	"strings"

	"github.com/google/uuid"
	"github.com/polizalink/backend/internal/domain/contact"
	"github.com/polizalink/backend/internal/domain/matching"
	"github.com/polizalink/backend/internal/domain/policy"
	"github.com/shopspring/decimal"
)

// RelationshipsResult is the outcome of a full linkage run.
// TableErrors maps each table that could not be read to its error message.
type RelationshipsResult struct {
	Summary       matching.Summary        `json:"summary"`
	Relationships []matching.Relationship `json:"relationships"`
	TableErrors   map[string]string       `json:"table_errors,omitempty"`
}

// Partial reports whether at least one table was skipped
func (r *RelationshipsResult) Partial() bool {
	return len(r.TableErrors) > 0
}

// ContactPolicies lists the policies linked to one contact
type ContactPolicies struct {
	Contact       contact.Contact          `json:"contact"`
	Policies      []matching.PolicySummary `json:"policies"`
	TotalPolicies int                      `json:"total_policies"`
	TotalPremium  decimal.Decimal          `json:"total_premium"`
	TableErrors   map[string]string        `json:"table_errors,omitempty"`
}

// Tables returns the distinct tables of the linked policies in order
func (c *ContactPolicies) Tables() []string {
	seen := make(map[string]struct{}, len(c.Policies))
	tables := make([]string, 0, len(c.Policies))
	for _, p := range c.Policies {
		if _, ok := seen[p.Table]; ok {
			continue
		}
		seen[p.Table] = struct{}{}
		tables = append(tables, p.Table)
	}
	return tables
}

// PromotionOutcome is returned by PromoteClientStatuses
type PromotionOutcome struct {
	UpdatedCount int64                `json:"updated_count"`
	NewStats     contact.StatusCounts `json:"new_stats"`
	UpdatedIDs   []uuid.UUID          `json:"updated_ids"`
}

// TableInfo describes one configured product table
type TableInfo struct {
	Table          string `json:"table"`
	LineOfBusiness string `json:"line_of_business"`
	RecordCount    int64  `json:"record_count"`
	Error          string `json:"error,omitempty"`
}

// CreateRecordInput is the payload for adding a policy record
type CreateRecordInput struct {
	PolicyNumber     string          `json:"policy_number" binding:"required,max=50"`
	PolicyholderName string          `json:"policyholder_name" binding:"required,max=255"`
	Email            string          `json:"email" binding:"omitempty,email,max=255"`
	Premium          decimal.Decimal `json:"premium"`
}

// UpdateRecordInput is the payload for overwriting a policy record
type UpdateRecordInput struct {
	PolicyholderName string          `json:"policyholder_name" binding:"required,max=255"`
	Email            string          `json:"email" binding:"omitempty,email,max=255"`
	Premium          decimal.Decimal `json:"premium"`
}

func (in CreateRecordInput) toRecord(m policy.TableMapping) policy.Record {
	return policy.Record{
		PolicyholderName: strings.TrimSpace(in.PolicyholderName),
		Email:            strings.TrimSpace(in.Email),
		PolicyNumber:     strings.TrimSpace(in.PolicyNumber),
		LineOfBusiness:   m.LineOfBusiness,
		SourceTable:      m.Table,
		Premium:          in.Premium,
	}
}

func (in UpdateRecordInput) toRecord(m policy.TableMapping, policyNumber string) policy.Record {
	return policy.Record{
		PolicyholderName: strings.TrimSpace(in.PolicyholderName),
		Email:            strings.TrimSpace(in.Email),
		PolicyNumber:     policyNumber,
		LineOfBusiness:   m.LineOfBusiness,
		SourceTable:      m.Table,
		Premium:          in.Premium,
	}
}

func tableErrorMessages(errs map[string]error) map[string]string {
	if len(errs) == 0 {
		return nil
	}
	out := make(map[string]string, len(errs))
	for table, err := range errs {
		out[table] = err.Error()
	}
	return out
}
