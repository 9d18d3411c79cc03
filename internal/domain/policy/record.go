package policy

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Record is the canonical shape of a policyholder row, whatever table it
// was read from.
type Record struct {
	PolicyholderName string          `json:"policyholder_name"`
	Email            string          `json:"email,omitempty"`
	PolicyNumber     string          `json:"policy_number"`
	LineOfBusiness   string          `json:"line_of_business"`
	SourceTable      string          `json:"source_table"`
	Premium          decimal.Decimal `json:"premium"`
}

// HasName reports whether the record can take part in name matching
func (r *Record) HasName() bool {
	return strings.TrimSpace(r.PolicyholderName) != ""
}

// HasEmail reports whether the record can take part in email matching
func (r *Record) HasEmail() bool {
	return strings.TrimSpace(r.Email) != ""
}
