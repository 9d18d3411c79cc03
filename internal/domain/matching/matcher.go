package matching

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/polizalink/backend/internal/domain/contact"
	"github.com/polizalink/backend/internal/domain/policy"
	"github.com/polizalink/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// RecordFetcher reads the records of one product table.
type RecordFetcher interface {
	FetchPolicyRecords(ctx context.Context, table policy.TableMapping) ([]policy.Record, error)
}

// TableHook is called before each table pass. The returned function is
// called once the pass is over with the number of candidates it produced
// and the fetch error, if any.
type TableHook func(ctx context.Context, table string) (context.Context, func(candidates int, err error))

// Result is the outcome of a matching run. TableErrors holds one entry per
// table that could not be read; Candidates holds everything found in the
// other tables, unsorted.
type Result struct {
	Candidates  []Candidate
	TableErrors map[string]error
}

// FailedTables returns the names of the tables that could not be read
func (r Result) FailedTables() []string {
	names := make([]string, 0, len(r.TableErrors))
	for name := range r.TableErrors {
		names = append(names, name)
	}
	return names
}

// Matcher runs the cross-table linkage between contacts and policy records.
// Tables are processed one at a time and each table's records are dropped
// before the next is fetched.
type Matcher struct {
	fetcher RecordFetcher
	scorer  *Scorer
	logger  *zap.Logger
	hook    TableHook
}

// MatcherOption is a functional option for configuring the matcher
type MatcherOption func(*Matcher)

// WithMatcherLogger sets the logger
func WithMatcherLogger(logger *zap.Logger) MatcherOption {
	return func(m *Matcher) {
		m.logger = logger
	}
}

// WithScorer replaces the default scorer
func WithScorer(scorer *Scorer) MatcherOption {
	return func(m *Matcher) {
		m.scorer = scorer
	}
}

// WithTableHook installs a per-table hook, used for tracing and metrics
func WithTableHook(hook TableHook) MatcherOption {
	return func(m *Matcher) {
		m.hook = hook
	}
}

// NewMatcher creates a new matcher reading records from fetcher
func NewMatcher(fetcher RecordFetcher, opts ...MatcherOption) *Matcher {
	m := &Matcher{
		fetcher: fetcher,
		scorer:  NewScorer(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Scorer returns the scorer used by the matcher
func (m *Matcher) Scorer() *Scorer {
	return m.scorer
}

type preparedContact struct {
	ref   contact.Contact
	name  Name
	email string
}

// Compute matches contacts against every table in tables. It never fails:
// a table that cannot be read is recorded in Result.TableErrors and skipped.
// Cancellation is only observed between tables; tables not reached are
// reported with the context error.
func (m *Matcher) Compute(ctx context.Context, contacts []contact.Contact, tables []policy.TableMapping) Result {
	result := Result{
		Candidates:  make([]Candidate, 0),
		TableErrors: make(map[string]error),
	}

	prepared := m.prepareContacts(contacts)
	if len(prepared) == 0 {
		m.logger.Debug("No contacts with a display name, skipping matching run")
		return result
	}

	for i, table := range tables {
		if err := ctx.Err(); err != nil {
			for _, rest := range tables[i:] {
				result.TableErrors[rest.Table] = shared.NewTableFetchError(rest.Table, err)
			}
			m.logger.Warn("Matching run interrupted",
				zap.Int("tables_skipped", len(tables)-i),
				zap.Error(err),
			)
			break
		}

		tableCtx, done := ctx, func(int, error) {}
		if m.hook != nil {
			tableCtx, done = m.hook(ctx, table.Table)
		}

		found, err := m.matchTable(tableCtx, prepared, table)
		done(len(found), err)
		if err != nil {
			result.TableErrors[table.Table] = shared.NewTableFetchError(table.Table, err)
			m.logger.Warn("Policy table skipped",
				zap.String("table", table.Table),
				zap.Error(err),
			)
			continue
		}

		result.Candidates = append(result.Candidates, found...)
	}

	return result
}

func (m *Matcher) prepareContacts(contacts []contact.Contact) []preparedContact {
	prepared := make([]preparedContact, 0, len(contacts))
	for _, c := range contacts {
		if !c.HasName() {
			continue
		}
		prepared = append(prepared, preparedContact{
			ref:   c,
			name:  m.scorer.Prepare(c.DisplayName),
			email: foldEmail(c.Email),
		})
	}
	return prepared
}

func (m *Matcher) matchTable(ctx context.Context, contacts []preparedContact, table policy.TableMapping) ([]Candidate, error) {
	records, err := m.fetcher.FetchPolicyRecords(ctx, table)
	if err != nil {
		return nil, err
	}

	found := make([]Candidate, 0)
	seen := make(map[candidateKey]struct{})

	// name pass
	for _, rec := range records {
		if !rec.HasName() {
			continue
		}
		recName := m.scorer.Prepare(rec.PolicyholderName)
		for i := range contacts {
			score := m.scorer.Compare(contacts[i].name, recName)
			if !m.scorer.Accepts(score) {
				continue
			}
			c := newCandidate(contacts[i].ref.ID, table.Table, rec, MatchTypeNameSimilarity, score)
			if _, dup := seen[c.key()]; dup {
				continue
			}
			seen[c.key()] = struct{}{}
			found = append(found, c)
		}
	}

	// email pass
	byEmail := make(map[string][]int)
	for i := range contacts {
		if contacts[i].email != "" {
			byEmail[contacts[i].email] = append(byEmail[contacts[i].email], i)
		}
	}
	if len(byEmail) == 0 {
		return found, nil
	}
	for _, rec := range records {
		if !rec.HasName() || !rec.HasEmail() {
			continue
		}
		for _, i := range byEmail[foldEmail(rec.Email)] {
			c := newCandidate(contacts[i].ref.ID, table.Table, rec, MatchTypeEmailExact, 1.0)
			if _, dup := seen[c.key()]; dup {
				continue
			}
			seen[c.key()] = struct{}{}
			found = append(found, c)
		}
	}

	return found, nil
}

func newCandidate(contactID uuid.UUID, table string, rec policy.Record, matchType MatchType, score float64) Candidate {
	rec.SourceTable = table
	return Candidate{
		ContactID:    contactID,
		PolicyTable:  table,
		PolicyNumber: rec.PolicyNumber,
		MatchType:    matchType,
		Score:        score,
		Record:       rec,
	}
}

func foldEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
