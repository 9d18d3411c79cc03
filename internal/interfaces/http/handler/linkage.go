package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/polizalink/backend/internal/application/linkage"
	"github.com/polizalink/backend/internal/domain/shared"
	"github.com/polizalink/backend/internal/interfaces/http/dto"
	"github.com/polizalink/backend/internal/interfaces/http/middleware"
)

// MaxEnrichmentIDs bounds the ids accepted by one enrichment request
const MaxEnrichmentIDs = 200

// LinkageService is the query surface of the linkage engine
type LinkageService interface {
	ComputeRelationships(ctx context.Context) (*linkage.RelationshipsResult, error)
	GetPoliciesForContact(ctx context.Context, id uuid.UUID) (*linkage.ContactPolicies, error)
	PromoteClientStatuses(ctx context.Context) (*linkage.PromotionOutcome, error)
	ListTables(ctx context.Context) ([]linkage.TableInfo, error)
}

// ContactEnricher resolves the product tables of many contacts
type ContactEnricher interface {
	Enrich(ctx context.Context, ids []uuid.UUID) map[uuid.UUID]linkage.ContactTables
}

// PolicyRecordMutator writes product table records
type PolicyRecordMutator interface {
	Create(ctx context.Context, table string, in linkage.CreateRecordInput) error
	Update(ctx context.Context, table, policyNumber string, in linkage.UpdateRecordInput) error
	Delete(ctx context.Context, table, policyNumber string) error
}

// LinkageHandler serves contact to policy linkage endpoints
type LinkageHandler struct {
	BaseHandler
	service  LinkageService
	enricher ContactEnricher
	records  PolicyRecordMutator
}

// NewLinkageHandler creates a new LinkageHandler
func NewLinkageHandler(service LinkageService, enricher ContactEnricher, records PolicyRecordMutator) *LinkageHandler {
	return &LinkageHandler{
		service:  service,
		enricher: enricher,
		records:  records,
	}
}

// ============================================================================
// Response DTOs
// ============================================================================

// ContactTablesResponse is one entry of an enrichment response
type ContactTablesResponse struct {
	ContactID uuid.UUID `json:"contact_id"`
	Tables    []string  `json:"tables"`
	Error     string    `json:"error,omitempty"`
}

// PolicyRecordResponse identifies a written record
type PolicyRecordResponse struct {
	Table        string `json:"table"`
	PolicyNumber string `json:"policy_number"`
}

// ============================================================================
// Queries
// ============================================================================

// GetRelationships returns every contact with at least one linked policy.
// A run where some tables failed still answers 200 with table_errors set.
func (h *LinkageHandler) GetRelationships(c *gin.Context) {
	result, err := h.service.ComputeRelationships(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// GetContactPolicies returns the policies linked to one contact
func (h *LinkageHandler) GetContactPolicies(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid contact ID format")
		return
	}

	result, err := h.service.GetPoliciesForContact(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// GetContactTables returns, for each contact in ?ids=, the product tables
// holding their policies. ids may be repeated or comma separated.
func (h *LinkageHandler) GetContactTables(c *gin.Context) {
	ids, err := parseIDs(c.QueryArray("ids"))
	if err != nil {
		h.ValidationError(c, []dto.ValidationDetail{{Field: "ids", Message: err.Error()}})
		return
	}

	results := h.enricher.Enrich(c.Request.Context(), ids)

	out := make([]ContactTablesResponse, 0, len(results))
	for _, id := range ids {
		r, ok := results[id]
		if !ok {
			continue
		}
		entry := ContactTablesResponse{ContactID: id, Tables: r.Tables}
		if entry.Tables == nil {
			entry.Tables = []string{}
		}
		if r.Err != nil {
			entry.Error = r.Err.Error()
		}
		out = append(out, entry)
		delete(results, id)
	}
	h.SuccessWithTotal(c, out, int64(len(out)))
}

// ListPolicyTables returns every configured product table with its
// record count
func (h *LinkageHandler) ListPolicyTables(c *gin.Context) {
	tables, err := h.service.ListTables(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithTotal(c, tables, int64(len(tables)))
}

// ============================================================================
// Commands
// ============================================================================

// PromoteContacts moves every prospect with a linked policy to client
func (h *LinkageHandler) PromoteContacts(c *gin.Context) {
	outcome, err := h.service.PromoteClientStatuses(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, outcome)
}

// CreatePolicyRecord adds a record to a product table
func (h *LinkageHandler) CreatePolicyRecord(c *gin.Context) {
	var in linkage.CreateRecordInput
	if err := c.ShouldBindJSON(&in); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	table := c.Param("table")
	if err := h.records.Create(c.Request.Context(), table, in); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, PolicyRecordResponse{Table: table, PolicyNumber: strings.TrimSpace(in.PolicyNumber)})
}

// UpdatePolicyRecord overwrites the record with the given policy number
func (h *LinkageHandler) UpdatePolicyRecord(c *gin.Context) {
	var in linkage.UpdateRecordInput
	if err := c.ShouldBindJSON(&in); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	table, number := c.Param("table"), c.Param("number")
	if err := h.records.Update(c.Request.Context(), table, number, in); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, PolicyRecordResponse{Table: table, PolicyNumber: number})
}

// DeletePolicyRecord removes the record with the given policy number
func (h *LinkageHandler) DeletePolicyRecord(c *gin.Context) {
	if err := h.records.Delete(c.Request.Context(), c.Param("table"), c.Param("number")); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// parseIDs accepts repeated and comma separated values
func parseIDs(raw []string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, v := range raw {
		for part := range strings.SplitSeq(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := uuid.Parse(part)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid contact ID %q", shared.ErrInvalidInput, part)
			}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one contact ID is required", shared.ErrInvalidInput)
	}
	if len(ids) > MaxEnrichmentIDs {
		return nil, fmt.Errorf("%w: at most %d contact IDs are allowed", shared.ErrInvalidInput, MaxEnrichmentIDs)
	}
	return ids, nil
}
