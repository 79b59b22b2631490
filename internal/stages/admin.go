package stages

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/jonathan/staffing-pipeline/internal/db"
	"github.com/jonathan/staffing-pipeline/internal/pipelineerr"
)

// DocumentSpec attaches a document (by form code) to a stage
type DocumentSpec struct {
	Code       string `json:"code"`
	IsRequired bool   `json:"is_required"`
	Order      int    `json:"order"`
}

// StageSpec describes a stage to create
type StageSpec struct {
	Name      string         `json:"name"`
	Type      db.StageType   `json:"type"`
	Order     int            `json:"order"`
	IsActive  *bool          `json:"is_active,omitempty"`
	Documents []DocumentSpec `json:"documents,omitempty"`
}

func (s StageSpec) active() bool {
	return s.IsActive == nil || *s.IsActive
}

// StageUpdate carries the fields of a partial stage update
type StageUpdate struct {
	Name     *string
	Type     *db.StageType
	Order    *int
	IsActive *bool
}

// StageOrder assigns a new order to one stage
type StageOrder struct {
	ID    uuid.UUID `json:"id"`
	Order int       `json:"order"`
}

// SafetyInfo summarizes what still points at a stage
type SafetyInfo struct {
	StageID           uuid.UUID `json:"stage_id"`
	HasApplications   bool      `json:"has_applications"`
	ApplicationCount  int       `json:"application_count"`
	ActiveCount       int       `json:"active_count"`
	LogReferenceCount int       `json:"log_reference_count"`
	CanSafelyDelete   bool      `json:"can_safely_delete"`
	CanDisable        bool      `json:"can_disable"`
	Warning           string    `json:"warning,omitempty"`
}

// Admin writes stage configuration. Every write keeps active stage orders
// unique per company so that the catalog never has to break a tie.
type Admin struct {
	store db.Store
}

// NewAdmin creates a stage administrator over store
func NewAdmin(store db.Store) *Admin {
	return &Admin{store: store}
}

// DefaultStages returns the two-stage pipeline every new company starts with
func DefaultStages() []StageSpec {
	req := func(codes ...string) []DocumentSpec {
		docs := make([]DocumentSpec, len(codes))
		for i, c := range codes {
			docs[i] = DocumentSpec{Code: c, IsRequired: true, Order: i + 1}
		}
		return docs
	}
	return []StageSpec{
		{
			Name:      "Pre-Hire",
			Type:      db.StageTypeHiring,
			Order:     1,
			Documents: req("1020", "1021", "1050", "1060", "1070", "1204"),
		},
		{
			Name:  "Onboarding",
			Type:  db.StageTypeOnboarding,
			Order: 2,
			Documents: req("1010", "1201", "1202", "1203", "1220", "1530", "1600",
				"1720", "1740", "2900", "4000", "I-9", "W-4"),
		},
	}
}

// List returns a company's stages; inactive ones only when includeInactive is set
func (a *Admin) List(ctx context.Context, companyID uuid.UUID, includeInactive bool) ([]db.Stage, error) {
	var out []db.Stage
	err := a.store.InTx(ctx, func(q db.Queries) error {
		var err error
		if includeInactive {
			out, err = q.ListStages(ctx, companyID)
		} else {
			out, err = q.ListActiveStages(ctx, companyID)
		}
		return err
	})
	return out, err
}

// Check verifies that a company's active stages can be navigated
func (a *Admin) Check(ctx context.Context, companyID uuid.UUID) (*Pipeline, error) {
	var p *Pipeline
	err := a.store.InTx(ctx, func(q db.Queries) error {
		var err error
		p, err = Load(ctx, q, companyID)
		return err
	})
	return p, err
}

// CreateDefaultStages seeds a company with DefaultStages. Document codes that
// are not in the catalog are skipped.
func (a *Admin) CreateDefaultStages(ctx context.Context, companyID uuid.UUID) ([]db.Stage, error) {
	return a.Apply(ctx, companyID, DefaultStages(), false)
}

// Apply creates every spec in one unit of work. With strict set, an unknown
// document code fails the whole batch.
func (a *Admin) Apply(ctx context.Context, companyID uuid.UUID, specs []StageSpec, strict bool) ([]db.Stage, error) {
	for i, spec := range specs {
		if err := validateSpec(spec); err != nil {
			return nil, fmt.Errorf("stage %d: %w", i+1, err)
		}
	}

	var created []db.Stage
	err := a.store.InTx(ctx, func(q db.Queries) error {
		if err := q.LockCompanyStages(ctx, companyID); err != nil {
			return err
		}
		for _, spec := range specs {
			s, err := createStage(ctx, q, companyID, spec, strict)
			if err != nil {
				return err
			}
			created = append(created, *s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[stages] created %d stage(s) for company %s", len(created), companyID)
	return created, nil
}

// CreateStage adds one stage to a company
func (a *Admin) CreateStage(ctx context.Context, companyID uuid.UUID, spec StageSpec) (*db.Stage, error) {
	if err := validateSpec(spec); err != nil {
		return nil, err
	}
	var stage *db.Stage
	err := a.store.InTx(ctx, func(q db.Queries) error {
		if err := q.LockCompanyStages(ctx, companyID); err != nil {
			return err
		}
		var err error
		stage, err = createStage(ctx, q, companyID, spec, true)
		return err
	})
	return stage, err
}

func validateSpec(spec StageSpec) error {
	if strings.TrimSpace(spec.Name) == "" {
		return &pipelineerr.ValidationError{Field: "name", Message: "is required"}
	}
	if len(spec.Name) > 255 {
		return &pipelineerr.ValidationError{Field: "name", Message: "must be at most 255 characters"}
	}
	if !spec.Type.Valid() {
		return &pipelineerr.ValidationError{Field: "type", Message: fmt.Sprintf("unknown stage type %q", spec.Type)}
	}
	for _, d := range spec.Documents {
		if d.Code == "" {
			return &pipelineerr.ValidationError{Field: "documents.code", Message: "is required"}
		}
		if d.Order < 1 {
			return &pipelineerr.ValidationError{Field: "documents.order", Message: "must be at least 1"}
		}
	}
	return nil
}

func createStage(ctx context.Context, q db.Queries, companyID uuid.UUID, spec StageSpec, strict bool) (*db.Stage, error) {
	stage := &db.Stage{
		CompanyID: companyID,
		Name:      strings.TrimSpace(spec.Name),
		Type:      spec.Type,
		Order:     spec.Order,
		IsActive:  spec.active(),
	}
	if stage.IsActive {
		if err := ensureOrderFree(ctx, q, companyID, uuid.Nil, stage.Order); err != nil {
			return nil, err
		}
	}
	if err := q.CreateStage(ctx, stage); err != nil {
		return nil, err
	}
	if len(spec.Documents) > 0 {
		if err := attachDocuments(ctx, q, stage.ID, spec.Documents, strict); err != nil {
			return nil, err
		}
	}
	return stage, nil
}

// ensureOrderFree rejects order when another active stage of the company
// already holds it. self is ignored, so a stage may keep its own order.
// Callers hold LockCompanyStages.
func ensureOrderFree(ctx context.Context, q db.StageQueries, companyID, self uuid.UUID, order int) error {
	active, err := q.ListActiveStages(ctx, companyID)
	if err != nil {
		return fmt.Errorf("failed to list stages: %w", err)
	}
	for _, s := range active {
		if s.ID != self && s.Order == order {
			return &pipelineerr.ConfigurationError{
				CompanyID: companyID,
				StageID:   s.ID,
				Message:   fmt.Sprintf("order %d is already used by active stage %q", order, s.Name),
			}
		}
	}
	return nil
}

func attachDocuments(ctx context.Context, q db.Queries, stageID uuid.UUID, docs []DocumentSpec, strict bool) error {
	reqs := make([]db.DocumentRequirement, 0, len(docs))
	for _, d := range docs {
		doc, err := q.GetDocumentByCode(ctx, d.Code)
		if err != nil {
			return err
		}
		if doc == nil {
			if strict {
				return &pipelineerr.ValidationError{Field: "documents.code", Message: fmt.Sprintf("unknown document code %q", d.Code)}
			}
			log.Printf("[stages] skipping unknown document code %q for stage %s", d.Code, stageID)
			continue
		}
		reqs = append(reqs, db.DocumentRequirement{
			StageID:    stageID,
			DocumentID: doc.ID,
			IsRequired: d.IsRequired,
			Order:      d.Order,
		})
	}
	return q.ReplaceStageDocuments(ctx, stageID, reqs)
}

func getCompanyStage(ctx context.Context, q db.StageQueries, companyID, stageID uuid.UUID) (*db.Stage, error) {
	stage, err := q.GetStage(ctx, stageID)
	if err != nil {
		return nil, err
	}
	if stage == nil || stage.CompanyID != companyID {
		return nil, pipelineerr.NotFound("stage", stageID)
	}
	return stage, nil
}

// UpdateStage applies a partial update. Disabling a stage that still holds
// active applications is refused.
func (a *Admin) UpdateStage(ctx context.Context, companyID, stageID uuid.UUID, upd StageUpdate) (*db.Stage, error) {
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return nil, &pipelineerr.ValidationError{Field: "name", Message: "must not be empty"}
	}
	if upd.Type != nil && !upd.Type.Valid() {
		return nil, &pipelineerr.ValidationError{Field: "type", Message: fmt.Sprintf("unknown stage type %q", *upd.Type)}
	}

	var stage *db.Stage
	err := a.store.InTx(ctx, func(q db.Queries) error {
		if err := q.LockCompanyStages(ctx, companyID); err != nil {
			return err
		}
		var err error
		stage, err = getCompanyStage(ctx, q, companyID, stageID)
		if err != nil {
			return err
		}

		if upd.IsActive != nil && !*upd.IsActive && stage.IsActive {
			refs, err := q.CountStageReferences(ctx, stageID)
			if err != nil {
				return err
			}
			if refs.ActiveApplications > 0 {
				return &pipelineerr.PolicyViolationError{
					Message: fmt.Sprintf("cannot disable stage with %d active candidate(s)", refs.ActiveApplications),
				}
			}
		}

		if upd.Name != nil {
			stage.Name = strings.TrimSpace(*upd.Name)
		}
		if upd.Type != nil {
			stage.Type = *upd.Type
		}
		if upd.Order != nil {
			stage.Order = *upd.Order
		}
		if upd.IsActive != nil {
			stage.IsActive = *upd.IsActive
		}
		if stage.IsActive {
			if err := ensureOrderFree(ctx, q, companyID, stage.ID, stage.Order); err != nil {
				return err
			}
		}
		return q.UpdateStage(ctx, stage)
	})
	if err != nil {
		return nil, err
	}
	return stage, nil
}

// SetStageDocuments replaces a stage's document list. It returns how many
// active applications sit on the stage, since they see the new list at once.
func (a *Admin) SetStageDocuments(ctx context.Context, companyID, stageID uuid.UUID, docs []DocumentSpec) (int, error) {
	for _, d := range docs {
		if d.Code == "" || d.Order < 1 {
			return 0, &pipelineerr.ValidationError{Field: "documents", Message: "each document needs a code and an order of at least 1"}
		}
	}

	var affected int
	err := a.store.InTx(ctx, func(q db.Queries) error {
		if _, err := getCompanyStage(ctx, q, companyID, stageID); err != nil {
			return err
		}
		refs, err := q.CountStageReferences(ctx, stageID)
		if err != nil {
			return err
		}
		affected = refs.ActiveApplications
		return attachDocuments(ctx, q, stageID, docs, true)
	})
	return affected, err
}

// ReorderStages assigns new orders in one unit of work. The resulting active
// ordering must be free of duplicates or nothing is written.
func (a *Admin) ReorderStages(ctx context.Context, companyID uuid.UUID, orders []StageOrder) ([]db.Stage, error) {
	if len(orders) == 0 {
		return nil, &pipelineerr.ValidationError{Field: "stages", Message: "is required"}
	}

	var result []db.Stage
	err := a.store.InTx(ctx, func(q db.Queries) error {
		if err := q.LockCompanyStages(ctx, companyID); err != nil {
			return err
		}
		for _, o := range orders {
			stage, err := getCompanyStage(ctx, q, companyID, o.ID)
			if err != nil {
				return err
			}
			stage.Order = o.Order
			if err := q.UpdateStage(ctx, stage); err != nil {
				return err
			}
		}
		p, err := Load(ctx, q, companyID)
		if err != nil {
			return err
		}
		result = p.Stages
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SafetyInfo reports whether a stage can be deleted or disabled
func (a *Admin) SafetyInfo(ctx context.Context, companyID, stageID uuid.UUID) (*SafetyInfo, error) {
	var info *SafetyInfo
	err := a.store.InTx(ctx, func(q db.Queries) error {
		if _, err := getCompanyStage(ctx, q, companyID, stageID); err != nil {
			return err
		}
		refs, err := q.CountStageReferences(ctx, stageID)
		if err != nil {
			return err
		}
		info = safetyFromRefs(stageID, refs)
		return nil
	})
	return info, err
}

func safetyFromRefs(stageID uuid.UUID, refs *db.StageReferences) *SafetyInfo {
	info := &SafetyInfo{
		StageID:           stageID,
		HasApplications:   refs.Applications > 0,
		ApplicationCount:  refs.Applications,
		ActiveCount:       refs.ActiveApplications,
		LogReferenceCount: refs.LogEntries,
		CanSafelyDelete:   refs.Applications == 0 && refs.LogEntries == 0,
		CanDisable:        refs.ActiveApplications == 0,
	}
	if !info.CanSafelyDelete {
		info.Warning = fmt.Sprintf(
			"stage is referenced by %d application(s) (%d active) and %d history entr(ies); disable it instead of deleting",
			refs.Applications, refs.ActiveApplications, refs.LogEntries)
	}
	return info
}

// DeleteStage hard-deletes a stage nothing refers to. A stage referenced by
// any application, directly or through transition history, is never deleted.
func (a *Admin) DeleteStage(ctx context.Context, companyID, stageID uuid.UUID) error {
	err := a.store.InTx(ctx, func(q db.Queries) error {
		if err := q.LockCompanyStages(ctx, companyID); err != nil {
			return err
		}
		if _, err := getCompanyStage(ctx, q, companyID, stageID); err != nil {
			return err
		}
		refs, err := q.CountStageReferences(ctx, stageID)
		if err != nil {
			return err
		}
		if refs.Applications > 0 || refs.LogEntries > 0 {
			return &pipelineerr.PolicyViolationError{
				Message: fmt.Sprintf(
					"cannot delete stage: referenced by %d application(s) (%d active) and %d history entr(ies)",
					refs.Applications, refs.ActiveApplications, refs.LogEntries),
			}
		}
		return q.DeleteStage(ctx, stageID)
	})
	if err != nil {
		return err
	}
	log.Printf("[stages] deleted stage %s of company %s", stageID, companyID)
	return nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
