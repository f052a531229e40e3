package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/boscod/trackwatch/internal/logctx"
	"github.com/boscod/trackwatch/internal/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// RuleKind selects the application or website rule table.
type RuleKind string

const (
	RuleApplication RuleKind = "application"
	RuleWebsite     RuleKind = "website"
)

func ParseRuleKind(s string) (RuleKind, error) {
	switch k := RuleKind(strings.ToLower(strings.TrimSpace(s))); k {
	case RuleApplication, RuleWebsite:
		return k, nil
	case "applications":
		return RuleApplication, nil
	case "websites":
		return RuleWebsite, nil
	}
	return "", validationError("unknown rule kind %q", s)
}

// BlockRule is the API view of an application or website block rule.
// TargetID is the application or website id, Pattern the process name or
// domain substring.
type BlockRule struct {
	ID         int64        `json:"id"`
	Kind       RuleKind     `json:"kind"`
	Scope      models.Scope `json:"scope"`
	UserID     *int64       `json:"user_id,omitempty"`
	MachineID  *int64       `json:"machine_id,omitempty"`
	TargetID   *int64       `json:"target_id,omitempty"`
	CategoryID *int64       `json:"category_id,omitempty"`
	Pattern    *string      `json:"pattern,omitempty"`
	Reason     *string      `json:"reason,omitempty"`
	IsActive   bool         `json:"is_active"`
	CreatedBy  *int64       `json:"created_by,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// RuleInput is the body of a create-or-update rule request.
type RuleInput struct {
	Scope      string `json:"scope"`
	UserID     *int64 `json:"user_id"`
	MachineID  *int64 `json:"machine_id"`
	TargetID   *int64 `json:"target_id"`
	CategoryID *int64 `json:"category_id"`
	Pattern    string `json:"pattern"`
	Reason     string `json:"reason"`
	IsActive   *bool  `json:"is_active"`
}

// BulkRuleInput blocks several catalog entries at one scope.
type BulkRuleInput struct {
	Scope     string  `json:"scope"`
	UserID    *int64  `json:"user_id"`
	MachineID *int64  `json:"machine_id"`
	TargetIDs []int64 `json:"target_ids"`
	Reason    string  `json:"reason"`
}

// RuleFilter narrows ListRules. Zero values match everything.
type RuleFilter struct {
	Scope      models.Scope
	ActiveOnly bool
	UserID     int64
	MachineID  int64
}

type ruleSpec struct {
	Scope      models.Scope
	UserID     *int64
	MachineID  *int64
	TargetID   *int64
	CategoryID *int64
	Pattern    *string
}

type PolicyService struct {
	db *bun.DB
}

func NewPolicyService(db *bun.DB) *PolicyService {
	return &PolicyService{db: db}
}

func resolveScope(scope string, userID, machineID *int64) (models.Scope, *int64, *int64, error) {
	sc, err := models.ParseScope(scope)
	if err != nil {
		return "", nil, nil, validationError("%s", err.Error())
	}
	switch sc {
	case models.ScopeUser:
		if userID == nil || *userID <= 0 {
			return "", nil, nil, validationError("user_id is required for user scope")
		}
		return sc, userID, nil, nil
	case models.ScopeMachine:
		if machineID == nil || *machineID <= 0 {
			return "", nil, nil, validationError("machine_id is required for machine scope")
		}
		return sc, nil, machineID, nil
	}
	return sc, nil, nil, nil
}

func (in *RuleInput) spec() (ruleSpec, error) {
	scope, userID, machineID, err := resolveScope(in.Scope, in.UserID, in.MachineID)
	if err != nil {
		return ruleSpec{}, err
	}

	spec := ruleSpec{Scope: scope, UserID: userID, MachineID: machineID}
	targets := 0
	if in.TargetID != nil && *in.TargetID > 0 {
		spec.TargetID = in.TargetID
		targets++
	}
	if in.CategoryID != nil && *in.CategoryID > 0 {
		spec.CategoryID = in.CategoryID
		targets++
	}
	if p := optionalString(in.Pattern); p != nil {
		spec.Pattern = p
		targets++
	}
	if targets != 1 {
		return ruleSpec{}, validationError("exactly one of target_id, category_id or pattern is required")
	}
	return spec, nil
}

func ruleTable(kind RuleKind) any {
	if kind == RuleWebsite {
		return (*models.WebsiteBlock)(nil)
	}
	return (*models.ApplicationBlock)(nil)
}

func ruleColumns(kind RuleKind) (target, pattern string) {
	if kind == RuleWebsite {
		return "website_id", "domain_pattern"
	}
	return "application_id", "process_name"
}

func whereNullable(q *bun.SelectQuery, column string, v any) *bun.SelectQuery {
	switch x := v.(type) {
	case *int64:
		if x == nil {
			return q.Where("? IS NULL", bun.Ident(column))
		}
		return q.Where("? = ?", bun.Ident(column), *x)
	case *string:
		if x == nil {
			return q.Where("? IS NULL", bun.Ident(column))
		}
		return q.Where("? = ?", bun.Ident(column), *x)
	}
	return q
}

// findIdentical returns the id of a rule with the same scope and target,
// or 0.
func findIdentical(ctx context.Context, db bun.IDB, kind RuleKind, spec ruleSpec) (int64, error) {
	targetCol, patternCol := ruleColumns(kind)

	q := db.NewSelect().
		Model(ruleTable(kind)).
		Column("id").
		Where("scope = ?", spec.Scope)
	q = whereNullable(q, "user_id", spec.UserID)
	q = whereNullable(q, "machine_id", spec.MachineID)
	q = whereNullable(q, targetCol, spec.TargetID)
	q = whereNullable(q, "category_id", spec.CategoryID)
	q = whereNullable(q, patternCol, spec.Pattern)

	var ids []int64
	if err := q.Order("id ASC").Limit(1).Scan(ctx, &ids); err != nil {
		return 0, fmt.Errorf("load rule: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return ids[0], nil
}

// checkReferences verifies that every id a rule points at exists.
func checkReferences(ctx context.Context, db bun.IDB, kind RuleKind, spec ruleSpec) error {
	type ref struct {
		model any
		id    *int64
		what  string
	}
	refs := []ref{
		{(*models.User)(nil), spec.UserID, "user"},
		{(*models.Machine)(nil), spec.MachineID, "machine"},
	}
	if kind == RuleWebsite {
		refs = append(refs,
			ref{(*models.Website)(nil), spec.TargetID, "website"},
			ref{(*models.WebsiteCategory)(nil), spec.CategoryID, "website category"})
	} else {
		refs = append(refs,
			ref{(*models.Application)(nil), spec.TargetID, "application"},
			ref{(*models.ApplicationCategory)(nil), spec.CategoryID, "application category"})
	}

	for _, r := range refs {
		if r.id == nil {
			continue
		}
		exists, err := db.NewSelect().Model(r.model).Where("id = ?", *r.id).Exists(ctx)
		if err != nil {
			return fmt.Errorf("load %s: %w", r.what, err)
		}
		if !exists {
			return notFound(fmt.Sprintf("%s %d", r.what, *r.id))
		}
	}
	return nil
}

// UpsertRule creates a rule, or updates the active flag and reason of an
// existing rule with the same scope and target. created reports which.
func (s *PolicyService) UpsertRule(ctx context.Context, kind RuleKind, in *RuleInput, actorID int64) (*BlockRule, bool, error) {
	spec, err := in.spec()
	if err != nil {
		return nil, false, err
	}
	active := in.IsActive == nil || *in.IsActive
	reason := optionalString(in.Reason)

	var (
		id      int64
		created bool
	)
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := checkReferences(ctx, tx, kind, spec); err != nil {
			return err
		}

		id, err = findIdentical(ctx, tx, kind, spec)
		if err != nil {
			return err
		}
		if id > 0 {
			_, err := tx.NewUpdate().
				Model(ruleTable(kind)).
				Set("is_active = ?", active).
				Set("reason = ?", reason).
				Set("updated_at = ?", time.Now().UTC()).
				Where("id = ?", id).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("update rule: %w", err)
			}
			return nil
		}

		created = true
		id, err = insertRule(ctx, tx, kind, spec, reason, active, actorID)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	logctx.Info(ctx, "block rule saved",
		zap.String("kind", string(kind)),
		zap.Int64("rule_id", id),
		zap.String("scope", string(spec.Scope)),
		zap.Bool("created", created),
		zap.Bool("active", active))

	rule, err := s.GetRule(ctx, kind, id)
	return rule, created, err
}

func insertRule(ctx context.Context, tx bun.IDB, kind RuleKind, spec ruleSpec, reason *string, active bool, actorID int64) (int64, error) {
	var createdBy *int64
	if actorID > 0 {
		createdBy = &actorID
	}

	if kind == RuleWebsite {
		rule := &models.WebsiteBlock{
			Scope:         spec.Scope,
			UserID:        spec.UserID,
			MachineID:     spec.MachineID,
			WebsiteID:     spec.TargetID,
			CategoryID:    spec.CategoryID,
			DomainPattern: spec.Pattern,
			Reason:        reason,
			IsActive:      active,
			CreatedBy:     createdBy,
		}
		if _, err := tx.NewInsert().Model(rule).Exec(ctx); err != nil {
			return 0, fmt.Errorf("insert website rule: %w", err)
		}
		return rule.ID, nil
	}

	rule := &models.ApplicationBlock{
		Scope:         spec.Scope,
		UserID:        spec.UserID,
		MachineID:     spec.MachineID,
		ApplicationID: spec.TargetID,
		CategoryID:    spec.CategoryID,
		ProcessName:   spec.Pattern,
		Reason:        reason,
		IsActive:      active,
		CreatedBy:     createdBy,
	}
	if _, err := tx.NewInsert().Model(rule).Exec(ctx); err != nil {
		return 0, fmt.Errorf("insert application rule: %w", err)
	}
	return rule.ID, nil
}

// BulkBlock creates an active rule for every listed catalog entry that is
// not already covered by an identical rule. Existing identical rules are
// reactivated. It returns how many rules were created.
func (s *PolicyService) BulkBlock(ctx context.Context, kind RuleKind, in *BulkRuleInput, actorID int64) (int, error) {
	scope, userID, machineID, err := resolveScope(in.Scope, in.UserID, in.MachineID)
	if err != nil {
		return 0, err
	}
	if len(in.TargetIDs) == 0 {
		return 0, validationError("target_ids is required")
	}
	reason := optionalString(in.Reason)

	created := 0
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		seen := make(map[int64]bool, len(in.TargetIDs))
		for _, targetID := range in.TargetIDs {
			if targetID <= 0 || seen[targetID] {
				continue
			}
			seen[targetID] = true

			id := targetID
			spec := ruleSpec{Scope: scope, UserID: userID, MachineID: machineID, TargetID: &id}
			if err := checkReferences(ctx, tx, kind, spec); err != nil {
				return err
			}

			existing, err := findIdentical(ctx, tx, kind, spec)
			if err != nil {
				return err
			}
			if existing > 0 {
				_, err := tx.NewUpdate().
					Model(ruleTable(kind)).
					Set("is_active = ?", true).
					Set("updated_at = ?", time.Now().UTC()).
					Where("id = ?", existing).
					Exec(ctx)
				if err != nil {
					return fmt.Errorf("update rule: %w", err)
				}
				continue
			}

			if _, err := insertRule(ctx, tx, kind, spec, reason, true, actorID); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

// SetRuleActive turns a rule on or off. The next report observes it.
func (s *PolicyService) SetRuleActive(ctx context.Context, kind RuleKind, id int64, active bool) (*BlockRule, error) {
	res, err := s.db.NewUpdate().
		Model(ruleTable(kind)).
		Set("is_active = ?", active).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("update rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, notFound(fmt.Sprintf("rule %d", id))
	}
	return s.GetRule(ctx, kind, id)
}

// ToggleRule flips the active flag of a rule.
func (s *PolicyService) ToggleRule(ctx context.Context, kind RuleKind, id int64) (*BlockRule, error) {
	rule, err := s.GetRule(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	return s.SetRuleActive(ctx, kind, id, !rule.IsActive)
}

func (s *PolicyService) DeleteRule(ctx context.Context, kind RuleKind, id int64) error {
	res, err := s.db.NewDelete().
		Model(ruleTable(kind)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(fmt.Sprintf("rule %d", id))
	}
	return nil
}

func (s *PolicyService) GetRule(ctx context.Context, kind RuleKind, id int64) (*BlockRule, error) {
	rules, err := s.listRules(ctx, kind, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("id = ?", id)
	})
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, notFound(fmt.Sprintf("rule %d", id))
	}
	return &rules[0], nil
}

func (s *PolicyService) ListRules(ctx context.Context, kind RuleKind, f RuleFilter) ([]BlockRule, error) {
	return s.listRules(ctx, kind, func(q *bun.SelectQuery) *bun.SelectQuery {
		if f.Scope != "" {
			q = q.Where("scope = ?", f.Scope)
		}
		if f.ActiveOnly {
			q = q.Where("is_active = ?", true)
		}
		if f.UserID > 0 {
			q = q.Where("user_id = ?", f.UserID)
		}
		if f.MachineID > 0 {
			q = q.Where("machine_id = ?", f.MachineID)
		}
		return q.Order("created_at DESC", "id DESC")
	})
}

func (s *PolicyService) listRules(ctx context.Context, kind RuleKind, apply func(*bun.SelectQuery) *bun.SelectQuery) ([]BlockRule, error) {
	if kind == RuleWebsite {
		var blocks []models.WebsiteBlock
		if err := apply(s.db.NewSelect().Model(&blocks)).Scan(ctx); err != nil {
			return nil, fmt.Errorf("load website rules: %w", err)
		}
		out := make([]BlockRule, 0, len(blocks))
		for _, b := range blocks {
			out = append(out, BlockRule{
				ID: b.ID, Kind: RuleWebsite, Scope: b.Scope,
				UserID: b.UserID, MachineID: b.MachineID,
				TargetID: b.WebsiteID, CategoryID: b.CategoryID, Pattern: b.DomainPattern,
				Reason: b.Reason, IsActive: b.IsActive, CreatedBy: b.CreatedBy,
				CreatedAt: b.CreatedAt, UpdatedAt: b.UpdatedAt,
			})
		}
		return out, nil
	}

	var blocks []models.ApplicationBlock
	if err := apply(s.db.NewSelect().Model(&blocks)).Scan(ctx); err != nil {
		return nil, fmt.Errorf("load application rules: %w", err)
	}
	out := make([]BlockRule, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, BlockRule{
			ID: b.ID, Kind: RuleApplication, Scope: b.Scope,
			UserID: b.UserID, MachineID: b.MachineID,
			TargetID: b.ApplicationID, CategoryID: b.CategoryID, Pattern: b.ProcessName,
			Reason: b.Reason, IsActive: b.IsActive, CreatedBy: b.CreatedBy,
			CreatedAt: b.CreatedAt, UpdatedAt: b.UpdatedAt,
		})
	}
	return out, nil
}
