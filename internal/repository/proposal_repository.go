package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-curriculum-api/internal/models"
)

const proposalColumns = `id, kind, discipline_id, grade_level, period, skill_code, order_index, objective_id, level,
       content, explanation, status, created_by, forked_from_id, superseded_by_id, archived_at, created_at, updated_at`

const reviewActionColumns = `id, proposal_id, reviewer_id, action, previous_content, note, created_at`

const insertProposalQuery = `INSERT INTO proposals
	(id, kind, discipline_id, grade_level, period, skill_code, order_index, objective_id, level, content, explanation,
	 status, created_by, forked_from_id, superseded_by_id, archived_at, created_at, updated_at)
	VALUES (:id, :kind, :discipline_id, :grade_level, :period, :skill_code, :order_index, :objective_id, :level, :content, :explanation,
	 :status, :created_by, :forked_from_id, :superseded_by_id, :archived_at, :created_at, :updated_at)`

const insertReviewActionQuery = `INSERT INTO review_actions (id, proposal_id, reviewer_id, action, previous_content, note, created_at)
	VALUES (:id, :proposal_id, :reviewer_id, :action, :previous_content, :note, :created_at)`

// ErrDuplicateProposal is returned when a write collides with a live rubric level.
var ErrDuplicateProposal = errors.New("live proposal already exists")

// ErrScopeInReview is returned by ReplaceDrafts when a live proposal of the scope holds a
// blocking status at the time the scope is locked.
var ErrScopeInReview = errors.New("proposals of this scope already entered review")

// ProposalRepository persists proposals and their append-only review log.
type ProposalRepository struct {
	db *sqlx.DB
}

// NewProposalRepository constructs the repository.
func NewProposalRepository(db *sqlx.DB) *ProposalRepository {
	return &ProposalRepository{db: db}
}

// TransitionPlan describes the writes produced by a review decision. The locked proposal
// passed to the TransitionFunc is mutated in place and persisted alongside the plan.
type TransitionPlan struct {
	Actions         []models.ReviewAction
	Fork            *models.Proposal
	ReparentRubrics bool
}

// TransitionFunc decides the next state from the locked proposal and its action log.
type TransitionFunc func(current *models.Proposal, actions []models.ReviewAction) (*TransitionPlan, error)

// TransitionResult is the committed outcome of a transition.
type TransitionResult struct {
	Proposal *models.Proposal
	Fork     *models.Proposal
	Actions  []models.ReviewAction
}

// DraftScope selects the live proposals replaced by a generation run.
type DraftScope struct {
	SubjectGroup models.SubjectGroupKey
	SkillCode    string
	Kind         models.ProposalKind
	ObjectiveID  string
}

// ReplaceDraftsParams groups the writes of a generation run. When BlockStatuses is set the
// live rows of the scope are locked first and the run aborts if any holds one of them.
type ReplaceDraftsParams struct {
	Scope           DraftScope
	BlockStatuses   []models.ProposalStatus
	DeleteStatuses  []models.ProposalStatus
	ArchiveStatuses []models.ProposalStatus
	Proposals       []models.Proposal
	Actions         []models.ReviewAction
	Now             time.Time
}

// Create inserts a new proposal row.
func (r *ProposalRepository) Create(ctx context.Context, proposal *models.Proposal) error {
	prepareProposal(proposal)
	if _, err := r.db.NamedExecContext(ctx, insertProposalQuery, proposal); err != nil {
		return fmt.Errorf("create proposal: %w", translateWriteError(err))
	}
	return nil
}

// GetByID fetches a proposal by identifier.
func (r *ProposalRepository) GetByID(ctx context.Context, id string) (*models.Proposal, error) {
	query := fmt.Sprintf(`SELECT %s FROM proposals WHERE id = $1`, proposalColumns)
	var proposal models.Proposal
	if err := r.db.GetContext(ctx, &proposal, query, id); err != nil {
		return nil, err
	}
	return &proposal, nil
}

// List returns proposals matching the filter ordered by progression.
func (r *ProposalRepository) List(ctx context.Context, filter models.ProposalFilter) ([]models.Proposal, error) {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM proposals`, proposalColumns))

	args := make([]interface{}, 0, 8)
	conditions := make([]string, 0, 8)
	if filter.SubjectGroup.DisciplineID != "" {
		args = append(args, filter.SubjectGroup.DisciplineID)
		conditions = append(conditions, fmt.Sprintf("discipline_id = $%d", len(args)))
	}
	if filter.SubjectGroup.GradeLevel != "" {
		args = append(args, filter.SubjectGroup.GradeLevel)
		conditions = append(conditions, fmt.Sprintf("grade_level = $%d", len(args)))
	}
	if filter.SubjectGroup.Period > 0 {
		args = append(args, filter.SubjectGroup.Period)
		conditions = append(conditions, fmt.Sprintf("period = $%d", len(args)))
	}
	if filter.SkillCode != "" {
		args = append(args, filter.SkillCode)
		conditions = append(conditions, fmt.Sprintf("skill_code = $%d", len(args)))
	}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)))
	}
	if filter.ObjectiveID != "" {
		args = append(args, filter.ObjectiveID)
		conditions = append(conditions, fmt.Sprintf("objective_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		holders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			holders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(holders, ",")))
	}
	switch {
	case filter.OnlyArchived:
		conditions = append(conditions, "archived_at IS NOT NULL")
	case !filter.IncludeArchived:
		conditions = append(conditions, "archived_at IS NULL")
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY skill_code ASC, order_index ASC, level ASC NULLS FIRST, created_at ASC")

	var proposals []models.Proposal
	if err := r.db.SelectContext(ctx, &proposals, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	return proposals, nil
}

// ListActions returns the review log for the given proposals keyed by proposal id.
func (r *ProposalRepository) ListActions(ctx context.Context, proposalIDs []string) (map[string][]models.ReviewAction, error) {
	result := make(map[string][]models.ReviewAction, len(proposalIDs))
	if len(proposalIDs) == 0 {
		return result, nil
	}
	args := make([]interface{}, len(proposalIDs))
	for i, id := range proposalIDs {
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT %s FROM review_actions WHERE proposal_id IN (%s) ORDER BY created_at ASC, id ASC`,
		reviewActionColumns, placeholders(1, len(proposalIDs)))
	var actions []models.ReviewAction
	if err := r.db.SelectContext(ctx, &actions, query, args...); err != nil {
		return nil, fmt.Errorf("list review actions: %w", err)
	}
	for _, action := range actions {
		result[action.ProposalID] = append(result[action.ProposalID], action)
	}
	return result, nil
}

// Transition locks the proposal row, lets fn decide the next state and persists the
// outcome in one transaction. Any error from fn rolls back every write.
func (r *ProposalRepository) Transition(ctx context.Context, id string, fn TransitionFunc) (result *TransitionResult, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin proposal transition: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.Proposal
	lockQuery := fmt.Sprintf(`SELECT %s FROM proposals WHERE id = $1 FOR UPDATE`, proposalColumns)
	if err = tx.GetContext(ctx, &current, lockQuery, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock proposal: %w", err)
	}

	var actions []models.ReviewAction
	actionsQuery := fmt.Sprintf(`SELECT %s FROM review_actions WHERE proposal_id = $1 ORDER BY created_at ASC, id ASC`, reviewActionColumns)
	if err = tx.SelectContext(ctx, &actions, actionsQuery, id); err != nil {
		return nil, fmt.Errorf("load review actions: %w", err)
	}

	plan, err := fn(&current, actions)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		plan = &TransitionPlan{}
	}

	const updateQuery = `UPDATE proposals SET content = :content, status = :status, archived_at = :archived_at,
	superseded_by_id = :superseded_by_id, updated_at = :updated_at WHERE id = :id`
	if _, err = tx.NamedExecContext(ctx, updateQuery, &current); err != nil {
		return nil, fmt.Errorf("update proposal: %w", err)
	}

	// The ancestor is archived before the fork is inserted so the live (objective, level)
	// index never sees two rows; superseded_by_id is checked at commit.
	if plan.Fork != nil {
		prepareProposal(plan.Fork)
		if _, err = tx.NamedExecContext(ctx, insertProposalQuery, plan.Fork); err != nil {
			return nil, fmt.Errorf("insert proposal fork: %w", translateWriteError(err))
		}
	}

	for i := range plan.Actions {
		prepareAction(&plan.Actions[i])
		if _, err = tx.NamedExecContext(ctx, insertReviewActionQuery, plan.Actions[i]); err != nil {
			return nil, fmt.Errorf("insert review action: %w", err)
		}
	}

	if plan.ReparentRubrics && plan.Fork != nil {
		const reparentQuery = `UPDATE proposals SET objective_id = $1, updated_at = $2
	WHERE objective_id = $3 AND kind = $4 AND archived_at IS NULL`
		if _, err = tx.ExecContext(ctx, reparentQuery, plan.Fork.ID, plan.Fork.CreatedAt, current.ID, models.ProposalKindRubricLevel); err != nil {
			return nil, fmt.Errorf("reparent rubric levels: %w", translateWriteError(err))
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit proposal transition: %w", err)
	}

	for _, action := range plan.Actions {
		if action.ProposalID == current.ID {
			actions = append(actions, action)
		}
	}
	return &TransitionResult{Proposal: &current, Fork: plan.Fork, Actions: actions}, nil
}

// ReplaceDrafts removes or archives the live proposals in scope and inserts a fresh
// generation with its initial actions atomically.
func (r *ProposalRepository) ReplaceDrafts(ctx context.Context, params ReplaceDraftsParams) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin draft replacement: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if len(params.BlockStatuses) > 0 {
		where, args := scopeConditions(params.Scope, nil, 1)
		var statuses []models.ProposalStatus
		query := fmt.Sprintf(`SELECT status FROM proposals WHERE %s FOR UPDATE`, where)
		if err = tx.SelectContext(ctx, &statuses, query, args...); err != nil {
			return fmt.Errorf("lock draft scope: %w", err)
		}
		for _, status := range statuses {
			for _, blocked := range params.BlockStatuses {
				if status == blocked {
					return fmt.Errorf("%w: %s", ErrScopeInReview, status)
				}
			}
		}
	}
	if len(params.DeleteStatuses) > 0 {
		where, args := scopeConditions(params.Scope, params.DeleteStatuses, 1)
		query := fmt.Sprintf(`DELETE FROM proposals WHERE %s`, where)
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("delete drafts: %w", err)
		}
	}
	if len(params.ArchiveStatuses) > 0 {
		now := params.Now
		if now.IsZero() {
			now = time.Now().UTC()
		}
		where, args := scopeConditions(params.Scope, params.ArchiveStatuses, 2)
		query := fmt.Sprintf(`UPDATE proposals SET archived_at = $1, updated_at = $1 WHERE %s`, where)
		if _, err = tx.ExecContext(ctx, query, append([]interface{}{now}, args...)...); err != nil {
			return fmt.Errorf("archive replaced proposals: %w", err)
		}
	}
	for i := range params.Proposals {
		prepareProposal(&params.Proposals[i])
		if _, err = tx.NamedExecContext(ctx, insertProposalQuery, params.Proposals[i]); err != nil {
			return fmt.Errorf("insert generated proposal: %w", translateWriteError(err))
		}
	}
	for i := range params.Actions {
		prepareAction(&params.Actions[i])
		if _, err = tx.NamedExecContext(ctx, insertReviewActionQuery, params.Actions[i]); err != nil {
			return fmt.Errorf("insert generated review action: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit draft replacement: %w", err)
	}
	return nil
}

func translateWriteError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicateProposal, pqErr.Constraint)
	}
	return err
}

func scopeConditions(scope DraftScope, statuses []models.ProposalStatus, start int) (string, []interface{}) {
	args := make([]interface{}, 0, 8)
	conditions := []string{"archived_at IS NULL"}
	add := func(column string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, start+len(args)-1))
	}
	add("kind", scope.Kind)
	if scope.ObjectiveID != "" {
		add("objective_id", scope.ObjectiveID)
	} else {
		add("discipline_id", scope.SubjectGroup.DisciplineID)
		add("grade_level", scope.SubjectGroup.GradeLevel)
		add("period", scope.SubjectGroup.Period)
		add("skill_code", scope.SkillCode)
	}
	if len(statuses) > 0 {
		for _, status := range statuses {
			args = append(args, status)
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", placeholders(start+len(args)-len(statuses), len(statuses))))
	}
	return strings.Join(conditions, " AND "), args
}

func placeholders(start, n int) string {
	values := make([]string, n)
	for i := 0; i < n; i++ {
		values[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(values, ",")
}

func prepareProposal(proposal *models.Proposal) {
	if proposal.ID == "" {
		proposal.ID = uuid.NewString()
	}
	if proposal.Status == "" {
		proposal.Status = models.ProposalStatusDraft
	}
	now := time.Now().UTC()
	if proposal.CreatedAt.IsZero() {
		proposal.CreatedAt = now
	}
	if proposal.UpdatedAt.IsZero() {
		proposal.UpdatedAt = proposal.CreatedAt
	}
}

func prepareAction(action *models.ReviewAction) {
	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}
}
