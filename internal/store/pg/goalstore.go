package pg

import (
	"context"
	"database/sql"
	"errors"

	"wekeza.org/internal/goal"
)

// GoalStore is the Postgres-backed goal.Store.
type GoalStore struct {
	db *sql.DB
}

var _ goal.Store = (*GoalStore)(nil)

func NewGoalStore(db *sql.DB) *GoalStore { return &GoalStore{db: db} }

const goalCols = `id, owner_id, name, kind, category, target_amount, balance, interest_accrued, interest_rate, active, start_date, end_date, last_accrual, created_at, updated_at`

func scanGoal(r rowScanner) (goal.Goal, error) {
	var g goal.Goal
	err := r.Scan(&g.ID, &g.OwnerID, &g.Name, &g.Kind, &g.Category, &g.TargetAmount,
		&g.Balance, &g.InterestAccrued, &g.AnnualRate, &g.Active, &g.StartDate,
		&g.EndDate, &g.LastAccrual, &g.CreatedAt, &g.UpdatedAt)
	return g, err
}

func (s *GoalStore) Create(ctx context.Context, g goal.Goal) error {
	_, err := s.db.ExecContext(ctx, `
		insert into goals (id, owner_id, name, kind, category, target_amount, balance,
			interest_accrued, interest_rate, active, start_date, end_date, last_accrual,
			created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		g.ID, g.OwnerID, g.Name, g.Kind, g.Category, g.TargetAmount, g.Balance,
		g.InterestAccrued, g.AnnualRate, g.Active, g.StartDate, g.EndDate, g.LastAccrual,
		g.CreatedAt, g.UpdatedAt)
	return err
}

func (s *GoalStore) Get(ctx context.Context, id string) (goal.Goal, error) {
	row := s.db.QueryRowContext(ctx, `select `+goalCols+` from goals where id=$1`, id)
	g, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return goal.Goal{}, goal.ErrNotFound
	}
	return g, err
}

func (s *GoalStore) Update(ctx context.Context, g goal.Goal) error {
	res, err := s.db.ExecContext(ctx, `
		update goals set name=$2, target_amount=$3, balance=$4, interest_accrued=$5,
			interest_rate=$6, active=$7, end_date=$8, last_accrual=$9, updated_at=$10
		where id=$1`,
		g.ID, g.Name, g.TargetAmount, g.Balance, g.InterestAccrued, g.AnnualRate,
		g.Active, g.EndDate, g.LastAccrual, g.UpdatedAt)
	return requireRow(res, err, goal.ErrNotFound)
}

func (s *GoalStore) ListByOwner(ctx context.Context, ownerID string) ([]goal.Goal, error) {
	return s.list(ctx, `select `+goalCols+` from goals where owner_id=$1 order by created_at`, ownerID)
}

func (s *GoalStore) ListActive(ctx context.Context) ([]goal.Goal, error) {
	return s.list(ctx, `select `+goalCols+` from goals where active order by created_at`)
}

func (s *GoalStore) list(ctx context.Context, query string, args ...any) ([]goal.Goal, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []goal.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *GoalStore) AddMember(ctx context.Context, m goal.Member) error {
	_, err := s.db.ExecContext(ctx, `
		insert into goal_members (goal_id, member_id, contributed, joined_at)
		values ($1,$2,$3,$4)`,
		m.GoalID, m.MemberID, m.Contributed, m.JoinedAt)
	return err
}

func (s *GoalStore) GetMember(ctx context.Context, goalID, memberID string) (goal.Member, error) {
	var m goal.Member
	err := s.db.QueryRowContext(ctx, `
		select goal_id, member_id, contributed, joined_at
		from goal_members where goal_id=$1 and member_id=$2`, goalID, memberID).
		Scan(&m.GoalID, &m.MemberID, &m.Contributed, &m.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return goal.Member{}, goal.ErrNotFound
	}
	return m, err
}

func (s *GoalStore) UpdateMember(ctx context.Context, m goal.Member) error {
	res, err := s.db.ExecContext(ctx, `
		update goal_members set contributed=$3 where goal_id=$1 and member_id=$2`,
		m.GoalID, m.MemberID, m.Contributed)
	return requireRow(res, err, goal.ErrNotFound)
}

func (s *GoalStore) ListMembers(ctx context.Context, goalID string) ([]goal.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		select goal_id, member_id, contributed, joined_at
		from goal_members where goal_id=$1 order by joined_at`, goalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []goal.Member
	for rows.Next() {
		var m goal.Member
		if err := rows.Scan(&m.GoalID, &m.MemberID, &m.Contributed, &m.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
