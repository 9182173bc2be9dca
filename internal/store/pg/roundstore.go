package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"wekeza.org/internal/round"
)

// RoundStore is the Postgres-backed round.Store. Lifecycle decisions
// stay in the round service; this layer only persists.
type RoundStore struct {
	db *sql.DB
}

var _ round.Store = (*RoundStore)(nil)

func NewRoundStore(db *sql.DB) *RoundStore { return &RoundStore{db: db} }

const roundCols = `id, name, creator_id, round_type, payout_model, amount, frequency, max_members, current_members, interest_rate, min_trust, status, start_date, end_date, created_at, updated_at`

func scanRound(r rowScanner) (round.Round, error) {
	var (
		rd         round.Round
		start, end sql.NullTime
	)
	err := r.Scan(&rd.ID, &rd.Name, &rd.CreatorID, &rd.Type, &rd.PayoutModel,
		&rd.ContributionAmount, &rd.Frequency, &rd.MaxMembers, &rd.CurrentMembers,
		&rd.InterestRate, &rd.MinTrustScore, &rd.Status, &start, &end,
		&rd.CreatedAt, &rd.UpdatedAt)
	if err != nil {
		return round.Round{}, err
	}
	rd.StartDate = start.Time
	rd.EndDate = end.Time
	return rd, nil
}

// nullTime maps the zero time to NULL so unset dates round-trip.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func (s *RoundStore) CreateRound(ctx context.Context, r round.Round) error {
	_, err := s.db.ExecContext(ctx, `
		insert into rounds (id, name, creator_id, round_type, payout_model, amount, frequency,
			max_members, current_members, interest_rate, min_trust, status, start_date, end_date,
			created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		r.ID, r.Name, r.CreatorID, r.Type, r.PayoutModel, r.ContributionAmount, r.Frequency,
		r.MaxMembers, r.CurrentMembers, r.InterestRate, r.MinTrustScore, r.Status,
		nullTime(r.StartDate), nullTime(r.EndDate), r.CreatedAt, r.UpdatedAt)
	return err
}

func (s *RoundStore) GetRound(ctx context.Context, id string) (round.Round, error) {
	row := s.db.QueryRowContext(ctx, `select `+roundCols+` from rounds where id=$1`, id)
	r, err := scanRound(row)
	if errors.Is(err, sql.ErrNoRows) {
		return round.Round{}, round.ErrNotFound
	}
	return r, err
}

func (s *RoundStore) UpdateRound(ctx context.Context, r round.Round) error {
	res, err := s.db.ExecContext(ctx, `
		update rounds set name=$2, round_type=$3, payout_model=$4, amount=$5, frequency=$6,
			max_members=$7, current_members=$8, interest_rate=$9, min_trust=$10, status=$11,
			start_date=$12, end_date=$13, updated_at=$14
		where id=$1`,
		r.ID, r.Name, r.Type, r.PayoutModel, r.ContributionAmount, r.Frequency,
		r.MaxMembers, r.CurrentMembers, r.InterestRate, r.MinTrustScore, r.Status,
		nullTime(r.StartDate), nullTime(r.EndDate), r.UpdatedAt)
	return requireRow(res, err, round.ErrNotFound)
}

func (s *RoundStore) ListRounds(ctx context.Context, status round.Status, limit int) ([]round.Round, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+roundCols+` from rounds
		where ($1 = '' or status = $1)
		order by created_at
		limit $2`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []round.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const membershipCols = `id, round_id, member_id, position, trust_at_join, status, total_contributed, interest_earned, locked_amount, contributions_made, missed, has_received_payout, payout_amount, joined_at`

func scanMembership(r rowScanner) (round.Membership, error) {
	var m round.Membership
	err := r.Scan(&m.ID, &m.RoundID, &m.MemberID, &m.PayoutPosition, &m.TrustScoreAtJoin,
		&m.Status, &m.TotalContributed, &m.InterestEarned, &m.LockedAmount,
		&m.ContributionsMade, &m.ContributionsMissed, &m.HasReceivedPayout,
		&m.PayoutAmount, &m.JoinedAt)
	return m, err
}

func (s *RoundStore) CreateMembership(ctx context.Context, m round.Membership) error {
	_, err := s.db.ExecContext(ctx, `
		insert into round_memberships (id, round_id, member_id, position, trust_at_join, status,
			total_contributed, interest_earned, locked_amount, contributions_made, missed,
			has_received_payout, payout_amount, joined_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		m.ID, m.RoundID, m.MemberID, m.PayoutPosition, m.TrustScoreAtJoin, m.Status,
		m.TotalContributed, m.InterestEarned, m.LockedAmount, m.ContributionsMade,
		m.ContributionsMissed, m.HasReceivedPayout, m.PayoutAmount, m.JoinedAt)
	return err
}

func (s *RoundStore) GetMembership(ctx context.Context, id string) (round.Membership, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+membershipCols+` from round_memberships where id=$1`, id)
	m, err := scanMembership(row)
	if errors.Is(err, sql.ErrNoRows) {
		return round.Membership{}, round.ErrNotFound
	}
	return m, err
}

func (s *RoundStore) GetMembershipByMember(ctx context.Context, roundID, memberID string) (round.Membership, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+membershipCols+` from round_memberships where round_id=$1 and member_id=$2`,
		roundID, memberID)
	m, err := scanMembership(row)
	if errors.Is(err, sql.ErrNoRows) {
		return round.Membership{}, round.ErrNotFound
	}
	return m, err
}

func (s *RoundStore) UpdateMembership(ctx context.Context, m round.Membership) error {
	res, err := s.db.ExecContext(ctx, `
		update round_memberships set position=$2, status=$3, total_contributed=$4,
			interest_earned=$5, locked_amount=$6, contributions_made=$7, missed=$8,
			has_received_payout=$9, payout_amount=$10
		where id=$1`,
		m.ID, m.PayoutPosition, m.Status, m.TotalContributed, m.InterestEarned,
		m.LockedAmount, m.ContributionsMade, m.ContributionsMissed,
		m.HasReceivedPayout, m.PayoutAmount)
	return requireRow(res, err, round.ErrNotFound)
}

func (s *RoundStore) ListMemberships(ctx context.Context, roundID string) ([]round.Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+membershipCols+` from round_memberships
		where round_id=$1 order by joined_at`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []round.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

const contributionCols = `id, round_id, membership_id, member_id, cycle, amount, status, due_date, payment_date, interest_accrued, days_in_escrow, coalesce(transaction_id,'')`

func scanContribution(r rowScanner) (round.Contribution, error) {
	var c round.Contribution
	err := r.Scan(&c.ID, &c.RoundID, &c.MembershipID, &c.MemberID, &c.CycleNumber,
		&c.Amount, &c.Status, &c.DueDate, &c.PaymentDate, &c.InterestAccrued,
		&c.DaysInEscrow, &c.TransactionID)
	return c, err
}

func (s *RoundStore) CreateContributions(ctx context.Context, cs []round.Contribution) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, c := range cs {
		if _, err := tx.ExecContext(ctx, `
			insert into contributions (id, round_id, membership_id, member_id, cycle, amount,
				status, due_date, payment_date, interest_accrued, days_in_escrow, transaction_id)
			values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,nullif($12,''))`,
			c.ID, c.RoundID, c.MembershipID, c.MemberID, c.CycleNumber, c.Amount,
			c.Status, c.DueDate, c.PaymentDate, c.InterestAccrued, c.DaysInEscrow,
			c.TransactionID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *RoundStore) GetContribution(ctx context.Context, id string) (round.Contribution, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+contributionCols+` from contributions where id=$1`, id)
	c, err := scanContribution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return round.Contribution{}, round.ErrNotFound
	}
	return c, err
}

func (s *RoundStore) UpdateContribution(ctx context.Context, c round.Contribution) error {
	res, err := s.db.ExecContext(ctx, `
		update contributions set status=$2, payment_date=$3, interest_accrued=$4,
			days_in_escrow=$5, transaction_id=nullif($6,'')
		where id=$1`,
		c.ID, c.Status, c.PaymentDate, c.InterestAccrued, c.DaysInEscrow, c.TransactionID)
	return requireRow(res, err, round.ErrNotFound)
}

func (s *RoundStore) ListContributions(ctx context.Context, f round.ContributionFilter) ([]round.Contribution, error) {
	var dueBefore any
	if f.DueBefore != nil {
		dueBefore = *f.DueBefore
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+contributionCols+` from contributions
		where ($1 = '' or round_id = $1)
		  and ($2 = '' or membership_id = $2)
		  and ($3 = '' or status = $3)
		  and ($4::timestamptz is null or due_date < $4)
		order by membership_id, cycle`,
		f.RoundID, f.MembershipID, f.Status, dueBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []round.Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const payoutCols = `id, round_id, membership_id, member_id, payout_cycle, amount, principal, interest, status, scheduled_at, coalesce(transaction_id,'')`

func scanPayout(r rowScanner) (round.Payout, error) {
	var p round.Payout
	err := r.Scan(&p.ID, &p.RoundID, &p.MembershipID, &p.MemberID, &p.PayoutCycle,
		&p.Amount, &p.PrincipalAmount, &p.InterestAmount, &p.Status,
		&p.ScheduledDate, &p.TransactionID)
	return p, err
}

func (s *RoundStore) CreatePayouts(ctx context.Context, ps []round.Payout) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, p := range ps {
		if _, err := tx.ExecContext(ctx, `
			insert into payouts (id, round_id, membership_id, member_id, payout_cycle, amount,
				principal, interest, status, scheduled_at, transaction_id)
			values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,nullif($11,''))`,
			p.ID, p.RoundID, p.MembershipID, p.MemberID, p.PayoutCycle, p.Amount,
			p.PrincipalAmount, p.InterestAmount, p.Status, p.ScheduledDate,
			p.TransactionID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *RoundStore) GetPayout(ctx context.Context, id string) (round.Payout, error) {
	row := s.db.QueryRowContext(ctx, `select `+payoutCols+` from payouts where id=$1`, id)
	p, err := scanPayout(row)
	if errors.Is(err, sql.ErrNoRows) {
		return round.Payout{}, round.ErrNotFound
	}
	return p, err
}

func (s *RoundStore) UpdatePayout(ctx context.Context, p round.Payout) error {
	res, err := s.db.ExecContext(ctx, `
		update payouts set amount=$2, principal=$3, interest=$4, status=$5, scheduled_at=$6,
			transaction_id=nullif($7,'')
		where id=$1`,
		p.ID, p.Amount, p.PrincipalAmount, p.InterestAmount, p.Status, p.ScheduledDate,
		p.TransactionID)
	return requireRow(res, err, round.ErrNotFound)
}

func (s *RoundStore) ListPayouts(ctx context.Context, roundID string) ([]round.Payout, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+payoutCols+` from payouts where round_id=$1 order by payout_cycle`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []round.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *RoundStore) ListDuePayouts(ctx context.Context, asOf time.Time) ([]round.Payout, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+payoutCols+` from payouts
		where status=$1 and scheduled_at <= $2
		order by scheduled_at`, round.PayoutScheduled, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []round.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *RoundStore) GetProfile(ctx context.Context, memberID string) (round.Profile, error) {
	if _, err := s.db.ExecContext(ctx, `
		insert into trust_profiles (member_id, score) values ($1, $2)
		on conflict (member_id) do nothing`, memberID, round.DefaultTrustScore); err != nil {
		return round.Profile{}, err
	}
	var p round.Profile
	err := s.db.QueryRowContext(ctx, `
		select member_id, score, completed_rounds, total_contributions, missed
		from trust_profiles where member_id=$1`, memberID).
		Scan(&p.MemberID, &p.TrustScore, &p.CompletedRounds, &p.TotalContributions,
			&p.MissedContributions)
	return p, err
}

func (s *RoundStore) UpdateProfile(ctx context.Context, p round.Profile) error {
	_, err := s.db.ExecContext(ctx, `
		insert into trust_profiles (member_id, score, completed_rounds, total_contributions, missed, updated_at)
		values ($1,$2,$3,$4,$5,now())
		on conflict (member_id) do update set
			score=excluded.score, completed_rounds=excluded.completed_rounds,
			total_contributions=excluded.total_contributions, missed=excluded.missed,
			updated_at=now()`,
		p.MemberID, p.TrustScore, p.CompletedRounds, p.TotalContributions,
		p.MissedContributions)
	return err
}

func (s *RoundStore) CreateCompletionStats(ctx context.Context, st round.CompletionStats) error {
	res, err := s.db.ExecContext(ctx, `
		insert into completion_stats (round_id, expected_total, actual_total, gross_interest,
			tax_amount, net_interest, interest_rate, tax_rate, members_count,
			contributions_made, contributions_total, completed_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		on conflict (round_id) do nothing`,
		st.RoundID, st.ExpectedTotal, st.ActualTotal, st.GrossInterest, st.TaxAmount,
		st.NetInterest, st.InterestRate, st.TaxRate, st.MembersCount,
		st.ContributionsMade, st.ContributionsTotal, st.CompletedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	// The snapshot is written exactly once; a second write is a bug.
	if n == 0 {
		return round.ErrValidation
	}
	return nil
}

func (s *RoundStore) GetCompletionStats(ctx context.Context, roundID string) (round.CompletionStats, error) {
	var st round.CompletionStats
	err := s.db.QueryRowContext(ctx, `
		select round_id, expected_total, actual_total, gross_interest, tax_amount, net_interest,
			interest_rate, tax_rate, members_count, contributions_made, contributions_total,
			completed_at
		from completion_stats where round_id=$1`, roundID).
		Scan(&st.RoundID, &st.ExpectedTotal, &st.ActualTotal, &st.GrossInterest,
			&st.TaxAmount, &st.NetInterest, &st.InterestRate, &st.TaxRate,
			&st.MembersCount, &st.ContributionsMade, &st.ContributionsTotal, &st.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return round.CompletionStats{}, round.ErrNotFound
	}
	return st, err
}

// requireRow maps a zero-row update to the store's not-found error.
func requireRow(res sql.Result, err, notFound error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
