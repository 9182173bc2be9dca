package main

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"wekeza.org/internal/auth"
	"wekeza.org/internal/ledger"
)

// memberDirectory resolves password hashes and granted roles from the
// members table. Suspended members resolve to ErrAccountNotActive.
type memberDirectory struct {
	db *sql.DB
}

func (m memberDirectory) lookup(ctx context.Context, memberID string) (auth.Member, error) {
	if m.db == nil {
		return auth.Member{}, ledger.ErrNotFound
	}
	var (
		mb    auth.Member
		roles string
	)
	err := m.db.QueryRowContext(ctx,
		`select id, email, phone, password_hash, status, roles from members where id=$1`,
		memberID).Scan(&mb.ID, &mb.Email, &mb.Phone, &mb.PasswordHash, &mb.Status, &roles)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Member{}, ledger.ErrNotFound
	}
	if err != nil {
		return auth.Member{}, err
	}
	if mb.Status != "active" {
		return auth.Member{}, ledger.ErrAccountNotActive
	}
	for _, r := range strings.Split(roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			mb.Roles = append(mb.Roles, r)
		}
	}
	return mb, nil
}

func (m memberDirectory) PasswordHash(ctx context.Context, memberID string) (string, error) {
	mb, err := m.lookup(ctx, memberID)
	if err != nil {
		return "", err
	}
	return mb.PasswordHash, nil
}

func (m memberDirectory) Roles(ctx context.Context, memberID string) ([]string, error) {
	mb, err := m.lookup(ctx, memberID)
	if err != nil {
		return nil, err
	}
	return mb.Roles, nil
}

type unavailableDisburser struct{}

func (unavailableDisburser) Disburse(ctx context.Context, amount decimal.Decimal, phone string) (string, error) {
	return "", ledger.ErrExternalGateway
}
