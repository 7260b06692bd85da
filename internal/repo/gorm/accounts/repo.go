// Package accounts provides GORM-based persistence for developer and player
// accounts.
package accounts

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/playdeck/playdeck/internal/fault"
	"github.com/playdeck/playdeck/internal/ports"
)

type Account struct {
	ID           uint   `gorm:"primaryKey"`
	Type         string `gorm:"size:16;uniqueIndex:uq_type_username"`
	Username     string `gorm:"size:64;uniqueIndex:uq_type_username"`
	PasswordHash string `gorm:"size:128"`
	CreatedAt    time.Time
}

func AutoMigrate(db *gorm.DB) error { return db.AutoMigrate(&Account{}) }

type Repo struct{ db *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

var _ ports.AccountsRepository = (*Repo)(nil)

func (r *Repo) Create(ctx context.Context, a *ports.Account) error {
	row := &Account{
		Type:         string(a.Type),
		Username:     a.Username,
		PasswordHash: a.PasswordHash,
		CreatedAt:    a.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	a.ID = row.ID
	a.CreatedAt = row.CreatedAt
	return nil
}

func (r *Repo) Get(ctx context.Context, typ ports.AccountType, username string) (*ports.Account, error) {
	var row Account
	err := r.db.WithContext(ctx).
		Where("type = ? AND username = ?", string(typ), username).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fault.New(fault.AccountNotFound, username, "account does not exist")
		}
		return nil, err
	}
	return toDTO(&row), nil
}

func (r *Repo) List(ctx context.Context, typ ports.AccountType) ([]*ports.Account, error) {
	var rows []*Account
	err := r.db.WithContext(ctx).
		Where("type = ?", string(typ)).
		Order("username ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*ports.Account, 0, len(rows))
	for _, a := range rows {
		out = append(out, toDTO(a))
	}
	return out, nil
}

func toDTO(a *Account) *ports.Account {
	return &ports.Account{
		ID:           a.ID,
		Type:         ports.AccountType(a.Type),
		Username:     a.Username,
		PasswordHash: a.PasswordHash,
		CreatedAt:    a.CreatedAt,
	}
}
