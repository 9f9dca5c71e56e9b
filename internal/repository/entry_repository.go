// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"keystore-service/internal/constraint"
	"keystore-service/internal/domain"
	"keystore-service/internal/keyparams"
)

// KeyEntryModel はgorm用のモデル定義。保護パラメータのビットマスクは
// 整数カラムとして永続化する。Digestsは未指定と空集合を区別するためNULL許容。
type KeyEntryModel struct {
	ID                     string     `gorm:"type:char(36);primaryKey"`
	Alias                  string     `gorm:"type:varchar(64);not null;uniqueIndex:uk_alias"`
	Flags                  uint32     `gorm:"not null"`
	ValidityStart          *time.Time `gorm:"type:datetime(6)"`
	ValidityOriginationEnd *time.Time `gorm:"type:datetime(6)"`
	ValidityConsumptionEnd *time.Time `gorm:"type:datetime(6)"`
	Purposes               uint32     `gorm:"not null"`
	Paddings               uint32     `gorm:"not null"`
	Digests                *uint32    ``
	BlockModes             uint32     `gorm:"not null"`
	Authenticators         uint32     `gorm:"not null"`
	AuthValiditySeconds    int        `gorm:"not null;default:-1"`
	KeyMaterial            []byte     `gorm:"type:blob;not null"`
	Encrypted              bool       `gorm:"not null"`
	CreatedAt              time.Time  `gorm:"type:datetime(6);not null;autoCreateTime"`
	UpdatedAt              time.Time  `gorm:"type:datetime(6);not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (KeyEntryModel) TableName() string {
	return "key_entries"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *KeyEntryModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// toDomain はモデルをドメインエンティティに変換する。
// 保護パラメータは整数エンコーディングから復元される。
func (m *KeyEntryModel) toDomain() (*domain.KeyEntry, error) {
	var digests *constraint.DigestSet
	if m.Digests != nil {
		d := constraint.DigestSet(*m.Digests)
		digests = &d
	}

	params, err := keyparams.FromSnapshot(keyparams.Snapshot{
		Flags:                        m.Flags,
		KeyValidityStart:             m.ValidityStart,
		KeyValidityForOriginationEnd: m.ValidityOriginationEnd,
		KeyValidityForConsumptionEnd: m.ValidityConsumptionEnd,
		Purposes:                     constraint.PurposeSet(m.Purposes),
		Paddings:                     constraint.PaddingSet(m.Paddings),
		Digests:                      digests,
		BlockModes:                   constraint.BlockModeSet(m.BlockModes),
		UserAuthenticators:           constraint.AuthenticatorSet(m.Authenticators),
		UserAuthValiditySeconds:      m.AuthValiditySeconds,
	})
	if err != nil {
		return nil, err
	}

	return &domain.KeyEntry{
		ID:          m.ID,
		Alias:       m.Alias,
		Params:      params,
		KeyMaterial: m.KeyMaterial,
		Encrypted:   m.Encrypted,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}, nil
}

// fromDomain はドメインエンティティをモデルに変換する。
func fromDomain(entry *domain.KeyEntry) *KeyEntryModel {
	snap := entry.Params.Snapshot()

	var digests *uint32
	if snap.Digests != nil {
		d := uint32(*snap.Digests)
		digests = &d
	}

	return &KeyEntryModel{
		ID:                     entry.ID,
		Alias:                  entry.Alias,
		Flags:                  snap.Flags,
		ValidityStart:          snap.KeyValidityStart,
		ValidityOriginationEnd: snap.KeyValidityForOriginationEnd,
		ValidityConsumptionEnd: snap.KeyValidityForConsumptionEnd,
		Purposes:               uint32(snap.Purposes),
		Paddings:               uint32(snap.Paddings),
		Digests:                digests,
		BlockModes:             uint32(snap.BlockModes),
		Authenticators:         uint32(snap.UserAuthenticators),
		AuthValiditySeconds:    snap.UserAuthValiditySeconds,
		KeyMaterial:            entry.KeyMaterial,
		Encrypted:              entry.Encrypted,
	}
}

// EntryRepository はキーストアエントリのデータアクセスを提供する。
type EntryRepository struct {
	db *gorm.DB
}

// NewEntryRepository は新しいEntryRepositoryを生成する。
func NewEntryRepository(db *gorm.DB) *EntryRepository {
	return &EntryRepository{db: db}
}

// ExistsByAlias は指定されたエイリアスのエントリが存在するか確認する。
func (r *EntryRepository) ExistsByAlias(ctx context.Context, alias string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&KeyEntryModel{}).
		Where("alias = ?", alias).
		Count(&count).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to count entries by alias",
			"operation", "exists_by_alias",
			"alias", alias,
			"error", err,
		)
		return false, err
	}
	return count > 0, nil
}

// Create は新しいエントリを保存する。
func (r *EntryRepository) Create(ctx context.Context, entry *domain.KeyEntry) error {
	model := fromDomain(entry)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create entry",
			"operation", "create",
			"alias", entry.Alias,
			"error", err,
		)
		return err
	}
	// gormで設定された値をドメインエンティティに反映
	entry.ID = model.ID
	entry.CreatedAt = model.CreatedAt
	entry.UpdatedAt = model.UpdatedAt
	return nil
}

// FindByAlias は指定されたエイリアスのエントリを取得する。
// 存在しない場合は(nil, nil)を返す。
func (r *EntryRepository) FindByAlias(ctx context.Context, alias string) (*domain.KeyEntry, error) {
	var model KeyEntryModel
	err := r.db.WithContext(ctx).
		Where("alias = ?", alias).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find entry",
			"operation", "find_by_alias",
			"alias", alias,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain()
}

// FindAll は全エントリをエイリアス順に取得する。
func (r *EntryRepository) FindAll(ctx context.Context) ([]*domain.KeyEntry, error) {
	var models []KeyEntryModel
	err := r.db.WithContext(ctx).
		Order("alias ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find all entries",
			"operation", "find_all",
			"error", err,
		)
		return nil, err
	}

	entries := make([]*domain.KeyEntry, len(models))
	for i, m := range models {
		entry, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		entries[i] = entry
	}
	return entries, nil
}

// DeleteByAlias は指定されたエイリアスのエントリを削除する。
// 削除された場合はtrueを返す。
func (r *EntryRepository) DeleteByAlias(ctx context.Context, alias string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("alias = ?", alias).
		Delete(&KeyEntryModel{})
	if result.Error != nil {
		slog.ErrorContext(ctx, "failed to delete entry",
			"operation", "delete_by_alias",
			"alias", alias,
			"error", result.Error,
		)
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
