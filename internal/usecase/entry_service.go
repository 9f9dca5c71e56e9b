// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"keystore-service/internal/constraint"
	"keystore-service/internal/domain"
	"keystore-service/internal/keyparams"
)

const keySize = 32 // AES-256 = 256 bits = 32 bytes

// originationPurposes は有効期間のorigination側で判定される操作。
const originationPurposes = constraint.PurposeEncrypt | constraint.PurposeSign

// consumptionPurposes は有効期間のconsumption側で判定される操作。
const consumptionPurposes = constraint.PurposeDecrypt | constraint.PurposeVerify

// EntryRepository はデータアクセスのインターフェース。
type EntryRepository interface {
	ExistsByAlias(ctx context.Context, alias string) (bool, error)
	Create(ctx context.Context, entry *domain.KeyEntry) error
	FindByAlias(ctx context.Context, alias string) (*domain.KeyEntry, error)
	FindAll(ctx context.Context) ([]*domain.KeyEntry, error)
	DeleteByAlias(ctx context.Context, alias string) (bool, error)
}

// KMSClient は鍵素材のラップ/アンラップのインターフェース。
type KMSClient interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// EntryService はキーストアエントリに関するビジネスロジックを提供する。
// 保護パラメータに記述された有効期間・利用目的・ユーザー認証の制約は
// このサービスが鍵の利用時に強制する。
type EntryService struct {
	repo      EntryRepository
	kmsClient KMSClient
	now       func() time.Time
}

// NewEntryService は新しいEntryServiceを生成する。
func NewEntryService(repo EntryRepository, kmsClient KMSClient) *EntryService {
	return &EntryService{
		repo:      repo,
		kmsClient: kmsClient,
		now:       time.Now,
	}
}

// generateAESKey はAES-256鍵を生成する。
func generateAESKey() ([]byte, error) {
	key := make([]byte, keySize)
	_, err := rand.Read(key)
	if err != nil {
		return nil, fmt.Errorf("generating random key: %w", err)
	}
	return key, nil
}

// CreateEntry は指定されたエイリアスで新しいエントリを生成する。
// 保護パラメータが保存時暗号化を要求する場合、鍵素材はKMSでラップして保存される。
func (s *EntryService) CreateEntry(ctx context.Context, alias string, params *keyparams.ProtectionParams) (*domain.EntryMetadata, error) {
	// 既存チェック
	exists, err := s.repo.ExistsByAlias(ctx, alias)
	if err != nil {
		return nil, fmt.Errorf("checking existing entry: %w", err)
	}
	if exists {
		return nil, domain.ErrEntryAlreadyExists
	}

	// AES-256鍵を生成
	plainKey, err := generateAESKey()
	if err != nil {
		return nil, err
	}

	// 保存時暗号化が要求されている場合のみKMSでラップ
	material := plainKey
	encrypted := params.IsEncryptionRequired()
	if encrypted {
		material, err = s.kmsClient.Encrypt(ctx, plainKey)
		if err != nil {
			return nil, fmt.Errorf("wrapping key material: %w", err)
		}
	}

	entry := &domain.KeyEntry{
		Alias:       alias,
		Params:      params,
		KeyMaterial: material,
		Encrypted:   encrypted,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("creating entry: %w", err)
	}

	return &domain.EntryMetadata{
		Alias:     entry.Alias,
		Params:    entry.Params,
		Encrypted: entry.Encrypted,
		CreatedAt: entry.CreatedAt,
	}, nil
}

// GetEntry は指定されたエイリアスのエントリメタデータを取得する。
func (s *EntryService) GetEntry(ctx context.Context, alias string) (*domain.EntryMetadata, error) {
	entry, err := s.repo.FindByAlias(ctx, alias)
	if err != nil {
		return nil, fmt.Errorf("finding entry: %w", err)
	}
	if entry == nil {
		return nil, domain.ErrEntryNotFound
	}

	return &domain.EntryMetadata{
		Alias:     entry.Alias,
		Params:    entry.Params,
		Encrypted: entry.Encrypted,
		CreatedAt: entry.CreatedAt,
	}, nil
}

// ListEntries は全エントリのメタデータを取得する。
func (s *EntryService) ListEntries(ctx context.Context) ([]*domain.EntryMetadata, error) {
	entries, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding entries: %w", err)
	}

	metadata := make([]*domain.EntryMetadata, len(entries))
	for i, e := range entries {
		metadata[i] = &domain.EntryMetadata{
			Alias:     e.Alias,
			Params:    e.Params,
			Encrypted: e.Encrypted,
			CreatedAt: e.CreatedAt,
		}
	}
	return metadata, nil
}

// DeleteEntry は指定されたエイリアスのエントリを削除する。
func (s *EntryService) DeleteEntry(ctx context.Context, alias string) error {
	deleted, err := s.repo.DeleteByAlias(ctx, alias)
	if err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}
	if !deleted {
		return domain.ErrEntryNotFound
	}
	return nil
}

// UseKey は保護パラメータの制約を検証し、許可される場合のみ平文の鍵を返す。
// authenticatedAtはユーザーが最後に認証に成功した時刻（未認証の場合はnil）。
func (s *EntryService) UseKey(ctx context.Context, alias string, purpose constraint.PurposeSet, authenticatedAt *time.Time) (*domain.Key, error) {
	entry, err := s.repo.FindByAlias(ctx, alias)
	if err != nil {
		return nil, fmt.Errorf("finding entry: %w", err)
	}
	if entry == nil {
		return nil, domain.ErrEntryNotFound
	}

	now := s.now()
	if err := checkValidityWindow(entry.Params, purpose, now); err != nil {
		return nil, err
	}
	if err := checkPurposes(entry.Params, purpose); err != nil {
		return nil, err
	}
	if err := checkUserAuthentication(entry.Params, authenticatedAt, now); err != nil {
		return nil, err
	}

	plainKey := entry.KeyMaterial
	if entry.Encrypted {
		plainKey, err = s.kmsClient.Decrypt(ctx, entry.KeyMaterial)
		if err != nil {
			return nil, fmt.Errorf("unwrapping key material: %w", err)
		}
	}

	return &domain.Key{
		Alias: entry.Alias,
		Key:   plainKey,
	}, nil
}

// checkValidityWindow は鍵の有効期間を検証する。暗号化・署名はorigination期限、
// 復号・検証はconsumption期限で判定される。期限がnilの場合は制限なし。
func checkValidityWindow(params *keyparams.ProtectionParams, purpose constraint.PurposeSet, now time.Time) error {
	if start := params.KeyValidityStart(); start != nil && now.Before(*start) {
		return domain.ErrKeyNotYetValid
	}
	if purpose&originationPurposes != 0 {
		if end := params.KeyValidityForOriginationEnd(); end != nil && now.After(*end) {
			return domain.ErrKeyExpired
		}
	}
	if purpose&consumptionPurposes != 0 {
		if end := params.KeyValidityForConsumptionEnd(); end != nil && now.After(*end) {
			return domain.ErrKeyExpired
		}
	}
	return nil
}

// checkPurposes は要求された操作が許可されているか検証する。
// 空集合は制約なしとして扱う。
func checkPurposes(params *keyparams.ProtectionParams, purpose constraint.PurposeSet) error {
	allowed := params.Purposes()
	if allowed.Empty() {
		return nil
	}
	if !allowed.Has(purpose) {
		return domain.ErrPurposeNotPermitted
	}
	return nil
}

// checkUserAuthentication はユーザー認証の要否と有効期間を検証する。
// 認証手段が設定されていない場合は認証不要。有効秒数-1は一度の認証で
// 無制限に利用可能、0は利用のたびに認証が必要なことを表す。
func checkUserAuthentication(params *keyparams.ProtectionParams, authenticatedAt *time.Time, now time.Time) error {
	if params.UserAuthenticators().Empty() {
		return nil
	}
	if authenticatedAt == nil {
		return domain.ErrAuthenticationRequired
	}

	switch seconds := params.UserAuthenticationValidityDurationSeconds(); {
	case seconds == -1:
		// 一度の認証で無制限に利用可能
		return nil
	case seconds == 0:
		// 利用のたびに認証が必要。要求に認証が添付されていることは上で確認済み
		return nil
	default:
		if now.Sub(*authenticatedAt) > time.Duration(seconds)*time.Second {
			return domain.ErrAuthenticationExpired
		}
		return nil
	}
}
