// Package keyparams はキーストアエントリに付与する保護パラメータを定義する。
// 変更可能なBuilderで候補値を蓄積し、Buildで検証済みの不変な
// ProtectionParamsを取得する。構築後の値は変更できず、複数ゴルーチンから
// 同期なしで読み取れる。
package keyparams

import (
	"fmt"
	"time"

	"keystore-service/internal/constraint"
)

// FlagEncryptionRequired はエントリの保存時暗号化を要求するフラグビット。
const FlagEncryptionRequired uint32 = 1 << 0

// ProtectionParams は検証済みの保護パラメータを表す不変値。
// Builder.BuildまたはFromSnapshotでのみ生成される。
type ProtectionParams struct {
	flags                        uint32
	keyValidityStart             *time.Time
	keyValidityForOriginationEnd *time.Time
	keyValidityForConsumptionEnd *time.Time
	purposes                     constraint.PurposeSet
	paddings                     constraint.PaddingSet
	digests                      *constraint.DigestSet
	blockModes                   constraint.BlockModeSet
	userAuthenticators           constraint.AuthenticatorSet
	userAuthValiditySeconds      int
}

// Flags はエントリ保護フラグのビットマスクを返す。
func (p *ProtectionParams) Flags() uint32 {
	return p.flags
}

// IsEncryptionRequired はエントリの保存時暗号化が要求されているか返す。
func (p *ProtectionParams) IsEncryptionRequired() bool {
	return p.flags&FlagEncryptionRequired != 0
}

// KeyValidityStart は鍵が有効になる時刻を返す。nilは制限なしを表す。
func (p *ProtectionParams) KeyValidityStart() *time.Time {
	return copyTime(p.keyValidityStart)
}

// KeyValidityForOriginationEnd は鍵を暗号化・署名に使用できる期限を返す。
// nilは制限なしを表す。
func (p *ProtectionParams) KeyValidityForOriginationEnd() *time.Time {
	return copyTime(p.keyValidityForOriginationEnd)
}

// KeyValidityForConsumptionEnd は鍵を復号・検証に使用できる期限を返す。
// nilは制限なしを表す。
func (p *ProtectionParams) KeyValidityForConsumptionEnd() *time.Time {
	return copyTime(p.keyValidityForConsumptionEnd)
}

// Purposes は鍵に許可された操作の集合を返す。空集合は制約なしを表す。
func (p *ProtectionParams) Purposes() constraint.PurposeSet {
	return p.purposes
}

// Paddings は鍵に許可されたパディング方式の集合を返す。
func (p *ProtectionParams) Paddings() constraint.PaddingSet {
	return p.paddings
}

// BlockModes は鍵に許可されたブロックモードの集合を返す。
func (p *ProtectionParams) BlockModes() constraint.BlockModeSet {
	return p.blockModes
}

// UserAuthenticators は鍵の利用を保護するユーザー認証手段の集合を返す。
// 空集合は認証不要を表す。
func (p *ProtectionParams) UserAuthenticators() constraint.AuthenticatorSet {
	return p.userAuthenticators
}

// UserAuthenticationValidityDurationSeconds はユーザー認証後に鍵を
// 利用できる秒数を返す。-1は無制限、0は利用のたびに認証が必要なことを表す。
func (p *ProtectionParams) UserAuthenticationValidityDurationSeconds() int {
	return p.userAuthValiditySeconds
}

// IsDigestsSpecified はダイジェスト制約が指定されているか返す。
func (p *ProtectionParams) IsDigestsSpecified() bool {
	return p.digests != nil
}

// Digests は鍵に許可されたダイジェストの集合を返す。
// 未指定の場合はErrInvalidStateを返す。呼び出し側はIsDigestsSpecifiedで
// 事前に確認するか、エラーを処理すること。
func (p *ProtectionParams) Digests() (constraint.DigestSet, error) {
	if p.digests == nil {
		return 0, fmt.Errorf("%w: digests not specified", ErrInvalidState)
	}
	return *p.digests, nil
}

// Snapshot は保護パラメータの外部表現を表す。ストレージ境界での
// 整数エンコーディングとの相互変換に用いる。
type Snapshot struct {
	Flags                        uint32
	KeyValidityStart             *time.Time
	KeyValidityForOriginationEnd *time.Time
	KeyValidityForConsumptionEnd *time.Time
	Purposes                     constraint.PurposeSet
	Paddings                     constraint.PaddingSet
	Digests                      *constraint.DigestSet
	BlockModes                   constraint.BlockModeSet
	UserAuthenticators           constraint.AuthenticatorSet
	UserAuthValiditySeconds      int
}

// Snapshot は保護パラメータの外部表現を返す。
func (p *ProtectionParams) Snapshot() Snapshot {
	return Snapshot{
		Flags:                        p.flags,
		KeyValidityStart:             copyTime(p.keyValidityStart),
		KeyValidityForOriginationEnd: copyTime(p.keyValidityForOriginationEnd),
		KeyValidityForConsumptionEnd: copyTime(p.keyValidityForConsumptionEnd),
		Purposes:                     p.purposes,
		Paddings:                     p.paddings,
		Digests:                      copyDigests(p.digests),
		BlockModes:                   p.blockModes,
		UserAuthenticators:           p.userAuthenticators,
		UserAuthValiditySeconds:      p.userAuthValiditySeconds,
	}
}

// FromSnapshot は外部表現から保護パラメータを復元する。
// Buildと同じ検証を行う。
func FromSnapshot(s Snapshot) (*ProtectionParams, error) {
	if err := validateAuthValidityDuration(s.UserAuthValiditySeconds); err != nil {
		return nil, err
	}
	return &ProtectionParams{
		flags:                        s.Flags,
		keyValidityStart:             copyTime(s.KeyValidityStart),
		keyValidityForOriginationEnd: copyTime(s.KeyValidityForOriginationEnd),
		keyValidityForConsumptionEnd: copyTime(s.KeyValidityForConsumptionEnd),
		purposes:                     s.Purposes,
		paddings:                     s.Paddings,
		digests:                      copyDigests(s.Digests),
		blockModes:                   s.BlockModes,
		userAuthenticators:           s.UserAuthenticators,
		userAuthValiditySeconds:      s.UserAuthValiditySeconds,
	}, nil
}

// validateAuthValidityDuration は認証有効秒数が-1または非負であるか検証する。
func validateAuthValidityDuration(seconds int) error {
	if seconds < 0 && seconds != -1 {
		return fmt.Errorf(
			"%w: userAuthenticationValidityDurationSeconds must be -1 or non-negative, got %d",
			ErrInvalidArgument, seconds)
	}
	return nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func copyDigests(d *constraint.DigestSet) *constraint.DigestSet {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}
