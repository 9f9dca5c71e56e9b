package keyparams

import (
	"fmt"
	"time"

	"keystore-service/internal/constraint"
	"keystore-service/internal/platform"
)

// Builder は保護パラメータの候補値を蓄積する可変アキュムレータ。
// 各セッターは値を保存してレシーバ自身を返し、検証はBuildまで遅延される。
// 同じフィールドへの後のセッター呼び出しが前の値を上書きする。
// 複数ゴルーチンからの同時変更に対して安全ではない。
type Builder struct {
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

// NewBuilder は新しいBuilderを生成する。認可コンテキストがnilの場合は
// ErrInvalidArgumentを返す。コンテキストは現時点では存在確認にのみ使用される。
func NewBuilder(authCtx *platform.AuthorizationContext) (*Builder, error) {
	if authCtx == nil {
		return nil, fmt.Errorf("%w: authorization context is required", ErrInvalidArgument)
	}
	return &Builder{
		userAuthValiditySeconds: -1,
	}, nil
}

// SetEncryptionRequired はエントリの保存時暗号化を要求するか設定する。
func (b *Builder) SetEncryptionRequired(required bool) *Builder {
	if required {
		b.flags |= FlagEncryptionRequired
	} else {
		b.flags &^= FlagEncryptionRequired
	}
	return b
}

// SetKeyValidityStart は鍵が有効になる時刻を設定する。nilは制限なしを表す。
func (b *Builder) SetKeyValidityStart(start *time.Time) *Builder {
	b.keyValidityStart = copyTime(start)
	return b
}

// SetKeyValidityEnd は暗号化・署名の期限と復号・検証の期限を同じ時刻に設定する。
// 両フィールドに対する以前の個別設定を上書きする。
func (b *Builder) SetKeyValidityEnd(end *time.Time) *Builder {
	b.SetKeyValidityForOriginationEnd(end)
	b.SetKeyValidityForConsumptionEnd(end)
	return b
}

// SetKeyValidityForOriginationEnd は鍵を暗号化・署名に使用できる期限を設定する。
// nilは制限なしを表す。
func (b *Builder) SetKeyValidityForOriginationEnd(end *time.Time) *Builder {
	b.keyValidityForOriginationEnd = copyTime(end)
	return b
}

// SetKeyValidityForConsumptionEnd は鍵を復号・検証に使用できる期限を設定する。
// nilは制限なしを表す。
func (b *Builder) SetKeyValidityForConsumptionEnd(end *time.Time) *Builder {
	b.keyValidityForConsumptionEnd = copyTime(end)
	return b
}

// SetPurposes は鍵に許可する操作の集合を設定する。集合全体を置き換える。
func (b *Builder) SetPurposes(purposes constraint.PurposeSet) *Builder {
	b.purposes = purposes
	return b
}

// SetPaddings は鍵に許可するパディング方式の集合を設定する。集合全体を置き換える。
func (b *Builder) SetPaddings(paddings constraint.PaddingSet) *Builder {
	b.paddings = paddings
	return b
}

// SetDigests は鍵に許可するダイジェストの集合を設定し、ダイジェスト制約を
// 「指定済み」に遷移させる。未指定に戻す手段はない。
func (b *Builder) SetDigests(digests constraint.DigestSet) *Builder {
	b.digests = &digests
	return b
}

// SetBlockModes は鍵に許可するブロックモードの集合を設定する。集合全体を置き換える。
func (b *Builder) SetBlockModes(blockModes constraint.BlockModeSet) *Builder {
	b.blockModes = blockModes
	return b
}

// SetUserAuthenticators は鍵の利用を保護するユーザー認証手段の集合を設定する。
// 空集合は認証不要を表す。
func (b *Builder) SetUserAuthenticators(authenticators constraint.AuthenticatorSet) *Builder {
	b.userAuthenticators = authenticators
	return b
}

// SetUserAuthenticationValidityDurationSeconds はユーザー認証後に鍵を
// 利用できる秒数を設定する。-1は無制限、0は利用のたびに認証が必要なことを表す。
func (b *Builder) SetUserAuthenticationValidityDurationSeconds(seconds int) *Builder {
	b.userAuthValiditySeconds = seconds
	return b
}

// Build は蓄積された値を検証し、不変なProtectionParamsを生成する。
// 認証有効秒数が-1でも非負でもない場合はErrInvalidArgumentを返す。
// Builderの状態は変更されず、再利用すると独立した同値のパラメータが得られる。
func (b *Builder) Build() (*ProtectionParams, error) {
	if err := validateAuthValidityDuration(b.userAuthValiditySeconds); err != nil {
		return nil, err
	}
	return &ProtectionParams{
		flags:                        b.flags,
		keyValidityStart:             copyTime(b.keyValidityStart),
		keyValidityForOriginationEnd: copyTime(b.keyValidityForOriginationEnd),
		keyValidityForConsumptionEnd: copyTime(b.keyValidityForConsumptionEnd),
		purposes:                     b.purposes,
		paddings:                     b.paddings,
		digests:                      copyDigests(b.digests),
		blockModes:                   b.blockModes,
		userAuthenticators:           b.userAuthenticators,
		userAuthValiditySeconds:      b.userAuthValiditySeconds,
	}, nil
}
