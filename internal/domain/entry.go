// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import (
	"time"

	"keystore-service/internal/keyparams"
)

// KeyEntry はキーストアエントリを表す。
// KeyMaterialは保護パラメータが保存時暗号化を要求する場合、
// KMSでラップされた状態で保持される。
type KeyEntry struct {
	ID          string
	Alias       string
	Params      *keyparams.ProtectionParams
	KeyMaterial []byte
	Encrypted   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EntryMetadata はキーストアエントリのメタデータを表す（鍵素材を含まない）。
type EntryMetadata struct {
	Alias     string
	Params    *keyparams.ProtectionParams
	Encrypted bool
	CreatedAt time.Time
}

// Key は利用可能と判定された平文の鍵を表す。
type Key struct {
	Alias string
	Key   []byte // 平文の鍵（Base64エンコード前）
}
