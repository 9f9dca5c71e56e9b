// Package constraint は鍵の利用制約を表すビットマスク列挙を定義する。
// ビット割り当てはこのパッケージが所有し、他のパッケージは値0を
// 「制約なし」として扱う以外、個々のビット位置に依存してはならない。
package constraint

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownPurpose は利用目的名が不明な場合のエラー。
	ErrUnknownPurpose = errors.New("unknown purpose")

	// ErrUnknownPadding はパディング方式名が不明な場合のエラー。
	ErrUnknownPadding = errors.New("unknown padding")

	// ErrUnknownDigest はダイジェスト名が不明な場合のエラー。
	ErrUnknownDigest = errors.New("unknown digest")

	// ErrUnknownBlockMode はブロックモード名が不明な場合のエラー。
	ErrUnknownBlockMode = errors.New("unknown block mode")

	// ErrUnknownAuthenticator は認証手段名が不明な場合のエラー。
	ErrUnknownAuthenticator = errors.New("unknown authenticator")
)

// PurposeSet は鍵に許可された操作の集合を表す。
type PurposeSet uint32

const (
	// PurposeEncrypt は暗号化を表す。
	PurposeEncrypt PurposeSet = 1 << iota
	// PurposeDecrypt は復号を表す。
	PurposeDecrypt
	// PurposeSign は署名生成を表す。
	PurposeSign
	// PurposeVerify は署名検証を表す。
	PurposeVerify
)

var purposeTable = []flagName{
	{uint32(PurposeEncrypt), "encrypt"},
	{uint32(PurposeDecrypt), "decrypt"},
	{uint32(PurposeSign), "sign"},
	{uint32(PurposeVerify), "verify"},
}

// Has は指定された目的がすべて含まれるか確認する。
func (s PurposeSet) Has(p PurposeSet) bool { return s&p == p }

// Empty は集合が空（制約なし）か確認する。
func (s PurposeSet) Empty() bool { return s == 0 }

// Names は含まれる目的の名前一覧を返す。
func (s PurposeSet) Names() []string { return flagNames(uint32(s), purposeTable) }

// String は集合の文字列表現を返す。
func (s PurposeSet) String() string { return join(s.Names()) }

// ParsePurposes は目的名の一覧をPurposeSetに変換する。
func ParsePurposes(names []string) (PurposeSet, error) {
	bits, err := parseFlags(names, purposeTable, ErrUnknownPurpose)
	return PurposeSet(bits), err
}

// PaddingSet は鍵に許可されたパディング方式の集合を表す。
type PaddingSet uint32

const (
	// PaddingNone はパディングなしを表す。
	PaddingNone PaddingSet = 1 << iota
	// PaddingPKCS7 はPKCS#7パディングを表す。
	PaddingPKCS7
	// PaddingRSAPKCS1 はRSA PKCS#1 v1.5パディングを表す。
	PaddingRSAPKCS1
	// PaddingRSAOAEP はRSA OAEPパディングを表す。
	PaddingRSAOAEP
	// PaddingRSAPSS はRSA PSSパディングを表す。
	PaddingRSAPSS
)

var paddingTable = []flagName{
	{uint32(PaddingNone), "none"},
	{uint32(PaddingPKCS7), "pkcs7"},
	{uint32(PaddingRSAPKCS1), "rsa-pkcs1"},
	{uint32(PaddingRSAOAEP), "rsa-oaep"},
	{uint32(PaddingRSAPSS), "rsa-pss"},
}

// Has は指定されたパディング方式がすべて含まれるか確認する。
func (s PaddingSet) Has(p PaddingSet) bool { return s&p == p }

// Empty は集合が空（制約なし）か確認する。
func (s PaddingSet) Empty() bool { return s == 0 }

// Names は含まれるパディング方式の名前一覧を返す。
func (s PaddingSet) Names() []string { return flagNames(uint32(s), paddingTable) }

// String は集合の文字列表現を返す。
func (s PaddingSet) String() string { return join(s.Names()) }

// ParsePaddings はパディング方式名の一覧をPaddingSetに変換する。
func ParsePaddings(names []string) (PaddingSet, error) {
	bits, err := parseFlags(names, paddingTable, ErrUnknownPadding)
	return PaddingSet(bits), err
}

// DigestSet は鍵に許可されたダイジェストの集合を表す。
type DigestSet uint32

const (
	// DigestSHA1 はSHA-1を表す。
	DigestSHA1 DigestSet = 1 << iota
	// DigestSHA256 はSHA-256を表す。
	DigestSHA256
	// DigestSHA384 はSHA-384を表す。
	DigestSHA384
	// DigestSHA512 はSHA-512を表す。
	DigestSHA512
)

var digestTable = []flagName{
	{uint32(DigestSHA1), "sha1"},
	{uint32(DigestSHA256), "sha256"},
	{uint32(DigestSHA384), "sha384"},
	{uint32(DigestSHA512), "sha512"},
}

// Has は指定されたダイジェストがすべて含まれるか確認する。
func (s DigestSet) Has(d DigestSet) bool { return s&d == d }

// Empty は集合が空か確認する。
func (s DigestSet) Empty() bool { return s == 0 }

// Names は含まれるダイジェストの名前一覧を返す。
func (s DigestSet) Names() []string { return flagNames(uint32(s), digestTable) }

// String は集合の文字列表現を返す。
func (s DigestSet) String() string { return join(s.Names()) }

// ParseDigests はダイジェスト名の一覧をDigestSetに変換する。
func ParseDigests(names []string) (DigestSet, error) {
	bits, err := parseFlags(names, digestTable, ErrUnknownDigest)
	return DigestSet(bits), err
}

// BlockModeSet は鍵に許可されたブロックモードの集合を表す。
type BlockModeSet uint32

const (
	// BlockModeECB はECBモードを表す。
	BlockModeECB BlockModeSet = 1 << iota
	// BlockModeCBC はCBCモードを表す。
	BlockModeCBC
	// BlockModeCTR はCTRモードを表す。
	BlockModeCTR
	// BlockModeGCM はGCMモードを表す。
	BlockModeGCM
)

var blockModeTable = []flagName{
	{uint32(BlockModeECB), "ecb"},
	{uint32(BlockModeCBC), "cbc"},
	{uint32(BlockModeCTR), "ctr"},
	{uint32(BlockModeGCM), "gcm"},
}

// Has は指定されたブロックモードがすべて含まれるか確認する。
func (s BlockModeSet) Has(m BlockModeSet) bool { return s&m == m }

// Empty は集合が空（制約なし）か確認する。
func (s BlockModeSet) Empty() bool { return s == 0 }

// Names は含まれるブロックモードの名前一覧を返す。
func (s BlockModeSet) Names() []string { return flagNames(uint32(s), blockModeTable) }

// String は集合の文字列表現を返す。
func (s BlockModeSet) String() string { return join(s.Names()) }

// ParseBlockModes はブロックモード名の一覧をBlockModeSetに変換する。
func ParseBlockModes(names []string) (BlockModeSet, error) {
	bits, err := parseFlags(names, blockModeTable, ErrUnknownBlockMode)
	return BlockModeSet(bits), err
}

// AuthenticatorSet は鍵の利用を保護するユーザー認証手段の集合を表す。
type AuthenticatorSet uint32

const (
	// AuthenticatorLockScreen はロック画面認証（PIN・パスワード等）を表す。
	AuthenticatorLockScreen AuthenticatorSet = 1 << iota
	// AuthenticatorFingerprint は指紋認証を表す。
	AuthenticatorFingerprint
)

var authenticatorTable = []flagName{
	{uint32(AuthenticatorLockScreen), "lockscreen"},
	{uint32(AuthenticatorFingerprint), "fingerprint"},
}

// Has は指定された認証手段がすべて含まれるか確認する。
func (s AuthenticatorSet) Has(a AuthenticatorSet) bool { return s&a == a }

// Empty は集合が空（認証不要）か確認する。
func (s AuthenticatorSet) Empty() bool { return s == 0 }

// Names は含まれる認証手段の名前一覧を返す。
func (s AuthenticatorSet) Names() []string { return flagNames(uint32(s), authenticatorTable) }

// String は集合の文字列表現を返す。
func (s AuthenticatorSet) String() string { return join(s.Names()) }

// ParseAuthenticators は認証手段名の一覧をAuthenticatorSetに変換する。
func ParseAuthenticators(names []string) (AuthenticatorSet, error) {
	bits, err := parseFlags(names, authenticatorTable, ErrUnknownAuthenticator)
	return AuthenticatorSet(bits), err
}

// flagName はビットと名前の対応を表す。
type flagName struct {
	bit  uint32
	name string
}

// flagNames はビットマスクに含まれるフラグの名前一覧をテーブル順に返す。
func flagNames(bits uint32, table []flagName) []string {
	var out []string
	for _, f := range table {
		if bits&f.bit != 0 {
			out = append(out, f.name)
		}
	}
	return out
}

// parseFlags は名前一覧をビットマスクに変換する。不明な名前はerrUnknownを返す。
func parseFlags(names []string, table []flagName, errUnknown error) (uint32, error) {
	var bits uint32
	for _, n := range names {
		found := false
		for _, f := range table {
			if f.name == n {
				bits |= f.bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("%w: %q", errUnknown, n)
		}
	}
	return bits, nil
}

func join(names []string) string {
	if len(names) == 0 {
		return "(none)"
	}
	return strings.Join(names, ",")
}
