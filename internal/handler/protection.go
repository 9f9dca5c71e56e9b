package handler

import (
	"time"

	"keystore-service/internal/constraint"
	"keystore-service/internal/keyparams"
	"keystore-service/internal/platform"
)

// ProtectionRequest は保護パラメータのリクエスト形式。
// ビットマスクは名前の配列として受け取り、境界で整数エンコーディングに変換する。
// digestsはフィールド省略（未指定）と空配列（空集合の指定）を区別する。
type ProtectionRequest struct {
	EncryptionRequired           bool       `json:"encryption_required"`
	KeyValidityStart             *time.Time `json:"key_validity_start,omitempty"`
	KeyValidityEnd               *time.Time `json:"key_validity_end,omitempty"`
	KeyValidityForOriginationEnd *time.Time `json:"key_validity_for_origination_end,omitempty"`
	KeyValidityForConsumptionEnd *time.Time `json:"key_validity_for_consumption_end,omitempty"`
	Purposes                     []string   `json:"purposes,omitempty"`
	Paddings                     []string   `json:"paddings,omitempty"`
	Digests                      *[]string  `json:"digests,omitempty"`
	BlockModes                   []string   `json:"block_modes,omitempty"`
	UserAuthenticators           []string   `json:"user_authenticators,omitempty"`
	UserAuthValiditySeconds      *int       `json:"user_auth_validity_seconds,omitempty"`
}

// buildParams はリクエストからBuilderを経由して保護パラメータを構築する。
func buildParams(authCtx *platform.AuthorizationContext, req ProtectionRequest) (*keyparams.ProtectionParams, error) {
	b, err := keyparams.NewBuilder(authCtx)
	if err != nil {
		return nil, err
	}

	b.SetEncryptionRequired(req.EncryptionRequired)
	b.SetKeyValidityStart(req.KeyValidityStart)
	if req.KeyValidityEnd != nil {
		b.SetKeyValidityEnd(req.KeyValidityEnd)
	}
	// 個別の期限指定はkey_validity_endより優先される
	if req.KeyValidityForOriginationEnd != nil {
		b.SetKeyValidityForOriginationEnd(req.KeyValidityForOriginationEnd)
	}
	if req.KeyValidityForConsumptionEnd != nil {
		b.SetKeyValidityForConsumptionEnd(req.KeyValidityForConsumptionEnd)
	}

	purposes, err := constraint.ParsePurposes(req.Purposes)
	if err != nil {
		return nil, err
	}
	b.SetPurposes(purposes)

	paddings, err := constraint.ParsePaddings(req.Paddings)
	if err != nil {
		return nil, err
	}
	b.SetPaddings(paddings)

	if req.Digests != nil {
		digests, err := constraint.ParseDigests(*req.Digests)
		if err != nil {
			return nil, err
		}
		b.SetDigests(digests)
	}

	blockModes, err := constraint.ParseBlockModes(req.BlockModes)
	if err != nil {
		return nil, err
	}
	b.SetBlockModes(blockModes)

	authenticators, err := constraint.ParseAuthenticators(req.UserAuthenticators)
	if err != nil {
		return nil, err
	}
	b.SetUserAuthenticators(authenticators)

	if req.UserAuthValiditySeconds != nil {
		b.SetUserAuthenticationValidityDurationSeconds(*req.UserAuthValiditySeconds)
	}

	return b.Build()
}

// ProtectionResponse は保護パラメータのレスポンス形式。
type ProtectionResponse struct {
	EncryptionRequired           bool      `json:"encryption_required"`
	KeyValidityStart             *string   `json:"key_validity_start,omitempty"`
	KeyValidityForOriginationEnd *string   `json:"key_validity_for_origination_end,omitempty"`
	KeyValidityForConsumptionEnd *string   `json:"key_validity_for_consumption_end,omitempty"`
	Purposes                     []string  `json:"purposes"`
	Paddings                     []string  `json:"paddings"`
	Digests                      *[]string `json:"digests,omitempty"`
	BlockModes                   []string  `json:"block_modes"`
	UserAuthenticators           []string  `json:"user_authenticators"`
	UserAuthValiditySeconds      int       `json:"user_auth_validity_seconds"`
}

// toProtectionResponse は保護パラメータをレスポンス形式に変換する。
func toProtectionResponse(params *keyparams.ProtectionParams) ProtectionResponse {
	resp := ProtectionResponse{
		EncryptionRequired:           params.IsEncryptionRequired(),
		KeyValidityStart:             formatTime(params.KeyValidityStart()),
		KeyValidityForOriginationEnd: formatTime(params.KeyValidityForOriginationEnd()),
		KeyValidityForConsumptionEnd: formatTime(params.KeyValidityForConsumptionEnd()),
		Purposes:                     nameList(params.Purposes().Names()),
		Paddings:                     nameList(params.Paddings().Names()),
		BlockModes:                   nameList(params.BlockModes().Names()),
		UserAuthenticators:           nameList(params.UserAuthenticators().Names()),
		UserAuthValiditySeconds:      params.UserAuthenticationValidityDurationSeconds(),
	}
	if params.IsDigestsSpecified() {
		digests, err := params.Digests()
		if err == nil {
			names := nameList(digests.Names())
			resp.Digests = &names
		}
	}
	return resp
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

// nameList はnilスライスを空配列としてJSONに出力するための変換。
func nameList(names []string) []string {
	if names == nil {
		return []string{}
	}
	return names
}
