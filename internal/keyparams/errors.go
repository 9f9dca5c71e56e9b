package keyparams

import "errors"

var (
	// ErrInvalidArgument は構築時の引数が不正な場合のエラー。
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidState は未指定のフィールドにアクセスした場合のエラー。
	ErrInvalidState = errors.New("invalid state")
)
