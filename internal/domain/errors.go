package domain

import "errors"

var (
	// ErrEntryNotFound は指定されたエイリアスのエントリが存在しない場合のエラー。
	ErrEntryNotFound = errors.New("entry not found")

	// ErrEntryAlreadyExists は指定されたエイリアスのエントリが既に存在する場合のエラー。
	ErrEntryAlreadyExists = errors.New("entry already exists")

	// ErrInvalidAlias はエイリアスの形式が不正な場合のエラー。
	ErrInvalidAlias = errors.New("invalid alias")

	// ErrKeyNotYetValid は鍵の有効期間がまだ開始していない場合のエラー。
	ErrKeyNotYetValid = errors.New("key not yet valid")

	// ErrKeyExpired は要求された操作に対する鍵の有効期間が終了している場合のエラー。
	ErrKeyExpired = errors.New("key expired")

	// ErrPurposeNotPermitted は要求された操作が鍵に許可されていない場合のエラー。
	ErrPurposeNotPermitted = errors.New("purpose not permitted")

	// ErrAuthenticationRequired は鍵の利用にユーザー認証が必要な場合のエラー。
	ErrAuthenticationRequired = errors.New("user authentication required")

	// ErrAuthenticationExpired はユーザー認証の有効期間が切れている場合のエラー。
	ErrAuthenticationExpired = errors.New("user authentication expired")

	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrMigrationFileNotFound はマイグレーションファイルが見つからない場合のエラー。
	ErrMigrationFileNotFound = errors.New("migration file not found")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)
