// Package platform はプラットフォーム層が提供する認可コンテキストを定義する。
package platform

// AuthorizationContext は保護パラメータ構築時に必要となる不透明なトークン。
// 現時点では存在確認にのみ使用されるが、将来的にキーストアのアンロックや
// 初期化をユーザーに求める対話フローのために予約されている。
type AuthorizationContext struct {
	application string
}

// NewAuthorizationContext は指定されたアプリケーション識別子の
// AuthorizationContextを生成する。
func NewAuthorizationContext(application string) *AuthorizationContext {
	return &AuthorizationContext{application: application}
}

// Application はコンテキストを要求したアプリケーション識別子を返す。
func (c *AuthorizationContext) Application() string {
	return c.application
}
