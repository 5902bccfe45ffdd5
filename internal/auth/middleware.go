// Package auth は認証・認可機能を提供します。
package auth

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// Resolve はログイン済みであればユーザー名をコンテキストへ載せるミドルウェアを
// 返します。RequireLogin と違い、未ログインでも処理は継続します。
// アップロード系のエンドポイントはログインの有無で利用枠だけが変わるため、
// ここでは判定のみを行います。
func (m *Manager) Resolve() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		if user, ok := sessionUser(session); ok {
			c.Set(ContextUserKey, user)
		}
		c.Next()
	}
}
