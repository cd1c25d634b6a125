package account

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// フラッシュメッセージのキー。次に描画されるページで一度だけ表示される。
const (
	flashKeyErrors  = "errors"
	flashKeySuccess = "success"
	flashKeyInfo    = "info"
)

func flashError(c *gin.Context, messages ...string) {
	addFlashes(c, flashKeyErrors, messages)
}

func flashSuccess(c *gin.Context, message string) {
	addFlashes(c, flashKeySuccess, []string{message})
}

func flashInfo(c *gin.Context, message string) {
	addFlashes(c, flashKeyInfo, []string{message})
}

func addFlashes(c *gin.Context, key string, messages []string) {
	session := sessions.Default(c)
	for _, msg := range messages {
		session.AddFlash(msg, key)
	}
	_ = session.Save()
}

// takeFlashes は全フラッシュメッセージを取り出してセッションから消します。
func takeFlashes(c *gin.Context) (errors, success, info []string) {
	session := sessions.Default(c)
	errors = flashStrings(session.Flashes(flashKeyErrors))
	success = flashStrings(session.Flashes(flashKeySuccess))
	info = flashStrings(session.Flashes(flashKeyInfo))
	// Flashes は読み出しだけでは消えないため保存して確定させる
	_ = session.Save()
	return errors, success, info
}

func flashStrings(values []interface{}) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
