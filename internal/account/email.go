package account

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// validEmail はメールアドレスの形式を検証します。
func validEmail(email string) bool {
	return validate.Var(email, "email") == nil
}

// normalizeEmail はメールアドレスを正規化します（前後の空白除去と小文字化、
// ドットは保持）。空文字列に対しては空文字列を返すため、
// email フィールドが送られてこなかった場合でも安全に通過します。
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
