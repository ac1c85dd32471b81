package middleware

import (
	"net/http"
	"os"

	"indexmarket/pkg/crypto"
)

// AdminAuth - middleware для защиты административных endpoints
//
// Назначение:
// Защищает операции управления токенами (листинг нового индекса,
// принудительная градуация) от неавторизованного доступа.
// Ключ передается в заголовке X-Admin-Key и сверяется с bcrypt-хешем
// из конфигурации (ADMIN_KEY_HASH).
//
// Безопасность:
// - bcrypt сравнение устойчиво к timing attacks
// - в репозитории и конфигах хранится только хеш, не сам ключ
// - если хеш не настроен, доступ открыт только в development
func AdminAuth(keyHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if keyHash == "" {
				// В development (если явно не настроено) разрешаем доступ
				if env := os.Getenv("ENV"); env == "development" || env == "" {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, "Admin endpoints disabled. Set ADMIN_KEY_HASH.", http.StatusForbidden)
				return
			}

			key := r.Header.Get("X-Admin-Key")
			if key == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if !crypto.CheckKeyMatch(key, keyHash) {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
