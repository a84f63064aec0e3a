package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/orghub/services"
	"github.com/cppla/orghub/utils"
)

// ContextAccountKey is the key used to store the authenticated account in Gin context.
const ContextAccountKey = "account"

// AuthRequired ensures the request is authenticated via JWT and exposes the account.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		if authHeader == "" {
			utils.Abort(ctx, http.StatusUnauthorized, 40101, "authorization header missing")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			utils.Abort(ctx, http.StatusUnauthorized, 40102, "invalid authorization header format")
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			utils.Abort(ctx, http.StatusUnauthorized, 40103, "empty bearer token")
			return
		}

		claims, err := utils.ParseToken(secret, tokenString)
		if err != nil {
			utils.Abort(ctx, http.StatusUnauthorized, 40105, "invalid token")
			return
		}

		ctx.Set(ContextAccountKey, services.Account{
			ID:         claims.AccountID,
			IsAdmin:    claims.IsAdmin,
			IsTester:   claims.IsTester,
			Moderation: claims.Moderation,
		})
		ctx.Next()
	}
}

// AccountFrom returns the account stored by AuthRequired.
func AccountFrom(ctx *gin.Context) (services.Account, bool) {
	v, ok := ctx.Get(ContextAccountKey)
	if !ok {
		return services.Account{}, false
	}
	account, ok := v.(services.Account)
	return account, ok && account.ID != ""
}
