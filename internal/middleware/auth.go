package middleware

import (
	"context"
	"net/http"

	"paygate/internal/auth"
	"paygate/internal/logger"
	"paygate/internal/utils"

	"go.uber.org/zap"
)

type contextKey string

const ServiceClaimsKey contextKey = "serviceClaims"

// ServiceAuth rejects requests without a valid service token carrying scope.
func ServiceAuth(secret, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := auth.ExtractAccessToken(r)
			if tokenStr == "" {
				utils.WriteJSONError(w, "missing service token", http.StatusUnauthorized)
				return
			}

			claims, err := auth.ParseJWT(secret, tokenStr)
			if err != nil {
				logger.FromCtx(r.Context()).Warn("Rejected service token", zap.Error(err))
				utils.WriteJSONError(w, "invalid service token", http.StatusUnauthorized)
				return
			}

			if !claims.HasScope(scope) {
				logger.FromCtx(r.Context()).Warn("Service token lacks scope",
					zap.String("service", claims.Service),
					zap.String("scope", scope),
				)
				utils.WriteJSONError(w, "forbidden", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), ServiceClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ServiceClaimsFrom(ctx context.Context) (*auth.ServiceClaims, bool) {
	claims, ok := ctx.Value(ServiceClaimsKey).(*auth.ServiceClaims)
	return claims, ok
}
