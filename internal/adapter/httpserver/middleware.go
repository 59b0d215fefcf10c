package httpserver

import (
	"strings"

	"github.com/labstack/echo/v4"

	apperrors "github.com/briankwest/imglink/internal/errors"
	"github.com/briankwest/imglink/internal/platform/correlation"
)

const userIDContextKey = "userID"

func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := correlation.WithID(c.Request().Context(), correlation.NewID())
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// bearerAuthMiddleware validates the Authorization header and stores the
// authenticated user ID in the request context. It shares the verifier with
// the websocket handshake, so a token is valid for both or neither.
func (s *Server) bearerAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				return apperrors.AuthenticationError("missing bearer token", nil)
			}

			userID, err := s.verifier.Verify(token)
			if err != nil {
				return apperrors.AuthenticationError("invalid bearer token", err)
			}

			c.Set(userIDContextKey, userID)
			return next(c)
		}
	}
}

func currentUserID(c echo.Context) int64 {
	userID, _ := c.Get(userIDContextKey).(int64)
	return userID
}
