package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"TradeDeck/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging logs HTTP requests.
func RequestLogging(log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			log.Debug("http request",
				logger.String("method", c.Request().Method),
				logger.String("uri", c.Request().RequestURI),
				logger.Int("status", c.Response().Status),
				logger.Duration("latency", time.Since(start)))
			return err
		}
	}
}

// Recover returns panic recovery middleware.
func Recover(log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			defer func() {
				if r := recover(); r != nil {
					err, ok := r.(error)
					if !ok {
						err = fmt.Errorf("%v", r)
					}
					log.Error("panic recovered",
						logger.Error(err),
						logger.String("stack", string(debug.Stack())))
					_ = c.JSON(http.StatusInternalServerError, map[string]interface{}{
						"status":  http.StatusInternalServerError,
						"message": "Internal Server Error",
					})
				}
			}()
			return next(c)
		}
	}
}

// CORS returns CORS middleware allowing the given origins ("*" for any).
func CORS(allowOrigins []string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			origin := c.Request().Header.Get("Origin")

			allowed := ""
			for _, o := range allowOrigins {
				if o == "*" || o == origin {
					allowed = o
					break
				}
			}
			if allowed == "" {
				return next(c)
			}
			if allowed == "*" && origin != "" {
				allowed = origin
			}

			h := c.Response().Header()
			h.Set("Access-Control-Allow-Origin", allowed)
			h.Set("Access-Control-Allow-Methods", strings.Join([]string{
				http.MethodGet, http.MethodOptions,
			}, ", "))
			h.Set("Access-Control-Allow-Headers", strings.Join([]string{
				echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept,
			}, ", "))

			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusNoContent)
			}
			return next(c)
		}
	}
}
