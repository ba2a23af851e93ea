package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
)

// DispatchAttributes tags the New Relic transaction started by nrgin with the
// caller and resource identifiers of a dispatch request. It must run after
// nrgin.Middleware and is a no-op when New Relic is disabled.
func DispatchAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		txn := nrgin.Transaction(c)
		if txn == nil {
			c.Next()
			return
		}

		if actor := c.GetHeader("X-Actor-ID"); actor != "" {
			txn.AddAttribute("actor_id", actor)
		}
		if driver := c.GetHeader("X-Driver-ID"); driver != "" {
			txn.AddAttribute("driver_id", driver)
		}
		if id := c.Param("id"); id != "" {
			txn.AddAttribute("resource_id", id)
		}

		c.Next()

		// Record error if present.
		for _, err := range c.Errors {
			txn.NoticeError(err.Err)
		}
	}
}
