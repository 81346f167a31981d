package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetVAPIDPublicKey hands the browser the public half of the VAPID key pair
// from the server config. Push is optional for this service, so a
// deployment without keys answers 503 and the frontend hides its
// subscribe control. Rotating the key invalidates existing subscriptions;
// clients are expected to re-subscribe on the next page load.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if h.webpush == nil || h.webpush.VAPIDPublicKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "push notifications are not configured"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"public_key": h.webpush.VAPIDPublicKey})
}
