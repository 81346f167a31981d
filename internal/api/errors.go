package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gauge-tracking-backend/internal/pair"
	"gauge-tracking-backend/internal/service"
	"gauge-tracking-backend/internal/store"
)

// writeError maps service errors onto HTTP responses. Domain refusals keep
// their stable code and field metadata so clients can branch on them.
func writeError(c *gin.Context, err error) {
	var de *pair.DomainError
	if errors.As(err, &de) {
		body := gin.H{"error": de.Message, "code": de.Code}
		if len(de.Fields) > 0 {
			body["fields"] = de.Fields
		}
		c.JSON(http.StatusConflict, body)
		return
	}

	if pair.IsNotFound(err) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	if errors.Is(err, store.ErrNoTxHandle) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	if service.IsTransient(err) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable, retry"})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// userID reads the acting user from the X-User-ID header.
func userID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-User-ID header is required"})
		return 0, false
	}
	return id, true
}

// pathID parses the named int64 path parameter.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
