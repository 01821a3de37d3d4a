package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-curriculum-api/internal/middleware"
	"github.com/noah-isme/sma-curriculum-api/internal/models"
)

const maxPageSize = 200

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.CurrentClaims(c)
}

// pageFromQuery reads page and pageSize. ok is false when the caller asked for no paging.
func pageFromQuery(c *gin.Context) (page, size int, ok bool) {
	rawSize := c.Query("pageSize")
	if rawSize == "" {
		return 0, 0, false
	}
	size, err := strconv.Atoi(rawSize)
	if err != nil || size <= 0 {
		return 0, 0, false
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	page, err = strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page <= 0 {
		page = 1
	}
	return page, size, true
}

func pageBounds(total, page, size int) (int, int) {
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return start, end
}
