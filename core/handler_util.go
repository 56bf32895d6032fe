package core

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// respondError sends unified error payload {"error": {"code", "message"}}.
func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": gin.H{"code": code, "message": message}})
}

// respondRepoError maps repository failures onto the unified payload.
func respondRepoError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, ErrNotFound):
		respondError(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, ErrStorageCorrupt):
		respondError(c, http.StatusInternalServerError, "STORAGE_CORRUPT", "posts storage is corrupt")
	default:
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "unexpected error")
	}
}

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

func parsePagination(pageStr, perPageStr string) (int, int, error) {
	page := 1
	perPage := defaultPerPage
	if strings.TrimSpace(pageStr) != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p <= 0 {
			return 0, 0, errors.New("page must be a positive integer")
		}
		page = p
	}
	if strings.TrimSpace(perPageStr) != "" {
		p, err := strconv.Atoi(perPageStr)
		if err != nil || p <= 0 {
			return 0, 0, errors.New("per_page must be a positive integer")
		}
		if p > maxPerPage {
			p = maxPerPage
		}
		perPage = p
	}
	return page, perPage, nil
}

func calcTotalPages(total, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}

// pageSlice cuts one page out of the already filtered, already sorted list.
func pageSlice(posts []Post, page, perPage int) []Post {
	start := (page - 1) * perPage
	if start >= len(posts) {
		return []Post{}
	}
	end := start + perPage
	if end > len(posts) {
		end = len(posts)
	}
	return posts[start:end]
}
