package core

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

const maxImportSize = 8 * 1024 * 1024 // 8MB (upload payload limit)

// NewRouter constructs the Gin engine with routes wired.
func NewRouter(cfg Config, store *sessions.CookieStore, authService AuthService, gate *SessionGate, repo *FilePostRepository, sessionStoreKind string) *gin.Engine {
	startedAt := time.Now()
	r := gin.Default()

	// Global middleware: origin/CORS -> session -> CSRF
	r.Use(OriginRefererMiddleware(cfg))
	r.Use(SessionMiddleware(cfg, store))
	r.Use(CSRFMiddleware(cfg, store))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	{
		api.POST("/auth/login", func(c *gin.Context) {
			var req struct {
				Username string `json:"username"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}

			user, err := authService.Authenticate(req.Username, req.Password)
			if err != nil {
				// Uniform response; never reveals whether username or password was wrong.
				respondError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid username or password")
				return
			}

			token, err := gate.Issue(c.Request.Context())
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to issue session")
				return
			}

			session, _ := store.Get(c.Request, sessionName)
			if session == nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "session error")
				return
			}

			// reset session values (simple rotation), keep the csrf token
			csrf := session.Values["csrf_token"]
			session.Values = map[interface{}]interface{}{}
			if csrf != nil {
				session.Values["csrf_token"] = csrf
			}
			session.Values["token"] = token
			applySessionOptions(cfg, session)

			if err := session.Save(c.Request, c.Writer); err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to set session")
				return
			}

			c.JSON(http.StatusOK, gin.H{"user": gin.H{"username": user.Username, "role": user.Role}})
		})

		api.POST("/auth/logout", func(c *gin.Context) {
			sessionAny, _ := c.Get("session")
			sess, _ := sessionAny.(*sessions.Session)
			if sess == nil {
				respondError(c, http.StatusUnauthorized, "AUTH_REQUIRED", "login required")
				return
			}
			if token, _ := sess.Values["token"].(string); token != "" {
				if err := gate.Revoke(c.Request.Context(), token); err != nil {
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to revoke session")
					return
				}
			}
			sess.Values = map[interface{}]interface{}{}
			applySessionOptions(cfg, sess)
			sess.Options.MaxAge = -1 // Must be set AFTER applySessionOptions to properly delete cookie
			if err := sess.Save(c.Request, c.Writer); err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to clear session")
				return
			}
			c.Status(http.StatusNoContent)
		})

		api.GET("/auth/me", func(c *gin.Context) {
			token := sessionToken(c)
			if err := gate.RequireAuthenticated(c.Request.Context(), token); err != nil {
				respondError(c, http.StatusUnauthorized, "AUTH_REQUIRED", "login required")
				return
			}
			c.JSON(http.StatusOK, gin.H{"username": cfg.AdminUsername, "role": "admin"})
		})

		api.GET("/posts", func(c *gin.Context) {
			page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
				return
			}
			items, err := repo.List(c.Request.Context(), c.Query("search"))
			if err != nil {
				respondRepoError(c, err)
				return
			}
			total := len(items)
			c.JSON(http.StatusOK, gin.H{
				"items":       pageSlice(items, page, perPage),
				"page":        page,
				"per_page":    perPage,
				"total_items": total,
				"total_pages": calcTotalPages(total, perPage),
			})
		})

		api.GET("/posts/:id", func(c *gin.Context) {
			id, err := strconv.ParseInt(c.Param("id"), 10, 64)
			if err != nil || id <= 0 {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
				return
			}
			p, err := repo.Get(c.Request.Context(), id)
			if err != nil {
				respondRepoError(c, err)
				return
			}
			c.JSON(http.StatusOK, p)
		})

		admin := api.Group("/admin")
		admin.Use(AdminOnly(gate))
		{
			admin.POST("/posts", func(c *gin.Context) {
				var req struct {
					Title string `json:"title"`
					Body  string `json:"body"`
				}
				if err := c.ShouldBindJSON(&req); err != nil {
					respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
					return
				}
				p, err := repo.Create(c.Request.Context(), req.Title, req.Body)
				if err != nil {
					respondRepoError(c, err)
					return
				}
				c.JSON(http.StatusCreated, p)
			})

			admin.PATCH("/posts/:id", func(c *gin.Context) {
				id, err := strconv.ParseInt(c.Param("id"), 10, 64)
				if err != nil || id <= 0 {
					respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
					return
				}
				var req struct {
					Title *string `json:"title"`
					Body  *string `json:"body"`
				}
				if err := c.ShouldBindJSON(&req); err != nil {
					respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
					return
				}
				if req.Title == nil && req.Body == nil {
					respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "title or body is required")
					return
				}
				// Partial update: omitted fields keep their current value.
				current, err := repo.Get(c.Request.Context(), id)
				if err != nil {
					respondRepoError(c, err)
					return
				}
				title := current.Title
				if req.Title != nil {
					title = *req.Title
				}
				body := current.Body
				if req.Body != nil {
					body = *req.Body
				}
				p, err := repo.Update(c.Request.Context(), id, title, body)
				if err != nil {
					respondRepoError(c, err)
					return
				}
				c.JSON(http.StatusOK, p)
			})

			admin.DELETE("/posts/:id", func(c *gin.Context) {
				id, err := strconv.ParseInt(c.Param("id"), 10, 64)
				if err != nil || id <= 0 {
					respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
					return
				}
				if err := repo.Delete(c.Request.Context(), id); err != nil {
					respondRepoError(c, err)
					return
				}
				c.Status(http.StatusNoContent)
			})

			admin.GET("/posts/export", func(c *gin.Context) {
				items, err := repo.List(c.Request.Context(), "")
				if err != nil {
					respondRepoError(c, err)
					return
				}
				data, err := BuildPostsArchive(items)
				if err != nil {
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to build archive")
					return
				}
				c.Header("Content-Type", "application/zip")
				c.Header("Content-Disposition", "attachment; filename=posts-backup.zip")
				c.Data(http.StatusOK, "application/zip", data)
			})

			admin.POST("/posts/import", func(c *gin.Context) {
				fileHeader, err := c.FormFile("file")
				if err != nil {
					respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "provide a zip in the file field")
					return
				}
				if fileHeader.Size > maxImportSize {
					respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "file is too large (max 8MB)")
					return
				}
				file, err := fileHeader.Open()
				if err != nil {
					respondError(c, http.StatusBadRequest, "INVALID_ARCHIVE", "cannot open uploaded file")
					return
				}
				defer file.Close()
				data, err := io.ReadAll(io.LimitReader(file, maxImportSize+1024))
				if err != nil {
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to read upload")
					return
				}
				if int64(len(data)) > maxImportSize {
					respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "file is too large (max 8MB)")
					return
				}

				posts, err := ParsePostsArchive(data)
				if err != nil {
					respondError(c, http.StatusBadRequest, "INVALID_ARCHIVE", err.Error())
					return
				}
				if err := repo.ReplaceAll(c.Request.Context(), posts); err != nil {
					if errors.Is(err, ErrValidation) {
						respondError(c, http.StatusBadRequest, "INVALID_ARCHIVE", err.Error())
						return
					}
					respondRepoError(c, err)
					return
				}
				c.JSON(http.StatusOK, gin.H{"imported": len(posts)})
			})

			admin.GET("/system/status", func(c *gin.Context) {
				st, err := CollectSystemStatus(c.Request.Context(), repo, sessionStoreKind, startedAt)
				if err != nil {
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to load system status")
					return
				}
				c.JSON(http.StatusOK, st)
			})
		}
	}

	return r
}
