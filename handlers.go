package main

import (
	"log"
	"net/http"

	"bandalloc/pkg/apperr"
	"bandalloc/pkg/config"
	"bandalloc/pkg/listcache"
	"bandalloc/pkg/store"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type server struct {
	cfg       config.Config
	store     *store.Lazy
	cache     listcache.Cache
	amount    decimal.Decimal
	jwtSecret []byte
}

func newServer(cfg config.Config, lazy *store.Lazy, cache listcache.Cache) (*server, error) {
	amount, err := cfg.Amount()
	if err != nil {
		return nil, err
	}
	if cache == nil {
		cache = listcache.Noop{}
	}
	return &server{
		cfg:       cfg,
		store:     lazy,
		cache:     cache,
		amount:    amount,
		jwtSecret: []byte(cfg.Auth.JWTSecret),
	}, nil
}

func (s *server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), corsMiddleware())
	r.HandleMethodNotAllowed = true
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"success": false, "error": "Method not allowed"})
	})
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Not found"})
	})

	r.GET("/health", healthHandler)
	r.POST("/login", s.loginHandler)
	r.GET("/me", s.jwtAuthMiddleware(), s.meHandler)

	r.GET("/entries", s.listEntriesHandler)
	r.POST("/entries", s.createEntriesHandler)
	r.PUT("/entries", s.updateEntryHandler)
	r.DELETE("/entries", s.deleteEntriesHandler)
	r.GET("/entries/summary", s.summaryHandler)

	r.GET("/users", s.listUsersHandler)
	admin := r.Group("/users", s.requireAdmin())
	admin.POST("", s.createUserHandler)
	admin.PUT("", s.updateUserHandler)
	admin.DELETE("", s.deleteUserHandler)
	return r
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		if c.Request.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			// preflight is answered for any path, routed or not
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

// respondError writes the {success:false} envelope for err. Only failures
// that map to a 5xx are logged.
func respondError(c *gin.Context, err error) {
	status := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	body := gin.H{"success": false, "error": err.Error()}
	if dups := apperr.DuplicatesOf(err); len(dups) > 0 {
		body["duplicateBands"] = dups
	}
	c.JSON(status, body)
}

// bindJSON decodes the request body into dst, answering 400 on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, apperr.Validation("invalid JSON body: %v", err))
		return false
	}
	return true
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "status": "ok"})
}

func (s *server) loginHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !bindJSON(c, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(c, apperr.Validation("username and password are required"))
		return
	}
	svc, err := s.accountService()
	if err != nil {
		respondError(c, err)
		return
	}
	user, err := svc.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	token, err := s.issueToken(user)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "login successful", "token": token, "user": user})
}

func (s *server) meHandler(c *gin.Context) {
	username := c.GetString("username")
	if username == "" {
		respondError(c, apperr.Unauthorized("context missing username"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"username": username,
		"role":     c.GetString("role"),
		"isAdmin":  c.GetBool("isAdmin"),
	})
}
