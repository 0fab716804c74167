package main

import (
	"net/http"

	"bandalloc/pkg/accounts"

	"github.com/gin-gonic/gin"
)

func (s *server) listUsersHandler(c *gin.Context) {
	svc, err := s.accountService()
	if err != nil {
		respondError(c, err)
		return
	}
	users, err := svc.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": users, "count": len(users)})
}

func (s *server) createUserHandler(c *gin.Context) {
	var req accounts.NewUser
	if !bindJSON(c, &req) {
		return
	}
	svc, err := s.accountService()
	if err != nil {
		respondError(c, err)
		return
	}
	user, err := svc.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "id": user.ID, "message": "User created successfully"})
}

// updateUserHandler accepts the target id as either "id" or "userId".
func (s *server) updateUserHandler(c *gin.Context) {
	var req struct {
		accounts.Change
		UserID string `json:"userId"`
	}
	if !bindJSON(c, &req) {
		return
	}
	if req.ID == "" {
		req.ID = req.UserID
	}
	svc, err := s.accountService()
	if err != nil {
		respondError(c, err)
		return
	}
	user, err := svc.Update(c.Request.Context(), req.Change)
	if err != nil {
		respondError(c, err)
		return
	}
	// a rename moves entries to the new owner
	s.cache.Invalidate(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "User updated successfully", "user": user})
}

func (s *server) deleteUserHandler(c *gin.Context) {
	svc, err := s.accountService()
	if err != nil {
		respondError(c, err)
		return
	}
	deleted, err := svc.Delete(c.Request.Context(), c.Query("username"))
	if err != nil {
		respondError(c, err)
		return
	}
	s.cache.Invalidate(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      "User and associated entries deleted successfully",
		"deletedCount": deleted,
	})
}
