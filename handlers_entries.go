package main

import (
	"net/http"
	"strings"

	"bandalloc/pkg/bands"

	"github.com/gin-gonic/gin"
)

// listEntriesHandler serves GET /entries?userId=&sort=, going through the
// listing cache when one is configured.
func (s *server) listEntriesHandler(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("userId"))
	if userID == "" {
		userID = bands.DefaultUser
	}
	sort, err := bands.NormalizeSort(c.Query("sort"))
	if err != nil {
		respondError(c, err)
		return
	}
	ctx := c.Request.Context()
	key, entries, hit := s.cache.Lookup(ctx, userID, sort)
	if !hit {
		svc, err := s.bandService()
		if err != nil {
			respondError(c, err)
			return
		}
		entries, err = svc.List(ctx, bands.ListQuery{UserID: userID, Sort: sort})
		if err != nil {
			respondError(c, err)
			return
		}
		s.cache.Store(ctx, key, entries)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": entries, "count": len(entries)})
}

func (s *server) createEntriesHandler(c *gin.Context) {
	var sub bands.Submission
	if !bindJSON(c, &sub) {
		return
	}
	svc, err := s.bandService()
	if err != nil {
		respondError(c, err)
		return
	}
	out, err := svc.Allocate(c.Request.Context(), sub)
	if err != nil {
		respondError(c, err)
		return
	}
	s.cache.Invalidate(c.Request.Context())
	c.JSON(http.StatusCreated, gin.H{
		"success":       true,
		"insertedCount": len(out.IDs),
		"ids":           out.IDs,
		"entryGroupId":  out.EntryGroupID,
		"replacedCount": out.ReplacedCount,
	})
}

func (s *server) updateEntryHandler(c *gin.Context) {
	var req bands.Update
	if !bindJSON(c, &req) {
		return
	}
	svc, err := s.bandService()
	if err != nil {
		respondError(c, err)
		return
	}
	modified, err := svc.Update(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	s.cache.Invalidate(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Entry updated successfully", "modifiedCount": modified})
}

// deleteEntriesHandler serves DELETE /entries?id= | ?bandNo=[&userId=] | ?userId=all.
func (s *server) deleteEntriesHandler(c *gin.Context) {
	svc, err := s.bandService()
	if err != nil {
		respondError(c, err)
		return
	}
	deleted, err := svc.Delete(c.Request.Context(), bands.DeleteQuery{
		ID:     c.Query("id"),
		BandNo: c.Query("bandNo"),
		UserID: c.Query("userId"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if deleted > 0 {
		s.cache.Invalidate(c.Request.Context())
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deletedCount": deleted})
}

func (s *server) summaryHandler(c *gin.Context) {
	svc, err := s.bandService()
	if err != nil {
		respondError(c, err)
		return
	}
	sum, err := svc.Summary(c.Request.Context(), c.Query("userId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"userId":      sum.UserID,
		"zones":       sum.Zones,
		"count":       sum.Count,
		"totalAmount": sum.TotalAmount,
	})
}
