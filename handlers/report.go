package handlers

import (
	"context"
	"net/http"
	"time"

	"talad/database"
	"talad/models"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type CreateReportRequest struct {
	PostID string `json:"postId" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

// CreateReport files a write-once report against a post. The reason must come
// from the fixed list; clients never read reports back.
func CreateReport(c *gin.Context) {
	var req CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !models.ValidReportReason(req.Reason) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown report reason"})
		return
	}

	postID, err := primitive.ObjectIDFromHex(req.PostID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid post ID"})
		return
	}

	reporterID := mustUserID(c)
	if reporterID.IsZero() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user ID"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = database.Posts.FindOne(ctx, bson.M{"_id": postID}).Err()
	if err == mongo.ErrNoDocuments {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch post"})
		return
	}

	report := models.Report{
		ID:         primitive.NewObjectID(),
		PostID:     postID,
		ReporterID: reporterID,
		Reason:     req.Reason,
		CreatedAt:  time.Now().Unix(),
	}

	if _, err := database.Reports.InsertOne(ctx, report); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit report"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Report submitted"})
}
