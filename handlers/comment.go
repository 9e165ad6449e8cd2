package handlers

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"talad/database"
	"talad/models"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type AddCommentRequest struct {
	Text string `json:"text"`
}

// AddComment appends one comment to the post's embedded comment list with
// $push, so concurrent comments from other clients are never lost. Blank or
// whitespace-only text is rejected before anything is written.
func AddComment(c *gin.Context) {
	postID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid post ID"})
		return
	}

	var req AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userIDStr := c.GetString("userId")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	comment := models.Comment{
		Username:  actorName(ctx, userIDStr),
		Text:      strings.TrimSpace(req.Text),
		Timestamp: time.Now().Unix(),
	}
	if msg := comment.Validate(); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	var post models.Post
	err = database.Posts.FindOne(ctx, bson.M{"_id": postID}).Decode(&post)
	if err == mongo.ErrNoDocuments {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch post"})
		return
	}

	_, err = database.Posts.UpdateOne(ctx, bson.M{"_id": postID},
		bson.M{"$push": bson.M{"comments": comment}})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add comment"})
		return
	}

	// Alert the owner unless they commented on their own post. Log-only
	// failure: the comment is already in.
	if post.UserID.Hex() != userIDStr {
		postImage := ""
		if len(post.MediaURLs) > 0 {
			postImage = post.MediaURLs[0]
		}
		addNotification(ctx, userIDStr, comment.Text, "new comment", postImage, postID.Hex())
		SendCommentPush(post.UserID, comment.Username, comment.Text)
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Comment added", "comment": comment})
}

// actorName resolves the caller's display name through the shared identity
// cache; one fetch per session, not per request.
func actorName(ctx context.Context, userID string) string {
	if resolver == nil {
		return "Someone"
	}
	profile, err := resolver.Resolve(ctx, userID)
	if err != nil {
		log.Printf("identity resolve failed for %s: %v", userID, err)
		return "Someone"
	}
	if profile.Username == "" {
		return "Someone"
	}
	return profile.Username
}
