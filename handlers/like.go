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

// ToggleLike flips the caller's membership in the post's likedBy set. The
// write is an $addToSet or $pull, never a full overwrite, so concurrent likes
// from other users cannot be lost.
func ToggleLike(c *gin.Context) {
	postID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid post ID"})
		return
	}

	userIDStr := c.GetString("userId")
	if _, err := primitive.ObjectIDFromHex(userIDStr); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user ID"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

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

	liked := post.LikedByUser(userIDStr)
	var update bson.M
	if liked {
		update = bson.M{"$pull": bson.M{"likedBy": userIDStr}}
	} else {
		update = bson.M{"$addToSet": bson.M{"likedBy": userIDStr}}
	}

	if _, err := database.Posts.UpdateOne(ctx, bson.M{"_id": postID}, update); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update like"})
		return
	}

	// Alert the owner on a fresh like of someone else's post. Failure here
	// never affects the like itself.
	if !liked && post.UserID.Hex() != userIDStr {
		postImage := ""
		if len(post.MediaURLs) > 0 {
			postImage = post.MediaURLs[0]
		}
		addNotification(ctx, userIDStr, "liked your item: "+post.Title, "new like", postImage, postID.Hex())
		SendLikePush(post.UserID, actorName(ctx, userIDStr))
	}

	c.JSON(http.StatusOK, gin.H{"liked": !liked})
}
