package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"talad/database"
	"talad/models"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// GetNotifications lists the feed newest first.
func GetNotifications(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := database.Notifications.Find(ctx, bson.M{}, findOptions)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch notifications"})
		return
	}
	defer cursor.Close(ctx)

	notifications := []models.Notification{}
	if err := cursor.All(ctx, &notifications); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to decode notifications"})
		return
	}

	c.JSON(http.StatusOK, notifications)
}

func DeleteNotification(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid notification ID"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := database.Notifications.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete notification"})
		return
	}
	if result.DeletedCount == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Notification deleted"})
}

// ClearNotifications removes the whole feed in one batch delete.
func ClearNotifications(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := database.Notifications.DeleteMany(ctx, bson.M{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Notifications cleared", "deleted": result.DeletedCount})
}

// addNotification records a feed entry for a mutation that should alert other
// users. Best-effort: a failure is logged and never rolls back the primary
// action.
func addNotification(ctx context.Context, actorID, message, status, postImage, postID string) {
	actor := identityOrFallback(ctx, actorID)

	notification := models.Notification{
		ID:         primitive.NewObjectID(),
		ActorImage: actor.Avatar,
		ActorName:  actor.Username,
		Message:    message,
		Status:     status,
		PostImage:  postImage,
		PostID:     postID,
		CreatedAt:  time.Now().Unix(),
	}

	if _, err := database.Notifications.InsertOne(ctx, notification); err != nil {
		log.Printf("addNotification failed (%s): %v", status, err)
	}
}

func identityOrFallback(ctx context.Context, userID string) (profile struct {
	Username string
	Avatar   string
}) {
	profile.Username = "Someone"
	profile.Avatar = fallbackAvatar
	if resolver == nil {
		return profile
	}
	resolved, err := resolver.Resolve(ctx, userID)
	if err != nil {
		log.Printf("identity resolve failed for %s: %v", userID, err)
		return profile
	}
	if resolved.Username != "" {
		profile.Username = resolved.Username
	}
	if resolved.Avatar != "" {
		profile.Avatar = resolved.Avatar
	}
	return profile
}
