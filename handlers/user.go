package handlers

import (
	"context"
	"net/http"
	"os"
	"time"

	"talad/database"
	"talad/models"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func GetMyProfile(c *gin.Context) {
	userID := mustUserID(c)
	if userID.IsZero() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user ID"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var user models.User
	err := database.Users.FindOne(ctx, bson.M{"_id": userID}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch profile"})
		return
	}

	if user.Avatar == "" {
		user.Avatar = fallbackAvatar
	}
	c.JSON(http.StatusOK, user)
}

// GetUser returns the public profile of any user; missing users come back as
// a placeholder rather than an error so listings can still render.
func GetUser(c *gin.Context) {
	userIDStr := c.Param("id")
	placeholder := gin.H{
		"id":       userIDStr,
		"username": "Unknown User",
		"avatar":   fallbackAvatar,
	}

	userID, err := primitive.ObjectIDFromHex(userIDStr)
	if err != nil {
		c.JSON(http.StatusOK, placeholder)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var user models.User
	err = database.Users.FindOne(ctx, bson.M{"_id": userID}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		c.JSON(http.StatusOK, placeholder)
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch user"})
		return
	}

	avatar := user.Avatar
	if avatar == "" {
		avatar = fallbackAvatar
	}
	c.JSON(http.StatusOK, gin.H{
		"id":       user.ID.Hex(),
		"username": user.Username,
		"avatar":   avatar,
	})
}

// UpdateMyProfile edits username and avatar. The avatar arrives as a
// multipart file and goes to Cloudinary; the stored value is the resulting
// secure URL.
func UpdateMyProfile(c *gin.Context) {
	userID := mustUserID(c)
	if userID.IsZero() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user ID"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	set := bson.M{}
	if username := c.PostForm("username"); username != "" {
		set["username"] = username
	}

	avatarFile, _, err := c.Request.FormFile("avatar")
	if err == nil {
		defer avatarFile.Close()

		cld, err := cloudinary.NewFromURL(os.Getenv("CLOUDINARY_URL"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Cloudinary configuration error"})
			return
		}

		uploadParams := uploader.UploadParams{
			Folder:         "talad/avatars",
			PublicID:       userID.Hex(),
			Transformation: "c_limit,w_400,h_400,q_auto",
		}

		uploadResult, err := cld.Upload.Upload(ctx, avatarFile, uploadParams)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload avatar"})
			return
		}
		set["avatar"] = uploadResult.SecureURL
	}

	if len(set) == 0 {
		c.JSON(http.StatusOK, gin.H{"message": "No changes to update"})
		return
	}

	result, err := database.Users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": set})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
		return
	}
	if result.MatchedCount == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	// Cached display data is stale now.
	if resolver != nil {
		resolver.Invalidate(userID.Hex())
	}

	c.JSON(http.StatusOK, gin.H{"message": "Profile updated successfully"})
}
