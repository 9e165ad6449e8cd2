package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMyPostsFilterPostedTab(t *testing.T) {
	userID := primitive.NewObjectID()

	filter, ok := myPostsFilter("posted", userID)
	require.True(t, ok)
	assert.Equal(t, bson.M{"userId": userID, "isSold": false}, filter)
}

func TestMyPostsFilterSoldTab(t *testing.T) {
	userID := primitive.NewObjectID()

	filter, ok := myPostsFilter("sold", userID)
	require.True(t, ok)
	assert.Equal(t, bson.M{"userId": userID, "isSold": true}, filter)
}

// The liked tab lists every post the user has liked, sold ones included:
// clients render those with a blocking "item sold" notice, so the query must
// not filter on isSold.
func TestMyPostsFilterLikedTabIncludesSold(t *testing.T) {
	userID := primitive.NewObjectID()

	filter, ok := myPostsFilter("liked", userID)
	require.True(t, ok)
	assert.Equal(t, bson.M{"likedBy": userID.Hex()}, filter)
	assert.NotContains(t, filter, "isSold")

	soldLikedPost := bson.M{"likedBy": []string{userID.Hex()}, "isSold": true}
	assert.Contains(t, soldLikedPost["likedBy"], filter["likedBy"])
}

func TestMyPostsFilterUnknownTab(t *testing.T) {
	_, ok := myPostsFilter("archived", primitive.NewObjectID())
	assert.False(t, ok)
}
