package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Notification is written by any action that should alert other users and is
// only ever deleted, never updated. The collection is global: documents carry
// no recipient, so every user sees the same feed.
type Notification struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ActorImage string             `bson:"actorImage,omitempty" json:"actorImage,omitempty"`
	ActorName  string             `bson:"actorName" json:"actorName"`
	Message    string             `bson:"message" json:"message"`
	Status     string             `bson:"status" json:"status"` // free-form label, e.g. "new post", "new comment"
	PostImage  string             `bson:"postImage,omitempty" json:"postImage,omitempty"`
	PostID     string             `bson:"postId,omitempty" json:"postId,omitempty"`
	CreatedAt  int64              `bson:"createdAt" json:"createdAt"`
}
