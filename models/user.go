package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// User is the authentication identity and its profile in one document.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash *string            `bson:"passwordHash,omitempty" json:"-"`
	Username     string             `bson:"username" json:"username"`
	Avatar       string             `bson:"avatar" json:"avatar"`
	CreatedAt    int64              `bson:"createdAt" json:"createdAt"`
	LastSeen     int64              `bson:"lastSeen" json:"lastSeen"`
}
