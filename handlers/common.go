package handlers

import (
	"github.com/SherClockHolmes/webpush-go"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"talad/identity"
)

// Shared state wired up from main.
var resolver *identity.Resolver
var vapidPrivateKey string

const fallbackAvatar = identity.FallbackAvatar

// PushSubscription stores one browser push endpoint per user.
type PushSubscription struct {
	ID     primitive.ObjectID   `bson:"_id,omitempty"`
	UserID primitive.ObjectID   `bson:"userId"`
	Sub    webpush.Subscription `bson:"sub"`
}

// SetResolver sets the shared identity resolution service.
func SetResolver(r *identity.Resolver) {
	resolver = r
}
