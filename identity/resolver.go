// Package identity resolves user ids to display profiles, fetching each one
// once per session instead of once per screen.
package identity

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const FallbackAvatar = "https://upload.wikimedia.org/wikipedia/commons/8/89/Portrait_Placeholder.png"

type Profile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// LookupFunc fetches one profile from the backing store.
type LookupFunc func(ctx context.Context, id string) (Profile, error)

// Resolver caches profiles for the process lifetime. Lookups that fail are
// not cached, so a later call retries.
type Resolver struct {
	mu     sync.RWMutex
	cache  map[string]Profile
	lookup LookupFunc
}

func NewResolver(lookup LookupFunc) *Resolver {
	return &Resolver{cache: make(map[string]Profile), lookup: lookup}
}

func (r *Resolver) Resolve(ctx context.Context, id string) (Profile, error) {
	r.mu.RLock()
	p, ok := r.cache[id]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := r.lookup(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	if p.Avatar == "" {
		p.Avatar = FallbackAvatar
	}

	r.mu.Lock()
	r.cache[id] = p
	r.mu.Unlock()
	return p, nil
}

// Invalidate drops one cached profile, e.g. after the user edits it.
func (r *Resolver) Invalidate(id string) {
	r.mu.Lock()
	delete(r.cache, id)
	r.mu.Unlock()
}

// MongoLookup reads profiles from the users collection.
func MongoLookup(users *mongo.Collection) LookupFunc {
	return func(ctx context.Context, id string) (Profile, error) {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return Profile{}, err
		}
		var user struct {
			Username string `bson:"username"`
			Avatar   string `bson:"avatar"`
		}
		if err := users.FindOne(ctx, bson.M{"_id": oid}).Decode(&user); err != nil {
			return Profile{}, err
		}
		return Profile{ID: id, Username: user.Username, Avatar: user.Avatar}, nil
	}
}
