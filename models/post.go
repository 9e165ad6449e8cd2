package models

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Categories is the fixed set a post must belong to.
var Categories = []string{"fashion", "clothes", "shoes", "bags", "accessories", "dolls", "other"}

type Location struct {
	Latitude  float64 `bson:"latitude" json:"latitude"`
	Longitude float64 `bson:"longitude" json:"longitude"`
}

type Comment struct {
	Username  string `bson:"username" json:"username"`
	Text      string `bson:"text" json:"text"`
	Timestamp int64  `bson:"timestamp" json:"timestamp"`
}

type Post struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID      primitive.ObjectID `bson:"userId" json:"userId"`
	Title       string             `bson:"title" json:"title"`
	Price       float64            `bson:"price" json:"price"`
	Description string             `bson:"description,omitempty" json:"description"`
	Category    string             `bson:"category" json:"category"`
	MediaURLs   []string           `bson:"mediaUrls" json:"mediaUrls"`
	Location    *Location          `bson:"location,omitempty" json:"location,omitempty"`
	LikedBy     []string           `bson:"likedBy" json:"likedBy"`
	Comments    []Comment          `bson:"comments" json:"comments"`
	IsSold      bool               `bson:"isSold" json:"isSold"` // one-way: false -> true only
	CreatedAt   int64              `bson:"createdAt" json:"createdAt"`
}

func ValidCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Validate checks the fields a post must carry before it is written.
// A post needs at least one media URL to be visible in listings.
func (p *Post) Validate() string {
	if strings.TrimSpace(p.Title) == "" {
		return "title is required"
	}
	if p.Price < 0 {
		return "price cannot be negative"
	}
	if !ValidCategory(p.Category) {
		return "unknown category"
	}
	if len(p.MediaURLs) == 0 {
		return "at least one photo is required"
	}
	return ""
}

func (p *Post) LikedByUser(userID string) bool {
	for _, id := range p.LikedBy {
		if id == userID {
			return true
		}
	}
	return false
}

// Validate rejects comments that are blank after trimming.
func (c *Comment) Validate() string {
	if strings.TrimSpace(c.Text) == "" {
		return "comment text is required"
	}
	return ""
}

// MatchesQuery reports whether the post matches a search query. Queries of a
// single character (or empty) never match: search only activates past one
// character. Matching is a case-insensitive substring test over title and
// description.
func (p *Post) MatchesQuery(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if len([]rune(q)) <= 1 {
		return false
	}
	return strings.Contains(strings.ToLower(p.Title), q) ||
		strings.Contains(strings.ToLower(p.Description), q)
}
