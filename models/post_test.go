package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validPost() Post {
	return Post{
		Title:     "Vintage leather bag",
		Price:     450,
		Category:  "bags",
		MediaURLs: []string{"https://cdn.example.com/bag.jpg"},
	}
}

func TestPostValidate(t *testing.T) {
	p := validPost()
	assert.Empty(t, p.Validate())

	p = validPost()
	p.Title = "   "
	assert.Equal(t, "title is required", p.Validate())

	p = validPost()
	p.Price = -1
	assert.Equal(t, "price cannot be negative", p.Validate())

	p = validPost()
	p.Price = 0 // free items are allowed
	assert.Empty(t, p.Validate())

	p = validPost()
	p.Category = "electronics"
	assert.Equal(t, "unknown category", p.Validate())

	p = validPost()
	p.MediaURLs = nil
	assert.Equal(t, "at least one photo is required", p.Validate())
}

func TestValidCategory(t *testing.T) {
	for _, c := range Categories {
		assert.True(t, ValidCategory(c), c)
	}
	assert.False(t, ValidCategory(""))
	assert.False(t, ValidCategory("Shoes")) // case sensitive
	assert.False(t, ValidCategory("electronics"))
}

func TestLikedByUser(t *testing.T) {
	p := Post{LikedBy: []string{"u1", "u2"}}
	assert.True(t, p.LikedByUser("u1"))
	assert.False(t, p.LikedByUser("u3"))

	empty := Post{}
	assert.False(t, empty.LikedByUser("u1"))
}

func TestCommentValidate(t *testing.T) {
	c := Comment{Username: "alice", Text: "still available?"}
	assert.Empty(t, c.Validate())

	c.Text = "  \t\n "
	assert.Equal(t, "comment text is required", c.Validate())
}

func TestMatchesQuery(t *testing.T) {
	p := Post{Title: "Nike running shoes", Description: "Barely worn, size 42"}

	assert.True(t, p.MatchesQuery("shoes"))
	assert.True(t, p.MatchesQuery("SHOES"))
	assert.True(t, p.MatchesQuery("size 42"))
	assert.True(t, p.MatchesQuery("  nike  "))

	// Search only activates past a single character.
	assert.False(t, p.MatchesQuery("s"))
	assert.False(t, p.MatchesQuery(""))
	assert.False(t, p.MatchesQuery("  n  "))

	assert.False(t, p.MatchesQuery("jacket"))
}

func TestValidReportReason(t *testing.T) {
	assert.True(t, ValidReportReason("fraud"))
	assert.True(t, ValidReportReason("other"))
	assert.False(t, ValidReportReason(""))
	assert.False(t, ValidReportReason("Fraud"))
	assert.False(t, ValidReportReason("spam"))
}
