package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// ReportReasons is the fixed list a report must pick from.
var ReportReasons = []string{
	"dangerous person or organization",
	"nudity or sexual content",
	"fraud",
	"misleading information",
	"violent content",
	"harassment or bullying",
	"hate speech",
	"fake account",
	"intellectual property violation",
	"other",
}

// Report is write-once: created by the reporter, never read back by clients.
type Report struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PostID     primitive.ObjectID `bson:"postId" json:"postId"`
	ReporterID primitive.ObjectID `bson:"reporterId" json:"reporterId"`
	Reason     string             `bson:"reason" json:"reason"`
	CreatedAt  int64              `bson:"createdAt" json:"createdAt"`
}

func ValidReportReason(reason string) bool {
	for _, r := range ReportReasons {
		if reason == r {
			return true
		}
	}
	return false
}
