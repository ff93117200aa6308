package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// StudyGroup is stored in the study_groups collection. The chat log is
// embedded and only ever grows through a member-conditioned $push.
type StudyGroup struct {
	ID              primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name            string               `bson:"name" json:"name"`
	Description     string               `bson:"description" json:"description"`
	Owner           primitive.ObjectID   `bson:"owner" json:"owner"`
	Members         []primitive.ObjectID `bson:"members" json:"member_ids"`
	PendingRequests []primitive.ObjectID `bson:"pending_requests" json:"pending_request_ids"`
	Files           []SharedFile         `bson:"files" json:"files"`
	Chat            []ChatMessage        `bson:"chat" json:"chat"`
	IsPublic        bool                 `bson:"is_public" json:"is_public"`
	ExamDate        time.Time            `bson:"exam_date" json:"exam_date"`
	CreatedAt       time.Time            `bson:"created_at" json:"created_at"`
}

// HasMember reports whether userID is in Members.
func (g StudyGroup) HasMember(userID primitive.ObjectID) bool {
	for _, m := range g.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// HasPending reports whether userID is waiting for owner approval.
func (g StudyGroup) HasPending(userID primitive.ObjectID) bool {
	for _, p := range g.PendingRequests {
		if p == userID {
			return true
		}
	}
	return false
}

type SharedFile struct {
	FileID     string    `bson:"file_id" json:"file_id"`
	UploadedBy string    `bson:"uploaded_by" json:"uploaded_by"`
	FileURL    string    `bson:"file_url" json:"file_url"`
	UploadedAt time.Time `bson:"uploaded_at" json:"uploaded_at"`
}

// StudyGroupCreate is the body of POST /study-groups/create.
type StudyGroupCreate struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsPublic    *bool     `json:"is_public,omitempty"` // defaults to true
	ExamDate    time.Time `json:"exam_date"`
}

// StudyGroupSummary is the list view of a group with display names resolved.
type StudyGroupSummary struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	Owner             string    `json:"owner"`
	OwnerID           string    `json:"owner_id"`
	Members           []string  `json:"members"`
	MemberIDs         []string  `json:"member_ids"`
	PendingRequests   []string  `json:"pending_requests"`
	PendingRequestIDs []string  `json:"pending_request_ids"`
	IsPublic          bool      `json:"is_public"`
	ExamDate          time.Time `json:"exam_date"`
	CreatedAt         time.Time `json:"created_at"`
	MembersCount      int       `json:"members_count"`
	FilesCount        int       `json:"files_count"`
	MessagesCount     int       `json:"messages_count"`
}

// StudyGroupDetail adds files and the chat log to the summary.
type StudyGroupDetail struct {
	StudyGroupSummary
	Files []SharedFile      `json:"files"`
	Chat  []ChatMessageView `json:"chat"`
}

// StudyGroupPage is one page of a group listing.
type StudyGroupPage struct {
	Groups     []StudyGroupSummary `json:"groups"`
	Total      int64               `json:"total"`
	Page       int64               `json:"page"`
	Limit      int64               `json:"limit"`
	TotalPages int64               `json:"total_pages"`
}
