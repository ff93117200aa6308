package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Post is a question or discussion stored in the posts collection.
// Responses only ever grow through $push.
type Post struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Title       string             `bson:"title"`
	Description string             `bson:"description"`
	Subject     string             `bson:"subject"`
	Owner       primitive.ObjectID `bson:"owner"`
	CreatedAt   time.Time          `bson:"creation_date"`
	Responses   []PostResponse     `bson:"responses"`
}

type PostResponse struct {
	Owner     primitive.ObjectID `bson:"owner"`
	Content   string             `bson:"content"`
	CreatedAt time.Time          `bson:"creation_date"`
}

// PostCreate is the body of POST /posts/create.
type PostCreate struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Subject     string `json:"subject"`
}

// PostResponseCreate is the body of POST /posts/{post_id}/response.
type PostResponseCreate struct {
	Content string `json:"content"`
}

// PostSummary is the list view; responses are only counted.
type PostSummary struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Subject        string    `json:"subject"`
	Owner          string    `json:"owner"`
	OwnerID        string    `json:"owner_id"`
	CreatedAt      time.Time `json:"creation_date"`
	ResponsesCount int       `json:"responses_count"`
}

// PostDetail carries every response with its author's display name.
type PostDetail struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Subject     string             `json:"subject"`
	Owner       string             `json:"owner"`
	OwnerID     string             `json:"owner_id"`
	CreatedAt   time.Time          `json:"creation_date"`
	Responses   []PostResponseView `json:"responses"`
}

type PostResponseView struct {
	Owner     string    `json:"owner"`
	OwnerID   string    `json:"owner_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"creation_date"`
}
