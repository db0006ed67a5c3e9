package models

import (
	"slices"
	"time"
)

// Comment is a single remark on a photo. Comments are never edited.
type Comment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Photo is an uploaded image together with everything users attached to it.
type Photo struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Caption     string    `json:"caption"`
	Location    string    `json:"location"`
	Tags        string    `json:"tags"`
	CreatorID   string    `json:"creatorId"`
	CreatorName string    `json:"creatorName"`
	Likes       int       `json:"likes"`
	LikedBy     []string  `json:"likedBy"`
	Comments    []Comment `json:"comments"`
	Rating      float64   `json:"rating"`
	RatingCount int       `json:"ratingCount"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// PhotoMetadata holds the descriptive fields a creator may edit.
type PhotoMetadata struct {
	Title    string `json:"title" validate:"required"`
	Caption  string `json:"caption"`
	Location string `json:"location"`
	Tags     string `json:"tags"`
}

// LikedByUser reports whether userID already likes p.
func (p Photo) LikedByUser(userID string) bool {
	return slices.Contains(p.LikedBy, userID)
}

// WithLike returns p liked by userID. The second result is false, and p is
// returned unchanged, if userID had already liked it.
func (p Photo) WithLike(userID string) (Photo, bool) {
	if p.LikedByUser(userID) {
		return p, false
	}
	likedBy := make([]string, len(p.LikedBy), len(p.LikedBy)+1)
	copy(likedBy, p.LikedBy)
	p.LikedBy = append(likedBy, userID)
	p.Likes = len(p.LikedBy)
	return p, true
}

// WithComment returns p with c appended to its comments.
func (p Photo) WithComment(c Comment) Photo {
	comments := make([]Comment, len(p.Comments), len(p.Comments)+1)
	copy(comments, p.Comments)
	p.Comments = append(comments, c)
	return p
}

// WithRating folds value into the running average.
func (p Photo) WithRating(value int) Photo {
	count := p.RatingCount + 1
	p.Rating = (p.Rating*float64(p.RatingCount) + float64(value)) / float64(count)
	p.RatingCount = count
	return p
}

// WithMetadata replaces the descriptive fields and leaves everything else alone.
func (p Photo) WithMetadata(m PhotoMetadata) Photo {
	p.Title = m.Title
	p.Caption = m.Caption
	p.Location = m.Location
	p.Tags = m.Tags
	return p
}
