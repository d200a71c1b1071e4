package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	apperrors "campus-marketplace/pkg/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemStatus is the availability state of a listing
type ItemStatus string

const (
	ItemAvailable ItemStatus = "available"
	ItemPending   ItemStatus = "pending"
	ItemSold      ItemStatus = "sold"
)

// MaxTitleLength is the longest title a listing may carry
const MaxTitleLength = 150

var validConditions = map[string]bool{
	"new":      true,
	"like_new": true,
	"good":     true,
	"fair":     true,
	"poor":     true,
}

// Item is the aggregate root for a listing
type Item struct {
	ID          uuid.UUID
	OwnerID     uuid.UUID
	Title       string
	Description string
	Category    string
	Price       decimal.Decimal
	Condition   string
	Location    string
	Images      []string
	Status      ItemStatus
	Version     int // For optimistic locking
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewItem validates the listing fields and returns an available item
func NewItem(ownerID uuid.UUID, title, description, category string, price decimal.Decimal, condition, location string, images []string) (*Item, error) {
	now := time.Now().UTC()
	item := &Item{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
		Category:    strings.TrimSpace(category),
		Price:       price,
		Condition:   strings.TrimSpace(condition),
		Location:    strings.TrimSpace(location),
		Images:      normalizeImages(images),
		Status:      ItemAvailable,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}
	return item, nil
}

// Validate checks field-level constraints
func (i *Item) Validate() error {
	if i.Title == "" {
		return apperrors.NewValidationError("title is required", "title")
	}
	if utf8.RuneCountInString(i.Title) > MaxTitleLength {
		return apperrors.NewValidationError("title must be at most 150 characters", "title")
	}
	if i.Price.IsNegative() {
		return apperrors.NewValidationError("price must be greater than or equal to 0", "price")
	}
	if i.Condition != "" && !validConditions[i.Condition] {
		return apperrors.NewValidationError("condition must be one of new, like_new, good, fair, poor", "condition")
	}
	return nil
}

// EmbeddingText is the text the embedding index derives the vector from
func (i *Item) EmbeddingText() string {
	if i.Description == "" {
		return i.Title
	}
	return i.Title + " " + i.Description
}

// IsOwnedBy reports whether userID is the seller of the item
func (i *Item) IsOwnedBy(userID uuid.UUID) bool {
	return i.OwnerID == userID
}

// CanDelete reports whether the item may be removed by its owner
func (i *Item) CanDelete() error {
	if i.Status != ItemAvailable {
		return ErrItemNotDeletable
	}
	return nil
}

// ItemPatch holds optional updates; nil fields are left untouched
type ItemPatch struct {
	Title       *string
	Description *string
	Category    *string
	Price       *decimal.Decimal
	Condition   *string
	Location    *string
	Images      []string
}

// Apply mutates the item and reports whether the embedding text changed.
// Status is never touched by a patch.
func (i *Item) Apply(p ItemPatch) (textChanged bool, err error) {
	before := i.EmbeddingText()
	next := *i
	if p.Title != nil {
		next.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		next.Description = strings.TrimSpace(*p.Description)
	}
	if p.Category != nil {
		next.Category = strings.TrimSpace(*p.Category)
	}
	if p.Price != nil {
		next.Price = *p.Price
	}
	if p.Condition != nil {
		next.Condition = strings.TrimSpace(*p.Condition)
	}
	if p.Location != nil {
		next.Location = strings.TrimSpace(*p.Location)
	}
	if p.Images != nil {
		next.Images = normalizeImages(p.Images)
	}
	if err := next.Validate(); err != nil {
		return false, err
	}
	next.UpdatedAt = time.Now().UTC()
	*i = next
	return i.EmbeddingText() != before, nil
}

func normalizeImages(images []string) []string {
	out := make([]string, 0, len(images))
	for _, ref := range images {
		if ref = strings.TrimSpace(ref); ref != "" {
			out = append(out, ref)
		}
	}
	return out
}

// Favorite is a (user, item) pair
type Favorite struct {
	UserID    uuid.UUID
	ItemID    uuid.UUID
	CreatedAt time.Time
}
