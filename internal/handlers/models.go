package handlers

import (
	"time"

	"campus-marketplace/internal/domain"
	"campus-marketplace/internal/search"
	"campus-marketplace/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemResponse represents a listing
// @Description Listing with its current availability
type ItemResponse struct {
	ID          uuid.UUID       `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	OwnerID     uuid.UUID       `json:"owner_id" example:"9b2f0c7e-3c1a-4a8e-9d0b-1f2e3d4c5b6a"`
	Title       string          `json:"title" example:"Calculus textbook, 8th edition"`
	Description string          `json:"description" example:"Some highlighting in chapter 3"`
	Category    string          `json:"category" example:"books"`
	Price       decimal.Decimal `json:"price" swaggertype:"string" example:"25.00"`
	Condition   string          `json:"condition,omitempty" example:"good"`
	Location    string          `json:"location,omitempty" example:"North campus library"`
	Images      []string        `json:"images"`
	Status      string          `json:"status" example:"available"`
	CreatedAt   time.Time       `json:"created_at" example:"2024-01-15T10:30:00Z"`
	UpdatedAt   time.Time       `json:"updated_at" example:"2024-01-15T11:45:00Z"`
}

// ItemDetailResponse adds favorite information for the caller
type ItemDetailResponse struct {
	ItemResponse
	FavoriteCount int  `json:"favorite_count" example:"3"`
	IsFavorited   bool `json:"is_favorited" example:"false"`
}

// SearchHitResponse is one ranked listing
type SearchHitResponse struct {
	ItemResponse
	Score      float64 `json:"score" example:"0.82"`
	Similarity float64 `json:"similarity" example:"0.71"`
}

// ListItemsResponse represents a page of search results
// @Description Ranked page of available listings
type ListItemsResponse struct {
	Items      []SearchHitResponse `json:"items"`
	Total      int                 `json:"total" example:"42"`
	Page       int                 `json:"page" example:"1"`
	PerPage    int                 `json:"per_page" example:"20"`
	TotalPages int                 `json:"total_pages" example:"3"`
	// recency, ranked or keyword_only
	Mode string `json:"mode" example:"ranked"`
}

// ItemListResponse is an unpaged list of listings
type ItemListResponse struct {
	Items []ItemResponse `json:"items"`
	Count int            `json:"count" example:"2"`
}

// RecentViewResponse is one entry of the caller's browsing history
type RecentViewResponse struct {
	Item     ItemResponse `json:"item"`
	ViewedAt time.Time    `json:"viewed_at"`
}

// RecentViewListResponse lists recently viewed items, newest first
type RecentViewListResponse struct {
	Items []RecentViewResponse `json:"items"`
	Count int                  `json:"count" example:"3"`
}

// CreateItemRequest represents a new listing
type CreateItemRequest struct {
	Title       string           `json:"title" binding:"required" example:"Calculus textbook, 8th edition"`
	Description string           `json:"description" example:"Some highlighting in chapter 3"`
	Category    string           `json:"category" example:"books"`
	Price       *decimal.Decimal `json:"price" swaggertype:"string" example:"25.00"`
	Condition   string           `json:"condition" example:"good"`
	Location    string           `json:"location" example:"North campus library"`
	Images      []string         `json:"images"`
}

// UpdateItemRequest is a partial update; omitted fields are unchanged
type UpdateItemRequest struct {
	Title       *string          `json:"title,omitempty"`
	Description *string          `json:"description,omitempty"`
	Category    *string          `json:"category,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty" swaggertype:"string"`
	Condition   *string          `json:"condition,omitempty"`
	Location    *string          `json:"location,omitempty"`
	Images      []string         `json:"images,omitempty"`
}

// FavoriteResponse reports the ledger state after an add or remove
type FavoriteResponse struct {
	ItemID      uuid.UUID `json:"item_id"`
	IsFavorited bool      `json:"is_favorited" example:"true"`
	// false when the request did not change anything
	Changed bool `json:"changed" example:"true"`
}

// PlaceOrderRequest represents a buyer's offer
type PlaceOrderRequest struct {
	OfferedPrice   *decimal.Decimal `json:"offered_price,omitempty" swaggertype:"string" example:"20.00"`
	MeetupLocation string           `json:"meetup_location" example:"Student union, front desk"`
	MeetupTime     *time.Time       `json:"meetup_time,omitempty" example:"2024-01-20T15:00:00Z"`
	Note           string           `json:"note" example:"Can pay cash"`
}

// OrderResponse represents an order
type OrderResponse struct {
	ID             uuid.UUID       `json:"id"`
	ItemID         uuid.UUID       `json:"item_id"`
	BuyerID        uuid.UUID       `json:"buyer_id"`
	SellerID       uuid.UUID       `json:"seller_id"`
	OfferedPrice   decimal.Decimal `json:"offered_price" swaggertype:"string" example:"20.00"`
	MeetupLocation string          `json:"meetup_location,omitempty"`
	MeetupTime     *time.Time      `json:"meetup_time,omitempty"`
	Note           string          `json:"note,omitempty"`
	Status         string          `json:"status" example:"pending"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// OrderListResponse lists orders
type OrderListResponse struct {
	Orders []OrderResponse `json:"orders"`
	Count  int             `json:"count" example:"1"`
}

// SendMessageRequest represents a message about an item. The item owner
// must name the buyer in recipient_id.
type SendMessageRequest struct {
	ItemID      uuid.UUID  `json:"item_id" binding:"required"`
	RecipientID *uuid.UUID `json:"recipient_id,omitempty"`
	Body        string     `json:"body" binding:"required" example:"Is this still available?"`
}

// MessageResponse represents a message
type MessageResponse struct {
	ID             int64      `json:"id" example:"17"`
	ConversationID uuid.UUID  `json:"conversation_id"`
	SenderID       uuid.UUID  `json:"sender_id"`
	Body           string     `json:"body"`
	CreatedAt      time.Time  `json:"created_at"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
}

// ConversationResponse summarizes a conversation for one participant
type ConversationResponse struct {
	ID          uuid.UUID        `json:"id"`
	ItemID      uuid.UUID        `json:"item_id"`
	ItemTitle   string           `json:"item_title"`
	BuyerID     uuid.UUID        `json:"buyer_id"`
	SellerID    uuid.UUID        `json:"seller_id"`
	LastMessage *MessageResponse `json:"last_message,omitempty"`
	UnreadCount int              `json:"unread_count" example:"2"`
	CreatedAt   time.Time        `json:"created_at"`
}

// ConversationListResponse lists conversations, most recent activity first
type ConversationListResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
	Count         int                    `json:"count"`
}

// MessageListResponse lists the messages of one conversation in order
type MessageListResponse struct {
	ConversationID uuid.UUID         `json:"conversation_id"`
	Messages       []MessageResponse `json:"messages"`
}

// MarkReadResponse reports how many messages were marked read
type MarkReadResponse struct {
	Marked int `json:"marked" example:"3"`
}

// UnreadResponse is the caller's unread total with a per-sender breakdown
type UnreadResponse struct {
	Total    int                     `json:"total" example:"5"`
	BySender []domain.UnreadBySender `json:"by_sender"`
}

// PublicUserResponse is what anyone may see about a user
type PublicUserResponse struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username" example:"alex"`
	DisplayName string    `json:"display_name" example:"Alex Kim"`
	Bio         string    `json:"bio"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// UpdateProfileRequest edits the caller's profile
type UpdateProfileRequest struct {
	Username    *string `json:"username,omitempty" example:"alex"`
	DisplayName *string `json:"display_name,omitempty" example:"Alex Kim"`
	Bio         *string `json:"bio,omitempty" example:"Selling my first-year books"`
}

// PresignRequest asks for a direct upload URL
type PresignRequest struct {
	ContentType string `json:"content_type" binding:"required" example:"image/jpeg"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string `json:"status" example:"healthy"`
	Service  string `json:"service" example:"campus-marketplace"`
	Database string `json:"database" example:"ok"`
}

func newItemResponse(item *domain.Item) ItemResponse {
	images := item.Images
	if images == nil {
		images = []string{}
	}
	return ItemResponse{
		ID:          item.ID,
		OwnerID:     item.OwnerID,
		Title:       item.Title,
		Description: item.Description,
		Category:    item.Category,
		Price:       item.Price,
		Condition:   item.Condition,
		Location:    item.Location,
		Images:      images,
		Status:      string(item.Status),
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}

func newItemListResponse(items []*domain.Item) ItemListResponse {
	resp := ItemListResponse{Items: make([]ItemResponse, len(items)), Count: len(items)}
	for i, item := range items {
		resp.Items[i] = newItemResponse(item)
	}
	return resp
}

func newRecentViewListResponse(views []*domain.RecentView) RecentViewListResponse {
	resp := RecentViewListResponse{Items: make([]RecentViewResponse, len(views)), Count: len(views)}
	for i, view := range views {
		resp.Items[i] = RecentViewResponse{Item: newItemResponse(view.Item), ViewedAt: view.ViewedAt}
	}
	return resp
}

func newItemDetailResponse(detail *service.ItemDetail) ItemDetailResponse {
	return ItemDetailResponse{
		ItemResponse:  newItemResponse(detail.Item),
		FavoriteCount: detail.FavoriteCount,
		IsFavorited:   detail.IsFavorited,
	}
}

func newListItemsResponse(result *search.Result) ListItemsResponse {
	resp := ListItemsResponse{
		Items:   make([]SearchHitResponse, len(result.Hits)),
		Total:   result.Total,
		Page:    result.Page,
		PerPage: result.PerPage,
		Mode:    result.Mode,
	}
	for i, hit := range result.Hits {
		resp.Items[i] = SearchHitResponse{
			ItemResponse: newItemResponse(hit.Item),
			Score:        hit.Score,
			Similarity:   hit.Similarity,
		}
	}
	if result.PerPage > 0 {
		resp.TotalPages = (result.Total + result.PerPage - 1) / result.PerPage
	}
	return resp
}

func newOrderResponse(order *domain.Order) OrderResponse {
	return OrderResponse{
		ID:             order.ID,
		ItemID:         order.ItemID,
		BuyerID:        order.BuyerID,
		SellerID:       order.SellerID,
		OfferedPrice:   order.OfferedPrice,
		MeetupLocation: order.MeetupLocation,
		MeetupTime:     order.MeetupTime,
		Note:           order.Note,
		Status:         string(order.Status),
		CreatedAt:      order.CreatedAt,
		UpdatedAt:      order.UpdatedAt,
	}
}

func newOrderListResponse(orders []*domain.Order) OrderListResponse {
	resp := OrderListResponse{Orders: make([]OrderResponse, len(orders)), Count: len(orders)}
	for i, order := range orders {
		resp.Orders[i] = newOrderResponse(order)
	}
	return resp
}

func newMessageResponse(msg *domain.Message) MessageResponse {
	return MessageResponse{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Body:           msg.Body,
		CreatedAt:      msg.CreatedAt,
		ReadAt:         msg.ReadAt,
	}
}

func newConversationResponse(summary *domain.ConversationSummary) ConversationResponse {
	resp := ConversationResponse{
		ID:          summary.ID,
		ItemID:      summary.ItemID,
		ItemTitle:   summary.ItemTitle,
		BuyerID:     summary.BuyerID,
		SellerID:    summary.SellerID,
		UnreadCount: summary.UnreadCount,
		CreatedAt:   summary.CreatedAt,
	}
	if summary.LastMessage != nil {
		last := newMessageResponse(summary.LastMessage)
		resp.LastMessage = &last
	}
	return resp
}

func newPublicUserResponse(user *domain.User) PublicUserResponse {
	return PublicUserResponse{
		ID:          user.ID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		Bio:         user.Bio,
		AvatarURL:   user.AvatarRef,
		CreatedAt:   user.CreatedAt,
	}
}
