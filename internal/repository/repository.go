package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"campus-marketplace/internal/database"
	"campus-marketplace/internal/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ErrStatusMismatch is returned by compare-and-set updates that matched no row
var ErrStatusMismatch = errors.New("row not in expected state")

// ItemFilter narrows the candidate set before ranking
type ItemFilter struct {
	Category  string
	Condition string
}

// ItemRepository persists listings
type ItemRepository interface {
	Create(ctx context.Context, item *domain.Item) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Item, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Item, error)
	// Update writes the editable fields with optimistic locking on version
	Update(ctx context.Context, item *domain.Item, expectedVersion int) error
	// CompareAndSetStatus moves status from → to, or returns ErrStatusMismatch
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to domain.ItemStatus) error
	// SoftDelete deactivates an available item, or returns ErrStatusMismatch
	SoftDelete(ctx context.Context, id uuid.UUID) error
	ListAvailable(ctx context.Context, filter ItemFilter) ([]*domain.Item, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, availableOnly bool) ([]*domain.Item, error)
	Autocomplete(ctx context.Context, prefix string, limit int) ([]*domain.Item, error)
}

// OrderRepository persists purchase offers
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	// UpdateStatus persists order.Status if the stored row is still in from
	UpdateStatus(ctx context.Context, order *domain.Order, from domain.OrderStatus) error
	ListByUser(ctx context.Context, userID uuid.UUID, role string, status domain.OrderStatus) ([]*domain.Order, error)
	ActiveForItem(ctx context.Context, itemID uuid.UUID) (*domain.Order, error)
}

// FavoriteRepository persists the user↔item set
type FavoriteRepository interface {
	Add(ctx context.Context, userID, itemID uuid.UUID) (bool, error)
	Remove(ctx context.Context, userID, itemID uuid.UUID) (bool, error)
	Exists(ctx context.Context, userID, itemID uuid.UUID) (bool, error)
	CountForItem(ctx context.Context, itemID uuid.UUID) (int, error)
	ListItems(ctx context.Context, userID uuid.UUID) ([]*domain.Item, error)
}

// ViewRepository persists each user's recently viewed items
type ViewRepository interface {
	// Record upserts the pair, moving viewed_at forward to at
	Record(ctx context.Context, userID, itemID uuid.UUID, at time.Time) error
	// ListRecent returns active items newest view first
	ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.RecentView, error)
}

// ConversationRepository persists conversations and their append-only messages
type ConversationRepository interface {
	Ensure(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	LastMessage(ctx context.Context, conversationID uuid.UUID) (*domain.Message, error)
	Append(ctx context.Context, msg *domain.Message) error
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*domain.Message, error)
	// MarkViewed sets read_at on the other party's messages up to upTo and
	// advances the viewer's last-viewed marker
	MarkViewed(ctx context.Context, conversationID, viewerID uuid.UUID, upTo time.Time) (int, error)
	ListSummaries(ctx context.Context, userID uuid.UUID) ([]*domain.ConversationSummary, error)
	UnreadBySender(ctx context.Context, userID uuid.UUID) ([]domain.UnreadBySender, error)
}

// UserRepository persists accounts and one-time tokens
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByOAuth(ctx context.Context, provider, subject string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	Stats(ctx context.Context, userID uuid.UUID) (*domain.UserStats, error)
	CreateToken(ctx context.Context, token *domain.UserToken) error
	FindToken(ctx context.Context, tokenHash string, purpose domain.TokenPurpose) (*domain.UserToken, error)
	ConsumeToken(ctx context.Context, tokenHash string, at time.Time) error
}

// StaleEmbedding is an item whose vector must be recomputed
type StaleEmbedding struct {
	ItemID uuid.UUID `db:"item_id"`
	Text   string    `db:"text"`
}

// EmbeddingRepository persists item vectors
type EmbeddingRepository interface {
	// MarkStale clears the vector and raises the stale flag, creating the row if needed
	MarkStale(ctx context.Context, itemID uuid.UUID) error
	// Save stores a fresh vector unless the item changed text or was deleted
	// since text was read; the bool reports whether the row was written.
	Save(ctx context.Context, itemID uuid.UUID, text string, vector []float32, modelVersion string) (bool, error)
	Delete(ctx context.Context, itemID uuid.UUID) error
	// Fresh returns non-stale vectors of modelVersion for the given items
	Fresh(ctx context.Context, itemIDs []uuid.UUID, modelVersion string) (map[uuid.UUID][]float32, error)
	ListStale(ctx context.Context, modelVersion string, limit int) ([]StaleEmbedding, error)
	CountStale(ctx context.Context, modelVersion string) (int, error)
}

// Store groups the repositories over one connection or transaction
type Store interface {
	Items() ItemRepository
	Orders() OrderRepository
	Favorites() FavoriteRepository
	Views() ViewRepository
	Conversations() ConversationRepository
	Users() UserRepository
	Embeddings() EmbeddingRepository
	// WithTx runs fn against a transactional Store; nested calls reuse the
	// outer transaction
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

// SQLStore implements Store over SQLite
type SQLStore struct {
	swdb *database.SingleWriterDB
	q    sqlx.ExtContext
	inTx bool
}

// NewSQLStore creates a store backed by the single-writer database
func NewSQLStore(swdb *database.SingleWriterDB) *SQLStore {
	return &SQLStore{swdb: swdb, q: swdb.DB()}
}

func (s *SQLStore) Items() ItemRepository                 { return NewItemRepository(s.q) }
func (s *SQLStore) Orders() OrderRepository               { return NewOrderRepository(s.q) }
func (s *SQLStore) Favorites() FavoriteRepository         { return NewFavoriteRepository(s.q) }
func (s *SQLStore) Views() ViewRepository                 { return NewViewRepository(s.q) }
func (s *SQLStore) Conversations() ConversationRepository { return NewConversationRepository(s.q) }
func (s *SQLStore) Users() UserRepository                 { return NewUserRepository(s.q) }
func (s *SQLStore) Embeddings() EmbeddingRepository       { return NewEmbeddingRepository(s.q) }

func (s *SQLStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.swdb.WithTx(ctx, func(tx *sqlx.Tx) error {
		return fn(&SQLStore{swdb: s.swdb, q: tx, inTx: true})
	})
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStatusMismatch
	}
	return nil
}
