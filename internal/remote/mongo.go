package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rajbirverr/centurionintimates-sub000/internal/domain"
)

// MongoStore implements CartGateway and WishlistGateway on two collections.
type MongoStore struct {
	carts     *mongo.Collection
	wishlists *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		carts:     db.Collection("carts"),
		wishlists: db.Collection("wishlists"),
	}
}

func (m *MongoStore) List(ctx context.Context, userID string) (*domain.Cart, error) {
	var cart domain.Cart

	filter := bson.M{"owner_id": userID}
	err := m.carts.FindOne(ctx, filter).Decode(&cart)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return &cart, nil
}

func (m *MongoStore) AddItem(ctx context.Context, userID string, line domain.CartLine) error {
	now := time.Now()
	line.AddedAt = now

	filter := bson.M{"owner_id": userID}

	var existing domain.Cart
	err := m.carts.FindOne(ctx, filter).Decode(&existing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			cart := &domain.Cart{
				OwnerID:   userID,
				Lines:     []domain.CartLine{line},
				CreatedAt: now,
				UpdatedAt: now,
			}
			if _, err := m.carts.InsertOne(ctx, cart); err != nil {
				return fmt.Errorf("failed to create cart with line: %w", err)
			}
			return nil
		}
		return fmt.Errorf("failed to check existing cart: %w", err)
	}

	if found := existing.Find(line.Key()); found != nil {
		// Upsert semantics: same key sums quantities, never duplicates.
		update := bson.M{
			"$set": bson.M{
				"lines.$[elem].quantity": found.Quantity + line.Quantity,
				"lines.$[elem].added_at": now,
				"updated_at":             now,
			},
		}
		opts := options.Update().SetArrayFilters(options.ArrayFilters{
			Filters: []interface{}{
				bson.M{
					"elem.product_id":  line.ProductID,
					"elem.variant_key": line.VariantKey,
				},
			},
		})
		if _, err := m.carts.UpdateOne(ctx, filter, update, opts); err != nil {
			return fmt.Errorf("failed to update existing line: %w", err)
		}
		return nil
	}

	update := bson.M{
		"$push": bson.M{"lines": line},
		"$set":  bson.M{"updated_at": now},
	}
	if _, err := m.carts.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("failed to add new line: %w", err)
	}
	return nil
}

func (m *MongoStore) UpdateQuantity(ctx context.Context, userID string, key domain.LineKey, quantity int) error {
	filter := bson.M{
		"owner_id":         userID,
		"lines.product_id": key.ProductID,
	}
	update := bson.M{
		"$set": bson.M{
			"lines.$[elem].quantity": quantity,
			"updated_at":             time.Now(),
		},
	}
	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{
			bson.M{
				"elem.product_id":  key.ProductID,
				"elem.variant_key": key.VariantKey,
			},
		},
	})

	result, err := m.carts.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to update line quantity: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (m *MongoStore) RemoveItem(ctx context.Context, userID string, key domain.LineKey) error {
	filter := bson.M{"owner_id": userID}
	update := bson.M{
		"$pull": bson.M{
			"lines": bson.M{
				"product_id":  key.ProductID,
				"variant_key": key.VariantKey,
			},
		},
		"$set": bson.M{"updated_at": time.Now()},
	}

	result, err := m.carts.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to remove line: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (m *MongoStore) Clear(ctx context.Context, userID string) error {
	filter := bson.M{"owner_id": userID}
	if _, err := m.carts.DeleteOne(ctx, filter); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

func (m *MongoStore) GetWishlistItems(ctx context.Context, userID string) (*domain.Wishlist, error) {
	var wl domain.Wishlist

	filter := bson.M{"owner_id": userID}
	err := m.wishlists.FindOne(ctx, filter).Decode(&wl)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return &domain.Wishlist{OwnerID: userID}, nil
		}
		return nil, fmt.Errorf("failed to get wishlist: %w", err)
	}

	return &wl, nil
}

func (m *MongoStore) AddToWishlist(ctx context.Context, userID, productID string) error {
	filter := bson.M{"owner_id": userID}
	update := bson.M{
		// $addToSet keeps set semantics on the server side too.
		"$addToSet": bson.M{"product_ids": productID},
	}
	opts := options.Update().SetUpsert(true)

	if _, err := m.wishlists.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to add to wishlist: %w", err)
	}
	return nil
}

func (m *MongoStore) RemoveFromWishlist(ctx context.Context, userID, productID string) error {
	filter := bson.M{"owner_id": userID}
	update := bson.M{
		"$pull": bson.M{"product_ids": productID},
	}

	if _, err := m.wishlists.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("failed to remove from wishlist: %w", err)
	}
	return nil
}

func (m *MongoStore) SyncWishlist(ctx context.Context, userID string, productIDs []string) error {
	if len(productIDs) == 0 {
		return nil
	}

	filter := bson.M{"owner_id": userID}
	update := bson.M{
		"$addToSet": bson.M{
			"product_ids": bson.M{"$each": productIDs},
		},
	}
	opts := options.Update().SetUpsert(true)

	if _, err := m.wishlists.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to sync wishlist: %w", err)
	}
	return nil
}

// CreateIndexes sets up the unique owner lookups. Called once at startup.
func (m *MongoStore) CreateIndexes(ctx context.Context) error {
	ownerIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "owner_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}

	if _, err := m.carts.Indexes().CreateOne(ctx, ownerIndex); err != nil {
		return fmt.Errorf("failed to create cart index: %w", err)
	}
	if _, err := m.wishlists.Indexes().CreateOne(ctx, ownerIndex); err != nil {
		return fmt.Errorf("failed to create wishlist index: %w", err)
	}
	return nil
}
