package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"identity/internal/domain/models"
	"identity/internal/storage"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type Storage struct {
	client *mongo.Client
	users  *mongo.Collection
	roles  *mongo.Collection
	tokens *mongo.Collection
}

type userDoc struct {
	ID          string     `bson:"_id"`
	Email       string     `bson:"email"`
	PassHash    []byte     `bson:"pass_hash"`
	Roles       []string   `bson:"roles"`
	LockedUntil *time.Time `bson:"locked_until,omitempty"`
	CreatedAt   time.Time  `bson:"created_at"`
}

type roleDoc struct {
	ID   string `bson:"_id"`
	Name string `bson:"name"`
}

type refreshTokenDoc struct {
	ID             string     `bson:"_id"`
	TokenHash      string     `bson:"token_hash"`
	UserID         string     `bson:"user_id"`
	CreatedAt      time.Time  `bson:"created_at"`
	ExpiresAt      time.Time  `bson:"expires_at"`
	RevokedAt      *time.Time `bson:"revoked_at,omitempty"`
	ReplacedByHash *string    `bson:"replaced_by_hash,omitempty"`
}

// New creates a new MongoDB storage instance and sets up indexes.
func New(ctx context.Context, uri, database string) (*Storage, error) {
	const op = "storage.mongodb.New"

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	db := client.Database(database)
	s := &Storage{
		client: client,
		users:  db.Collection("users"),
		roles:  db.Collection("roles"),
		tokens: db.Collection("refresh_tokens"),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("%s: indexes: %w", op, err)
	}

	return s, nil
}

func (s *Storage) ensureIndexes(ctx context.Context) error {
	// users.email unique
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("users.email index: %w", err)
	}

	// roles.name unique
	_, err = s.roles.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("roles.name index: %w", err)
	}

	// refresh_tokens.token_hash unique
	_, err = s.tokens.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "token_hash", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("refresh_tokens.token_hash index: %w", err)
	}

	// refresh_tokens.expires_at TTL index (auto-delete expired tokens)
	_, err = s.tokens.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return fmt.Errorf("refresh_tokens.expires_at TTL index: %w", err)
	}

	return nil
}

// Close disconnects from MongoDB.
func (s *Storage) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// isDuplicateKeyError checks for a MongoDB duplicate key error (code 11000).
func isDuplicateKeyError(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	return false
}

func (d userDoc) toModel() (*models.User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, err
	}
	return &models.User{
		ID:          id,
		Email:       d.Email,
		PassHash:    d.PassHash,
		Roles:       d.Roles,
		LockedUntil: d.LockedUntil,
		CreatedAt:   d.CreatedAt,
	}, nil
}

// --- users ---

func (s *Storage) SaveUser(ctx context.Context, id uuid.UUID, email string, passHash []byte) error {
	const op = "storage.mongodb.SaveUser"

	doc := userDoc{
		ID:        id.String(),
		Email:     email,
		PassHash:  passHash,
		Roles:     []string{},
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.users.InsertOne(ctx, doc)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrUserAlreadyExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) findUser(ctx context.Context, filter bson.D, op string) (*models.User, error) {
	var doc userDoc
	err := s.users.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	user, err := doc.toModel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.mongodb.UserByEmail"
	return s.findUser(ctx, bson.D{{Key: "email", Value: email}}, op)
}

func (s *Storage) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "storage.mongodb.UserByID"
	return s.findUser(ctx, bson.D{{Key: "_id", Value: id.String()}}, op)
}

func (s *Storage) Users(ctx context.Context) ([]models.User, error) {
	const op = "storage.mongodb.Users"

	cursor, err := s.users.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer cursor.Close(ctx)

	var users []models.User
	for cursor.Next(ctx) {
		var doc userDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		user, err := doc.toModel()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		users = append(users, *user)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return users, nil
}

func (s *Storage) UpdateUserEmail(ctx context.Context, id uuid.UUID, email string) error {
	const op = "storage.mongodb.UpdateUserEmail"

	res, err := s.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id.String()}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "email", Value: email}}}},
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrUserAlreadyExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}
	return nil
}

func (s *Storage) UpdateUserPassword(ctx context.Context, id uuid.UUID, passHash []byte) error {
	const op = "storage.mongodb.UpdateUserPassword"

	res, err := s.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id.String()}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "pass_hash", Value: passHash}}}},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}
	return nil
}

func (s *Storage) SetUserLock(ctx context.Context, id uuid.UUID, until *time.Time) error {
	const op = "storage.mongodb.SetUserLock"

	var update bson.D
	if until != nil {
		update = bson.D{{Key: "$set", Value: bson.D{{Key: "locked_until", Value: *until}}}}
	} else {
		update = bson.D{{Key: "$unset", Value: bson.D{{Key: "locked_until", Value: ""}}}}
	}

	res, err := s.users.UpdateOne(ctx, bson.D{{Key: "_id", Value: id.String()}}, update)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}
	return nil
}

func (s *Storage) DeleteUser(ctx context.Context, id uuid.UUID) error {
	const op = "storage.mongodb.DeleteUser"

	res, err := s.users.DeleteOne(ctx, bson.D{{Key: "_id", Value: id.String()}})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	// Tokens for a deleted user are unusable; mirror the relational cascade.
	if _, err := s.tokens.DeleteMany(ctx, bson.D{{Key: "user_id", Value: id.String()}}); err != nil {
		return fmt.Errorf("%s: tokens cascade: %w", op, err)
	}
	return nil
}

// --- roles ---

func (s *Storage) Roles(ctx context.Context) ([]models.Role, error) {
	const op = "storage.mongodb.Roles"

	cursor, err := s.roles.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer cursor.Close(ctx)

	var roles []models.Role
	for cursor.Next(ctx) {
		var doc roleDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		id, err := uuid.Parse(doc.ID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		roles = append(roles, models.Role{ID: id, Name: doc.Name})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return roles, nil
}

func (s *Storage) findRole(ctx context.Context, filter bson.D, op string) (*models.Role, error) {
	var doc roleDoc
	err := s.roles.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrRoleNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &models.Role{ID: id, Name: doc.Name}, nil
}

func (s *Storage) RoleByID(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	const op = "storage.mongodb.RoleByID"
	return s.findRole(ctx, bson.D{{Key: "_id", Value: id.String()}}, op)
}

func (s *Storage) RoleByName(ctx context.Context, name string) (*models.Role, error) {
	const op = "storage.mongodb.RoleByName"
	return s.findRole(ctx, bson.D{{Key: "name", Value: name}}, op)
}

func (s *Storage) SaveRole(ctx context.Context, id uuid.UUID, name string) error {
	const op = "storage.mongodb.SaveRole"

	_, err := s.roles.InsertOne(ctx, roleDoc{ID: id.String(), Name: name})
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrRoleAlreadyExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// EnsureRole inserts the role if it does not exist; duplicates are skipped.
func (s *Storage) EnsureRole(ctx context.Context, id uuid.UUID, name string) error {
	const op = "storage.mongodb.EnsureRole"

	_, err := s.roles.InsertOne(ctx, roleDoc{ID: id.String(), Name: name})
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) RenameRole(ctx context.Context, id uuid.UUID, newName string) error {
	const op = "storage.mongodb.RenameRole"

	role, err := s.RoleByID(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err = s.roles.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id.String()}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "name", Value: newName}}}},
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrRoleAlreadyExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	// Rewrite the denormalized role name in user documents.
	_, err = s.users.UpdateMany(ctx,
		bson.D{{Key: "roles", Value: role.Name}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "roles.$", Value: newName}}}},
	)
	if err != nil {
		return fmt.Errorf("%s: members: %w", op, err)
	}
	return nil
}

func (s *Storage) DeleteRole(ctx context.Context, id uuid.UUID) error {
	const op = "storage.mongodb.DeleteRole"

	role, err := s.RoleByID(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.roles.DeleteOne(ctx, bson.D{{Key: "_id", Value: id.String()}}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err = s.users.UpdateMany(ctx,
		bson.D{{Key: "roles", Value: role.Name}},
		bson.D{{Key: "$pull", Value: bson.D{{Key: "roles", Value: role.Name}}}},
	)
	if err != nil {
		return fmt.Errorf("%s: members: %w", op, err)
	}
	return nil
}

func (s *Storage) UsersInRole(ctx context.Context, name string) ([]models.User, error) {
	const op = "storage.mongodb.UsersInRole"

	cursor, err := s.users.Find(ctx, bson.D{{Key: "roles", Value: name}})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer cursor.Close(ctx)

	var users []models.User
	for cursor.Next(ctx) {
		var doc userDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		user, err := doc.toModel()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		users = append(users, *user)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return users, nil
}

func (s *Storage) AssignRole(ctx context.Context, userID uuid.UUID, roleName string) error {
	const op = "storage.mongodb.AssignRole"

	if _, err := s.RoleByName(ctx, roleName); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	res, err := s.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: userID.String()}},
		bson.D{{Key: "$addToSet", Value: bson.D{{Key: "roles", Value: roleName}}}},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}
	if res.ModifiedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrRoleAlreadySet)
	}
	return nil
}

func (s *Storage) RemoveRole(ctx context.Context, userID uuid.UUID, roleName string) error {
	const op = "storage.mongodb.RemoveRole"

	res, err := s.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: userID.String()}},
		bson.D{{Key: "$pull", Value: bson.D{{Key: "roles", Value: roleName}}}},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}
	if res.ModifiedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrRoleNotSet)
	}
	return nil
}

// --- refresh tokens ---

func (s *Storage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const op = "storage.mongodb.SaveRefreshToken"

	doc := refreshTokenDoc{
		ID:        token.ID.String(),
		TokenHash: token.TokenHash,
		UserID:    token.UserID.String(),
		CreatedAt: token.CreatedAt,
		ExpiresAt: token.ExpiresAt,
	}
	if _, err := s.tokens.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) RefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	const op = "storage.mongodb.RefreshToken"

	var doc refreshTokenDoc
	err := s.tokens.FindOne(ctx, bson.D{{Key: "token_hash", Value: tokenHash}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrTokenNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	userID, err := uuid.Parse(doc.UserID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.RefreshToken{
		ID:             id,
		TokenHash:      doc.TokenHash,
		UserID:         userID,
		CreatedAt:      doc.CreatedAt,
		ExpiresAt:      doc.ExpiresAt,
		RevokedAt:      doc.RevokedAt,
		ReplacedByHash: doc.ReplacedByHash,
	}, nil
}

// RotateRefreshToken revokes the old token and inserts its replacement.
// The revocation filter requires the token to still be unrevoked, so of
// two concurrent exchanges exactly one wins.
func (s *Storage) RotateRefreshToken(ctx context.Context, oldHash string, next *models.RefreshToken) error {
	const op = "storage.mongodb.RotateRefreshToken"

	now := time.Now().UTC()
	res, err := s.tokens.UpdateOne(ctx,
		bson.D{
			{Key: "token_hash", Value: oldHash},
			{Key: "revoked_at", Value: bson.D{{Key: "$exists", Value: false}}},
		},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "revoked_at", Value: now},
			{Key: "replaced_by_hash", Value: next.TokenHash},
		}}},
	)
	if err != nil {
		return fmt.Errorf("%s: revoke old: %w", op, err)
	}
	if res.ModifiedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrTokenRevoked)
	}

	doc := refreshTokenDoc{
		ID:        next.ID.String(),
		TokenHash: next.TokenHash,
		UserID:    next.UserID.String(),
		CreatedAt: now,
		ExpiresAt: next.ExpiresAt,
	}
	if _, err := s.tokens.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("%s: insert new: %w", op, err)
	}
	return nil
}

// RevokeRefreshToken marks the token revoked without a replacement (logout).
func (s *Storage) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	const op = "storage.mongodb.RevokeRefreshToken"

	res, err := s.tokens.UpdateOne(ctx,
		bson.D{
			{Key: "token_hash", Value: tokenHash},
			{Key: "revoked_at", Value: bson.D{{Key: "$exists", Value: false}}},
		},
		bson.D{{Key: "$set", Value: bson.D{{Key: "revoked_at", Value: time.Now().UTC()}}}},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.ModifiedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrTokenNotFound)
	}
	return nil
}
