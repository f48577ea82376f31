package repository

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"teestyle/internal/models"
	"teestyle/internal/store"
)

const (
	bcryptCost        = 12
	referralCodeLen   = 8
	referralCodeTries = 5
	referralAlphabet  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	casRetries        = 3
)

type UserRepository struct {
	users store.Collection[models.User]
}

func NewUserRepository(users store.Collection[models.User]) *UserRepository {
	return &UserRepository{users: users}
}

// Register creates a user with a hashed password and a fresh unique
// referral code. Emails are unique, compared case-insensitively.
func (r *UserRepository) Register(ctx context.Context, name, email, password string) (models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" {
		return models.User{}, &models.ValidationError{Field: "name", Reason: "required"}
	}
	if email == "" || !strings.Contains(email, "@") {
		return models.User{}, &models.ValidationError{Field: "email", Reason: "invalid email address"}
	}
	if len(password) < 8 {
		return models.User{}, &models.ValidationError{Field: "password", Reason: "must be at least 8 characters"}
	}

	existing, err := r.users.Find(ctx, bson.M{"email": email})
	if err != nil {
		return models.User{}, err
	}
	if len(existing) > 0 {
		return models.User{}, &models.ValidationError{Field: "email", Reason: "already registered"}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return models.User{}, err
	}

	code, err := r.newReferralCode(ctx)
	if err != nil {
		return models.User{}, err
	}

	now := time.Now()
	user := models.User{
		ID:           primitive.NewObjectID(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hashed),
		ReferralCode: code,
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
	}
	return r.users.Insert(ctx, user)
}

// Authenticate verifies credentials and returns the user. Both an
// unknown email and a wrong password come back as ErrUnauthorized so
// callers cannot probe which one it was.
func (r *UserRepository) Authenticate(ctx context.Context, email, password string) (models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	found, err := r.users.Find(ctx, bson.M{"email": email})
	if err != nil {
		return models.User{}, err
	}
	if len(found) == 0 {
		return models.User{}, fmt.Errorf("%w: invalid credentials", models.ErrUnauthorized)
	}

	user := found[0]
	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return models.User{}, fmt.Errorf("%w: invalid credentials", models.ErrUnauthorized)
		}
		return models.User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	return r.users.FindByID(ctx, id)
}

// AddAddress appends an address. The first address becomes the default;
// marking a later one as default clears the previous flag.
func (r *UserRepository) AddAddress(ctx context.Context, userID string, addr models.Address) (models.User, error) {
	for i := 0; i < casRetries; i++ {
		u, err := r.users.FindByID(ctx, userID)
		if err != nil {
			return models.User{}, err
		}

		addresses := append([]models.Address(nil), u.Addresses...)
		if len(addresses) == 0 {
			addr.IsDefault = true
		} else if addr.IsDefault {
			for j := range addresses {
				addresses[j].IsDefault = false
			}
		}
		addresses = append(addresses, addr)

		patch := bson.M{
			"$set": bson.M{"addresses": addresses, "updatedAt": time.Now()},
			"$inc": bson.M{"version": 1},
		}
		updated, err := r.users.UpdateWhere(ctx, userID, bson.M{"version": u.Version}, patch)
		if errors.Is(err, models.ErrConflict) {
			continue
		}
		return updated, err
	}
	return models.User{}, models.ErrConflict
}

// UpdateProfile changes name and email; empty values keep the current
// ones. An email change re-checks uniqueness.
func (r *UserRepository) UpdateProfile(ctx context.Context, userID, name, email string) (models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	for i := 0; i < casRetries; i++ {
		u, err := r.users.FindByID(ctx, userID)
		if err != nil {
			return models.User{}, err
		}

		if name != "" {
			u.Name = name
		}
		if email != "" && email != u.Email {
			others, err := r.users.Find(ctx, bson.M{"email": email})
			if err != nil {
				return models.User{}, err
			}
			if len(others) > 0 {
				return models.User{}, &models.ValidationError{Field: "email", Reason: "already registered"}
			}
			u.Email = email
		}

		patch := bson.M{
			"$set": bson.M{"name": u.Name, "email": u.Email, "updatedAt": time.Now()},
			"$inc": bson.M{"version": 1},
		}
		updated, err := r.users.UpdateWhere(ctx, userID, bson.M{"version": u.Version}, patch)
		if errors.Is(err, models.ErrConflict) {
			continue
		}
		return updated, err
	}
	return models.User{}, models.ErrConflict
}

func (r *UserRepository) newReferralCode(ctx context.Context) (string, error) {
	for i := 0; i < referralCodeTries; i++ {
		code, err := randomCode(referralCodeLen)
		if err != nil {
			return "", err
		}
		taken, err := r.users.Find(ctx, bson.M{"referralCode": code})
		if err != nil {
			return "", err
		}
		if len(taken) == 0 {
			return code, nil
		}
	}
	return "", errors.New("could not generate a unique referral code")
}

func randomCode(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = referralAlphabet[int(b[i])%len(referralAlphabet)]
	}
	return string(b), nil
}
