package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"bloom-api/internal/config"
	"bloom-api/internal/infrastructure/contentful"
	"bloom-api/internal/infrastructure/parse"
	"bloom-api/internal/shared"
	"bloom-api/pkg/cache"
)

const (
	RoleModerator = "moderator"
	classBooks    = "books"

	cacheKeyModerator   = "bloom:%s:moderator:%s"
	cacheKeyCollections = "bloom:collections:%s"
	permissionCacheTTL  = 10 * time.Minute
)

// CollectionSource lists the collections an email administers.
type CollectionSource interface {
	CollectionsAdministeredBy(ctx context.Context, email string) ([]contentful.Collection, error)
}

// Checker answers who the caller is and whether they may change a book.
type Checker struct {
	clients     parse.Clients
	collections CollectionSource
	cache       cache.Cache
}

func NewChecker(clients parse.Clients, collections CollectionSource, c cache.Cache) *Checker {
	return &Checker{
		clients:     clients,
		collections: collections,
		cache:       c,
	}
}

// ResolveUser looks up the user owning a session token. An unknown or
// expired token yields parse.ErrInvalidSession.
func (c *Checker) ResolveUser(ctx context.Context, env config.Environment, sessionToken string) (*shared.UserInfo, error) {
	client, err := c.clients.For(env)
	if err != nil {
		return nil, err
	}

	user, err := client.CurrentUser(ctx, sessionToken)
	if err != nil {
		return nil, err
	}
	return &shared.UserInfo{
		ObjectID:     user.ObjectID,
		Email:        user.Email,
		SessionToken: sessionToken,
	}, nil
}

// CanModifyBook: the uploader, a moderator, or an administrator of a
// collection containing the book.
func (c *Checker) CanModifyBook(ctx context.Context, env config.Environment, user shared.UserInfo, bookID, uploaderID string) (bool, error) {
	if user.ObjectID == "" {
		return false, nil
	}
	if uploaderID != "" && user.ObjectID == uploaderID {
		return true, nil
	}

	client, err := c.clients.For(env)
	if err != nil {
		return false, err
	}

	isModerator, err := c.isModerator(ctx, env, client, user.ObjectID)
	if err != nil {
		return false, fmt.Errorf("check moderator role: %w", err)
	}
	if isModerator {
		return true, nil
	}

	return c.isCollectionEditor(ctx, client, user.Email, bookID)
}

func (c *Checker) isModerator(ctx context.Context, env config.Environment, client *parse.Client, userID string) (bool, error) {
	key := fmt.Sprintf(cacheKeyModerator, env, userID)

	var cached bool
	if found, err := c.cache.Get(ctx, key, &cached); err == nil && found {
		return cached, nil
	}

	ok, err := client.IsInRole(ctx, userID, RoleModerator)
	if err != nil {
		return false, err
	}

	if err := c.cache.Set(ctx, key, ok, permissionCacheTTL); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to cache moderator flag")
	}
	return ok, nil
}

func (c *Checker) isCollectionEditor(ctx context.Context, client *parse.Client, email, bookID string) (bool, error) {
	if email == "" {
		return false, nil
	}

	collections, err := c.administeredCollections(ctx, email)
	if err != nil {
		return false, fmt.Errorf("load collections: %w", err)
	}

	for _, col := range collections {
		if len(col.Filter) == 0 {
			continue
		}
		var filter map[string]interface{}
		if err := json.Unmarshal(col.Filter, &filter); err != nil {
			log.Warn().Err(err).Str("collection", col.URLKey).Msg("Collection filter is not a where-clause")
			continue
		}

		where := map[string]interface{}{
			"$and": []interface{}{
				map[string]interface{}{"objectId": bookID},
				filter,
			},
		}
		n, err := client.Count(ctx, classBooks, where, parse.AsMaster())
		if err != nil {
			return false, fmt.Errorf("match collection %s: %w", col.URLKey, err)
		}
		if n > 0 {
			log.Info().
				Str("book_id", bookID).
				Str("collection", col.URLKey).
				Msg("Granted edit via collection")
			return true, nil
		}
	}
	return false, nil
}

func (c *Checker) administeredCollections(ctx context.Context, email string) ([]contentful.Collection, error) {
	key := fmt.Sprintf(cacheKeyCollections, email)

	var cached []contentful.Collection
	if found, err := c.cache.Get(ctx, key, &cached); err == nil && found {
		return cached, nil
	}

	collections, err := c.collections.CollectionsAdministeredBy(ctx, email)
	if errors.Is(err, contentful.ErrNotConfigured) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, collections, permissionCacheTTL); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to cache collections")
	}
	return collections, nil
}
