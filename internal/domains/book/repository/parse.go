package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"bloom-api/internal/config"
	"bloom-api/internal/domains/book/model"
	"bloom-api/internal/infrastructure/parse"
	"bloom-api/pkg/cache"
)

const (
	cacheKeyMinVersion = "bloom:%s:min_desktop_version"
	minVersionTTL      = 5 * time.Minute
)

type parseRepository struct {
	clients parse.Clients
	cache   cache.Cache
}

func NewParseRepository(clients parse.Clients, c cache.Cache) Repository {
	return &parseRepository{
		clients: clients,
		cache:   c,
	}
}

func (r *parseRepository) GetBook(ctx context.Context, env config.Environment, bookID string) (*model.BookRecord, error) {
	client, err := r.clients.For(env)
	if err != nil {
		return nil, err
	}

	var book model.BookRecord
	if err := client.GetObject(ctx, model.ClassBooks, bookID, parse.AsMaster(), &book); err != nil {
		return nil, fmt.Errorf("get book %s: %w", bookID, err)
	}
	return &book, nil
}

func (r *parseRepository) CreateBook(ctx context.Context, env config.Environment, fields map[string]interface{}, sessionToken string) (string, error) {
	client, err := r.clients.For(env)
	if err != nil {
		return "", err
	}

	id, err := client.CreateObject(ctx, model.ClassBooks, fields, parse.AsSession(sessionToken))
	if err != nil {
		return "", fmt.Errorf("create book: %w", err)
	}
	return id, nil
}

func (r *parseRepository) UpdateBook(ctx context.Context, env config.Environment, bookID string, fields map[string]interface{}, sessionToken string) error {
	client, err := r.clients.For(env)
	if err != nil {
		return err
	}

	if err := client.UpdateObject(ctx, model.ClassBooks, bookID, fields, parse.AsSession(sessionToken)); err != nil {
		return fmt.Errorf("update book %s: %w", bookID, err)
	}
	return nil
}

func (r *parseRepository) GetOrCreateLanguage(ctx context.Context, env config.Environment, lang model.LanguageDescriptor) (string, error) {
	client, err := r.clients.For(env)
	if err != nil {
		return "", err
	}

	// match every field Bloom sends
	where := map[string]interface{}{
		"isoCode": lang.IsoCode,
		"name":    lang.Name,
	}
	if lang.EthnologueCode != "" {
		where["ethnologueCode"] = lang.EthnologueCode
	}
	if lang.EnglishName != "" {
		where["englishName"] = lang.EnglishName
	}

	var found []struct {
		ObjectID string `json:"objectId"`
	}
	if err := client.Query(ctx, model.ClassLanguage, where, 1, parse.AsMaster(), &found); err != nil {
		return "", fmt.Errorf("query language %s: %w", lang.IsoCode, err)
	}
	if len(found) > 0 {
		return found[0].ObjectID, nil
	}

	fields := make(map[string]interface{}, len(where))
	for k, v := range where {
		fields[k] = v
	}
	id, err := client.CreateObject(ctx, model.ClassLanguage, fields, parse.AsMaster())
	if err != nil {
		return "", fmt.Errorf("create language %s: %w", lang.IsoCode, err)
	}

	log.Info().
		Str("env", env.String()).
		Str("iso_code", lang.IsoCode).
		Str("language_id", id).
		Msg("Created language record")
	return id, nil
}

func (r *parseRepository) LoginAs(ctx context.Context, env config.Environment, userID string) (string, error) {
	client, err := r.clients.For(env)
	if err != nil {
		return "", err
	}

	token, err := client.LoginAs(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("login as %s: %w", userID, err)
	}
	return token, nil
}

func (r *parseRepository) GetMinimumDesktopVersion(ctx context.Context, env config.Environment) (string, error) {
	key := fmt.Sprintf(cacheKeyMinVersion, env)

	var cached string
	if found, err := r.cache.Get(ctx, key, &cached); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Cache read failed")
	} else if found {
		return cached, nil
	}

	client, err := r.clients.For(env)
	if err != nil {
		return "", err
	}

	var rows []struct {
		MinDesktopVersion string `json:"minDesktopVersion"`
	}
	if err := client.Query(ctx, model.ClassVersion, nil, 1, parse.AsMaster(), &rows); err != nil {
		return "", fmt.Errorf("query version: %w", err)
	}
	if len(rows) == 0 || rows[0].MinDesktopVersion == "" {
		return "", fmt.Errorf("query version: no minDesktopVersion configured")
	}

	version := rows[0].MinDesktopVersion
	if err := r.cache.Set(ctx, key, version, minVersionTTL); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
	return version, nil
}
