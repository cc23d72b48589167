package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"bloom-api/internal/config"
	"bloom-api/internal/domains/book/model"
	"bloom-api/internal/infrastructure/storage"
	"bloom-api/internal/shared"
)

const testStoreURL = "https://s3.amazonaws.com/bloomharvest-unittests"

var errFake = errors.New("fake failure")

// ---- repository ----

type updateCall struct {
	ID      string
	Fields  map[string]interface{}
	Session string
}

type fakeRepo struct {
	mu         sync.Mutex
	books      map[string]*model.BookRecord
	minVersion string
	versionErr error
	createErr  error
	updateErr  error
	loginErr   error
	created    []map[string]interface{}
	createdBy  []string
	updates    []updateCall
	loginAs    []string
	languages  map[string]string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		books:      make(map[string]*model.BookRecord),
		minVersion: "5.4",
		languages:  make(map[string]string),
	}
}

func (r *fakeRepo) GetBook(_ context.Context, _ config.Environment, id string) (*model.BookRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.books[id]
	if !ok {
		return nil, errors.New("object not found")
	}
	cp := *b
	return &cp, nil
}

func (r *fakeRepo) CreateBook(_ context.Context, _ config.Environment, fields map[string]interface{}, session string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return "", r.createErr
	}
	r.created = append(r.created, fields)
	r.createdBy = append(r.createdBy, session)
	return "newBook001", nil
}

func (r *fakeRepo) UpdateBook(_ context.Context, _ config.Environment, id string, fields map[string]interface{}, session string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	r.updates = append(r.updates, updateCall{ID: id, Fields: fields, Session: session})
	return nil
}

func (r *fakeRepo) GetOrCreateLanguage(_ context.Context, _ config.Environment, lang model.LanguageDescriptor) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.languages[lang.IsoCode]; ok {
		return id, nil
	}
	id := "lang-" + lang.IsoCode
	r.languages[lang.IsoCode] = id
	return id, nil
}

func (r *fakeRepo) LoginAs(_ context.Context, _ config.Environment, userID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loginErr != nil {
		return "", r.loginErr
	}
	r.loginAs = append(r.loginAs, userID)
	return "r:as-" + userID, nil
}

func (r *fakeRepo) GetMinimumDesktopVersion(context.Context, config.Environment) (string, error) {
	if r.versionErr != nil {
		return "", r.versionErr
	}
	return r.minVersion, nil
}

// ---- permissions ----

type fakePerms struct {
	allowed map[string]bool // user id -> may modify any book
	err     error
}

func (p *fakePerms) CanModifyBook(_ context.Context, _ config.Environment, user shared.UserInfo, _ string, uploaderID string) (bool, error) {
	if p.err != nil {
		return false, p.err
	}
	return user.ObjectID == uploaderID || p.allowed[user.ObjectID], nil
}

// ---- object store ----

type copyCall struct {
	Src, Dest string
	Keys      []string
}

type deleteCall struct {
	Prefix, Exclude string
}

type fakeGateway struct {
	mu       sync.Mutex
	objects  map[string]string // key -> etag
	listErr  error
	copyErr  error
	delErr   error
	credErr  error
	copies   []copyCall
	deletes  []deleteCall
	credsFor []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{objects: make(map[string]string)}
}

func (g *fakeGateway) Bucket() string   { return "bloomharvest-unittests" }
func (g *fakeGateway) StoreURL() string { return testStoreURL }

func (g *fakeGateway) ListPrefixKeys(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listErr != nil {
		return nil, g.listErr
	}
	var out []storage.ObjectInfo
	for k, etag := range g.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, storage.ObjectInfo{Key: k, ETag: etag})
		}
	}
	return out, nil
}

func (g *fakeGateway) CopyPrefix(_ context.Context, src, dest string, keys []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.copyErr != nil {
		return g.copyErr
	}
	g.copies = append(g.copies, copyCall{Src: src, Dest: dest, Keys: keys})
	for _, k := range keys {
		g.objects[dest+strings.TrimPrefix(k, src)] = g.objects[k]
	}
	return nil
}

func (g *fakeGateway) DeletePrefix(_ context.Context, prefix, exclude string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.delErr != nil {
		return g.delErr
	}
	g.deletes = append(g.deletes, deleteCall{Prefix: prefix, Exclude: exclude})
	for k := range g.objects {
		if strings.HasPrefix(k, prefix) && (exclude == "" || !strings.HasPrefix(k, exclude)) {
			delete(g.objects, k)
		}
	}
	return nil
}

func (g *fakeGateway) IssueScopedCredentials(_ context.Context, prefix string, d time.Duration) (*storage.Credentials, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.credErr != nil {
		return nil, g.credErr
	}
	g.credsFor = append(g.credsFor, prefix)
	return &storage.Credentials{
		AccessKeyID:     "AKIA",
		SecretAccessKey: "secret",
		SessionToken:    "token",
		Expiration:      time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).Add(d),
	}, nil
}

func (g *fakeGateway) HealthCheck(context.Context) error { return nil }

type fakeResolver struct {
	gateway *fakeGateway
}

func (r fakeResolver) Gateway(config.Environment) (storage.Gateway, error) {
	return r.gateway, nil
}

// ---- cleanup ----

type fakeCleanup struct {
	mu       sync.Mutex
	err      error
	prefixes []string
	kept     []string
}

func (c *fakeCleanup) ScheduleDeletePrefix(_ context.Context, _ config.Environment, prefix, keepPrefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefixes = append(c.prefixes, prefix)
	c.kept = append(c.kept, keepPrefix)
	return c.err
}

// ---- harness ----

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	svc     *UploadService
	repo    *fakeRepo
	perms   *fakePerms
	gateway *fakeGateway
	cleanup *fakeCleanup
}

func newHarness() *harness {
	h := &harness{
		repo:    newFakeRepo(),
		perms:   &fakePerms{allowed: map[string]bool{}},
		gateway: newFakeGateway(),
		cleanup: &fakeCleanup{},
	}
	h.svc = NewUploadService(h.repo, h.perms, fakeResolver{gateway: h.gateway}, h.cleanup)
	h.svc.now = func() time.Time { return testNow }
	return h
}

func userInfo(id string) shared.UserInfo {
	return shared.UserInfo{ObjectID: id, Email: id + "@example.com", SessionToken: "r:" + id}
}

func uploadErrorCode(err error) model.ErrorCode {
	var uerr *model.UploadError
	if errors.As(err, &uerr) {
		return uerr.Code
	}
	return ""
}
