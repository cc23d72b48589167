package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bloom-api/internal/config"
	actionModel "bloom-api/internal/domains/action/model"
	"bloom-api/internal/domains/book/model"
	"bloom-api/internal/shared"
)

type startCall struct {
	name   actionModel.Name
	env    config.Environment
	user   shared.UserInfo
	params interface{}
}

type fakeActions struct {
	calls []startCall
	err   error
}

func (f *fakeActions) Start(_ context.Context, name actionModel.Name, env config.Environment, user shared.UserInfo, params interface{}) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.calls = append(f.calls, startCall{name, env, user, params})
	return "op-42", nil
}

func (f *fakeActions) Status(context.Context, string) (*actionModel.State, error) {
	return nil, errors.New("not used")
}

var caller = shared.UserInfo{ObjectID: "u1", SessionToken: "r:u1"}

func newRouter(actions *fakeActions, authenticated bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(shared.ContextKeyEnvironment, string(config.EnvUnitTest))
		if authenticated {
			c.Set(shared.ContextKeyUser, caller)
		}
		c.Next()
	})
	r.POST("/v1/books/:action", NewHandler(actions).PostBookAction)
	return r
}

func post(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Host = "api.example.org"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPostBookAction_UploadStart(t *testing.T) {
	actions := &fakeActions{}
	r := newRouter(actions, true)

	// Bloom Desktop sends files as an encoded string
	body := `{"name":"My Book","files":"[{\"path\":\"a.png\",\"hash\":\"1111\"}]","clientVersion":"5.5"}`
	w := post(r, "/v1/books/new:upload-start", body)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "http://api.example.org/v1/status/op-42", w.Header().Get("Operation-Location"))
	assert.JSONEq(t, `{"id":"op-42","status":"Running"}`, w.Body.String())

	require.Len(t, actions.calls, 1)
	call := actions.calls[0]
	assert.Equal(t, actionModel.UploadStart, call.name)
	assert.Equal(t, config.EnvUnitTest, call.env)
	assert.Equal(t, caller, call.user)
	assert.Equal(t, model.UploadStartParams{
		BookID:        "new",
		Title:         "My Book",
		Files:         []model.FileManifestEntry{{Path: "a.png", Hash: "1111"}},
		ClientVersion: "5.5",
	}, call.params)
}

func TestPostBookAction_UploadFinish(t *testing.T) {
	actions := &fakeActions{}
	r := newRouter(actions, true)

	body := `{"metadata":{"baseUrl":"https://s3/abc1234567/1/t/"},"transactionId":"abc1234567","becomeUploader":true}`
	w := post(r, "/v1/books/abc1234567:upload-finish", body)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, actions.calls, 1)
	p := actions.calls[0].params.(model.UploadFinishParams)
	assert.Equal(t, "abc1234567", p.BookID)
	assert.True(t, p.BecomeUploader)
}

func TestPostBookAction_Rejected(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
		auth bool
		code int
	}{
		{"no verb", "/v1/books/abc1234567", `{}`, true, http.StatusNotFound},
		{"unknown verb", "/v1/books/abc1234567:publish", `{}`, true, http.StatusNotFound},
		{"unauthenticated", "/v1/books/new:upload-start", `{}`, false, http.StatusUnauthorized},
		{"malformed json", "/v1/books/new:upload-start", `{`, true, http.StatusBadRequest},
		{"files not a manifest", "/v1/books/new:upload-start", `{"name":"t","files":"nope","clientVersion":"5.5"}`, true, http.StatusBadRequest},
		{"missing client version", "/v1/books/new:upload-start", `{"name":"t","files":[{"path":"a","hash":"1"}]}`, true, http.StatusBadRequest},
		{"bad book id", "/v1/books/short:upload-start", `{"name":"t","files":[{"path":"a","hash":"1"}],"clientVersion":"5.5"}`, true, http.StatusBadRequest},
		{"finish on new", "/v1/books/new:upload-finish", `{"metadata":{"a":1},"transactionId":"x"}`, true, http.StatusBadRequest},
		{"finish without transaction", "/v1/books/abc1234567:upload-finish", `{"metadata":{"a":1}}`, true, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actions := &fakeActions{}
			w := post(newRouter(actions, tt.auth), tt.path, tt.body)
			assert.Equal(t, tt.code, w.Code)
			assert.Empty(t, actions.calls)
		})
	}
}

func TestPostBookAction_EnqueueFailure(t *testing.T) {
	r := newRouter(&fakeActions{err: errors.New("redis down")}, true)
	w := post(r, "/v1/books/abc1234567:upload-finish", `{"metadata":{"a":1},"transactionId":"abc1234567"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "redis")
}
