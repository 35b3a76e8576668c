package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/lecom/internal/client/api"
	"github.com/dmitrijs2005/lecom/internal/client/client"
	"github.com/dmitrijs2005/lecom/internal/client/realtime"
	"github.com/dmitrijs2005/lecom/internal/client/services"
	"github.com/dmitrijs2005/lecom/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthService struct {
	status     services.Status
	loginErr   error
	logoutErr  error
	gotUser    string
	gotPass    []byte
	logoutHits int
}

func (f *fakeAuthService) Login(_ context.Context, user string, pw []byte) (services.Status, error) {
	f.gotUser = user
	f.gotPass = pw
	if f.loginErr != nil {
		return services.Status{}, f.loginErr
	}
	f.status = services.Status{Authenticated: true, SubjectID: "u-" + user}
	return f.status, nil
}

func (f *fakeAuthService) Logout(context.Context) error {
	f.logoutHits++
	f.status = services.Status{}
	return f.logoutErr
}

func (f *fakeAuthService) Status() services.Status { return f.status }

type fakeChat struct {
	mu      sync.Mutex
	active  string
	handler realtime.MessageHandler
	openErr error
	sent    []string
	history json.RawMessage
}

func (f *fakeChat) Open(_ context.Context, id string, h realtime.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.active, f.handler = id, h
	return nil
}

func (f *fakeChat) Close() {
	f.mu.Lock()
	f.active, f.handler = "", nil
	f.mu.Unlock()
}

func (f *fakeChat) Active() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeChat) Start(_ context.Context, productID string) (json.RawMessage, error) {
	return json.RawMessage(`{"id":"c-1","productId":"` + productID + `"}`), nil
}

func (f *fakeChat) Send(_ context.Context, id, content string) (json.RawMessage, error) {
	f.sent = append(f.sent, id+":"+content)
	return json.RawMessage(`{}`), nil
}

func (f *fakeChat) History(context.Context, string) (json.RawMessage, error) {
	return f.history, nil
}

func (f *fakeChat) Conversations(_ context.Context, asSeller bool) (json.RawMessage, error) {
	if asSeller {
		return json.RawMessage(`[{"id":"s"}]`), nil
	}
	return json.RawMessage(`[{"id":"b"}]`), nil
}

// routeSender answers requests by "METHOD path" with a canned body.
type routeSender struct {
	routes map[string]string
	reqs   []*client.Request
}

func (s *routeSender) Send(_ context.Context, req *client.Request) (*client.Response, error) {
	s.reqs = append(s.reqs, req)
	key := req.Method + " " + req.Path
	body, ok := s.routes[key]
	if !ok {
		return nil, &client.StatusError{Method: req.Method, Path: req.Path, StatusCode: http.StatusNotFound,
			Body: []byte(`{"isSuccess":false,"message":"no route ` + key + `"}`)}
	}
	return &client.Response{StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

func ok(result string) string {
	return `{"isSuccess":true,"statusCode":200,"result":` + result + `}`
}

type testApp struct {
	*App
	auth   *fakeAuthService
	chat   *fakeChat
	sender *routeSender
	out    *bytes.Buffer
}

func newTestApp(t *testing.T, input string) *testApp {
	t.Helper()
	auth := &fakeAuthService{}
	chat := &fakeChat{}
	sender := &routeSender{routes: map[string]string{}}
	a := NewApp(Deps{Auth: auth, Chat: chat, API: api.New(sender), Sender: sender})
	var out bytes.Buffer
	a.out = &out
	a.reader = bufio.NewReader(strings.NewReader(input))
	return &testApp{App: a, auth: auth, chat: chat, sender: sender, out: &out}
}

func stubPassword(t *testing.T, pws ...string) {
	t.Helper()
	orig := getPassword
	i := 0
	getPassword = func(string, io.Writer) ([]byte, error) {
		if i >= len(pws) {
			return nil, fmt.Errorf("unexpected password prompt")
		}
		pw := []byte(pws[i])
		i++
		return pw, nil
	}
	t.Cleanup(func() { getPassword = orig })
}

func TestLogin_Success(t *testing.T) {
	stubPassword(t, "buyer")
	a := newTestApp(t, "buyer\n")

	require.NoError(t, a.Login(context.Background()))
	assert.Equal(t, "buyer", a.auth.gotUser)
	assert.Equal(t, make([]byte, len("buyer")), a.auth.gotPass, "password is wiped after login")
	assert.Equal(t, "buyer", a.userName)
	assert.True(t, a.isLoggedIn())
	assert.Contains(t, a.out.String(), "Login successful")
	assert.Equal(t, "(buyer)", a.getStatus())
}

func TestLogin_Rejected(t *testing.T) {
	stubPassword(t, "nope")
	a := newTestApp(t, "buyer\n")
	a.auth.loginErr = &client.StatusError{Method: "POST", Path: "/auth/login", StatusCode: http.StatusUnauthorized,
		Body: []byte(`{"isSuccess":false,"message":"invalid user name or password"}`)}

	err := a.Login(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrUnauthenticated)
	assert.Equal(t, "error: login failed: invalid user name or password", describeError(err))
	assert.False(t, a.isLoggedIn())
	assert.Empty(t, a.userName)
}

func TestLogin_EmptyUserName(t *testing.T) {
	a := newTestApp(t, "\n")
	require.ErrorIs(t, a.Login(context.Background()), errEmptyUserName)
}

func TestLogoutAndStatus(t *testing.T) {
	a := newTestApp(t, "")
	ctx := context.Background()

	require.NoError(t, a.Status(ctx))
	assert.Contains(t, a.out.String(), "Not logged in")

	a.auth.status = services.Status{Authenticated: true, SubjectID: "u-buyer",
		ExpiresAt: time.Now().Add(-time.Minute), Expired: true}
	a.chat.active = "c-9"
	a.userName = "buyer"
	require.NoError(t, a.Status(ctx))
	assert.Contains(t, a.out.String(), "Logged in as u-buyer")
	assert.Contains(t, a.out.String(), "expired, will refresh on next call")
	assert.Contains(t, a.out.String(), "Open conversation: c-9")

	require.NoError(t, a.Logout(ctx))
	assert.Equal(t, 1, a.auth.logoutHits)
	assert.Empty(t, a.chat.Active(), "logout closes the conversation")
	assert.Empty(t, a.userName)
	assert.Equal(t, "", a.getStatus())
}

func TestGet_PrintsIndentedBody(t *testing.T) {
	a := newTestApp(t, "")
	a.sender.routes["GET /orders/my"] = ok(`[{"id":"o-1"}]`)

	require.NoError(t, a.Get(context.Background(), "orders/my"))
	require.Len(t, a.sender.reqs, 1)
	assert.Equal(t, "/orders/my", a.sender.reqs[0].Path)
	assert.False(t, a.sender.reqs[0].SkipAuth)
	assert.Contains(t, a.out.String(), "\n  \"isSuccess\": true")
}

func TestGet_NotFound(t *testing.T) {
	a := newTestApp(t, "")
	err := a.Get(context.Background(), "/nope")
	require.Error(t, err)
	assert.Equal(t, "error: no route GET /nope", describeError(err))
}

func TestOpenSendClose(t *testing.T) {
	a := newTestApp(t, "")
	ctx := context.Background()
	a.chat.history = json.RawMessage(`[{"senderId":"u-seller","content":"welcome","createdAt":"t0"}]`)

	require.ErrorIs(t, a.Send(ctx, "early"), errNoOpenChat)
	require.ErrorIs(t, a.CloseChat(ctx), errNoOpenChat)

	require.NoError(t, a.Open(ctx, "c-1"))
	assert.Contains(t, a.out.String(), "Joined conversation c-1")
	assert.Contains(t, a.out.String(), "[t0] u-seller: welcome")

	a.chat.handler(json.RawMessage(`{"senderId":"u-seller","content":"hi","createdAt":"t1"}`))
	a.chat.handler(json.RawMessage(`{"odd":true}`))
	assert.Contains(t, a.out.String(), "[t1] u-seller: hi")
	assert.Contains(t, a.out.String(), `{"odd":true}`)

	require.NoError(t, a.Send(ctx, "hello"))
	assert.Equal(t, []string{"c-1:hello"}, a.chat.sent)

	require.NoError(t, a.CloseChat(ctx))
	assert.Empty(t, a.chat.Active())
}

func TestOpen_Rejected(t *testing.T) {
	a := newTestApp(t, "")
	a.chat.openErr = fmt.Errorf("%w: join_failed: forbidden", common.ErrSubscribeRejected)

	err := a.Open(context.Background(), "c-x")
	require.ErrorIs(t, err, common.ErrSubscribeRejected)
	assert.Empty(t, a.chat.Active())
}

func TestCart(t *testing.T) {
	a := newTestApp(t, "")
	ctx := context.Background()
	a.sender.routes["GET /cart/"] = ok(`[]`)
	a.sender.routes["POST /cart/items"] = ok(`{"productId":"p-1","quantity":2}`)
	a.sender.routes["DELETE /cart/items/p-1"] = ok(`null`)
	a.sender.routes["PATCH /cart/items/p-1"] = ok(`{"productId":"p-1","quantity":5}`)

	require.NoError(t, a.Cart(ctx, nil))
	require.NoError(t, a.Cart(ctx, []string{"add", "p-1", "2"}))
	require.NoError(t, a.Cart(ctx, []string{"set", "p-1", "5"}))
	require.NoError(t, a.Cart(ctx, []string{"rm", "p-1"}))
	require.Error(t, a.Cart(ctx, []string{"add", "p-1", "zero"}))

	require.Len(t, a.sender.reqs, 4)
	assert.JSONEq(t, `{"productId":"p-1","quantity":2}`, string(a.sender.reqs[1].Body))
	assert.JSONEq(t, `{"quantity":5}`, string(a.sender.reqs[2].Body))
}

func TestProfile(t *testing.T) {
	stubPassword(t, "old", "new")
	a := newTestApp(t, "{\"fullName\":\"Bob\"}\n\n")
	ctx := context.Background()
	a.sender.routes["GET /user/profile"] = ok(`{"id":"u-buyer"}`)
	a.sender.routes["PUT /user/profile"] = ok(`{"id":"u-buyer","fullName":"Bob"}`)
	a.sender.routes["POST /user/change-password"] = ok(`null`)

	require.NoError(t, a.Profile(ctx, nil))
	require.NoError(t, a.Profile(ctx, []string{"set"}))
	require.Error(t, a.Profile(ctx, []string{"set", "{broken"}))
	require.NoError(t, a.Profile(ctx, []string{"password"}))

	require.Len(t, a.sender.reqs, 3)
	assert.JSONEq(t, `{"fullName":"Bob"}`, string(a.sender.reqs[1].Body))
	assert.JSONEq(t, `{"oldPassword":"old","newPassword":"new"}`, string(a.sender.reqs[2].Body))
	assert.Contains(t, a.out.String(), "Password changed")
}

func TestRootRunsLoop(t *testing.T) {
	silencePrintln(t)
	a := newTestApp(t, "conversations seller\nexit\n")
	a.auth.status = services.Status{Authenticated: true, SubjectID: "u-seller"}

	a.Run(context.Background())

	assert.Contains(t, a.out.String(), "Welcome to lecom CLI")
	assert.Contains(t, a.out.String(), `"id": "s"`)
	assert.Equal(t, "u-seller", a.userName)
}
