package adminsdk_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"cfgadmin/internal/auth"
	"cfgadmin/internal/domain"
	"cfgadmin/internal/server"
	"cfgadmin/internal/wire"
	adminsdk "cfgadmin/sdk/go"
)

var userCodec = adminsdk.Codec[*domain.User]{Decode: domain.DecodeUser, Collection: domain.NewUsers}

func newDevServer(t *testing.T, cfg server.Config) *httptest.Server {
	t.Helper()
	handler, err := server.New(cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func users(c *adminsdk.Client) *adminsdk.Resource[*domain.User] {
	return adminsdk.NewResource(c, adminsdk.Users, userCodec)
}

func TestStaleUpdateIsAConflict(t *testing.T) {
	ctx := context.Background()
	srv := newDevServer(t, server.Config{})
	alice := users(adminsdk.New(srv.URL))
	bob := users(adminsdk.New(srv.URL))

	_, err := alice.Create(ctx, &domain.User{LoginName: "carol", DisplayName: "Carol", Enabled: true})
	require.NoError(t, err)

	mine, err := alice.Get(ctx, "carol")
	require.NoError(t, err)
	theirs, err := bob.Get(ctx, "carol")
	require.NoError(t, err)

	theirs.Email = "carol@example.com"
	_, err = bob.Update(ctx, theirs)
	require.NoError(t, err)

	mine.DisplayName = "Carol C."
	stored, err := alice.Update(ctx, mine)
	require.Error(t, err)
	assert.Nil(t, stored)
	assert.True(t, adminsdk.IsConflict(err))
	var conflict *adminsdk.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "carol", conflict.ID)
	assert.Contains(t, conflict.Message, "Someone has modified")

	// The local copy keeps the edit and no server state leaks into it.
	assert.Equal(t, "Carol C.", mine.DisplayName)
	assert.Empty(t, mine.Email)

	// Reload and reapply succeeds.
	fresh, err := alice.Get(ctx, "carol")
	require.NoError(t, err)
	fresh.DisplayName = mine.DisplayName
	stored, err = alice.Update(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, "Carol C.", stored.DisplayName)
	assert.Equal(t, "carol@example.com", stored.Email)
}

func TestUpdateWithoutETag(t *testing.T) {
	srv := newDevServer(t, server.Config{})
	_, err := users(adminsdk.New(srv.URL)).Update(context.Background(), &domain.User{LoginName: "nobody"})
	assert.ErrorIs(t, err, adminsdk.ErrMissingETag)
}

func TestRejectedCreateCarriesServerErrors(t *testing.T) {
	srv := newDevServer(t, server.Config{})
	got, err := users(adminsdk.New(srv.URL)).Create(context.Background(), &domain.User{LoginName: "dan", Email: "nope"})
	require.Error(t, err)
	apiErr, ok := adminsdk.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.False(t, adminsdk.IsConflict(err))
	require.NotNil(t, got)
	assert.Equal(t, "dan", got.LoginName)
	assert.True(t, got.Errors().Has("email"))
}

func TestListAndBulkRemove(t *testing.T) {
	ctx := context.Background()
	srv := newDevServer(t, server.Config{})
	var (
		mu     sync.Mutex
		events []adminsdk.WriteEvent
	)
	c := adminsdk.New(srv.URL)
	c.Observer = adminsdk.ObserverFunc(func(_ context.Context, ev adminsdk.WriteEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})
	res := users(c)
	for _, login := range []string{"erin", "frank", "grace"} {
		_, err := res.Create(ctx, &domain.User{LoginName: login, Enabled: true})
		require.NoError(t, err)
	}

	list, err := res.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"erin", "frank", "grace"}, collectLogins(list.All()))

	require.NoError(t, res.Remove(ctx, "erin", "grace"))
	_, ok, err := res.ETag(ctx, "erin")
	require.NoError(t, err)
	assert.False(t, ok)

	list, err = res.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"frank"}, collectLogins(list.All()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 5)
	assert.Equal(t, http.MethodPost, events[0].Method)
	assert.NotEmpty(t, events[0].ETag)
	assert.Equal(t, http.MethodDelete, events[4].Method)
	assert.Equal(t, "grace", events[4].ID)
}

func TestListReportsUndecodableEntities(t *testing.T) {
	store := server.NewStore()
	require.NoError(t, store.Seed("role", "name",
		[]byte(`{"name":"ops","type":"gocd","attributes":{"users":["a"]}}`),
		[]byte(`{"name":"weird","type":"ldap","attributes":{}}`),
	))
	srv := newDevServer(t, server.Config{Store: store})
	roles := adminsdk.NewResource(adminsdk.New(srv.URL), adminsdk.Roles,
		adminsdk.Codec[domain.Role]{Decode: domain.DecodeRole, Collection: domain.NewRoles})

	list, err := roles.List(context.Background())
	require.Error(t, err)
	_, ok := wire.AsBatchError(err)
	assert.True(t, ok)
	require.NotNil(t, list)
	assert.Equal(t, 1, list.Len())
}

func TestItemOnlyEndpointIsNotListable(t *testing.T) {
	srv := newDevServer(t, server.Config{})
	pipelines := adminsdk.NewResource(adminsdk.New(srv.URL), adminsdk.Pipelines,
		adminsdk.Codec[*domain.Pipeline]{Decode: domain.DecodePipeline, Collection: domain.NewPipelines})
	_, err := pipelines.List(context.Background())
	assert.ErrorIs(t, err, adminsdk.ErrNotListable)
}

func TestBearerTokenIsSent(t *testing.T) {
	srv := newDevServer(t, server.Config{Auth: server.AuthConfig{JWTSecret: "k"}})
	c := adminsdk.New(srv.URL)
	_, err := users(c).List(context.Background())
	apiErr, ok := adminsdk.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	c.BearerToken, err = auth.Issue("k", auth.Principal{Login: "admin"}, time.Minute)
	require.NoError(t, err)
	_, err = users(c).List(context.Background())
	assert.NoError(t, err)
}

func TestAcceptHeader(t *testing.T) {
	c := adminsdk.New("http://localhost")
	assert.Equal(t, "application/vnd.go.cd.v3+json", c.Accept(3))
	c.Product = "example"
	assert.Equal(t, "application/vnd.example.v11+json", c.Accept(11))
}

func TestMaterialConnection(t *testing.T) {
	srv := newDevServer(t, server.Config{})
	c := adminsdk.New(srv.URL)

	ok := &domain.GitMaterial{URL: "https://example.com/app.git"}
	msg, err := c.TestMaterialConnection(context.Background(), ok)
	require.NoError(t, err)
	assert.Equal(t, "Connection OK.", msg)

	_, err = c.TestMaterialConnection(context.Background(), &domain.GitMaterial{})
	assert.Error(t, err)
}

func TestRolePatchThroughSDK(t *testing.T) {
	ctx := context.Background()
	srv := newDevServer(t, server.Config{})
	c := adminsdk.New(srv.URL)
	roles := adminsdk.NewResource(c, adminsdk.Roles,
		adminsdk.Codec[domain.Role]{Decode: domain.DecodeRole, Collection: domain.NewRoles})
	_, err := users(c).Create(ctx, &domain.User{LoginName: "hal", Enabled: true})
	require.NoError(t, err)
	_, err = roles.Create(ctx, &domain.GoCDRole{RoleBase: domain.RoleBase{Name: "ops"}})
	require.NoError(t, err)

	update := domain.RoleUpdate{Operations: []domain.RoleOperation{{Role: "ops"}}}
	update.Operations[0].Users.Add = []string{"hal"}
	update.Operations[0].Users.Remove = []string{}
	_, err = roles.Patch(ctx, adminsdk.Roles.Path, update)
	require.NoError(t, err)

	got, err := users(c).Get(ctx, "hal")
	require.NoError(t, err)
	assert.True(t, got.HasRole("ops"))
}

func collectLogins(us []*domain.User) []string {
	out := make([]string, 0, len(us))
	for _, u := range us {
		out = append(out, u.LoginName)
	}
	return out
}

func TestClientIsSafeForConcurrentFirstUse(t *testing.T) {
	ctx := context.Background()
	srv := newDevServer(t, server.Config{})
	_, err := users(adminsdk.New(srv.URL)).Create(ctx, &domain.User{LoginName: "heidi", Enabled: true})
	require.NoError(t, err)

	for name, c := range map[string]*adminsdk.Client{
		"new":        adminsdk.New(srv.URL),
		"zero value": {BaseURL: srv.URL},
	} {
		t.Run(name, func(t *testing.T) {
			res := users(c)
			var g errgroup.Group
			for i := 0; i < 8; i++ {
				g.Go(func() error {
					u, err := res.Get(ctx, "heidi")
					if err != nil {
						return err
					}
					if u.LoginName != "heidi" {
						return errors.New("unexpected login " + u.LoginName)
					}
					return nil
				})
			}
			require.NoError(t, g.Wait())
			etag, ok, err := res.ETag(ctx, "heidi")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.NotEmpty(t, etag)
		})
	}
}
