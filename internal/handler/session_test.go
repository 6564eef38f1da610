package handler

import (
    "context"
    "net/http"
    "net/http/httptest"
    "testing"

    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/event-ticketing/internal/identity"
    "github.com/iliyamo/event-ticketing/internal/model"
    "github.com/iliyamo/event-ticketing/internal/utils"
)

type profileStub map[string]*model.User

func (p profileStub) GetByID(_ context.Context, id string) (*model.User, error) {
    if u, ok := p[id]; ok {
        return u, nil
    }
    return &model.User{}, nil
}

func TestSessionGet(t *testing.T) {
    provider := identity.NewProvider(identity.Options{JWTSecret: "s"}, nil, nil, nil)
    h := NewSessionHandler(provider, profileStub{"u-1": {ID: "u-1", Name: "ada", Email: "ada@example.com"}})

    tok, err := utils.NewAccessToken("s", "u-1", "ada@example.com", 5)
    require.NoError(t, err)

    rec := do(t, http.MethodGet, "/v1/session", "", h.Get, func(c echo.Context) {
        c.Request().Header.Set("Authorization", "Bearer "+tok.Token)
    })
    require.Equal(t, http.StatusOK, rec.Code)
    assert.JSONEq(t, `{"authenticated":true,"user_id":"u-1","email":"ada@example.com","initial":"A"}`, rec.Body.String())

    rec = do(t, http.MethodGet, "/v1/session", "", h.Get, nil)
    assert.JSONEq(t, `{"authenticated":false}`, rec.Body.String())
}

func TestSessionStreamEndsWithClient(t *testing.T) {
    provider := identity.NewProvider(identity.Options{JWTSecret: "s"}, nil, nil, nil)
    h := NewSessionHandler(provider, profileStub{})

    ctx, cancel := context.WithCancel(context.Background())
    cancel()
    e := echo.New()
    req := httptest.NewRequest(http.MethodGet, "/v1/session/events", nil).WithContext(ctx)
    rec := httptest.NewRecorder()
    require.NoError(t, h.Stream(e.NewContext(req, rec)))

    assert.Equal(t, "text/event-stream", rec.Header().Get(echo.HeaderContentType))
    assert.Contains(t, rec.Body.String(), "event: session\ndata: {\"authenticated\":false}\n\n")
}
