package middleware

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/orders", nil)
	return c, w
}

func strPtr(s string) *string { return &s }

func TestResolveIdentity(t *testing.T) {
	t.Run("authenticated user wins over the body", func(t *testing.T) {
		c, _ := testContext()
		c.Set("userId", "user-42")

		id, guest, err := ResolveIdentity(c, strPtr("someone-else"))
		require.NoError(t, err)
		assert.Equal(t, "user-42", id)
		assert.False(t, guest)
	})

	t.Run("body client_id is used when unauthenticated", func(t *testing.T) {
		c, _ := testContext()

		id, guest, err := ResolveIdentity(c, strPtr("client-7"))
		require.NoError(t, err)
		assert.Equal(t, "client-7", id)
		assert.False(t, guest)
	})

	t.Run("explicit empty client_id is an error", func(t *testing.T) {
		c, _ := testContext()

		_, _, err := ResolveIdentity(c, strPtr(""))
		assert.ErrorIs(t, err, ErrEmptyClientID)
	})

	t.Run("whitespace-only client_id is an error", func(t *testing.T) {
		c, _ := testContext()

		_, _, err := ResolveIdentity(c, strPtr("   "))
		assert.ErrorIs(t, err, ErrEmptyClientID)
	})

	t.Run("absent client_id synthesizes a guest", func(t *testing.T) {
		c, _ := testContext()

		id, guest, err := ResolveIdentity(c, nil)
		require.NoError(t, err)
		assert.True(t, guest)
		assert.True(t, strings.HasPrefix(id, "guest_"))
		assert.Greater(t, len(id), len("guest_"))
	})

	t.Run("two guests never collide", func(t *testing.T) {
		c, _ := testContext()

		a, _, err := ResolveIdentity(c, nil)
		require.NoError(t, err)
		b, _, err := ResolveIdentity(c, nil)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})
}
