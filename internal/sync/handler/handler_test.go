package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sync-server/internal/platforms"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func queryContext(t *testing.T, rawQuery string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/sync?"+rawQuery, nil)
	return c, w
}

func TestDateRangeQuery(t *testing.T) {
	t.Parallel()
	h := Handler{}

	t.Run("absent params leave the range zero", func(t *testing.T) {
		t.Parallel()

		c, _ := queryContext(t, "")
		window, ok := h.dateRangeQuery(c)

		require.True(t, ok)
		assert.True(t, window.Since.IsZero())
		assert.True(t, window.Until.IsZero())
	})

	t.Run("since and until are parsed as dates", func(t *testing.T) {
		t.Parallel()

		c, _ := queryContext(t, "since=2026-07-01&until=2026-07-15")
		window, ok := h.dateRangeQuery(c)

		require.True(t, ok)
		assert.Equal(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), window.Since)
		assert.Equal(t, time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC), window.Until)
	})

	t.Run("malformed date is rejected", func(t *testing.T) {
		t.Parallel()

		c, w := queryContext(t, "since=July+2026")
		_, ok := h.dateRangeQuery(c)

		require.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("inverted range is rejected", func(t *testing.T) {
		t.Parallel()

		c, w := queryContext(t, "since=2026-07-15&until=2026-07-01")
		window, ok := h.dateRangeQuery(c)

		require.False(t, ok)
		assert.Equal(t, platforms.DateRange{}, window)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
