package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autofi/recommender/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testHandlerLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testContext(t *testing.T, method, target string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, nil)
	return c, w
}

func authAs(c *gin.Context, userID int, admin bool) {
	c.Set("auth_user", &models.AuthUser{
		UserID:  userID,
		Name:    "alice",
		Email:   "alice@example.com",
		IsAdmin: admin,
	})
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

func TestGetRejectsInvalidUserID(t *testing.T) {
	h := NewRecommendationHandler(nil, testHandlerLogger())

	c, w := testContext(t, http.MethodGet, "/api/recommendations/user/abc")
	c.Params = gin.Params{{Key: "user_id", Value: "abc"}}

	h.Get(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_USER_ID", errorCode(t, w))
}

func TestGetRequiresAuthentication(t *testing.T) {
	h := NewRecommendationHandler(nil, testHandlerLogger())

	c, w := testContext(t, http.MethodGet, "/api/recommendations/user/7")
	c.Params = gin.Params{{Key: "user_id", Value: "7"}}

	h.Get(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetForbidsForeignUser(t *testing.T) {
	h := NewRecommendationHandler(nil, testHandlerLogger())

	c, w := testContext(t, http.MethodGet, "/api/recommendations/user/9")
	c.Params = gin.Params{{Key: "user_id", Value: "9"}}
	authAs(c, 7, false)

	h.Get(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", errorCode(t, w))
}

func TestGetRejectsUnknownModelType(t *testing.T) {
	h := NewRecommendationHandler(nil, testHandlerLogger())

	c, w := testContext(t, http.MethodGet, "/api/recommendations/user/7?model_type=quantum")
	c.Params = gin.Params{{Key: "user_id", Value: "7"}}
	authAs(c, 7, false)

	h.Get(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_MODEL_TYPE", errorCode(t, w))
}

func TestWriteErrorStatusMapping(t *testing.T) {
	h := NewRecommendationHandler(nil, testHandlerLogger())

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{&models.UserNotFoundError{UserID: 9}, http.StatusNotFound, "USER_NOT_FOUND"},
		{&models.VehicleNotFoundError{VehicleID: 9}, http.StatusNotFound, "VEHICLE_NOT_FOUND"},
		{&models.InsufficientDataError{UserID: 9}, http.StatusUnprocessableEntity, "INSUFFICIENT_DATA"},
		{models.ErrModelLoading, http.StatusServiceUnavailable, "MODEL_LOADING"},
		{&models.ModelNotAvailableError{Name: "collaborative"}, http.StatusServiceUnavailable, "MODEL_NOT_AVAILABLE"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
	}

	for _, tc := range cases {
		c, w := testContext(t, http.MethodGet, "/api/recommendations/user/7")
		h.writeError(c, tc.err)
		assert.Equal(t, tc.status, w.Code, tc.code)
		assert.Equal(t, tc.code, errorCode(t, w))
	}
}

func TestQueryIntClampsAndDefaults(t *testing.T) {
	cases := []struct {
		query string
		want  int
	}{
		{"", defaultTopN},
		{"top_n=5", 5},
		{"top_n=-2", defaultTopN},
		{"top_n=banana", defaultTopN},
		{"top_n=500", maxTopN},
	}

	for _, tc := range cases {
		c, _ := testContext(t, http.MethodGet, "/api/recommendations/user/7?"+tc.query)
		assert.Equal(t, tc.want, queryInt(c, "top_n", defaultTopN, maxTopN), tc.query)
	}
}
