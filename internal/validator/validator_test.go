package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
	Setup()
}

func bindBody(t *testing.T, body string, dst interface{}) map[string]string {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return Bind(c, dst)
}

func TestBind_UsesJSONFieldNames(t *testing.T) {
	var req model.ConfigureExamRequest
	fields := bindBody(t, `{"questions":[{"id":"q1","text":"?","options":["a"]}],"solutionKey":["a"]}`, &req)
	require.NotNil(t, fields)
	assert.Contains(t, fields, "title")
	assert.Contains(t, fields, "questions[0].options")
}

func TestBind_MalformedJSON(t *testing.T) {
	var req model.ConfigureExamRequest
	fields := bindBody(t, `{"title":`, &req)
	assert.Contains(t, fields, "detail")
}

func TestStruct_TimestampOrder(t *testing.T) {
	start := time.Now()
	req := model.SubmitSessionRequest{
		CandidateName: "Ada",
		Responses:     []string{"a"},
		StartedAt:     start,
		EndedAt:       start.Add(-time.Second),
	}
	fields := Struct(&req)
	require.NotNil(t, fields)
	assert.Contains(t, fields["endTimestamp"], "endTimestamp must not be before")

	req.EndedAt = start.Add(time.Minute)
	assert.Nil(t, Struct(&req))
}

func TestStruct_TerminationReason(t *testing.T) {
	start := time.Now()
	req := model.SubmitSessionRequest{
		CandidateName:     "Ada",
		Responses:         []string{"a"},
		StartedAt:         start,
		EndedAt:           start,
		TerminationReason: "Window Focus Lost",
	}
	assert.Nil(t, Struct(&req))

	req.TerminationReason = "COFFEE_BREAK"
	fields := Struct(&req)
	assert.Equal(t, "terminationReason is not a known termination reason", fields["terminationReason"])
}
