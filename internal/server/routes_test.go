package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/minimarbles/internal/config"
	"github.com/ksred/minimarbles/internal/database"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	return NewRouter(db, config.RateLimit{Enabled: false})
}

func doRequest(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func createUser(t *testing.T, router *gin.Engine, name string) string {
	t.Helper()
	w := doRequest(t, router, http.MethodPost, "/users", `{"name":"`+name+`"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var user map[string]interface{}
	decode(t, w, &user)
	return user["id"].(string)
}

func balances(t *testing.T, router *gin.Engine) map[string]float64 {
	t.Helper()
	w := doRequest(t, router, http.MethodGet, "/users", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]interface{}
	decode(t, w, &list)
	out := make(map[string]float64, len(list))
	for _, u := range list {
		out[u["name"].(string)] = u["balance"].(float64)
	}
	return out
}

func TestIndex(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(t, router, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Hello, Minimarbles!", w.Body.String())
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t)
	createUser(t, router, "Alice")

	w := doRequest(t, router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "minimarbles_users_created_total")
}

func TestGetUsers_EmptyDatabase(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(t, router, http.MethodGet, "/users", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "application/json"))
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestGetUsers_ReturnsAllUsersWithBalances(t *testing.T) {
	router := newTestRouter(t)
	createUser(t, router, "Alice")
	createUser(t, router, "Bob")

	w := doRequest(t, router, http.MethodGet, "/users", "")
	require.Equal(t, http.StatusOK, w.Code)

	var list []map[string]interface{}
	decode(t, w, &list)
	require.Len(t, list, 2)
	for _, u := range list {
		assert.Contains(t, u, "id")
		assert.Equal(t, float64(1000), u["balance"])
	}
	assert.ElementsMatch(t, []string{"Alice", "Bob"}, []string{list[0]["name"].(string), list[1]["name"].(string)})
}

func TestCreateUser(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(t, router, http.MethodPost, "/users", `{"name":"Alice"}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	var user map[string]interface{}
	decode(t, w, &user)
	assert.Equal(t, "Alice", user["name"])
	assert.Equal(t, float64(1000), user["balance"])
	assert.NotEmpty(t, user["id"])
}

func TestCreateUser_CustomBalance(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(t, router, http.MethodPost, "/users", `{"name":"Charlie","balance":500}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var user map[string]interface{}
	decode(t, w, &user)
	assert.Equal(t, float64(500), user["balance"])
}

func TestCreateUser_BadRequests(t *testing.T) {
	router := newTestRouter(t)

	for _, body := range []string{"", `{}`, `{"name":""}`, `{"name":"   "}`, `not json`, `{"name":"Eve","balance":-5}`} {
		w := doRequest(t, router, http.MethodPost, "/users", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %q", body)
	}

	assert.Empty(t, balances(t, router))
}

func TestGetUser(t *testing.T) {
	router := newTestRouter(t)
	id := createUser(t, router, "Alice")

	w := doRequest(t, router, http.MethodGet, "/users/"+id, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, router, http.MethodGet, "/users/nobody", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTrades_ListUnion(t *testing.T) {
	router := newTestRouter(t)
	alice := createUser(t, router, "Alice")
	bob := createUser(t, router, "Bob")

	w := doRequest(t, router, http.MethodPost, "/trades/binary",
		`{"party_a_id":"`+alice+`","party_b_id":"`+bob+`","stake_a":20,"stake_b":10,"description":"rain","status":"settled","outcome":true}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var binary map[string]interface{}
	decode(t, w, &binary)
	assert.Equal(t, "open", binary["status"])
	assert.NotContains(t, binary, "outcome")

	w = doRequest(t, router, http.MethodPost, "/trades/underlying",
		`{"long_party_id":"`+alice+`","short_party_id":"`+bob+`","lot_size":10,"trade_price":100,"description":"oil","settlement_price":5}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var underlying map[string]interface{}
	decode(t, w, &underlying)
	assert.Equal(t, "open", underlying["status"])
	assert.NotContains(t, underlying, "settlement_price")

	w = doRequest(t, router, http.MethodGet, "/trades", "")
	require.Equal(t, http.StatusOK, w.Code)

	var list []map[string]interface{}
	decode(t, w, &list)
	require.Len(t, list, 2)
	kinds := []string{list[0]["type"].(string), list[1]["type"].(string)}
	assert.ElementsMatch(t, []string{"binary", "underlying"}, kinds)
}

func TestTrades_CreateRejectsBadInput(t *testing.T) {
	router := newTestRouter(t)
	alice := createUser(t, router, "Alice")
	bob := createUser(t, router, "Bob")

	w := doRequest(t, router, http.MethodPost, "/trades/binary",
		`{"party_a_id":"`+alice+`","party_b_id":"`+alice+`","stake_a":1,"stake_b":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, router, http.MethodPost, "/trades/binary",
		`{"party_a_id":"`+alice+`","party_b_id":"`+bob+`","stake_a":-1,"stake_b":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, router, http.MethodPost, "/trades/binary",
		`{"party_a_id":"`+alice+`","party_b_id":"ghost","stake_a":1,"stake_b":1}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(t, router, http.MethodPost, "/trades/underlying",
		`{"long_party_id":"`+alice+`","short_party_id":"`+bob+`","lot_size":0,"trade_price":100}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSettleBinary_EndToEnd(t *testing.T) {
	router := newTestRouter(t)
	alice := createUser(t, router, "Alice")
	bob := createUser(t, router, "Bob")

	w := doRequest(t, router, http.MethodPost, "/trades/binary",
		`{"party_a_id":"`+alice+`","party_b_id":"`+bob+`","stake_a":20,"stake_b":10}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var trade map[string]interface{}
	decode(t, w, &trade)
	id := trade["id"].(string)

	w = doRequest(t, router, http.MethodPost, "/trades/binary/"+id+"/settle", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, router, http.MethodPost, "/trades/binary/"+id+"/settle", `{"outcome":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &trade)
	assert.Equal(t, "settled", trade["status"])
	assert.Equal(t, true, trade["outcome"])

	assert.Equal(t, map[string]float64{"Alice": 1010, "Bob": 990}, balances(t, router))

	w = doRequest(t, router, http.MethodPost, "/trades/binary/"+id+"/settle", `{"outcome":false}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, map[string]float64{"Alice": 1010, "Bob": 990}, balances(t, router))

	w = doRequest(t, router, http.MethodPost, "/trades/binary/missing/settle", `{"outcome":false}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSettleUnderlying_EndToEnd(t *testing.T) {
	router := newTestRouter(t)
	alice := createUser(t, router, "Alice")
	bob := createUser(t, router, "Bob")

	w := doRequest(t, router, http.MethodPost, "/trades/underlying",
		`{"long_party_id":"`+alice+`","short_party_id":"`+bob+`","lot_size":10,"trade_price":100}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var trade map[string]interface{}
	decode(t, w, &trade)
	id := trade["id"].(string)

	w = doRequest(t, router, http.MethodPost, "/trades/underlying/"+id+"/settle", `{"settlement_price":80}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, map[string]float64{"Alice": 800, "Bob": 1200}, balances(t, router))

	w = doRequest(t, router, http.MethodGet, "/trades", "")
	var list []map[string]interface{}
	decode(t, w, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "settled", list[0]["status"])
	assert.Equal(t, float64(80), list[0]["settlement_price"])
}

func TestSettleUnderlying_PayoutTooLarge(t *testing.T) {
	router := newTestRouter(t)
	alice := createUser(t, router, "Alice")
	bob := createUser(t, router, "Bob")

	w := doRequest(t, router, http.MethodPost, "/trades/underlying",
		`{"long_party_id":"`+alice+`","short_party_id":"`+bob+`","lot_size":15000000000,"trade_price":0}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var trade map[string]interface{}
	decode(t, w, &trade)

	w = doRequest(t, router, http.MethodPost, "/trades/underlying/"+trade["id"].(string)+"/settle", `{"settlement_price":1000000000}`)
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "INVALID_STATE")

	assert.Equal(t, map[string]float64{"Alice": 1000, "Bob": 1000}, balances(t, router))
}
