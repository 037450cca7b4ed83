package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/rewardledger/middleware"
	"github.com/cppla/rewardledger/models"
	"github.com/cppla/rewardledger/rewards"
)

const testUserHeader = "X-Test-User"

var fixedNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type memoryCache struct {
	mu      sync.Mutex
	items   map[string][]byte
	deleted []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: map[string][]byte{}}
}

func (c *memoryCache) GetJSON(_ context.Context, key string, out interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.items[key]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func (c *memoryCache) SetJSON(_ context.Context, key string, v interface{}, _ time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.mu.Lock()
	c.items[key] = raw
	c.mu.Unlock()
}

func (c *memoryCache) Delete(_ context.Context, keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.items, k)
		c.deleted = append(c.deleted, k)
	}
}

func (c *memoryCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

type harness struct {
	engine *gin.Engine
	ledger *rewards.Ledger
	cache  *memoryCache
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ledger, err := rewards.NewLedger(rewards.NewMemoryStore(), rewards.DefaultRules())
	require.NoError(t, err)
	cache := newMemoryCache()
	clock := Clock{Now: func() time.Time { return fixedNow }, Location: time.UTC}

	rc := NewRewardsController(ledger, cache, clock)
	ec := NewEventsController(ledger, cache, clock)
	cc := NewConfigController(ledger.Rules(), time.UTC)

	r := gin.New()
	learner := r.Group("/learner", func(ctx *gin.Context) {
		if id := ctx.GetHeader(testUserHeader); id != "" {
			ctx.Set(middleware.ContextUserIDKey, id)
		}
	})
	learner.GET("/status", rc.Status)
	learner.POST("/streak", rc.CheckStreak)
	learner.POST("/login", rc.Login)
	learner.GET("/transactions", rc.Transactions)
	r.GET("/leaderboard", rc.Leaderboard)
	r.GET("/config", cc.GetRewardRules)

	r.POST("/events/award", ec.Award)
	r.POST("/events/login", ec.Login)
	r.POST("/events/module", ec.ModuleCompleted)
	r.POST("/events/lesson", ec.LessonCompleted)
	r.POST("/events/quiz", ec.QuizCompleted)
	r.GET("/audit", ec.Audit)

	return &harness{engine: r, ledger: ledger, cache: cache}
}

func (h *harness) do(t *testing.T, method, path, userID string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(testUserHeader, userID)
	}
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestEventsController_Award(t *testing.T) {
	h := newHarness(t)
	body := gin.H{"user_id": "u1", "action": " VIDEO_WATCH ", "entity_id": "video-1", "description": "Watched <b>Intro</b>"}

	status, env := h.do(t, http.MethodPost, "/events/award", "", body)
	require.Equal(t, http.StatusOK, status)
	first := decode[rewards.AwardResult](t, env.Data)
	assert.True(t, first.Success)
	assert.Equal(t, 10, first.Coins)
	require.NotNil(t, first.Transaction)
	assert.Equal(t, "Watched Intro", first.Transaction.Description)
	assert.Contains(t, h.cache.deleted, statusCacheKey("u1", rewards.DateOf(fixedNow)))

	_, env = h.do(t, http.MethodPost, "/events/award", "", body)
	second := decode[rewards.AwardResult](t, env.Data)
	assert.False(t, second.Success)
	assert.Equal(t, rewards.OutcomeAlreadyRewarded, second.Outcome)
	assert.Equal(t, rewards.MessageAlreadyRewarded, second.Message)
}

func TestEventsController_BadRequests(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name string
		path string
		body interface{}
		code int
	}{
		{"missing user", "/events/award", gin.H{"action": "bonus"}, 40061},
		{"unknown action", "/events/award", gin.H{"user_id": "u1", "action": "jackpot"}, 40060},
		{"missing module", "/events/module", gin.H{"user_id": "u1"}, 40061},
		{"blank module", "/events/module", gin.H{"user_id": "u1", "module_id": " "}, 40060},
		{"missing quiz", "/events/quiz", gin.H{"user_id": "u1"}, 40061},
		{"blank user", "/events/login", gin.H{"user_id": "  "}, 40060},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, env := h.do(t, http.MethodPost, tc.path, "", tc.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, tc.code, env.Code)
		})
	}
}

func TestEventsController_ModuleCompleted(t *testing.T) {
	h := newHarness(t)
	type moduleResponse struct {
		Eligible bool                 `json:"eligible"`
		Result   *rewards.AwardResult `json:"result"`
	}

	_, env := h.do(t, http.MethodPost, "/events/module", "", gin.H{
		"user_id": "u1", "module_id": "m1",
		"lesson_ids":           []string{"l1", "l2"},
		"completed_lesson_ids": []string{"l1"},
	})
	partial := decode[moduleResponse](t, env.Data)
	assert.False(t, partial.Eligible)
	assert.Nil(t, partial.Result)

	_, env = h.do(t, http.MethodPost, "/events/module", "", gin.H{
		"user_id": "u1", "module_id": "m1",
		"lesson_ids":           []string{"l1", "l2", " l1"},
		"completed_lesson_ids": []string{"l2 ", "l1"},
	})
	done := decode[moduleResponse](t, env.Data)
	assert.True(t, done.Eligible)
	require.NotNil(t, done.Result)
	assert.True(t, done.Result.Success)
	assert.Equal(t, 50, done.Result.Coins)
}

func TestEventsController_LessonCompleted(t *testing.T) {
	h := newHarness(t)
	referrerKey := statusCacheKey("referrer", rewards.DateOf(fixedNow))
	h.cache.SetJSON(context.Background(), referrerKey, rewards.Status{UserID: "referrer"}, time.Minute)

	_, env := h.do(t, http.MethodPost, "/events/lesson", "", gin.H{
		"user_id": "friend", "completed_lesson_count": 1, "referred_by": "referrer",
	})
	type lessonResponse struct {
		Eligible bool                 `json:"eligible"`
		Result   *rewards.AwardResult `json:"result"`
	}
	res := decode[lessonResponse](t, env.Data)
	assert.True(t, res.Eligible)
	require.NotNil(t, res.Result)
	assert.Equal(t, 100, res.Result.Coins)
	assert.False(t, h.cache.has(referrerKey))

	_, env = h.do(t, http.MethodPost, "/events/lesson", "", gin.H{
		"user_id": "friend", "completed_lesson_count": 2, "referred_by": "referrer",
	})
	assert.False(t, decode[lessonResponse](t, env.Data).Eligible)
}

func TestEventsController_QuizCompleted(t *testing.T) {
	h := newHarness(t)

	_, env := h.do(t, http.MethodPost, "/events/quiz", "", gin.H{
		"user_id": "u1", "quiz_id": "q1", "score": 10, "max_score": 10,
	})
	res := decode[rewards.QuizRewardResult](t, env.Data)
	require.NotNil(t, res.Completion)
	require.NotNil(t, res.Bonus)
	assert.Equal(t, 15, res.Completion.Coins)
	assert.Equal(t, 10, res.Bonus.Coins)

	_, env = h.do(t, http.MethodPost, "/events/quiz", "", gin.H{
		"user_id": "u1", "quiz_id": "q2", "score": 3, "max_score": 10,
	})
	res = decode[rewards.QuizRewardResult](t, env.Data)
	assert.True(t, res.Completion.Success)
	assert.Nil(t, res.Bonus)
}

func TestEventsController_LoginAndAudit(t *testing.T) {
	h := newHarness(t)

	_, env := h.do(t, http.MethodPost, "/events/login", "", gin.H{"user_id": "u1"})
	login := decode[rewards.LoginResult](t, env.Data)
	require.NotNil(t, login.Streak)
	assert.Equal(t, 1, login.Streak.Streak)
	require.NotNil(t, login.Award)
	assert.Equal(t, 5, login.Award.Coins)

	status, env := h.do(t, http.MethodGet, "/audit", "", nil)
	require.Equal(t, http.StatusOK, status)
	report := decode[rewards.AuditReport](t, env.Data)
	assert.Equal(t, 1, report.Checked)
	assert.Empty(t, report.Mismatches)
}

func TestRewardsController_RequiresUser(t *testing.T) {
	h := newHarness(t)
	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/learner/status"},
		{http.MethodPost, "/learner/streak"},
		{http.MethodPost, "/learner/login"},
		{http.MethodGet, "/learner/transactions"},
	} {
		t.Run(route.path, func(t *testing.T) {
			status, env := h.do(t, route.method, route.path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, status)
			assert.Equal(t, 40110, env.Code)
		})
	}
}

func TestRewardsController_StatusIsCachedUntilActivity(t *testing.T) {
	h := newHarness(t)
	key := statusCacheKey("u1", rewards.DateOf(fixedNow))

	_, env := h.do(t, http.MethodGet, "/learner/status", "u1", nil)
	st := decode[rewards.Status](t, env.Data)
	assert.Equal(t, 0, st.TotalCoins)
	assert.Equal(t, 100, st.DailyCoinsRemaining)
	assert.True(t, h.cache.has(key))

	_, env = h.do(t, http.MethodPost, "/learner/login", "u1", nil)
	login := decode[rewards.LoginResult](t, env.Data)
	require.NotNil(t, login.Award)
	assert.False(t, h.cache.has(key))

	_, env = h.do(t, http.MethodGet, "/learner/status", "u1", nil)
	st = decode[rewards.Status](t, env.Data)
	assert.Equal(t, 5, st.TotalCoins)
	assert.Equal(t, 1, st.CurrentStreak)
	assert.Len(t, st.RecentTransactions, 1)

	_, env = h.do(t, http.MethodPost, "/learner/streak", "u1", nil)
	streak := decode[rewards.StreakResult](t, env.Data)
	assert.Equal(t, 1, streak.Streak)
	assert.Nil(t, streak.Message)
}

func TestRewardsController_TransactionsAndLeaderboard(t *testing.T) {
	h := newHarness(t)
	today := rewards.DateOf(fixedNow)
	ctx := context.Background()
	for i, user := range []string{"u1", "u2", "u2"} {
		_, err := h.ledger.AwardCoins(ctx, user, models.ActionBonus, today, "", "")
		require.NoError(t, err, i)
	}

	_, env := h.do(t, http.MethodGet, "/learner/transactions?page=1&page_size=1", "u2", nil)
	page := decode[rewards.HistoryPage](t, env.Data)
	assert.EqualValues(t, 2, page.Total)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.PageSize)

	_, env = h.do(t, http.MethodGet, "/leaderboard?limit=5", "", nil)
	board := decode[struct {
		Entries []rewards.LeaderboardEntry `json:"entries"`
	}](t, env.Data)
	require.Len(t, board.Entries, 2)
	assert.Equal(t, "u2", board.Entries[0].UserID)
	assert.Equal(t, 1, board.Entries[0].Rank)
	assert.Equal(t, 20, board.Entries[0].TotalCoins)
	assert.True(t, h.cache.has(leaderboardCacheKey(5)))
}

func TestRewardsController_LeaderboardCacheKeyUsesServedLimit(t *testing.T) {
	h := newHarness(t)

	for _, limit := range []string{"-3", "0", "abc", ""} {
		status, _ := h.do(t, http.MethodGet, "/leaderboard?limit="+limit, "", nil)
		require.Equal(t, http.StatusOK, status)
	}
	status, _ := h.do(t, http.MethodGet, "/leaderboard?limit=1000000", "", nil)
	require.Equal(t, http.StatusOK, status)

	h.cache.mu.Lock()
	keys := make([]string, 0, len(h.cache.items))
	for k := range h.cache.items {
		keys = append(keys, k)
	}
	h.cache.mu.Unlock()
	assert.ElementsMatch(t, []string{leaderboardCacheKey(10), leaderboardCacheKey(100)}, keys)
}

func TestEventsController_RejectsOverlongIDs(t *testing.T) {
	h := newHarness(t)

	status, env := h.do(t, http.MethodPost, "/events/award", "", gin.H{
		"user_id": "u1", "action": "video_watch", "entity_id": strings.Repeat("v", 129),
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 40060, env.Code)

	status, env = h.do(t, http.MethodPost, "/events/login", "", gin.H{"user_id": strings.Repeat("u", 65)})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 40060, env.Code)
}

func TestConfigController_GetRewardRules(t *testing.T) {
	h := newHarness(t)

	status, env := h.do(t, http.MethodGet, "/config", "", nil)
	require.Equal(t, http.StatusOK, status)
	body := decode[struct {
		Rules    rewards.Rules `json:"rules"`
		Timezone string        `json:"timezone"`
	}](t, env.Data)
	assert.Equal(t, "UTC", body.Timezone)
	assert.Equal(t, 100, body.Rules.DailyCoinCap)
	assert.Equal(t, []int{3, 7, 30}, body.Rules.StreakMilestones)
}
