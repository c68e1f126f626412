package stats

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

// expvar registers names globally, so the package shares one updater across
// tests.
func TestStatsUpdater(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	assert.NotNil(t, su, "expected StatsUpdater to be non-nil")
	assert.NotNil(t, su.updateChan, "expected updateChan to be initialized")

	handler, pattern := mux.Handler(&http.Request{URL: &url.URL{Path: "/debug/vars"}, Method: http.MethodGet})
	assert.NotNil(t, handler, "expected handler for /debug/vars to be set")
	assert.Equal(t, "GET /debug/vars", pattern, "expected handler to be registered for GET method on /debug/vars")

	for _, name := range []string{OnlineUsers, MessagesCreated, ConversationsCreated, FailedLogins, AccountLockouts} {
		assert.NotNil(t, su.vars.Get(name), "expected metric %s to be registered", name)
	}

	su.Incr(OnlineUsers)
	su.Incr(OnlineUsers)
	su.Decr(OnlineUsers)
	su.Incr(FailedLogins)

	// drain the buffered updates synchronously instead of racing Run
	su.Stop()
	su.updateMetrics()

	assert.Equal(t, "1", su.vars.Get(OnlineUsers).String(), "expected online users metric to be 1")
	assert.Equal(t, "1", su.vars.Get(FailedLogins).String(), "expected failed logins metric to be 1")
	assert.Equal(t, "0", su.vars.Get(MessagesCreated).String(), "expected messages metric to be untouched")
}
