package indengine

import (
	"context"
	"testing"
	"time"

	"chartengine/internal/selector"
	redisstore "chartengine/internal/store/redis"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleCommand(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	require.NoError(t, f.svc.HandleCommand(ctx, `{"chart":"BTCUSD","indicator":"MACD"}`))
	st, err := f.svc.Status("BTCUSD")
	require.NoError(t, err)
	assert.Equal(t, "MACD:12:26:9", st.Indicator)

	require.NoError(t, f.svc.HandleCommand(ctx, `{"chart":"BTCUSD","indicator":"NONE"}`))
	st, _ = f.svc.Status("BTCUSD")
	assert.Equal(t, "inactive", st.State)

	assert.Error(t, f.svc.HandleCommand(ctx, `not json`))
	assert.Error(t, f.svc.HandleCommand(ctx, `{"chart":"BTCUSD","indicator":"EMA:-1"}`))
	assert.ErrorIs(t, f.svc.HandleCommand(ctx, `{"chart":"DOGE","indicator":"EMA:9"}`), ErrUnknownChart)
}

func TestRunSelections_AppliesPublishedCommands(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	f := newFixture(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ps := redisstore.SubscribeSelections(ctx, rdb, "cmd:indicator")
	defer ps.Close()
	_, err := ps.Receive(ctx)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		f.svc.RunSelections(ctx, ps)
		close(done)
	}()

	require.NoError(t, redisstore.PublishSelection(ctx, rdb, "cmd:indicator",
		redisstore.SelectionCommand{Chart: "ETHUSD", Spec: "EMA:9"}))

	require.Eventually(t, func() bool {
		st, _ := f.svc.Status("ETHUSD")
		return st.State == selector.Active.String() && st.Indicator == "EMA:9"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunSelections did not stop")
	}
}

func TestScheduler(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := NewScheduler(context.Background(), f.svc, "not a spec")
	assert.Error(t, err)

	s, err := NewScheduler(context.Background(), f.svc, "@every 1h")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Entries())
	s.Start()
	s.Stop()
}
