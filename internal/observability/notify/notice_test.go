package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInbox_DrainAndLimit(t *testing.T) {
	t.Parallel()

	inbox := NewInbox(2)
	ctx := context.Background()
	for i := range 3 {
		require.NoError(t, inbox.Notify(ctx, Notice{Title: fmt.Sprintf("n%d", i)}))
	}

	got := inbox.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, "n1", got[0].Title)
	assert.Equal(t, "n2", got[1].Title)
	assert.Empty(t, inbox.Drain())
}

func TestFanout_ContinuesPastFailures(t *testing.T) {
	t.Parallel()

	var calls int
	failing := SinkFunc(func(context.Context, Notice) error {
		calls++
		return errors.New("boom")
	})
	inbox := NewInbox(0)

	err := Fanout{failing, nil, inbox}.Notify(context.Background(), Notice{Title: "Registered!"})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Len(t, inbox.Drain(), 1)
}

func TestSinkFunc_Nil(t *testing.T) {
	t.Parallel()

	var f SinkFunc
	assert.NoError(t, f.Notify(context.Background(), Notice{}))
}
