package broadcast

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Mino75/broadcast-mesh/internal/channel"
	"github.com/Mino75/broadcast-mesh/internal/identity"
	"github.com/Mino75/broadcast-mesh/internal/logging"
	"github.com/Mino75/broadcast-mesh/internal/presence"
)

func testDeps(bus channel.Bus, host string) Deps {
	return Deps{
		Bus:      bus,
		Self:     identity.Static(host),
		Presence: presence.NewMemoryRegistry(),
		Log:      logging.Nop(),
	}
}

func TestListenRejectsNilHandler(t *testing.T) {
	bus := channel.NewMemoryBus()
	_, err := Listen(testDeps(bus, "self"), "test", nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestReplyAfterEndIsRejectedAndNotObserved(t *testing.T) {
	bus := channel.NewMemoryBus()
	deps := testDeps(bus, "self")

	secondReplyErr := make(chan error, 1)
	l, err := Listen(deps, "test", func(body []byte, reply *ReplyChannel) {
		require.NoError(t, reply.Reply([]byte("first")))
		require.NoError(t, reply.End())
		secondReplyErr <- reply.Reply([]byte("second"))
	})
	require.NoError(t, err)
	defer l.Close()

	conv := Request(deps, "test", []byte("req"), Options{Expect: []string{"self"}})
	result := conv.Wait()
	require.NoError(t, result.Err)
	require.Equal(t, [][]byte{[]byte("first")}, result.Responses["self"])

	require.ErrorIs(t, <-secondReplyErr, ErrAfterEnd)
}
