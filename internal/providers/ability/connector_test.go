package ability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/imf/internal/ipc"
	"github.com/GriffinCanCode/imf/internal/shared/errs"
)

type nopStub struct{}

func (nopStub) Descriptor() string { return "test.Nop" }
func (nopStub) OnRemoteRequest(uint32, *ipc.Parcel, *ipc.Parcel, ipc.Option) error {
	return nil
}

func TestConnectLaunchesOnce(t *testing.T) {
	c := NewLocalConnector(nil, nil)
	want := Want{UserID: 100, BundleName: "com.example.kbd", AbilityName: "KbdAbility"}

	launches := 0
	var tokens []string
	c.RegisterLauncher(want.BundleName, func(_ context.Context, w Want, token string) (int32, error) {
		launches++
		tokens = append(tokens, token)
		assert.Equal(t, want, w)
		return 4242, nil
	})

	require.NoError(t, c.Connect(context.Background(), want))
	require.NoError(t, c.Connect(context.Background(), want))
	assert.Equal(t, 1, launches)
	require.Len(t, tokens, 1)
	assert.Len(t, tokens[0], 36)

	conns := c.Connections()
	require.Len(t, conns, 1)
	assert.Equal(t, int32(4242), conns[0].Pid)
	assert.Equal(t, "100:com.example.kbd/KbdAbility", conns[0].Want)
}

func TestConnectFailures(t *testing.T) {
	c := NewLocalConnector(nil, nil)

	err := c.Connect(context.Background(), Want{BundleName: "missing"})
	assert.True(t, errs.Is(err, errs.ErrorImsaImeConnectFailed))

	c.RegisterLauncher("broken", func(context.Context, Want, string) (int32, error) {
		return 0, errors.New("exec failed")
	})
	err = c.Connect(context.Background(), Want{BundleName: "broken"})
	assert.True(t, errs.Is(err, errs.ErrorImsaImeConnectFailed))
	assert.Empty(t, c.Connections())
}

func TestDisconnect(t *testing.T) {
	c := NewLocalConnector(nil, nil)
	want := Want{BundleName: "b", AbilityName: "a"}
	c.RegisterLauncher("b", func(context.Context, Want, string) (int32, error) { return 1, nil })

	require.NoError(t, c.Connect(context.Background(), want))
	require.NoError(t, c.Disconnect(want))
	assert.True(t, errs.Is(c.Disconnect(want), errs.ErrorImsaImeDisconnectFailed))
}

func TestForceStopKillsProcess(t *testing.T) {
	reg := ipc.NewRegistry(nil)
	c := NewLocalConnector(reg, nil)
	want := Want{BundleName: "b", AbilityName: "a"}

	var h ipc.Handle
	c.RegisterLauncher("b", func(context.Context, Want, string) (int32, error) {
		h = reg.Register(nopStub{}, 77, 20010077)
		return 77, nil
	})
	require.NoError(t, c.Connect(context.Background(), want))

	died := make(chan struct{})
	_, err := reg.AddDeathRecipient(h, func(ipc.Handle) { close(died) })
	require.NoError(t, err)

	require.NoError(t, c.ForceStop(want))
	select {
	case <-died:
	case <-time.After(time.Second):
		t.Fatal("process not killed")
	}
	assert.False(t, reg.IsAlive(h))
	assert.NoError(t, c.ForceStop(want), "stopping twice is harmless")
}
