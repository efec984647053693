package imsa

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/imf/internal/domain/ime"
	"github.com/GriffinCanCode/imf/internal/infrastructure/config"
	"github.com/GriffinCanCode/imf/internal/ipc"
	"github.com/GriffinCanCode/imf/internal/protocol"
	"github.com/GriffinCanCode/imf/internal/providers/ability"
	"github.com/GriffinCanCode/imf/internal/providers/account"
	"github.com/GriffinCanCode/imf/internal/providers/bundle"
	"github.com/GriffinCanCode/imf/internal/providers/settings"
)

const (
	user      int32 = 100
	kbdBundle       = "com.example.kbd"
	altBundle       = "com.example.alt"
	proxyUID  int32 = 20003000
)

var (
	kbd = ime.Target{BundleName: kbdBundle, ExtensionName: "KbdAbility"}
	alt = ime.Target{BundleName: altBundle, ExtensionName: "AltAbility"}
)

func uidOf(userID, app int32) int32 { return userID*account.PerUserRange + app }

type nopStub struct{}

func (nopStub) Descriptor() string { return "test.Nop" }
func (nopStub) OnRemoteRequest(uint32, *ipc.Parcel, *ipc.Parcel, ipc.Option) error {
	return nil
}

// fakeIme is an IME process: it registers its core over the registry and
// reports itself to the service like a real extension would.
type fakeIme struct {
	mock.Mock

	reg    *ipc.Registry
	bundle string
	caller Caller
	core   ipc.Handle
	agent  ipc.Handle

	mu      sync.Mutex
	control ipc.Handle
}

func newFakeIme(reg *ipc.Registry, bundle string, caller Caller) *fakeIme {
	f := &fakeIme{reg: reg, bundle: bundle, caller: caller}
	f.core = reg.Register(protocol.NewCoreStub(f), caller.Pid, caller.Uid)
	f.agent = reg.Register(nopStub{}, caller.Pid, caller.Uid)

	f.On("InitInputControlChannel", mock.Anything).Return(nil).Maybe()
	f.On("StartInput", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.On("StopInput", mock.Anything).Return(nil).Maybe()
	f.On("ShowKeyboard").Return(nil).Maybe()
	f.On("HideKeyboard").Return(nil).Maybe()
	f.On("StopInputService", mock.Anything).Return(nil).Maybe()
	f.On("SetSubtype", mock.Anything).Return(nil).Maybe()
	f.On("IsEnable").Return(false, nil).Maybe()
	f.On("IsPanelShown", mock.Anything).Return(true, nil).Maybe()
	f.On("OnSecurityChange", mock.Anything).Return(nil).Maybe()
	f.On("OnConnectSystemCmd", mock.Anything).Return(f.agent, nil).Maybe()
	f.On("OnClientInactive", mock.Anything).Return(nil).Maybe()
	f.On("OnSetInputType", mock.Anything).Return(nil).Maybe()
	f.On("OnCallingDisplayIDChanged", mock.Anything).Return(nil).Maybe()
	return f
}

func (f *fakeIme) controlChannel() protocol.InputControlChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return protocol.NewControlProxy(f.reg.Remote(f.control))
}

func (f *fakeIme) registration() ImeRegistration {
	return ImeRegistration{BundleName: f.bundle, Core: f.core, Agent: f.agent}
}

func (f *fakeIme) InitInputControlChannel(h ipc.Handle) error {
	f.mu.Lock()
	f.control = h
	f.mu.Unlock()
	return f.Called(h).Error(0)
}

func (f *fakeIme) StartInput(info protocol.InputClientInfo, isBindFromClient bool) error {
	return f.Called(info, isBindFromClient).Error(0)
}

func (f *fakeIme) StopInput(channel ipc.Handle) error { return f.Called(channel).Error(0) }
func (f *fakeIme) ShowKeyboard() error                { return f.Called().Error(0) }
func (f *fakeIme) HideKeyboard() error                { return f.Called().Error(0) }

func (f *fakeIme) StopInputService(terminate bool) error {
	args := f.Called(terminate)
	if terminate {
		go f.reg.KillProcess(f.caller.Pid)
	}
	return args.Error(0)
}

func (f *fakeIme) SetSubtype(sub protocol.SubProperty) error { return f.Called(sub).Error(0) }

func (f *fakeIme) IsEnable() (bool, error) {
	args := f.Called()
	return args.Bool(0), args.Error(1)
}

func (f *fakeIme) IsPanelShown(info protocol.PanelInfo) (bool, error) {
	args := f.Called(info)
	return args.Bool(0), args.Error(1)
}

func (f *fakeIme) OnSecurityChange(mode protocol.SecurityMode) error { return f.Called(mode).Error(0) }

func (f *fakeIme) OnConnectSystemCmd(channel ipc.Handle) (ipc.Handle, error) {
	args := f.Called(channel)
	return args.Get(0).(ipc.Handle), args.Error(1)
}

func (f *fakeIme) OnClientInactive(channel ipc.Handle) error { return f.Called(channel).Error(0) }
func (f *fakeIme) OnSetInputType(t protocol.InputType) error { return f.Called(t).Error(0) }

func (f *fakeIme) OnCallingDisplayIDChanged(displayID uint64) error {
	return f.Called(displayID).Error(0)
}

// fakeClient and fakeChannel sit behind real stubs, so the agent and IME
// info they receive went through the wire.
type fakeClient struct {
	mock.Mock
}

func newFakeClient() *fakeClient {
	c := &fakeClient{}
	c.On("OnInputReady", mock.Anything, mock.Anything).Return(nil).Maybe()
	c.On("OnInputStop", mock.Anything).Return(nil).Maybe()
	c.On("OnInputStopAsync", mock.Anything).Return(nil).Maybe()
	c.On("OnSwitchInput", mock.Anything, mock.Anything).Return(nil).Maybe()
	c.On("OnPanelStatusChange", mock.Anything, mock.Anything).Return(nil).Maybe()
	c.On("NotifyInputStart", mock.Anything, mock.Anything).Return(nil).Maybe()
	c.On("NotifyInputStop").Return(nil).Maybe()
	c.On("DeactivateClient").Return(nil).Maybe()
	return c
}

func (c *fakeClient) OnInputReady(agent ipc.Handle, info protocol.ImeProcessInfo) error {
	return c.Called(agent, info).Error(0)
}

func (c *fakeClient) OnInputStop(isStopInactiveClient bool) error {
	return c.Called(isStopInactiveClient).Error(0)
}

func (c *fakeClient) OnInputStopAsync(isStopInactiveClient bool) error {
	return c.Called(isStopInactiveClient).Error(0)
}

func (c *fakeClient) OnSwitchInput(prop protocol.Property, sub protocol.SubProperty) error {
	return c.Called(prop, sub).Error(0)
}

func (c *fakeClient) OnPanelStatusChange(status protocol.InputWindowStatus, windows []protocol.ImeWindowInfo) error {
	return c.Called(status, windows).Error(0)
}

func (c *fakeClient) NotifyInputStart(windowID uint32, reason int32) error {
	return c.Called(windowID, reason).Error(0)
}

func (c *fakeClient) NotifyInputStop() error  { return c.Called().Error(0) }
func (c *fakeClient) DeactivateClient() error { return c.Called().Error(0) }

type fakeChannel struct {
	mock.Mock
}

func newFakeChannel() *fakeChannel {
	ch := &fakeChannel{}
	for _, method := range []string{"InsertText", "DeleteForward", "DeleteBackward", "MoveCursor",
		"SendKeyboardStatus", "SendFunctionKey", "HandleExtendAction", "SendPrivateCommand",
		"NotifyPanelStatusInfo", "NotifyKeyboardHeight"} {
		ch.On(method, mock.Anything).Return(nil).Maybe()
	}
	ch.On("SelectByRange", mock.Anything, mock.Anything).Return(nil).Maybe()
	ch.On("SelectByMovement", mock.Anything, mock.Anything).Return(nil).Maybe()
	ch.On("GetTextBeforeCursor", mock.Anything).Return("", nil).Maybe()
	ch.On("GetTextAfterCursor", mock.Anything).Return("", nil).Maybe()
	ch.On("GetTextIndexAtCursor").Return(int32(0), nil).Maybe()
	ch.On("GetTextConfig").Return(protocol.TextTotalConfig{}, nil).Maybe()
	return ch
}

func (c *fakeChannel) InsertText(text string) error     { return c.Called(text).Error(0) }
func (c *fakeChannel) DeleteForward(n int32) error      { return c.Called(n).Error(0) }
func (c *fakeChannel) DeleteBackward(n int32) error     { return c.Called(n).Error(0) }
func (c *fakeChannel) MoveCursor(direction int32) error { return c.Called(direction).Error(0) }

func (c *fakeChannel) GetTextBeforeCursor(n int32) (string, error) {
	args := c.Called(n)
	return args.String(0), args.Error(1)
}

func (c *fakeChannel) GetTextAfterCursor(n int32) (string, error) {
	args := c.Called(n)
	return args.String(0), args.Error(1)
}

func (c *fakeChannel) GetTextIndexAtCursor() (int32, error) {
	args := c.Called()
	return args.Get(0).(int32), args.Error(1)
}

func (c *fakeChannel) GetTextConfig() (protocol.TextTotalConfig, error) {
	args := c.Called()
	return args.Get(0).(protocol.TextTotalConfig), args.Error(1)
}

func (c *fakeChannel) SendKeyboardStatus(status protocol.KeyboardStatus) error {
	return c.Called(status).Error(0)
}

func (c *fakeChannel) SendFunctionKey(key protocol.FunctionKey) error { return c.Called(key).Error(0) }
func (c *fakeChannel) SelectByRange(start, end int32) error           { return c.Called(start, end).Error(0) }

func (c *fakeChannel) SelectByMovement(direction, cursorMoveSkip int32) error {
	return c.Called(direction, cursorMoveSkip).Error(0)
}

func (c *fakeChannel) HandleExtendAction(action int32) error { return c.Called(action).Error(0) }

func (c *fakeChannel) SendPrivateCommand(cmd protocol.PrivateCommand) error {
	return c.Called(cmd).Error(0)
}

func (c *fakeChannel) NotifyPanelStatusInfo(info protocol.PanelStatusInfo) error {
	return c.Called(info).Error(0)
}

func (c *fakeChannel) NotifyKeyboardHeight(height uint32) error { return c.Called(height).Error(0) }

type harness struct {
	t        *testing.T
	reg      *ipc.Registry
	svc      *Service
	catalog  *bundle.Catalog
	store    *settings.MemoryStore
	settings *settings.ImeSettings
	accounts *account.Static
	system   *config.SystemConfig

	nextPid atomic.Int32

	mu   sync.Mutex
	imes []*fakeIme
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	reg := ipc.NewRegistry(nil)
	catalog, err := bundle.NewCatalog(kbd,
		bundle.InputMethod{BundleName: kbdBundle, ExtensionName: "KbdAbility", Label: "Keyboard", SecurityMode: "full",
			Subtypes: []bundle.Subtype{{ID: "en", Label: "English"}, {ID: "fr", Label: "French"}}},
		bundle.InputMethod{BundleName: altBundle, ExtensionName: "AltAbility", Label: "Alt", SecurityMode: "full"},
	)
	require.NoError(t, err)

	store := settings.NewMemoryStore()
	h := &harness{
		t:        t,
		reg:      reg,
		catalog:  catalog,
		store:    store,
		settings: settings.NewImeSettings(store),
		accounts: account.NewStatic(user),
		system: &config.SystemConfig{
			DefaultIme:    "com.example.kbd/KbdAbility",
			ProxyImeUIDs:  []int32{proxyUID},
			InputTypeImes: map[string]string{"voice": "com.example.alt/AltAbility"},
		},
	}

	connector := ability.NewLocalConnector(reg, nil)
	connector.RegisterLauncher(kbdBundle, h.launch)
	connector.RegisterLauncher(altBundle, h.launch)

	h.svc = New(Deps{
		Config: config.SessionConfig{
			ImeStartTimeout: 300 * time.Millisecond,
			ImeStopTimeout:  200 * time.Millisecond,
			RestartMax:      3,
			RestartWindow:   time.Hour,
			QueueCapacity:   128,
			CallTimeout:     3 * time.Second,
		},
		Account:   config.AccountConfig{ReadyRetries: 3, ReadyInterval: time.Millisecond},
		System:    h.system,
		Registry:  reg,
		Inquirer:  catalog,
		Settings:  h.settings,
		Accounts:  h.accounts,
		Connector: connector,
		Pid:       1,
		Uid:       1000,
	})
	return h
}

func (h *harness) start() {
	h.t.Helper()
	require.NoError(h.t, h.svc.Start(h.t.Context()))
	h.t.Cleanup(h.svc.Stop)
}

// launch plays the IME process: it comes up and registers with the
// service from its own goroutine.
func (h *harness) launch(_ context.Context, want ability.Want, _ string) (int32, error) {
	pid := 1000 + h.nextPid.Add(1)
	f := newFakeIme(h.reg, want.BundleName, Caller{Pid: pid, Uid: uidOf(want.UserID, 10000)})

	h.mu.Lock()
	h.imes = append(h.imes, f)
	h.mu.Unlock()

	go func() { _ = h.svc.SetCoreAndAgent(f.caller, f.registration()) }()
	return pid, nil
}

func (h *harness) launched() []*fakeIme {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*fakeIme(nil), h.imes...)
}

func (h *harness) lastIme() *fakeIme {
	imes := h.launched()
	require.NotEmpty(h.t, imes, "no ime launched")
	return imes[len(imes)-1]
}

// current reports the running IME of userID and whether it has registered.
func (h *harness) current(userID int32) (ime.Target, bool) {
	sess := h.svc.session(userID)
	if sess == nil {
		return ime.Target{}, false
	}
	t, ok := sess.CurrentIme()
	if !ok {
		return ime.Target{}, false
	}
	imes := h.launched()
	if len(imes) == 0 {
		return ime.Target{}, false
	}
	_, ready := sess.RoleOfPid(imes[len(imes)-1].caller.Pid)
	return t, ready
}

func (h *harness) waitFor(userID int32, want ime.Target) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		got, ready := h.current(userID)
		return ready && got.Same(want)
	}, 2*time.Second, 10*time.Millisecond, "%s never came up for user %d", want, userID)
	h.sync()
}

// sync returns once the consumer has handled everything posted so far.
func (h *harness) sync() {
	h.t.Helper()
	require.NoError(h.t, h.svc.pump.Call(h.t.Context(), func() {}))
}

type editor struct {
	caller  Caller
	client  *fakeClient
	channel *fakeChannel
	req     InputRequest
}

func (h *harness) newEditor(pid int32) editor {
	c, ch := newFakeClient(), newFakeChannel()
	caller := Caller{Pid: pid, Uid: uidOf(user, pid)}
	return editor{
		caller:  caller,
		client:  c,
		channel: ch,
		req: InputRequest{
			Client:         h.reg.Register(protocol.NewClientStub(c), pid, caller.Uid),
			Channel:        h.reg.Register(protocol.NewChannelStub(ch), pid, caller.Uid),
			IsShowKeyboard: true,
		},
	}
}
