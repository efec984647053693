package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/imf/internal/domain/client"
	"github.com/GriffinCanCode/imf/internal/domain/ime"
	"github.com/GriffinCanCode/imf/internal/domain/message"
	"github.com/GriffinCanCode/imf/internal/ipc"
	"github.com/GriffinCanCode/imf/internal/protocol"
	"github.com/GriffinCanCode/imf/internal/providers/ability"
)

const (
	testUser  int32 = 100
	kbdBundle       = "com.example.kbd"
	altBundle       = "com.example.alt"
)

var (
	kbd = ime.Target{BundleName: kbdBundle, ExtensionName: "KbdAbility"}
	alt = ime.Target{BundleName: altBundle, ExtensionName: "AltAbility"}
)

type nopStub struct{}

func (nopStub) Descriptor() string { return "test.Nop" }
func (nopStub) OnRemoteRequest(uint32, *ipc.Parcel, *ipc.Parcel, ipc.Option) error {
	return nil
}

// fakeIme is an IME process reached over the registry.
type fakeIme struct {
	mock.Mock

	reg    *ipc.Registry
	bundle string
	pid    int32
	handle ipc.Handle
	agent  ipc.Handle

	startInput *mock.Call
}

// newFakeIme registers an IME core for pid that accepts every request.
func newFakeIme(reg *ipc.Registry, bundle string, pid int32, enabled bool) *fakeIme {
	f := &fakeIme{reg: reg, bundle: bundle, pid: pid}
	f.handle = reg.Register(protocol.NewCoreStub(f), pid, 20010000)
	f.agent = reg.Register(nopStub{}, pid, 20010000)

	f.On("InitInputControlChannel", mock.Anything).Return(nil).Maybe()
	f.startInput = f.On("StartInput", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.On("StopInput", mock.Anything).Return(nil).Maybe()
	f.On("ShowKeyboard").Return(nil).Maybe()
	f.On("HideKeyboard").Return(nil).Maybe()
	f.On("StopInputService", mock.Anything).Return(nil).Maybe()
	f.On("SetSubtype", mock.Anything).Return(nil).Maybe()
	f.On("IsEnable").Return(enabled, nil).Maybe()
	f.On("IsPanelShown", mock.Anything).Return(true, nil).Maybe()
	f.On("OnSecurityChange", mock.Anything).Return(nil).Maybe()
	f.On("OnConnectSystemCmd", mock.Anything).Return(f.agent, nil).Maybe()
	f.On("OnClientInactive", mock.Anything).Return(nil).Maybe()
	f.On("OnSetInputType", mock.Anything).Return(nil).Maybe()
	f.On("OnCallingDisplayIDChanged", mock.Anything).Return(nil).Maybe()
	return f
}

// rejectStartInput makes StartInput fail for the editor of pid.
func (f *fakeIme) rejectStartInput(pid int32, err error) {
	f.startInput.Unset()
	f.On("StartInput", mock.MatchedBy(func(info protocol.InputClientInfo) bool {
		return info.Pid == pid
	}), mock.Anything).Return(err)
	f.startInput = f.On("StartInput", mock.Anything, mock.Anything).Return(nil).Maybe()
}

func (f *fakeIme) connection() ime.Connection {
	return ime.Connection{
		Core:       protocol.NewCoreProxy(f.reg.Remote(f.handle)),
		CoreHandle: f.handle,
		Agent:      f.agent,
		Pid:        f.pid,
		Uid:        20010000,
	}
}

func (f *fakeIme) kill() { f.reg.KillProcess(f.pid) }

func (f *fakeIme) InitInputControlChannel(channel ipc.Handle) error {
	return f.Called(channel).Error(0)
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
		go f.kill()
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

func (f *fakeIme) OnSecurityChange(mode protocol.SecurityMode) error {
	return f.Called(mode).Error(0)
}

func (f *fakeIme) OnConnectSystemCmd(channel ipc.Handle) (ipc.Handle, error) {
	args := f.Called(channel)
	return args.Get(0).(ipc.Handle), args.Error(1)
}

func (f *fakeIme) OnClientInactive(channel ipc.Handle) error { return f.Called(channel).Error(0) }
func (f *fakeIme) OnSetInputType(t protocol.InputType) error { return f.Called(t).Error(0) }
func (f *fakeIme) OnCallingDisplayIDChanged(displayID uint64) error {
	return f.Called(displayID).Error(0)
}

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
	ch.On("InsertText", mock.Anything).Return(nil).Maybe()
	ch.On("DeleteForward", mock.Anything).Return(nil).Maybe()
	ch.On("DeleteBackward", mock.Anything).Return(nil).Maybe()
	ch.On("GetTextBeforeCursor", mock.Anything).Return("", nil).Maybe()
	ch.On("GetTextAfterCursor", mock.Anything).Return("", nil).Maybe()
	ch.On("GetTextIndexAtCursor").Return(int32(0), nil).Maybe()
	ch.On("GetTextConfig").Return(protocol.TextTotalConfig{}, nil).Maybe()
	ch.On("SendKeyboardStatus", mock.Anything).Return(nil).Maybe()
	ch.On("SendFunctionKey", mock.Anything).Return(nil).Maybe()
	ch.On("MoveCursor", mock.Anything).Return(nil).Maybe()
	ch.On("SelectByRange", mock.Anything, mock.Anything).Return(nil).Maybe()
	ch.On("SelectByMovement", mock.Anything, mock.Anything).Return(nil).Maybe()
	ch.On("HandleExtendAction", mock.Anything).Return(nil).Maybe()
	ch.On("SendPrivateCommand", mock.Anything).Return(nil).Maybe()
	ch.On("NotifyPanelStatusInfo", mock.Anything).Return(nil).Maybe()
	ch.On("NotifyKeyboardHeight", mock.Anything).Return(nil).Maybe()
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

func (c *fakeChannel) SelectByRange(start, end int32) error { return c.Called(start, end).Error(0) }

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

type fakeInquirer struct {
	mu  sync.Mutex
	def ime.Target
}

func (q *fakeInquirer) GetDefaultIme() ime.Target {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.def
}

func (q *fakeInquirer) GetImeProperty(_ int32, bundleName string) (protocol.Property, error) {
	return protocol.Property{Name: bundleName}, nil
}

func (q *fakeInquirer) GetSubProperty(_ int32, bundleName, subName string) (protocol.SubProperty, error) {
	return protocol.SubProperty{Name: bundleName, ID: subName}, nil
}

func (q *fakeInquirer) GetSecurityMode(int32, string) protocol.SecurityMode {
	return protocol.SecurityModeFull
}

type fakeSettings struct {
	mu      sync.Mutex
	current ime.Target
}

func (s *fakeSettings) CurrentIme(int32) (ime.Target, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, !s.current.IsZero()
}

func (s *fakeSettings) set(t ime.Target) {
	s.mu.Lock()
	s.current = t
	s.mu.Unlock()
}

type poster chan *message.Message

func (p poster) Push(msg *message.Message) error {
	p <- msg
	return nil
}

type harness struct {
	t         *testing.T
	reg       *ipc.Registry
	sess      *Session
	posted    poster
	inquirer  *fakeInquirer
	settings  *fakeSettings
	connector *ability.LocalConnector

	foreground atomic.Int32
	nextPid    atomic.Int32

	mu     sync.Mutex
	imes   []*fakeIme
	silent map[string]bool
}

func testPolicy() Policy {
	return Policy{
		StartTimeout:  100 * time.Millisecond,
		StopTimeout:   100 * time.Millisecond,
		RestartMax:    3,
		RestartWindow: time.Hour,
	}
}

func newHarness(t *testing.T, policy Policy) *harness {
	t.Helper()
	reg := ipc.NewRegistry(nil)
	h := &harness{
		t:         t,
		reg:       reg,
		posted:    make(poster, 64),
		inquirer:  &fakeInquirer{def: kbd},
		settings:  &fakeSettings{},
		connector: ability.NewLocalConnector(reg, nil),
		silent:    make(map[string]bool),
	}
	h.foreground.Store(testUser)
	h.connector.RegisterLauncher(kbdBundle, h.launch)
	h.connector.RegisterLauncher(altBundle, h.launch)

	h.sess = New(Deps{
		UserID:    testUser,
		Watcher:   ipc.NewDeathWatcher(reg),
		Poster:    h.posted,
		Inquirer:  h.inquirer,
		Settings:  h.settings,
		Connector: h.connector,
		Accounts:  h,
		Policy:    policy,
	})
	return h
}

func (h *harness) ForegroundUserID() int32 { return h.foreground.Load() }

func (h *harness) setSilent(bundle string, silent bool) {
	h.mu.Lock()
	h.silent[bundle] = silent
	h.mu.Unlock()
}

func (h *harness) launch(_ context.Context, want ability.Want, _ string) (int32, error) {
	pid := 1000 + h.nextPid.Add(1)
	f := newFakeIme(h.reg, want.BundleName, pid, false)

	h.mu.Lock()
	h.imes = append(h.imes, f)
	silent := h.silent[want.BundleName]
	h.mu.Unlock()

	if !silent {
		go func() { _ = h.sess.OnSetCoreAndAgent(want.BundleName, f.connection()) }()
	}
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

type testClient struct {
	info    client.Info
	client  *fakeClient
	channel *fakeChannel
}

func (h *harness) newClient(pid int32, flags client.EventFlag) testClient {
	c := newFakeClient()
	ch := newFakeChannel()
	uid := 20010000 + pid
	return testClient{
		info: client.Info{
			Pid:            pid,
			Uid:            uid,
			UserID:         testUser,
			Client:         c,
			ClientHandle:   h.reg.Register(nopStub{}, pid, uid),
			Channel:        ch,
			ChannelHandle:  h.reg.Register(nopStub{}, pid, uid),
			IsShowKeyboard: true,
			EventFlag:      flags,
		},
		client:  c,
		channel: ch,
	}
}

func (h *harness) start(c testClient) StartInputResult {
	h.t.Helper()
	res, err := h.sess.OnStartInput(c.info, true)
	require.NoError(h.t, err)
	return res
}

func (h *harness) clientInfo(c testClient) *client.Info {
	_, info := h.sess.findClient(c.info.ClientHandle)
	return info
}

func (h *harness) nextMsg(id message.ID) *message.Message {
	h.t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case msg := <-h.posted:
			if msg.ID == id {
				return msg
			}
		case <-deadline:
			h.t.Fatalf("no %s posted", id)
			return nil
		}
	}
}

func (h *harness) drain() []*message.Message {
	var out []*message.Message
	for {
		select {
		case msg := <-h.posted:
			out = append(out, msg)
		case <-time.After(30 * time.Millisecond):
			return out
		}
	}
}

// deliverImeDeath waits for the death of an IME and runs its recovery the
// way the consumer would.
func (h *harness) deliverImeDeath() {
	h.t.Helper()
	msg := h.nextMsg(message.MsgImeDied)
	userID, role, handle, err := message.ReadDeath(msg)
	require.NoError(h.t, err)
	require.Equal(h.t, testUser, userID)
	h.sess.OnImeDied(handle, ime.Type(role))
}
