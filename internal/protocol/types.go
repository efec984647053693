package protocol

import (
	"sort"

	"github.com/GriffinCanCode/imf/internal/ipc"
	"github.com/GriffinCanCode/imf/internal/shared/errs"
	"github.com/GriffinCanCode/imf/internal/shared/strutil"
)

// KeyboardStatus is reported by an IME to its client.
type KeyboardStatus int32

const (
	KeyboardStatusNone KeyboardStatus = iota
	KeyboardStatusHide
	KeyboardStatusShow
)

// InputWindowStatus is the panel visibility reported to listening clients.
type InputWindowStatus int32

const (
	InputWindowShow InputWindowStatus = iota
	InputWindowHide
	InputWindowNone
)

// PanelType distinguishes the keyboard panel from the status bar.
type PanelType int32

const (
	PanelSoftKeyboard PanelType = iota
	PanelStatusBar
)

// PanelFlag selects the keyboard layout mode.
type PanelFlag int32

const (
	FlagFixed PanelFlag = iota
	FlagFloating
	FlagCandidate
)

// InputType overrides the native IME for a special input mode.
type InputType int32

const (
	InputTypeNone InputType = iota - 1
	InputTypeCameraInput
	InputTypeSecurityInput
	InputTypeVoiceInput
)

// SecurityMode is the experience level a user granted an IME.
type SecurityMode int32

const (
	SecurityModeBasic SecurityMode = iota
	SecurityModeFull
)

// MaxPrivateCommandEntries bounds the entries of a private command.
const MaxPrivateCommandEntries = 5

// InputAttribute describes the focused edit box.
type InputAttribute struct {
	InputPattern           int32
	EnterKeyType           int32
	InputOption            int32
	IsTextPreviewSupported bool
	BundleName             string
	ImmersiveMode          int32
	WindowID               uint32
	CallingDisplayID       uint64
	PlaceholderText        string
	AbilityName            string
}

// Normalize truncates client supplied text to its character budget.
func (a *InputAttribute) Normalize() {
	a.PlaceholderText = strutil.TruncateUtf16String(a.PlaceholderText, strutil.MaxPlaceholderChars)
	a.AbilityName = strutil.TruncateUtf16String(a.AbilityName, strutil.MaxAbilityNameChars)
}

// IsSecurityImeFlag reports whether the edit box asks for a password keyboard.
func (a InputAttribute) IsSecurityImeFlag() bool {
	const patternPassword = 7
	return a.InputPattern == patternPassword
}

func (a *InputAttribute) Marshal(p *ipc.Parcel) error {
	p.WriteInt32(a.InputPattern)
	p.WriteInt32(a.EnterKeyType)
	p.WriteInt32(a.InputOption)
	p.WriteBool(a.IsTextPreviewSupported)
	p.WriteString(a.BundleName)
	p.WriteInt32(a.ImmersiveMode)
	p.WriteUint32(a.WindowID)
	p.WriteUint64(a.CallingDisplayID)
	p.WriteString(a.PlaceholderText)
	p.WriteString(a.AbilityName)
	return p.Err()
}

func (a *InputAttribute) Unmarshal(p *ipc.Parcel) error {
	var err error
	if a.InputPattern, err = p.ReadInt32(); err != nil {
		return err
	}
	if a.EnterKeyType, err = p.ReadInt32(); err != nil {
		return err
	}
	if a.InputOption, err = p.ReadInt32(); err != nil {
		return err
	}
	if a.IsTextPreviewSupported, err = p.ReadBool(); err != nil {
		return err
	}
	if a.BundleName, err = p.ReadString(); err != nil {
		return err
	}
	if a.ImmersiveMode, err = p.ReadInt32(); err != nil {
		return err
	}
	if a.WindowID, err = p.ReadUint32(); err != nil {
		return err
	}
	if a.CallingDisplayID, err = p.ReadUint64(); err != nil {
		return err
	}
	if a.PlaceholderText, err = p.ReadString(); err != nil {
		return err
	}
	a.AbilityName, err = p.ReadString()
	return err
}

// CursorInfo is the caret rectangle in screen coordinates.
type CursorInfo struct {
	Left, Top, Width, Height float64
}

// Range is a [Start, End) text selection.
type Range struct {
	Start, End int32
}

// TextTotalConfig is the full editing context handed to an IME on bind.
type TextTotalConfig struct {
	InputAttribute InputAttribute
	CursorInfo     CursorInfo
	TextSelection  Range
	WindowID       uint32
	PositionY      float64
	Height         float64
}

func (c *TextTotalConfig) Marshal(p *ipc.Parcel) error {
	if err := c.InputAttribute.Marshal(p); err != nil {
		return err
	}
	p.WriteFloat64(c.CursorInfo.Left)
	p.WriteFloat64(c.CursorInfo.Top)
	p.WriteFloat64(c.CursorInfo.Width)
	p.WriteFloat64(c.CursorInfo.Height)
	p.WriteInt32(c.TextSelection.Start)
	p.WriteInt32(c.TextSelection.End)
	p.WriteUint32(c.WindowID)
	p.WriteFloat64(c.PositionY)
	p.WriteFloat64(c.Height)
	return p.Err()
}

func (c *TextTotalConfig) Unmarshal(p *ipc.Parcel) error {
	if err := c.InputAttribute.Unmarshal(p); err != nil {
		return err
	}
	floats := []*float64{&c.CursorInfo.Left, &c.CursorInfo.Top, &c.CursorInfo.Width, &c.CursorInfo.Height}
	for _, f := range floats {
		v, err := p.ReadFloat64()
		if err != nil {
			return err
		}
		*f = v
	}
	var err error
	if c.TextSelection.Start, err = p.ReadInt32(); err != nil {
		return err
	}
	if c.TextSelection.End, err = p.ReadInt32(); err != nil {
		return err
	}
	if c.WindowID, err = p.ReadUint32(); err != nil {
		return err
	}
	if c.PositionY, err = p.ReadFloat64(); err != nil {
		return err
	}
	c.Height, err = p.ReadFloat64()
	return err
}

// InputClientInfo is what an IME learns about the client it is bound to.
type InputClientInfo struct {
	Pid                   int32
	Uid                   int32
	UserID                int32
	DisplayID             uint64
	IsShowKeyboard        bool
	RequestKeyboardReason int32
	Channel               ipc.Handle
	Config                TextTotalConfig
}

func (c *InputClientInfo) Marshal(p *ipc.Parcel) error {
	p.WriteInt32(c.Pid)
	p.WriteInt32(c.Uid)
	p.WriteInt32(c.UserID)
	p.WriteUint64(c.DisplayID)
	p.WriteBool(c.IsShowKeyboard)
	p.WriteInt32(c.RequestKeyboardReason)
	p.WriteHandle(c.Channel)
	return c.Config.Marshal(p)
}

func (c *InputClientInfo) Unmarshal(p *ipc.Parcel) error {
	var err error
	if c.Pid, err = p.ReadInt32(); err != nil {
		return err
	}
	if c.Uid, err = p.ReadInt32(); err != nil {
		return err
	}
	if c.UserID, err = p.ReadInt32(); err != nil {
		return err
	}
	if c.DisplayID, err = p.ReadUint64(); err != nil {
		return err
	}
	if c.IsShowKeyboard, err = p.ReadBool(); err != nil {
		return err
	}
	if c.RequestKeyboardReason, err = p.ReadInt32(); err != nil {
		return err
	}
	if c.Channel, err = p.ReadHandle(); err != nil {
		return err
	}
	return c.Config.Unmarshal(p)
}

// Property identifies an installed input method.
type Property struct {
	Name    string `json:"name"`
	ID      string `json:"id"`
	Label   string `json:"label"`
	LabelID uint32 `json:"label_id"`
	Icon    string `json:"icon"`
	IconID  uint32 `json:"icon_id"`
}

func (pr *Property) Marshal(p *ipc.Parcel) error {
	p.WriteString(pr.Name)
	p.WriteString(pr.ID)
	p.WriteString(pr.Label)
	p.WriteUint32(pr.LabelID)
	p.WriteString(pr.Icon)
	p.WriteUint32(pr.IconID)
	return p.Err()
}

func (pr *Property) Unmarshal(p *ipc.Parcel) error {
	var err error
	if pr.Name, err = p.ReadString(); err != nil {
		return err
	}
	if pr.ID, err = p.ReadString(); err != nil {
		return err
	}
	if pr.Label, err = p.ReadString(); err != nil {
		return err
	}
	if pr.LabelID, err = p.ReadUint32(); err != nil {
		return err
	}
	if pr.Icon, err = p.ReadString(); err != nil {
		return err
	}
	pr.IconID, err = p.ReadUint32()
	return err
}

// SubProperty is one subtype (language/mode) of an input method.
type SubProperty struct {
	Label    string
	LabelID  uint32
	Name     string
	ID       string
	Mode     string
	Locale   string
	Language string
	Icon     string
	IconID   uint32
}

func (s *SubProperty) Marshal(p *ipc.Parcel) error {
	p.WriteString(s.Label)
	p.WriteUint32(s.LabelID)
	p.WriteString(s.Name)
	p.WriteString(s.ID)
	p.WriteString(s.Mode)
	p.WriteString(s.Locale)
	p.WriteString(s.Language)
	p.WriteString(s.Icon)
	p.WriteUint32(s.IconID)
	return p.Err()
}

func (s *SubProperty) Unmarshal(p *ipc.Parcel) error {
	var err error
	if s.Label, err = p.ReadString(); err != nil {
		return err
	}
	if s.LabelID, err = p.ReadUint32(); err != nil {
		return err
	}
	strs := []*string{&s.Name, &s.ID, &s.Mode, &s.Locale, &s.Language, &s.Icon}
	for _, dst := range strs {
		if *dst, err = p.ReadString(); err != nil {
			return err
		}
	}
	s.IconID, err = p.ReadUint32()
	return err
}

// PanelInfo selects a panel of the IME.
type PanelInfo struct {
	PanelType PanelType
	PanelFlag PanelFlag
}

func (pi *PanelInfo) Marshal(p *ipc.Parcel) error {
	p.WriteInt32(int32(pi.PanelType))
	p.WriteInt32(int32(pi.PanelFlag))
	return p.Err()
}

func (pi *PanelInfo) Unmarshal(p *ipc.Parcel) error {
	t, err := p.ReadInt32()
	if err != nil {
		return err
	}
	f, err := p.ReadInt32()
	if err != nil {
		return err
	}
	pi.PanelType, pi.PanelFlag = PanelType(t), PanelFlag(f)
	return nil
}

// PanelStatusInfo reports a panel visibility change and what triggered it.
type PanelStatusInfo struct {
	PanelInfo PanelInfo
	Visible   bool
	Trigger   int32
}

func (s *PanelStatusInfo) Marshal(p *ipc.Parcel) error {
	if err := s.PanelInfo.Marshal(p); err != nil {
		return err
	}
	p.WriteBool(s.Visible)
	p.WriteInt32(s.Trigger)
	return p.Err()
}

func (s *PanelStatusInfo) Unmarshal(p *ipc.Parcel) error {
	if err := s.PanelInfo.Unmarshal(p); err != nil {
		return err
	}
	var err error
	if s.Visible, err = p.ReadBool(); err != nil {
		return err
	}
	s.Trigger, err = p.ReadInt32()
	return err
}

// ImeWindowInfo describes one IME window for panel listeners.
type ImeWindowInfo struct {
	Name      string
	Left, Top int32
	Width     uint32
	Height    uint32
	PanelInfo PanelInfo
}

func (w *ImeWindowInfo) Marshal(p *ipc.Parcel) error {
	p.WriteString(w.Name)
	p.WriteInt32(w.Left)
	p.WriteInt32(w.Top)
	p.WriteUint32(w.Width)
	p.WriteUint32(w.Height)
	return w.PanelInfo.Marshal(p)
}

func (w *ImeWindowInfo) Unmarshal(p *ipc.Parcel) error {
	var err error
	if w.Name, err = p.ReadString(); err != nil {
		return err
	}
	if w.Left, err = p.ReadInt32(); err != nil {
		return err
	}
	if w.Top, err = p.ReadInt32(); err != nil {
		return err
	}
	if w.Width, err = p.ReadUint32(); err != nil {
		return err
	}
	if w.Height, err = p.ReadUint32(); err != nil {
		return err
	}
	return w.PanelInfo.Unmarshal(p)
}

// FunctionKey is the enter key action sent by an IME.
type FunctionKey struct {
	EnterKeyType int32
}

// PrivateValue is a tagged value of a private command entry.
type PrivateValue struct {
	Kind int32
	Str  string
	Int  int32
	Bool bool
}

const (
	PrivateString int32 = iota
	PrivateInt
	PrivateBool
)

// PrivateCommand is an opaque key/value message between an IME and its client.
type PrivateCommand map[string]PrivateValue

func (c PrivateCommand) Marshal(p *ipc.Parcel) error {
	if len(c) > MaxPrivateCommandEntries {
		return errs.Wrap(errs.ErrorBadParameters, "private command has %d entries", len(c))
	}
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	p.WriteUint32(uint32(len(keys)))
	for _, k := range keys {
		v := c[k]
		p.WriteString(k)
		p.WriteInt32(v.Kind)
		switch v.Kind {
		case PrivateInt:
			p.WriteInt32(v.Int)
		case PrivateBool:
			p.WriteBool(v.Bool)
		default:
			p.WriteString(v.Str)
		}
	}
	return p.Err()
}

// UnmarshalPrivateCommand reads a command written by PrivateCommand.Marshal.
func UnmarshalPrivateCommand(p *ipc.Parcel) (PrivateCommand, error) {
	n, err := p.ReadUint32()
	if err != nil {
		return nil, err
	}
	if n > MaxPrivateCommandEntries {
		return nil, errs.Wrap(errs.ErrorExParcelable, "private command has %d entries", n)
	}
	cmd := make(PrivateCommand, n)
	for i := uint32(0); i < n; i++ {
		k, err := p.ReadString()
		if err != nil {
			return nil, err
		}
		kind, err := p.ReadInt32()
		if err != nil {
			return nil, err
		}
		v := PrivateValue{Kind: kind}
		switch kind {
		case PrivateInt:
			v.Int, err = p.ReadInt32()
		case PrivateBool:
			v.Bool, err = p.ReadBool()
		case PrivateString:
			v.Str, err = p.ReadString()
		default:
			return nil, errs.Wrap(errs.ErrorExParcelable, "unknown private value kind %d", kind)
		}
		if err != nil {
			return nil, err
		}
		cmd[k] = v
	}
	return cmd, nil
}
