package settings

import (
	"errors"
	"fmt"
	"sort"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/imf/internal/domain/ime"
)

// CurrentImeKey is the key holding the configured IME of a user
func CurrentImeKey(userID int32) string {
	return fmt.Sprintf("user.%d.current_ime", userID)
}

// EnabledImeKey is the key holding the bundles a user enabled
func EnabledImeKey(userID int32) string {
	return fmt.Sprintf("user.%d.enabled_imes", userID)
}

// ImeSettings reads and writes the IME keys of a Store. Values are JSON.
type ImeSettings struct {
	store Store
}

// NewImeSettings wraps store
func NewImeSettings(store Store) *ImeSettings {
	return &ImeSettings{store: store}
}

// Store returns the underlying store
func (s *ImeSettings) Store() Store { return s.store }

// CurrentIme returns the configured IME of userID. Unset or unreadable
// values report false.
func (s *ImeSettings) CurrentIme(userID int32) (ime.Target, bool) {
	raw, err := s.store.Get(CurrentImeKey(userID))
	if err != nil || raw == "" {
		return ime.Target{}, false
	}
	var t ime.Target
	if err := sonic.UnmarshalString(raw, &t); err != nil || t.IsZero() {
		return ime.Target{}, false
	}
	return t, true
}

// SetCurrentIme stores t as the configured IME of userID and enables its
// bundle.
func (s *ImeSettings) SetCurrentIme(userID int32, t ime.Target) error {
	raw, err := sonic.MarshalString(t)
	if err != nil {
		return fmt.Errorf("encode current ime: %w", err)
	}
	if err := s.store.Set(CurrentImeKey(userID), raw); err != nil {
		return err
	}
	return s.EnableIme(userID, t.BundleName)
}

// EnabledImes returns the bundles userID enabled, sorted
func (s *ImeSettings) EnabledImes(userID int32) ([]string, error) {
	raw, err := s.store.Get(EnabledImeKey(userID))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var bundles []string
	if err := sonic.UnmarshalString(raw, &bundles); err != nil {
		return nil, fmt.Errorf("decode enabled imes: %w", err)
	}
	return bundles, nil
}

// EnableIme adds bundleName to the enabled list
func (s *ImeSettings) EnableIme(userID int32, bundleName string) error {
	bundles, err := s.EnabledImes(userID)
	if err != nil {
		return err
	}
	for _, b := range bundles {
		if b == bundleName {
			return nil
		}
	}
	return s.writeEnabled(userID, append(bundles, bundleName))
}

// DisableIme removes bundleName from the enabled list
func (s *ImeSettings) DisableIme(userID int32, bundleName string) error {
	bundles, err := s.EnabledImes(userID)
	if err != nil {
		return err
	}
	kept := bundles[:0]
	for _, b := range bundles {
		if b != bundleName {
			kept = append(kept, b)
		}
	}
	return s.writeEnabled(userID, kept)
}

func (s *ImeSettings) writeEnabled(userID int32, bundles []string) error {
	sort.Strings(bundles)
	raw, err := sonic.MarshalString(bundles)
	if err != nil {
		return fmt.Errorf("encode enabled imes: %w", err)
	}
	return s.store.Set(EnabledImeKey(userID), raw)
}

// OnCurrentImeChange calls fn with the user's new IME whenever it changes
func (s *ImeSettings) OnCurrentImeChange(userID int32, fn func(ime.Target)) (cancel func()) {
	return s.store.Subscribe(CurrentImeKey(userID), func(_, value string) {
		var t ime.Target
		if err := sonic.UnmarshalString(value, &t); err == nil && !t.IsZero() {
			fn(t)
		}
	})
}
