package bundle

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"

	"github.com/GriffinCanCode/imf/internal/domain/ime"
	"github.com/GriffinCanCode/imf/internal/protocol"
	"github.com/GriffinCanCode/imf/internal/shared/errs"
)

// Subtype is one language or mode of an input method
type Subtype struct {
	ID       string `yaml:"id"`
	Label    string `yaml:"label"`
	LabelID  uint32 `yaml:"label_id"`
	Mode     string `yaml:"mode"`
	Locale   string `yaml:"locale"`
	Language string `yaml:"language"`
	Icon     string `yaml:"icon"`
	IconID   uint32 `yaml:"icon_id"`
}

// InputMethod is one installed IME bundle
type InputMethod struct {
	BundleName    string    `yaml:"bundle_name"`
	ExtensionName string    `yaml:"extension_name"`
	Label         string    `yaml:"label"`
	LabelID       uint32    `yaml:"label_id"`
	Icon          string    `yaml:"icon"`
	IconID        uint32    `yaml:"icon_id"`
	SecurityMode  string    `yaml:"security_mode"`
	Subtypes      []Subtype `yaml:"subtypes"`
	// Users limits the IME to some OS users. Empty means everyone.
	Users []int32 `yaml:"users"`
}

func (m InputMethod) installedFor(userID int32) bool {
	if len(m.Users) == 0 {
		return true
	}
	for _, u := range m.Users {
		if u == userID {
			return true
		}
	}
	return false
}

// Property is the wire description of m
func (m InputMethod) Property() protocol.Property {
	return protocol.Property{
		Name:    m.BundleName,
		ID:      m.ExtensionName,
		Label:   m.Label,
		LabelID: m.LabelID,
		Icon:    m.Icon,
		IconID:  m.IconID,
	}
}

func (m InputMethod) subProperty(s Subtype) protocol.SubProperty {
	return protocol.SubProperty{
		Label:    s.Label,
		LabelID:  s.LabelID,
		Name:     m.BundleName,
		ID:       s.ID,
		Mode:     s.Mode,
		Locale:   s.Locale,
		Language: s.Language,
		Icon:     s.Icon,
		IconID:   s.IconID,
	}
}

type catalogFile struct {
	DefaultIme   string        `yaml:"default_ime"`
	InputMethods []InputMethod `yaml:"input_methods"`
}

// Catalog is the set of installed input methods, loaded from YAML.
type Catalog struct {
	mu         sync.RWMutex
	defaultIme ime.Target
	methods    map[string]InputMethod // Protected by mu
}

// NewCatalog builds a catalog from methods. defaultIme must name one of them.
func NewCatalog(defaultIme ime.Target, methods ...InputMethod) (*Catalog, error) {
	c := &Catalog{defaultIme: defaultIme, methods: make(map[string]InputMethod, len(methods))}
	for _, m := range methods {
		if err := c.Install(m); err != nil {
			return nil, err
		}
	}
	if _, ok := c.methods[defaultIme.BundleName]; !ok && !defaultIme.IsZero() {
		return nil, fmt.Errorf("default ime %s is not in the catalog", defaultIme)
	}
	return c, nil
}

// LoadCatalog reads path. fallbackDefault is used when the file names no
// default IME. A missing file yields a catalog with just the default.
func LoadCatalog(path string, fallbackDefault ime.Target) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewCatalog(fallbackDefault, InputMethod{
			BundleName:    fallbackDefault.BundleName,
			ExtensionName: fallbackDefault.ExtensionName,
			SecurityMode:  "full",
		})
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	def := fallbackDefault
	if file.DefaultIme != "" {
		if def, err = ime.ParseTarget(file.DefaultIme); err != nil {
			return nil, fmt.Errorf("catalog %s: %w", path, err)
		}
	}
	return NewCatalog(def, file.InputMethods...)
}

// Install adds or replaces m
func (c *Catalog) Install(m InputMethod) error {
	if m.BundleName == "" || m.ExtensionName == "" {
		return errs.Wrap(errs.ErrorBadParameters, "input method needs bundle and extension")
	}
	if _, err := parseSecurityMode(m.SecurityMode); err != nil {
		return err
	}
	c.mu.Lock()
	c.methods[m.BundleName] = m
	c.mu.Unlock()
	return nil
}

// Uninstall removes bundleName. The default IME cannot be removed.
func (c *Catalog) Uninstall(bundleName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if bundleName == c.defaultIme.BundleName {
		return false
	}
	_, ok := c.methods[bundleName]
	delete(c.methods, bundleName)
	return ok
}

func (c *Catalog) lookup(userID int32, bundleName string) (InputMethod, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.methods[bundleName]
	if !ok || !m.installedFor(userID) {
		return InputMethod{}, false
	}
	return m, true
}

// GetDefaultIme returns the system default IME.
func (c *Catalog) GetDefaultIme() ime.Target {
	return c.defaultIme
}

// IsInstalled reports whether bundleName is available to userID.
func (c *Catalog) IsInstalled(userID int32, bundleName string) bool {
	_, ok := c.lookup(userID, bundleName)
	return ok
}

// Target returns the runnable target of bundleName with subtype subName
func (c *Catalog) Target(userID int32, bundleName, subName string) (ime.Target, error) {
	m, ok := c.lookup(userID, bundleName)
	if !ok {
		return ime.Target{}, errs.Wrap(errs.ErrorBadParameters, "%s not installed", bundleName)
	}
	if subName != "" {
		if _, err := c.GetSubProperty(userID, bundleName, subName); err != nil {
			return ime.Target{}, err
		}
	}
	return ime.Target{BundleName: m.BundleName, ExtensionName: m.ExtensionName, SubName: subName}, nil
}

// ListInputMethods returns the IMEs available to userID sorted by bundle
func (c *Catalog) ListInputMethods(userID int32) []protocol.Property {
	c.mu.RLock()
	out := make([]protocol.Property, 0, len(c.methods))
	for _, m := range c.methods {
		if m.installedFor(userID) {
			out = append(out, m.Property())
		}
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Bundles lists every bundle in the catalog, sorted
func (c *Catalog) Bundles() []string {
	c.mu.RLock()
	out := make([]string, 0, len(c.methods))
	for name := range c.methods {
		out = append(out, name)
	}
	c.mu.RUnlock()
	sort.Strings(out)
	return out
}

// GetImeProperty describes bundleName
func (c *Catalog) GetImeProperty(userID int32, bundleName string) (protocol.Property, error) {
	m, ok := c.lookup(userID, bundleName)
	if !ok {
		return protocol.Property{}, errs.Wrap(errs.ErrorBadParameters, "%s not installed", bundleName)
	}
	return m.Property(), nil
}

// GetSubProperty describes subtype subName of bundleName
func (c *Catalog) GetSubProperty(userID int32, bundleName, subName string) (protocol.SubProperty, error) {
	m, ok := c.lookup(userID, bundleName)
	if !ok {
		return protocol.SubProperty{}, errs.Wrap(errs.ErrorBadParameters, "%s not installed", bundleName)
	}
	for _, s := range m.Subtypes {
		if s.ID == subName {
			return m.subProperty(s), nil
		}
	}
	return protocol.SubProperty{}, errs.Wrap(errs.ErrorBadParameters, "%s has no subtype %q", bundleName, subName)
}

// GetSecurityMode returns the mode granted to bundleName. Unknown bundles
// get the basic mode.
func (c *Catalog) GetSecurityMode(userID int32, bundleName string) protocol.SecurityMode {
	m, ok := c.lookup(userID, bundleName)
	if !ok {
		return protocol.SecurityModeBasic
	}
	mode, _ := parseSecurityMode(m.SecurityMode)
	return mode
}

func parseSecurityMode(s string) (protocol.SecurityMode, error) {
	switch strings.ToLower(s) {
	case "", "basic":
		return protocol.SecurityModeBasic, nil
	case "full":
		return protocol.SecurityModeFull, nil
	default:
		return protocol.SecurityModeBasic, errs.Wrap(errs.ErrorBadParameters, "security mode %q", s)
	}
}
