package inventory

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Default file names inside the config directory.
const (
	InventoryFile  = "inventory.yml"
	InterfacesFile = "interfaces.yml"
	VLANsFile      = "vlans.yml"
	RoutingFile    = "routing.yml"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ConfigLoadError reports malformed or missing declarative input. It is
// fatal: a run stops before any device is contacted.
type ConfigLoadError struct {
	Path string
	Err  error
}

func (e *ConfigLoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *ConfigLoadError) Unwrap() error { return e.Err }

// Fleet is the ordered device inventory with a name index.
type Fleet struct {
	devices []Device
	index   map[string]int
}

// NewFleet validates devices, fills in default ports and rejects duplicate names.
func NewFleet(devices []Device) (*Fleet, error) {
	f := &Fleet{
		devices: make([]Device, 0, len(devices)),
		index:   make(map[string]int, len(devices)),
	}
	for i, d := range devices {
		d.Name = strings.TrimSpace(d.Name)
		d.Address = strings.TrimSpace(d.Address)
		d.Kind = strings.ToLower(strings.TrimSpace(d.Kind))
		if err := validate.Struct(d); err != nil {
			return nil, fmt.Errorf("routers[%d]: %w", i, err)
		}
		if !knownKind(d.Kind) {
			return nil, fmt.Errorf("routers[%d]: unsupported device_type %q", i, d.Kind)
		}
		if d.Port == 0 {
			d.Port = DefaultSSHPort
			if d.Telnet() {
				d.Port = DefaultTelnetPort
			}
		}
		if _, dup := f.index[d.Name]; dup {
			return nil, fmt.Errorf("routers[%d]: duplicate device name %q", i, d.Name)
		}
		f.index[d.Name] = len(f.devices)
		f.devices = append(f.devices, d)
	}
	return f, nil
}

// Devices returns the devices in inventory order.
func (f *Fleet) Devices() []Device {
	out := make([]Device, len(f.devices))
	copy(out, f.devices)
	return out
}

// Names returns the device names in inventory order.
func (f *Fleet) Names() []string {
	out := make([]string, len(f.devices))
	for i, d := range f.devices {
		out[i] = d.Name
	}
	return out
}

// Len returns the number of devices.
func (f *Fleet) Len() int { return len(f.devices) }

// Lookup finds a device by name.
func (f *Fleet) Lookup(name string) (Device, bool) {
	i, ok := f.index[name]
	if !ok {
		return Device{}, false
	}
	return f.devices[i], true
}

// Unknown returns the sorted, de-duplicated names that are not in the fleet.
func (f *Fleet) Unknown(names []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, name := range names {
		if _, ok := f.index[name]; ok {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Keys returns the keys of a per-device mapping.
func Keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func knownKind(kind string) bool {
	switch kind {
	case KindCiscoIOS, KindCiscoIOSTelnet, KindCiscoXE, KindCiscoNXOS:
		return true
	}
	return false
}

// LoadFleet reads inventory.yml.
func LoadFleet(path string) (*Fleet, error) {
	var doc struct {
		Routers []Device `yaml:"routers"`
	}
	if err := decodeFile(path, &doc); err != nil {
		return nil, err
	}
	if len(doc.Routers) == 0 {
		return nil, &ConfigLoadError{Path: path, Err: errors.New("no routers defined")}
	}
	fleet, err := NewFleet(doc.Routers)
	if err != nil {
		return nil, &ConfigLoadError{Path: path, Err: err}
	}
	return fleet, nil
}

// LoadInterfaces reads interfaces.yml, keyed by device name.
func LoadInterfaces(path string) (map[string][]InterfaceSpec, error) {
	var doc map[string]struct {
		Interfaces []InterfaceSpec `yaml:"interfaces"`
	}
	if err := decodeFile(path, &doc); err != nil {
		return nil, err
	}
	out := make(map[string][]InterfaceSpec, len(doc))
	for device, entry := range doc {
		for i, spec := range entry.Interfaces {
			if err := validate.Struct(spec); err != nil {
				return nil, &ConfigLoadError{Path: path, Err: fmt.Errorf("%s.interfaces[%d]: %w", device, i, err)}
			}
		}
		out[device] = entry.Interfaces
	}
	return out, nil
}

// LoadVLANs reads vlans.yml.
func LoadVLANs(path string) (*VLANPlan, error) {
	var plan VLANPlan
	if err := decodeFile(path, &plan); err != nil {
		return nil, err
	}
	for device, subs := range plan.Subinterfaces {
		for i, spec := range subs {
			if err := validate.Struct(spec); err != nil {
				return nil, &ConfigLoadError{Path: path, Err: fmt.Errorf("router_subinterfaces.%s[%d]: %w", device, i, err)}
			}
		}
	}
	return &plan, nil
}

// LoadRouting reads routing.yml.
func LoadRouting(path string) (*RoutingSpec, error) {
	var spec RoutingSpec
	if err := decodeFile(path, &spec); err != nil {
		return nil, err
	}
	if spec.OSPF != nil {
		if err := validate.Struct(spec.OSPF); err != nil {
			return nil, &ConfigLoadError{Path: path, Err: fmt.Errorf("ospf: %w", err)}
		}
		for device, areas := range spec.OSPF.Areas {
			for i, area := range areas {
				if err := validate.Struct(area); err != nil {
					return nil, &ConfigLoadError{Path: path, Err: fmt.Errorf("ospf.areas.%s[%d]: %w", device, i, err)}
				}
			}
		}
	}
	if spec.EIGRP != nil {
		if err := validate.Struct(spec.EIGRP); err != nil {
			return nil, &ConfigLoadError{Path: path, Err: fmt.Errorf("eigrp: %w", err)}
		}
		for device, networks := range spec.EIGRP.Networks {
			for i, n := range networks {
				if err := validate.Struct(n); err != nil {
					return nil, &ConfigLoadError{Path: path, Err: fmt.Errorf("eigrp.networks.%s[%d]: %w", device, i, err)}
				}
			}
		}
	}
	return &spec, nil
}

// Path joins a config directory and a file name.
func Path(dir, name string) string {
	return filepath.Join(dir, name)
}

func decodeFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &ConfigLoadError{Path: path, Err: err}
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return &ConfigLoadError{Path: path, Err: errors.New("file is empty")}
		}
		return &ConfigLoadError{Path: path, Err: fmt.Errorf("parse yaml: %w", err)}
	}
	return nil
}
