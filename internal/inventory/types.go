// Package inventory holds the declarative fleet model: devices, interface,
// VLAN and routing intent, and the loaders that read them from YAML.
package inventory

const (
	KindCiscoIOS       = "cisco_ios"
	KindCiscoIOSTelnet = "cisco_ios_telnet"
	KindCiscoXE        = "cisco_xe"
	KindCiscoNXOS      = "cisco_nxos"

	DefaultSSHPort    = 22
	DefaultTelnetPort = 23
)

// Device is one managed router or switch. Devices are immutable once loaded.
type Device struct {
	Name    string `yaml:"name" validate:"required"`
	Address string `yaml:"ip" validate:"required,ip|hostname_rfc1123"`
	Kind    string `yaml:"device_type" validate:"required"`
	Port    int    `yaml:"port" validate:"gte=0,lte=65535"`
}

// Telnet reports whether the device is reached over telnet instead of SSH.
func (d Device) Telnet() bool {
	return d.Kind == KindCiscoIOSTelnet
}

// InterfaceSpec is the desired state of one physical interface.
type InterfaceSpec struct {
	Name        string `yaml:"name" validate:"required"`
	IPAddress   string `yaml:"ip_address" validate:"required,ipv4"`
	SubnetMask  string `yaml:"subnet_mask" validate:"required,ipv4"`
	Description string `yaml:"description"`
	Enabled     *bool  `yaml:"enabled"`
}

// IsEnabled defaults to true when the field is absent.
func (s InterfaceSpec) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// SubinterfaceSpec is a dot1Q subinterface on a physical interface. The VLAN
// range is checked by the command generator, not at load time, so one bad
// entry fails only its own device.
type SubinterfaceSpec struct {
	Interface   string `yaml:"interface"`
	VLAN        int    `yaml:"vlan"`
	IPAddress   string `yaml:"ip_address" validate:"required,ipv4"`
	SubnetMask  string `yaml:"subnet_mask" validate:"required,ipv4"`
	Description string `yaml:"description"`
}

// VLANDefinition is an entry of the informational VLAN catalogue.
type VLANDefinition struct {
	ID          int    `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// VLANPlan is the parsed vlans.yml.
type VLANPlan struct {
	VLANs         []VLANDefinition              `yaml:"vlans"`
	Subinterfaces map[string][]SubinterfaceSpec `yaml:"router_subinterfaces"`
}

// Network is a network/wildcard pair used by routing protocols.
type Network struct {
	Network  string `yaml:"network" validate:"required,ipv4"`
	Wildcard string `yaml:"wildcard" validate:"required,ipv4"`
}

// OSPFArea groups the networks advertised into one area.
type OSPFArea struct {
	Area     string    `yaml:"area" validate:"required"`
	Networks []Network `yaml:"networks" validate:"dive"`
}

// OSPFConfig is the ospf section of routing.yml. Areas and router IDs are
// keyed by device name.
type OSPFConfig struct {
	Enabled   bool                  `yaml:"enabled"`
	ProcessID int                   `yaml:"process_id" validate:"required_if=Enabled true,gte=0,lte=65535"`
	RouterIDs map[string]string     `yaml:"router_id_map"`
	Areas     map[string][]OSPFArea `yaml:"areas"`
}

// EIGRPConfig is the eigrp section of routing.yml.
type EIGRPConfig struct {
	Enabled  bool                 `yaml:"enabled"`
	ASNumber int                  `yaml:"as_number" validate:"required_if=Enabled true,gte=0,lte=65535"`
	Networks map[string][]Network `yaml:"networks"`
}

// RoutingSpec is the parsed routing.yml. Either section may be absent.
type RoutingSpec struct {
	OSPF  *OSPFConfig  `yaml:"ospf"`
	EIGRP *EIGRPConfig `yaml:"eigrp"`
}

// OSPFEnabled reports whether the ospf section is present and enabled.
func (r RoutingSpec) OSPFEnabled() bool {
	return r.OSPF != nil && r.OSPF.Enabled
}

// EIGRPEnabled reports whether the eigrp section is present and enabled.
func (r RoutingSpec) EIGRPEnabled() bool {
	return r.EIGRP != nil && r.EIGRP.Enabled
}

// Devices returns every device name referenced by an enabled section.
func (r RoutingSpec) Devices() []string {
	var names []string
	if r.OSPFEnabled() {
		for name := range r.OSPF.Areas {
			names = append(names, name)
		}
		for name := range r.OSPF.RouterIDs {
			names = append(names, name)
		}
	}
	if r.EIGRPEnabled() {
		for name := range r.EIGRP.Networks {
			names = append(names, name)
		}
	}
	return names
}
