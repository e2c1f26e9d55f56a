// Package commands turns declarative intent into ordered Cisco IOS command
// sequences. Every function here is pure: identical input always yields a
// byte-identical command list.
package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/madupadilshan/Network-Automation/internal/inventory"
)

// Read-only and persistence commands issued by the workflows.
const (
	ShowRunningConfig     = "show running-config"
	ShowVersion           = "show version | include Version"
	ShowHostname          = "show run | include hostname"
	ShowInterfaceBrief    = `show ip interface brief`
	ShowSubinterfaceBrief = `show ip interface brief | include \.`
	ShowIPRoute           = "show ip route"
	ShowIPSSH             = "show ip ssh"
	ShowUsers             = "show run | include username"
	WriteMemory           = "write memory"
)

const (
	MinVLAN = 1
	MaxVLAN = 4094
)

// ValidationError reports declarative input the generator refuses to render.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// Interface renders one physical interface. Address and description always
// precede the admin-state command.
func Interface(spec inventory.InterfaceSpec) ([]string, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return nil, &ValidationError{Field: "interface", Value: spec.Name, Reason: "name is required"}
	}
	cmds := []string{
		"interface " + name,
		fmt.Sprintf("ip address %s %s", spec.IPAddress, spec.SubnetMask),
		"description " + spec.Description,
	}
	if spec.IsEnabled() {
		cmds = append(cmds, "no shutdown")
	} else {
		cmds = append(cmds, "shutdown")
	}
	return cmds, nil
}

// Subinterface renders a dot1Q subinterface. The subinterface is always
// enabled.
func Subinterface(spec inventory.SubinterfaceSpec) ([]string, error) {
	if spec.VLAN < MinVLAN || spec.VLAN > MaxVLAN {
		return nil, &ValidationError{
			Field:  "vlan",
			Value:  strconv.Itoa(spec.VLAN),
			Reason: fmt.Sprintf("must be between %d and %d", MinVLAN, MaxVLAN),
		}
	}
	physical := PhysicalInterface(spec.Interface)
	if physical == "" {
		return nil, &ValidationError{Field: "interface", Value: spec.Interface, Reason: "physical interface is required"}
	}
	return []string{
		fmt.Sprintf("interface %s.%d", physical, spec.VLAN),
		fmt.Sprintf("encapsulation dot1Q %d", spec.VLAN),
		fmt.Sprintf("ip address %s %s", spec.IPAddress, spec.SubnetMask),
		"description " + spec.Description,
		"no shutdown",
	}, nil
}

// PhysicalInterface strips a trailing ".<vlan>" so both "Gi0/1" and
// "Gi0/1.10" name the same parent.
func PhysicalInterface(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndex(name, "."); i >= 0 {
		if _, err := strconv.Atoi(name[i+1:]); err == nil {
			return name[:i]
		}
	}
	return name
}

// OSPF renders the OSPF process for one device. Networks keep the order
// they were written in; areas are not regrouped. A device with neither a
// router ID nor areas gets no commands.
func OSPF(device string, cfg inventory.OSPFConfig) []string {
	routerID, hasRouterID := cfg.RouterIDs[device]
	areas := cfg.Areas[device]
	if !hasRouterID && len(areas) == 0 {
		return nil
	}
	cmds := []string{fmt.Sprintf("router ospf %d", cfg.ProcessID)}
	if hasRouterID && strings.TrimSpace(routerID) != "" {
		cmds = append(cmds, "router-id "+strings.TrimSpace(routerID))
	}
	for _, area := range areas {
		for _, n := range area.Networks {
			cmds = append(cmds, fmt.Sprintf("network %s %s area %s", n.Network, n.Wildcard, area.Area))
		}
	}
	return cmds
}

// EIGRP renders the EIGRP process for one device. Auto-summary is always
// disabled.
func EIGRP(device string, cfg inventory.EIGRPConfig) []string {
	networks, ok := cfg.Networks[device]
	if !ok {
		return nil
	}
	cmds := []string{
		fmt.Sprintf("router eigrp %d", cfg.ASNumber),
		"no auto-summary",
	}
	for _, n := range networks {
		cmds = append(cmds, fmt.Sprintf("network %s %s", n.Network, n.Wildcard))
	}
	return cmds
}
