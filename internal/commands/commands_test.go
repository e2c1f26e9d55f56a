package commands

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/madupadilshan/Network-Automation/internal/inventory"
)

func boolPtr(v bool) *bool { return &v }

func TestInterfaceOrdering(t *testing.T) {
	tests := []struct {
		name    string
		enabled *bool
		last    string
	}{
		{name: "default enabled", enabled: nil, last: "no shutdown"},
		{name: "explicit enabled", enabled: boolPtr(true), last: "no shutdown"},
		{name: "disabled", enabled: boolPtr(false), last: "shutdown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmds, err := Interface(inventory.InterfaceSpec{
				Name:        "GigabitEthernet0/0",
				IPAddress:   "10.1.1.1",
				SubnetMask:  "255.255.255.0",
				Description: "LAN Link",
				Enabled:     tt.enabled,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			want := []string{
				"interface GigabitEthernet0/0",
				"ip address 10.1.1.1 255.255.255.0",
				"description LAN Link",
				tt.last,
			}
			if !reflect.DeepEqual(cmds, want) {
				t.Fatalf("got %q, want %q", cmds, want)
			}
		})
	}
}

func TestInterfaceAttributesPrecedeAdminState(t *testing.T) {
	cmds, err := Interface(inventory.InterfaceSpec{Name: "Gi0/1", IPAddress: "1.1.1.1", SubnetMask: "255.0.0.0"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	adminIdx, addrIdx, descIdx := -1, -1, -1
	for i, c := range cmds {
		switch {
		case strings.HasPrefix(c, "ip address"):
			addrIdx = i
		case strings.HasPrefix(c, "description"):
			descIdx = i
		case c == "shutdown" || c == "no shutdown":
			adminIdx = i
		}
	}
	if addrIdx < 0 || descIdx < 0 || adminIdx < 0 {
		t.Fatalf("missing commands in %q", cmds)
	}
	if addrIdx > adminIdx || descIdx > adminIdx {
		t.Fatalf("admin state must come last: %q", cmds)
	}
}

func TestInterfaceRequiresName(t *testing.T) {
	cmds, err := Interface(inventory.InterfaceSpec{Name: "  "})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if cmds != nil {
		t.Fatalf("expected no commands, got %q", cmds)
	}
}

func TestSubinterface(t *testing.T) {
	for _, iface := range []string{"GigabitEthernet0/1", "GigabitEthernet0/1.10"} {
		cmds, err := Subinterface(inventory.SubinterfaceSpec{
			Interface:   iface,
			VLAN:        10,
			IPAddress:   "192.168.10.1",
			SubnetMask:  "255.255.255.0",
			Description: "Users VLAN",
		})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", iface, err)
		}
		want := []string{
			"interface GigabitEthernet0/1.10",
			"encapsulation dot1Q 10",
			"ip address 192.168.10.1 255.255.255.0",
			"description Users VLAN",
			"no shutdown",
		}
		if !reflect.DeepEqual(cmds, want) {
			t.Fatalf("%s: got %q, want %q", iface, cmds, want)
		}
	}
}

func TestSubinterfaceVLANRange(t *testing.T) {
	for _, vlan := range []int{-1, 0, 4095, 5000} {
		cmds, err := Subinterface(inventory.SubinterfaceSpec{Interface: "Gi0/1", VLAN: vlan})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("vlan %d: expected ValidationError, got %v", vlan, err)
		}
		if vErr.Field != "vlan" {
			t.Fatalf("vlan %d: unexpected field %q", vlan, vErr.Field)
		}
		if len(cmds) != 0 {
			t.Fatalf("vlan %d: expected no commands, got %q", vlan, cmds)
		}
	}
	for _, vlan := range []int{1, 4094} {
		if _, err := Subinterface(inventory.SubinterfaceSpec{Interface: "Gi0/1", VLAN: vlan}); err != nil {
			t.Fatalf("vlan %d should be accepted: %v", vlan, err)
		}
	}
}

func TestSubinterfaceRequiresPhysical(t *testing.T) {
	_, err := Subinterface(inventory.SubinterfaceSpec{Interface: "", VLAN: 10})
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "interface" {
		t.Fatalf("expected interface ValidationError, got %v", err)
	}
}

func TestOSPFWithoutRouterID(t *testing.T) {
	cfg := inventory.OSPFConfig{
		Enabled:   true,
		ProcessID: 1,
		RouterIDs: map[string]string{},
		Areas: map[string][]inventory.OSPFArea{
			"R1": {{Area: "0", Networks: []inventory.Network{{Network: "10.0.0.0", Wildcard: "0.0.0.255"}}}},
		},
	}
	got := OSPF("R1", cfg)
	want := []string{"router ospf 1", "network 10.0.0.0 0.0.0.255 area 0"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestOSPFPreservesInputOrder(t *testing.T) {
	cfg := inventory.OSPFConfig{
		ProcessID: 10,
		RouterIDs: map[string]string{"R2": "2.2.2.2"},
		Areas: map[string][]inventory.OSPFArea{
			"R2": {
				{Area: "1", Networks: []inventory.Network{{Network: "172.16.1.0", Wildcard: "0.0.0.255"}}},
				{Area: "0", Networks: []inventory.Network{
					{Network: "10.0.12.0", Wildcard: "0.0.0.3"},
					{Network: "10.0.0.0", Wildcard: "0.0.0.255"},
				}},
			},
		},
	}
	want := []string{
		"router ospf 10",
		"router-id 2.2.2.2",
		"network 172.16.1.0 0.0.0.255 area 1",
		"network 10.0.12.0 0.0.0.3 area 0",
		"network 10.0.0.0 0.0.0.255 area 0",
	}
	first := OSPF("R2", cfg)
	if !reflect.DeepEqual(first, want) {
		t.Fatalf("got %q, want %q", first, want)
	}
	for i := 0; i < 5; i++ {
		if again := OSPF("R2", cfg); strings.Join(again, "\n") != strings.Join(first, "\n") {
			t.Fatalf("run %d differs: %q vs %q", i, again, first)
		}
	}
}

func TestOSPFUnknownDeviceIsEmpty(t *testing.T) {
	cfg := inventory.OSPFConfig{ProcessID: 1, Areas: map[string][]inventory.OSPFArea{"R1": {}}}
	if got := OSPF("R3", cfg); len(got) != 0 {
		t.Fatalf("expected no commands for unmapped device, got %q", got)
	}
}

func TestEIGRP(t *testing.T) {
	cfg := inventory.EIGRPConfig{
		Enabled:  true,
		ASNumber: 100,
		Networks: map[string][]inventory.Network{
			"R1": {
				{Network: "10.0.0.0", Wildcard: "0.0.0.255"},
				{Network: "192.168.1.0", Wildcard: "0.0.0.255"},
			},
		},
	}
	want := []string{
		"router eigrp 100",
		"no auto-summary",
		"network 10.0.0.0 0.0.0.255",
		"network 192.168.1.0 0.0.0.255",
	}
	first := EIGRP("R1", cfg)
	if !reflect.DeepEqual(first, want) {
		t.Fatalf("got %q, want %q", first, want)
	}
	if again := EIGRP("R1", cfg); !reflect.DeepEqual(again, first) {
		t.Fatalf("EIGRP not deterministic: %q vs %q", again, first)
	}
	if got := EIGRP("R2", cfg); len(got) != 0 {
		t.Fatalf("expected no commands for unmapped device, got %q", got)
	}
}

func TestPhysicalInterface(t *testing.T) {
	tests := map[string]string{
		"GigabitEthernet0/1":    "GigabitEthernet0/1",
		"GigabitEthernet0/1.10": "GigabitEthernet0/1",
		" Fa0/0.200 ":           "Fa0/0",
		"Port-channel1.x":       "Port-channel1.x",
	}
	for in, want := range tests {
		if got := PhysicalInterface(in); got != want {
			t.Errorf("PhysicalInterface(%q) = %q, want %q", in, got, want)
		}
	}
}
