package domain

import "strings"

// Location is a hierarchical asset descriptor. PlantCode is the root; each
// further code narrows the scope. An empty code means "not specified".
type Location struct {
	PlantCode   string
	AreaCode    string
	LineCode    string
	MachineCode string
}

// IsZero reports whether no code is set at all.
func (l Location) IsZero() bool {
	return l.PlantCode == "" && l.AreaCode == "" && l.LineCode == "" && l.MachineCode == ""
}

// Covers reports whether l, treated as an approval-rule scope, is a prefix of
// target. A plant-only scope covers every area/line/machine under that plant;
// a scope with area and line covers only that exact area/line or narrower. A
// fully empty scope covers every location.
func (l Location) Covers(target Location) bool {
	if l.PlantCode != "" && l.PlantCode != target.PlantCode {
		return false
	}
	if l.AreaCode != "" && l.AreaCode != target.AreaCode {
		return false
	}
	if l.LineCode != "" && l.LineCode != target.LineCode {
		return false
	}
	if l.MachineCode != "" && l.MachineCode != target.MachineCode {
		return false
	}
	return true
}

// Code renders the composite location code used in Cedar WO records.
func (l Location) Code() string {
	parts := []string{l.PlantCode, l.AreaCode, l.LineCode, l.MachineCode}
	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return strings.Join(parts, "-")
}
