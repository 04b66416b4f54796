package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Sample represents a single (time, value) history sample
type Sample struct {
	Time  float64
	Value float64
}

// MarshalJSON encodes a sample as a [time, value] pair
func (s Sample) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{s.Time, s.Value})
}

// UnmarshalJSON decodes a [time, value] pair
func (s *Sample) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("sample must be a [time, value] pair: %w", err)
	}
	s.Time, s.Value = pair[0], pair[1]
	return nil
}

// Series is a time-ordered sequence of samples for one channel
type Series []Sample

// Times returns the time column
func (s Series) Times() []float64 {
	out := make([]float64, len(s))
	for i, sample := range s {
		out[i] = sample.Time
	}
	return out
}

// Values returns the value column
func (s Series) Values() []float64 {
	out := make([]float64, len(s))
	for i, sample := range s {
		out[i] = sample.Value
	}
	return out
}

// Role identifies a reference point of the wheel model
type Role int

const (
	RoleLower Role = iota
	RoleUpper
	RoleRoad
)

// Roles lists every role in processing order
var Roles = []Role{RoleLower, RoleUpper, RoleRoad}

func (r Role) String() string {
	switch r {
	case RoleLower:
		return "LOWER"
	case RoleUpper:
		return "UPPER"
	case RoleRoad:
		return "ROAD"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// IsLoad reports whether the role records reaction forces and moments
func (r Role) IsLoad() bool {
	return r == RoleLower || r == RoleUpper
}

// Codes returns the history variables recorded for the role
func (r Role) Codes() []Code {
	if r.IsLoad() {
		return LoadCodes
	}
	return DisplacementCodes
}

// Code is a physical-quantity history variable (RF1, U2, ...)
type Code int

const (
	CodeRF1 Code = iota
	CodeRF2
	CodeRF3
	CodeRM1
	CodeRM2
	CodeRM3
	CodeU1
	CodeU2
	CodeU3
)

var (
	// LoadCodes are read at the LOWER and UPPER rim reference points
	LoadCodes = []Code{CodeRF1, CodeRF2, CodeRF3, CodeRM1, CodeRM2, CodeRM3}
	// DisplacementCodes are read at the ROAD reference point
	DisplacementCodes = []Code{CodeU1, CodeU2, CodeU3}
)

var codeNames = [...]string{"RF1", "RF2", "RF3", "RM1", "RM2", "RM3", "U1", "U2", "U3"}

// codeChannels maps each variable to the output channel it feeds
var codeChannels = [...]Channel{
	ChannelFX, ChannelFYW, ChannelFZW,
	ChannelMXW, ChannelMYW, ChannelMZW,
	ChannelU1, ChannelU2, ChannelU3,
}

// String returns the variable name as recorded in the result file
func (c Code) String() string {
	if c < 0 || int(c) >= len(codeNames) {
		return fmt.Sprintf("Code(%d)", int(c))
	}
	return codeNames[c]
}

// Channel returns the derived output channel fed by this variable. Unknown
// codes map to an invalid channel.
func (c Code) Channel() Channel {
	if c < 0 || int(c) >= len(codeChannels) {
		return Channel(-1)
	}
	return codeChannels[c]
}

// Channel is a derived output quantity written to the final CSV files
type Channel int

const (
	ChannelFX Channel = iota
	ChannelFYW
	ChannelFZW
	ChannelMXW
	ChannelMYW
	ChannelMZW
	ChannelU1
	ChannelU2
	ChannelU3
)

var (
	// LoadChannels are the wheel-axis force and moment channels
	LoadChannels = []Channel{ChannelFX, ChannelFYW, ChannelFZW, ChannelMXW, ChannelMYW, ChannelMZW}
	// DisplacementChannels are the road displacement channels
	DisplacementChannels = []Channel{ChannelU1, ChannelU2, ChannelU3}
)

var channelNames = [...]string{"FX", "FYW", "FZW", "MXW", "MYW", "MZW", "U1", "U2", "U3"}

func (c Channel) String() string {
	if c < 0 || int(c) >= len(channelNames) {
		return fmt.Sprintf("Channel(%d)", int(c))
	}
	return channelNames[c]
}

// FileName returns the final CSV file name for the channel
func (c Channel) FileName() string {
	return c.String() + ".csv"
}

// RawKey identifies a raw channel extracted from one step. Step is the
// step's position in the result.
type RawKey struct {
	Step     int
	StepName string
	Role     Role
	Code     Code
}

// FileName returns the intermediate CSV file name, <step>_<ROLE>_<code>.csv.
// Path separators in the step name become "_" and the step position is
// appended ("a/b" at position 1 gives "a_b#1").
func (k RawKey) FileName() string {
	step := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, k.StepName)
	if step != k.StepName {
		step = fmt.Sprintf("%s#%d", step, k.Step)
	}
	return fmt.Sprintf("%s_%s_%s.csv", step, k.Role, k.Code)
}

// Entry kinds of the history export format
const (
	KindStep    = "step"
	KindNodeSet = "nodeset"
	KindHistory = "history"
)

// ExportEntry represents one line of a history export
type ExportEntry struct {
	Kind     string `json:"kind"`
	Step     string `json:"step,omitempty"`
	Instance string `json:"instance,omitempty"`
	Name     string `json:"name,omitempty"`
	Nodes    []int  `json:"nodes,omitempty"`
	Node     int    `json:"node,omitempty"`
	Variable string `json:"variable,omitempty"`
	Data     Series `json:"data,omitempty"`
}

// NodeSetRecord describes a named node set of a part instance
type NodeSetRecord struct {
	Instance string
	Name     string
	Nodes    []int
}

// HistoryRecord holds one history output recorded at a node during a step
type HistoryRecord struct {
	Step     string
	Instance string
	Node     int
	Variable string
	Data     Series
}

// ImportRequest represents a load request to the result store
type ImportRequest struct {
	Steps    []string
	NodeSets []NodeSetRecord
	History  []HistoryRecord
}

// Entries flattens the request into export entries, steps first
func (r *ImportRequest) Entries() []ExportEntry {
	entries := make([]ExportEntry, 0, len(r.Steps)+len(r.NodeSets)+len(r.History))
	for _, step := range r.Steps {
		entries = append(entries, ExportEntry{Kind: KindStep, Step: step})
	}
	for _, ns := range r.NodeSets {
		entries = append(entries, ExportEntry{Kind: KindNodeSet, Instance: ns.Instance, Name: ns.Name, Nodes: ns.Nodes})
	}
	for _, h := range r.History {
		entries = append(entries, ExportEntry{
			Kind:     KindHistory,
			Step:     h.Step,
			Instance: h.Instance,
			Node:     h.Node,
			Variable: h.Variable,
			Data:     h.Data,
		})
	}
	return entries
}

// Add appends an export entry to the request
func (r *ImportRequest) Add(e *ExportEntry) error {
	switch e.Kind {
	case KindStep:
		r.Steps = append(r.Steps, e.Step)
	case KindNodeSet:
		r.NodeSets = append(r.NodeSets, NodeSetRecord{Instance: e.Instance, Name: e.Name, Nodes: e.Nodes})
	case KindHistory:
		r.History = append(r.History, HistoryRecord{
			Step:     e.Step,
			Instance: e.Instance,
			Node:     e.Node,
			Variable: e.Variable,
			Data:     e.Data,
		})
	default:
		return fmt.Errorf("unknown export entry kind %q", e.Kind)
	}
	return nil
}
