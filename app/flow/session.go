package flow

import "github.com/m3rciful/markerbot/app/marker"

// Name identifies one of the guided flows.
type Name string

// Flow names.
const (
	FlowAdd    Name = "add"
	FlowRename Name = "rename"
	FlowDelete Name = "delete"
)

// Step tags the point a flow is waiting at.
type Step string

// Steps, in the order the flows visit them.
const (
	StepAwaitCoordinates Step = "await_coordinates"
	StepAwaitLongitude   Step = "await_longitude"
	StepAwaitName        Step = "await_name"
	StepAwaitNodeType    Step = "await_node_type"
	StepAwaitFrequency   Step = "await_frequency"
	StepAwaitDescription Step = "await_description"
	StepAwaitLinkChoice  Step = "await_link_choice"
	StepAwaitLink        Step = "await_link"

	StepSelectTarget Step = "select_target"
	StepAwaitNewName Step = "await_new_name"
)

// Session is the value stored in the registry while a flow runs. The concrete types
// below are the only implementations.
type Session interface {
	Flow() Name
	Step() Step
	FlowID() string
	session()
}

// AddSession collects a marker field by field.
type AddSession struct {
	ID        string
	At        Step
	Lat       float64
	Lon       float64
	HasLat    bool
	HasLon    bool
	Name      string
	NodeType  string
	Frequency string
	Desc      string
	Link      string
}

// RenameSession holds the menu shown at entry and the chosen ordinal.
type RenameSession struct {
	ID       string
	At       Step
	Snapshot []marker.Marker
	Selected int
}

// DeleteSession holds the menu shown at entry.
type DeleteSession struct {
	ID       string
	At       Step
	Snapshot []marker.Marker
}

func (s AddSession) Flow() Name     { return FlowAdd }
func (s AddSession) Step() Step     { return s.At }
func (s AddSession) FlowID() string { return s.ID }
func (AddSession) session()         {}

func (s RenameSession) Flow() Name     { return FlowRename }
func (s RenameSession) Step() Step     { return s.At }
func (s RenameSession) FlowID() string { return s.ID }
func (RenameSession) session()         {}

func (s DeleteSession) Flow() Name     { return FlowDelete }
func (s DeleteSession) Step() Step     { return s.At }
func (s DeleteSession) FlowID() string { return s.ID }
func (DeleteSession) session()         {}
