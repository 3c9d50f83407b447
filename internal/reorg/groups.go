package reorg

import "fmt"

// Group classifies a variable for downstream consumers.
type Group uint8

const (
	GroupEssential Group = iota
	GroupEnv
	GroupOrient
	GroupSignal
	GroupAlt
	GroupEcho
	GroupSys
	GroupConfig
)

var groupNames = [...]string{
	GroupEssential: "_essential",
	GroupEnv:       "env",
	GroupOrient:    "orient",
	GroupSignal:    "signal",
	GroupAlt:       "alt",
	GroupEcho:      "echo",
	GroupSys:       "sys",
	GroupConfig:    "config",
}

func (g Group) String() string {
	if int(g) < len(groupNames) {
		return groupNames[g]
	}
	return fmt.Sprintf("group(%d)", uint8(g))
}

func (g Group) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// channel is a per-ensemble field copied from a head's dataset.
type channel struct {
	name  string
	group Group
}

// perEnsemble fields are present in every burst record.
var perEnsemble = []channel{
	{"c_sound", GroupEnv},
	{"temp", GroupEnv},
	{"press", GroupEnv},
	{"heading", GroupOrient},
	{"pitch", GroupOrient},
	{"roll", GroupOrient},
	{"temp_press", GroupEnv},
	{"batt_V", GroupSys},
	{"temp_mag", GroupEnv},
	{"temp_clock", GroupEnv},
	{"Mag", GroupOrient},
	{"Acc", GroupOrient},
	{"ambig_vel", GroupSys},
	{"xmit_energy", GroupSys},
	{"error", GroupSys},
	{"status0", GroupSys},
	{"status", GroupSys},
	{"ensemble", GroupSys},
}

// optional fields depend on the head's configuration flags.
var optional = []channel{
	{"vel", GroupEssential},
	{"amp", GroupSignal},
	{"corr", GroupSignal},
	{"alt_dist", GroupAlt},
	{"alt_quality", GroupAlt},
	{"alt_status", GroupAlt},
	{"ast_dist", GroupAlt},
	{"ast_quality", GroupAlt},
	{"ast_offset_time", GroupAlt},
	{"ast_pressure", GroupAlt},
	{"altraw_nsamp", GroupAlt},
	{"altraw_dist", GroupAlt},
	{"altraw_samp", GroupAlt},
	{"echo", GroupEcho},
	{"orientmat", GroupOrient},
	{"quaternion", GroupOrient},
	{"ahrs_gyro", GroupOrient},
	{"percent_good", GroupSignal},
	{"std_pitch", GroupOrient},
	{"std_roll", GroupOrient},
	{"std_heading", GroupOrient},
	{"std_press", GroupEnv},
}
