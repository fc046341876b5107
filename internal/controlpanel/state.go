// Package controlpanel implements the SafeHome keypad as a headless state
// machine with a two line display.
package controlpanel

import "fmt"

// State is the keypad state.
type State int

const (
	Offline State = iota
	Initialized
	FunctionMode
	PanelIDInput
	DigitInput
	Locked
	MasterPasswordChange1
	MasterPasswordChange2
	PanicMode
	RingingAlarm
)

var stateNames = [...]string{
	Offline:               "OFFLINE",
	Initialized:           "INITIALIZED",
	FunctionMode:          "FUNCTION_MODE",
	PanelIDInput:          "PANEL_ID_INPUT",
	DigitInput:            "DIGIT_INPUT",
	Locked:                "LOCKED",
	MasterPasswordChange1: "MASTER_PASSWORD_CHANGE_INPUT_1",
	MasterPasswordChange2: "MASTER_PASSWORD_CHANGE_INPUT_2",
	PanicMode:             "PANIC_MODE",
	RingingAlarm:          "RINGING_ALARM",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText encodes the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Display messages.
const (
	msgReady        = "System Ready"
	msgReadyHint    = "Press '6' for Function Mode"
	msgFunction     = "Function Mode"
	msgFunctionKeys = "1(ON) 2(OFF) 3(RST) 4(AWAY) 5(HOME) 7(Z-) 8(ARM/DISARM) 9(Z+) *(LOGIN) 0(Change Master Password) #(BACK)"
	msgTurnedOff    = "turn-off"
)

// Keys beyond the digits, '*' and '#'.
const (
	KeyPanic = "panic"
	KeyStar  = "*"
	KeyPound = "#"
)

// Display is what the keypad shows.
type Display struct {
	State    State  `json:"state"`
	Line1    string `json:"line1"`
	Line2    string `json:"line2"`
	Powered  bool   `json:"powered"`
	Armed    bool   `json:"armed"`
	Away     bool   `json:"away"`
	Home     bool   `json:"home"`
	Zone     int64  `json:"zone,omitempty"`
	ZoneName string `json:"zoneName,omitempty"`
}

// ValidKey reports whether key is one the keypad has.
func ValidKey(key string) bool {
	return isDigit(key) || key == KeyStar || key == KeyPound || key == KeyPanic
}
