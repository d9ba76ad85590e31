package capabilities

import (
	"github.com/mitchellh/mapstructure"
)

// BaseCapabilities is the typed view of the well-known capabilities the
// server itself consumes. Everything else stays in the raw accepted map and
// is passed through to the driver untouched.
type BaseCapabilities struct {
	PlatformName      string   `mapstructure:"platformName"`
	PlatformVersion   string   `mapstructure:"platformVersion"`
	BrowserName       string   `mapstructure:"browserName"`
	BrowserVersion    string   `mapstructure:"browserVersion"`
	AutomationName    string   `mapstructure:"automationName"`
	NewCommandTimeout *float64 `mapstructure:"newCommandTimeout"`
	EventTimings      bool     `mapstructure:"eventTimings"`
}

// Decode extracts the typed base capabilities from an accepted capability
// set. Unknown keys are ignored.
func Decode(caps map[string]any) (*BaseCapabilities, error) {
	base := &BaseCapabilities{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result: base,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(caps); err != nil {
		return nil, err
	}
	return base, nil
}
