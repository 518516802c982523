package flags

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

const (
	toggleTrueCanonicalValue  = "true"
	toggleFalseCanonicalValue = "false"
	toggleTypeNameConstant    = "bool"
	toggleParseErrorTemplate  = "invalid toggle value %q"
	toggleUsageTemplate       = "%s (default %s)"
	toggleDefaultYesConstant  = "yes"
	toggleDefaultNoConstant   = "no"
)

var (
	trueLiteralSet  = map[string]struct{}{toggleTrueCanonicalValue: {}, "yes": {}, "on": {}, "1": {}, "y": {}}
	falseLiteralSet = map[string]struct{}{toggleFalseCanonicalValue: {}, "no": {}, "off": {}, "0": {}, "n": {}}
)

// AddToggleFlag registers a boolean flag accepting yes/no style values. A bare --name means yes;
// explicit values use --name=no.
func AddToggleFlag(flagSet *pflag.FlagSet, target *bool, name string, defaultValue bool, usage string) {
	*target = defaultValue
	flagSet.Var(&toggleFlagValue{target: target}, name, formatToggleUsage(usage, defaultValue))
	flagSet.Lookup(name).NoOptDefVal = toggleTrueCanonicalValue
}

func formatToggleUsage(description string, defaultValue bool) string {
	defaultLabel := toggleDefaultNoConstant
	if defaultValue {
		defaultLabel = toggleDefaultYesConstant
	}
	return fmt.Sprintf(toggleUsageTemplate, strings.TrimSpace(description), defaultLabel)
}

type toggleFlagValue struct {
	target *bool
}

func (value *toggleFlagValue) Set(rawValue string) error {
	normalizedValue := strings.ToLower(strings.TrimSpace(rawValue))
	if _, isTrue := trueLiteralSet[normalizedValue]; isTrue {
		*value.target = true
		return nil
	}
	if _, isFalse := falseLiteralSet[normalizedValue]; isFalse {
		*value.target = false
		return nil
	}
	return fmt.Errorf(toggleParseErrorTemplate, rawValue)
}

func (value *toggleFlagValue) String() string {
	if value == nil || value.target == nil || !*value.target {
		return toggleFalseCanonicalValue
	}
	return toggleTrueCanonicalValue
}

func (value *toggleFlagValue) Type() string {
	return toggleTypeNameConstant
}
