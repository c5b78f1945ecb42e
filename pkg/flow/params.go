package flow

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Params is the typed parameter set of a node. Each node kind has exactly
// one implementation; UnknownParams stands in for unrecognised kinds.
type Params interface {
	Kind() Kind
}

// EntryParams configures a program entry. Name is the program (POU) name.
type EntryParams struct {
	Name string `mapstructure:"name"`
}

// MethodEntryParams configures a method entry.
type MethodEntryParams struct {
	Name       string   `mapstructure:"name"`
	ReturnType PortType `mapstructure:"returnType"`
	Owner      string   `mapstructure:"owner"`
}

// PropertyEntryParams configures one property accessor.
type PropertyEntryParams struct {
	Name     string   `mapstructure:"name"`
	Accessor string   `mapstructure:"accessor"`
	DataType PortType `mapstructure:"dataType"`
	Owner    string   `mapstructure:"owner"`
}

// IOParams configures a physical input or output mapped into the global
// variable list.
type IOParams struct {
	Variable string   `mapstructure:"variable"`
	DataType PortType `mapstructure:"dataType"`
	Address  string   `mapstructure:"address"`
	kind     Kind
}

// TimerParams configures a TON/TOF/TP timer.
type TimerParams struct {
	TimerType string `mapstructure:"timerType"`
	PresetMs  int    `mapstructure:"presetMs"`
}

// CounterParams configures a CTU/CTD/CTUD counter.
type CounterParams struct {
	CounterType string `mapstructure:"counterType"`
	Preset      int    `mapstructure:"preset"`
}

// ComparisonParams configures a comparison. Value is used for B when the B
// port is unconnected.
type ComparisonParams struct {
	Operator string  `mapstructure:"operator"`
	Value    float64 `mapstructure:"value"`
}

// IfParams has no settings; the condition arrives through COND.
type IfParams struct{}

// ForParams configures the loop bounds used when FROM/TO are unconnected.
type ForParams struct {
	From int `mapstructure:"from"`
	To   int `mapstructure:"to"`
}

// MethodCallParams names the called method and the constant arguments used
// for unconnected inputs.
type MethodCallParams struct {
	Method string `mapstructure:"method"`
	Cycles int    `mapstructure:"cycles"`
	Temp   int    `mapstructure:"temp"`
}

// VariableParams configures a read or write of a named variable.
type VariableParams struct {
	Variable string   `mapstructure:"variable"`
	DataType PortType `mapstructure:"dataType"`
	kind     Kind
}

// ReturnParams configures a return node.
type ReturnParams struct {
	ReturnType PortType `mapstructure:"returnType"`
}

// GroupParams is a purely visual frame around other nodes.
type GroupParams struct {
	Label string `mapstructure:"label"`
}

// UnknownParams keeps the raw parameters of a node whose kind is not
// recognised.
type UnknownParams struct {
	Name string
	Raw  map[string]any
}

func (EntryParams) Kind() Kind         { return KindEntry }
func (MethodEntryParams) Kind() Kind   { return KindMethodEntry }
func (PropertyEntryParams) Kind() Kind { return KindPropertyEntry }
func (p IOParams) Kind() Kind          { return p.kind }
func (TimerParams) Kind() Kind         { return KindTimer }
func (CounterParams) Kind() Kind       { return KindCounter }
func (ComparisonParams) Kind() Kind    { return KindComparison }
func (IfParams) Kind() Kind            { return KindIf }
func (ForParams) Kind() Kind           { return KindFor }
func (MethodCallParams) Kind() Kind    { return KindMethodCall }
func (p VariableParams) Kind() Kind    { return p.kind }
func (ReturnParams) Kind() Kind        { return KindReturn }
func (GroupParams) Kind() Kind         { return KindGroup }
func (p UnknownParams) Kind() Kind     { return Kind(p.Name) }

// NewIOParams builds parameters for an input or output node.
func NewIOParams(kind Kind, variable string, dt PortType) IOParams {
	return IOParams{Variable: variable, DataType: dt, kind: kind}
}

// NewVariableParams builds parameters for a varRead or varWrite node.
func NewVariableParams(kind Kind, variable string, dt PortType) VariableParams {
	return VariableParams{Variable: variable, DataType: dt, kind: kind}
}

// DataTypeOf returns the data type parameter of kinds whose port types are
// configurable. It defaults to BOOL, as the editor does.
func DataTypeOf(p Params) PortType {
	var dt PortType
	switch v := p.(type) {
	case PropertyEntryParams:
		dt = v.DataType
	case IOParams:
		dt = v.DataType
	case VariableParams:
		dt = v.DataType
	case ReturnParams:
		dt = v.ReturnType
	}
	if dt == "" {
		return TypeBool
	}
	return dt
}

var (
	timerTypes        = []string{"TON", "TOF", "TP"}
	counterTypes      = []string{"CTU", "CTD", "CTUD"}
	comparisonOps     = []string{"GT", "LT", "EQ", "GE", "LE", "NE"}
	propertyAccessors = []string{"GET", "SET"}
)

var qualifiedName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// checkIdent rejects names that cannot be emitted verbatim into Structured
// Text. Dotted names address members of other POUs.
func checkIdent(field, name string) error {
	if name == "" {
		return fmt.Errorf("%s is required", field)
	}
	if !qualifiedName.MatchString(name) {
		return fmt.Errorf("%s %q is not a valid identifier", field, name)
	}
	return nil
}

func oneOf(field, value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", field, strings.Join(allowed, "|"), value)
}

// DecodeParams turns a raw parameter bag into the typed parameters of kind.
// Defaults are applied and enumerated values checked. An unknown kind yields
// UnknownParams without error; validation rejects it.
func DecodeParams(kind Kind, raw map[string]any) (Params, error) {
	var (
		p   Params
		err error
	)
	switch kind {
	case KindEntry:
		v := EntryParams{}
		if err = decode(raw, &v); err == nil {
			if v.Name == "" {
				v.Name = "MAIN"
			}
			err = checkIdent("name", v.Name)
		}
		p = v
	case KindMethodEntry:
		v := MethodEntryParams{}
		if err = decode(raw, &v); err == nil {
			err = checkIdent("name", v.Name)
		}
		if v.ReturnType == "" {
			v.ReturnType = TypeBool
		}
		p = v
	case KindPropertyEntry:
		v := PropertyEntryParams{}
		if err = decode(raw, &v); err == nil {
			if v.Accessor == "" {
				v.Accessor = "GET"
			}
			v.Accessor = strings.ToUpper(v.Accessor)
			if err = checkIdent("name", v.Name); err == nil {
				err = oneOf("accessor", v.Accessor, propertyAccessors)
			}
		}
		if v.DataType == "" {
			v.DataType = TypeBool
		}
		p = v
	case KindInput, KindOutput:
		v := IOParams{kind: kind}
		if err = decode(raw, &v); err == nil && v.Variable != "" {
			err = checkIdent("variable", v.Variable)
		}
		if v.DataType == "" {
			v.DataType = TypeBool
		}
		p = v
	case KindTimer:
		v := TimerParams{}
		if err = decode(raw, &v); err == nil {
			if v.TimerType == "" {
				v.TimerType = "TON"
			}
			err = oneOf("timerType", v.TimerType, timerTypes)
		}
		p = v
	case KindCounter:
		v := CounterParams{}
		if err = decode(raw, &v); err == nil {
			if v.CounterType == "" {
				v.CounterType = "CTU"
			}
			err = oneOf("counterType", v.CounterType, counterTypes)
		}
		p = v
	case KindComparison:
		v := ComparisonParams{}
		if err = decode(raw, &v); err == nil {
			if v.Operator == "" {
				v.Operator = "GT"
			}
			v.Operator = strings.ToUpper(v.Operator)
			err = oneOf("operator", v.Operator, comparisonOps)
		}
		p = v
	case KindIf:
		p = IfParams{}
	case KindFor:
		v := ForParams{}
		err = decode(raw, &v)
		p = v
	case KindMethodCall:
		v := MethodCallParams{}
		if err = decode(raw, &v); err == nil {
			err = checkIdent("method", v.Method)
		}
		p = v
	case KindVarRead, KindVarWrite:
		v := VariableParams{kind: kind}
		if err = decode(raw, &v); err == nil {
			err = checkIdent("variable", v.Variable)
		}
		if v.DataType == "" {
			v.DataType = TypeBool
		}
		p = v
	case KindReturn:
		v := ReturnParams{}
		err = decode(raw, &v)
		if v.ReturnType == "" {
			v.ReturnType = TypeBool
		}
		p = v
	case KindGroup:
		v := GroupParams{}
		err = decode(raw, &v)
		p = v
	default:
		return UnknownParams{Name: string(kind), Raw: raw}, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// decode runs mapstructure with weak typing so that numbers sent as strings
// ("5000") and IEC type names ("BOOL") are accepted.
func decode(raw map[string]any, out any) error {
	if len(raw) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
		DecodeHook:       portTypeHook,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

func portTypeHook(from, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(PortType("")) || from.Kind() != reflect.String {
		return data, nil
	}
	s := reflect.ValueOf(data).String()
	if s == "" {
		return PortType(""), nil
	}
	return ParsePortType(s)
}
