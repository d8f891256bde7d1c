// Package computeruse defines the desktop tools offered to the model and
// dispatches the calls it makes.
package computeruse

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/deskpilot/internal/agent"
	"github.com/haasonsaas/deskpilot/internal/screen"
)

// Tool names.
const (
	ToolScreenshot = "screenshot"
	ToolClick      = "click"
	ToolTypeText   = "type_text"
	ToolPressKey   = "press_key"
	ToolScroll     = "scroll"
	ToolMouseMove  = "mouse_move"
	ToolDrag       = "drag"
	ToolWait       = "wait"
)

// Argument defaults.
const (
	DefaultClicks       = 1
	DefaultScrollAmount = 3
	DefaultWaitSeconds  = 2.0
)

// Specs returns the tool contract for a display. Coordinates are described in
// the scaled space the model sees.
func Specs(geo screen.Geometry) []agent.ToolSpec {
	xDesc := fmt.Sprintf("X coordinate (0-%d)", geo.ScaledWidth-1)
	yDesc := fmt.Sprintf("Y coordinate (0-%d)", geo.ScaledHeight-1)
	coord := func(name, desc string) agent.Param {
		return agent.Param{Name: name, Type: agent.ParamInteger, Description: desc, Required: true}
	}

	return []agent.ToolSpec{
		{
			Name:        ToolScreenshot,
			Description: "Capture the current screen without doing anything else.",
		},
		{
			Name:        ToolClick,
			Description: fmt.Sprintf("Click at a position on the %dx%d screenshot.", geo.ScaledWidth, geo.ScaledHeight),
			Params: []agent.Param{
				coord("x", xDesc),
				coord("y", yDesc),
				{Name: "button", Type: agent.ParamString, Description: "Mouse button", Enum: []string{"left", "right", "middle"}, Default: "left"},
				{Name: "clicks", Type: agent.ParamInteger, Description: "Number of clicks, 2 for a double click", Default: DefaultClicks},
			},
		},
		{
			Name:        ToolTypeText,
			Description: "Type text into the focused element. Supports any characters.",
			Params: []agent.Param{
				{Name: "text", Type: agent.ParamString, Description: "Text to type", Required: true},
			},
		},
		{
			Name:        ToolPressKey,
			Description: "Press a key or a key combination such as enter, ctrl+c, alt+tab or win.",
			Params: []agent.Param{
				{Name: "keys", Type: agent.ParamString, Description: "Keys joined with +", Required: true},
			},
		},
		{
			Name:        ToolScroll,
			Description: "Scroll the mouse wheel at a position.",
			Params: []agent.Param{
				coord("x", xDesc),
				coord("y", yDesc),
				{Name: "direction", Type: agent.ParamString, Description: "Scroll direction", Required: true, Enum: []string{"up", "down"}},
				{Name: "amount", Type: agent.ParamInteger, Description: "Wheel notches", Default: DefaultScrollAmount},
			},
		},
		{
			Name:        ToolMouseMove,
			Description: "Move the pointer without clicking, for example to reveal a tooltip.",
			Params: []agent.Param{
				coord("x", xDesc),
				coord("y", yDesc),
			},
		},
		{
			Name:        ToolDrag,
			Description: "Press the left button at the start point, drag to the end point and release.",
			Params: []agent.Param{
				coord("start_x", "Start "+xDesc),
				coord("start_y", "Start "+yDesc),
				coord("end_x", "End "+xDesc),
				coord("end_y", "End "+yDesc),
			},
		},
		{
			Name:        ToolWait,
			Description: "Wait for the screen to settle, for example while an application loads.",
			Params: []agent.Param{
				{Name: "seconds", Type: agent.ParamNumber, Description: "Seconds to wait", Default: DefaultWaitSeconds},
			},
		},
	}
}

// Catalog is the immutable tool registry with compiled argument schemas.
type Catalog struct {
	geometry screen.Geometry
	specs    []agent.ToolSpec
	index    map[string]int
	schemas  map[string]*jsonschema.Schema
}

// NewCatalog builds the registry for geo.
func NewCatalog(geo screen.Geometry) (*Catalog, error) {
	specs := Specs(geo)
	c := &Catalog{
		geometry: geo,
		specs:    specs,
		index:    make(map[string]int, len(specs)),
		schemas:  make(map[string]*jsonschema.Schema, len(specs)),
	}
	for i, spec := range specs {
		compiled, err := jsonschema.CompileString(spec.Name+".schema.json", string(spec.Schema()))
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", spec.Name, err)
		}
		c.index[spec.Name] = i
		c.schemas[spec.Name] = compiled
	}
	return c, nil
}

// Specs returns the tools in their fixed order.
func (c *Catalog) Specs() []agent.ToolSpec {
	return append([]agent.ToolSpec(nil), c.specs...)
}

// Lookup finds a tool by name.
func (c *Catalog) Lookup(name string) (agent.ToolSpec, bool) {
	i, ok := c.index[name]
	if !ok {
		return agent.ToolSpec{}, false
	}
	return c.specs[i], true
}

// Geometry returns the display the catalog was built for.
func (c *Catalog) Geometry() screen.Geometry {
	return c.geometry
}

// Arguments decodes and validates raw arguments for a known tool. Input that
// is not a JSON object degrades to empty arguments. An object that fails
// validation is still returned so each bad field falls back to its own
// default; the error explains what was wrong.
func (c *Catalog) Arguments(name string, raw json.RawMessage) (Args, error) {
	schema, ok := c.schemas[name]
	if !ok {
		return Args{}, fmt.Errorf("unknown tool %q", name)
	}
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Args{}, fmt.Errorf("parse arguments: %w", err)
	}
	fields, ok := decoded.(map[string]any)
	if !ok {
		return Args{}, fmt.Errorf("arguments are %T, want an object", decoded)
	}
	if err := schema.Validate(decoded); err != nil {
		return Args(fields), fmt.Errorf("validate arguments: %w", err)
	}
	return Args(fields), nil
}

// Args are decoded tool arguments. Accessors fall back to a default when a
// field is absent or has the wrong type.
type Args map[string]any

// Int reads an integer field, rounding fractional numbers.
func (a Args) Int(name string, def int) int {
	if v, ok := a[name].(float64); ok {
		return int(math.Round(v))
	}
	return def
}

// Number reads a numeric field.
func (a Args) Number(name string, def float64) float64 {
	if v, ok := a[name].(float64); ok {
		return v
	}
	return def
}

// String reads a string field.
func (a Args) String(name, def string) string {
	if v, ok := a[name].(string); ok {
		return v
	}
	return def
}
