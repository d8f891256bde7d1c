package computeruse

import (
	"strings"

	"github.com/haasonsaas/deskpilot/internal/input"
	"github.com/haasonsaas/deskpilot/internal/screen"
)

// ClickArgs are the arguments of the click tool, in scaled coordinates.
type ClickArgs struct {
	X, Y   int
	Button input.Button
	Clicks int
}

// TypeTextArgs are the arguments of the type_text tool.
type TypeTextArgs struct {
	Text string
}

// PressKeyArgs are the arguments of the press_key tool.
type PressKeyArgs struct {
	Keys []string
}

// ScrollArgs are the arguments of the scroll tool.
type ScrollArgs struct {
	X, Y      int
	Direction string
	Amount    int
}

// Clicks returns the signed wheel notches: positive scrolls up.
func (a ScrollArgs) Clicks() int {
	if a.Direction == "up" {
		return a.Amount
	}
	return -a.Amount
}

// MoveArgs are the arguments of the mouse_move tool.
type MoveArgs struct {
	X, Y int
}

// DragArgs are the arguments of the drag tool.
type DragArgs struct {
	StartX, StartY int
	EndX, EndY     int
}

// WaitArgs are the arguments of the wait tool.
type WaitArgs struct {
	Seconds float64
}

func decodeClick(a Args) ClickArgs {
	button := input.Button(strings.ToLower(a.String("button", string(input.ButtonLeft))))
	if !button.Valid() {
		button = input.ButtonLeft
	}
	clicks := a.Int("clicks", DefaultClicks)
	if clicks < 1 {
		clicks = DefaultClicks
	}
	return ClickArgs{X: a.Int("x", 0), Y: a.Int("y", 0), Button: button, Clicks: clicks}
}

func decodeTypeText(a Args) TypeTextArgs {
	return TypeTextArgs{Text: a.String("text", "")}
}

func decodePressKey(a Args) PressKeyArgs {
	return PressKeyArgs{Keys: NormalizeKeys(a.String("keys", ""))}
}

// decodeScroll defaults the position to the middle of the screen.
func decodeScroll(a Args, geo screen.Geometry) ScrollArgs {
	cx, cy := geo.Center()
	direction := strings.ToLower(a.String("direction", "down"))
	if direction != "up" {
		direction = "down"
	}
	amount := a.Int("amount", DefaultScrollAmount)
	if amount < 1 {
		amount = DefaultScrollAmount
	}
	return ScrollArgs{X: a.Int("x", cx), Y: a.Int("y", cy), Direction: direction, Amount: amount}
}

func decodeMove(a Args) MoveArgs {
	return MoveArgs{X: a.Int("x", 0), Y: a.Int("y", 0)}
}

func decodeDrag(a Args) DragArgs {
	return DragArgs{
		StartX: a.Int("start_x", 0),
		StartY: a.Int("start_y", 0),
		EndX:   a.Int("end_x", 0),
		EndY:   a.Int("end_y", 0),
	}
}

func decodeWait(a Args) WaitArgs {
	seconds := a.Number("seconds", DefaultWaitSeconds)
	if seconds < 0 {
		seconds = 0
	}
	return WaitArgs{Seconds: seconds}
}
