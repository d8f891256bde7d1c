package computeruse

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func TestParseConfirmation(t *testing.T) {
	tests := map[string]bool{
		"":       true,
		"\n":     true,
		"y":      true,
		"Yes\n":  true,
		" YES ":  true,
		"n":      false,
		"no":     false,
		"yep":    false,
		"maybe ": false,
	}
	for in, want := range tests {
		if got := ParseConfirmation(in); got != want {
			t.Errorf("ParseConfirmation(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestConsoleConfirmer(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    bool
		wantErr bool
	}{
		{name: "enter accepts", input: "\n", want: true},
		{name: "yes", input: "y\n", want: true},
		{name: "no", input: "n\n", want: false},
		{name: "answer without newline", input: "no", want: false},
		{name: "closed input", input: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out strings.Builder
			c := NewConsoleConfirmer(strings.NewReader(tt.input), &out)

			got, err := c.Confirm(context.Background(), ToolClick, "(1, 2)")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Confirm() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Confirm() = %v, want %v", got, tt.want)
			}
			if !strings.Contains(out.String(), "About to run click (1, 2)") {
				t.Errorf("prompt = %q", out.String())
			}
		})
	}
}

func TestConsoleConfirmerCancelled(t *testing.T) {
	r, w := io.Pipe()
	t.Cleanup(func() { w.Close() })

	c := NewConsoleConfirmer(r, io.Discard)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	got, err := c.Confirm(ctx, ToolTypeText, `"hi"`)
	if got {
		t.Error("Confirm() = true after cancellation")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Confirm() error = %v, want deadline exceeded", err)
	}
}

func TestConsoleConfirmerReusesAbandonedRead(t *testing.T) {
	r, w := io.Pipe()
	t.Cleanup(func() { w.Close() })
	c := NewConsoleConfirmer(r, io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Confirm(ctx, ToolClick, "(1, 2)"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Confirm() error = %v, want deadline exceeded", err)
	}

	for _, tt := range []struct {
		input string
		want  bool
	}{
		{input: "n\n", want: false},
		{input: "y\n", want: true},
	} {
		go w.Write([]byte(tt.input))
		got, err := c.Confirm(context.Background(), ToolClick, "(1, 2)")
		if err != nil {
			t.Fatalf("Confirm(%q) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Fatalf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

type erroringConfirmer struct{}

func (erroringConfirmer) Confirm(context.Context, string, string) (bool, error) {
	return true, errors.New("tty gone")
}

func TestGateAllow(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		gate   *Gate
		action string
		want   bool
	}{
		{name: "non-interactive", gate: NewGate(false, nil, nil), action: ToolClick, want: true},
		{name: "nil gate", gate: nil, action: ToolClick, want: true},
		{name: "screenshot never asks", gate: NewGate(true, &scriptedConfirmer{}, nil), action: ToolScreenshot, want: true},
		{name: "declined", gate: NewGate(true, &scriptedConfirmer{allow: false}, nil), action: ToolClick, want: false},
		{name: "approved", gate: NewGate(true, AutoApprove{}, nil), action: ToolDrag, want: true},
		{name: "no confirmer", gate: NewGate(true, nil, nil), action: ToolClick, want: false},
		{name: "confirmer error", gate: NewGate(true, erroringConfirmer{}, nil), action: ToolClick, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.gate.Allow(ctx, tt.action, ""); got != tt.want {
				t.Errorf("Allow() = %v, want %v", got, tt.want)
			}
		})
	}
}
