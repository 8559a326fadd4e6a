package models

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/elsim/internal/dynamo"
)

func TestLinearCalcQ(t *testing.T) {
	l := NewLinear(0.5, 2.0, nil)
	ctx := dynamo.DefaultContext()

	if err := l.CalcQ(ctx); err != nil {
		t.Fatal(err)
	}
	if l.Q.Value != 1.0 {
		t.Errorf("expected q 1.0, got %f", l.Q.Value)
	}
}

func TestLinearCalcS(t *testing.T) {
	l := NewLinear(0.5, 1.0, nil)
	ctx := dynamo.DefaultContext()
	l.Q.Value = 0.8

	if err := l.CalcS(ctx); err != nil {
		t.Fatal(err)
	}
	if math.Abs(l.S.New-0.2) > 1e-12 {
		t.Errorf("expected s 0.2, got %f", l.S.New)
	}
}

func TestThresholdCalcQ(t *testing.T) {
	m := NewThreshold(0.5, 2.0, nil)
	ctx := dynamo.DefaultContext()

	tests := []struct {
		s, q float64
	}{
		{2.0, 0.5},
		{1e-9, 0.5},
		{0.0, 0.0},
		{-1.0, 0.0},
	}

	for _, tt := range tests {
		m.S.New = tt.s
		if err := m.CalcQ(ctx); err != nil {
			t.Fatal(err)
		}
		if m.Q.Value != tt.q {
			t.Errorf("s=%g: expected q %g, got %g", tt.s, tt.q, m.Q.Value)
		}
	}
}

func TestNonlinear(t *testing.T) {
	if _, err := NewNonlinear(1, 0, 1, nil); err == nil {
		t.Error("expected error for zero exponent")
	}

	m, err := NewNonlinear(0.5, 2, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := dynamo.DefaultContext()
	if err := m.CalcQ(ctx); err != nil {
		t.Fatal(err)
	}
	if m.Q.Value != 2.0 {
		t.Errorf("expected q 2.0, got %f", m.Q.Value)
	}

	m.S.New = -1
	if err := m.CalcQ(ctx); err != nil {
		t.Fatal(err)
	}
	if m.Q.Value != 0 {
		t.Errorf("expected no outflow from an empty storage, got %f", m.Q.Value)
	}
}

func TestCascadeDeclarations(t *testing.T) {
	c := NewCascade(0.3, 0.2, 1, 0, nil)
	seqs := c.Sequences()

	if len(seqs.States) != 2 {
		t.Errorf("expected 2 states, got %d", len(seqs.States))
	}
	if len(seqs.NumericFluxes()) != 3 {
		t.Errorf("expected 3 numeric fluxes, got %d", len(seqs.NumericFluxes()))
	}
	if len(c.Methods().Partial) != 3 || len(c.Methods().Full) != 3 {
		t.Errorf("unexpected term counts: %d partial, %d full", len(c.Methods().Partial), len(c.Methods().Full))
	}
}

func TestInflowLookup(t *testing.T) {
	l := NewLinear(0.1, 1.0, []float64{0.5, 0.25})
	ctx := dynamo.DefaultContext()

	ctx.SimIndex = 1
	if err := l.CalcQIn(ctx); err != nil {
		t.Fatal(err)
	}
	if l.QIn.Value != 0.25 {
		t.Errorf("expected qin 0.25, got %f", l.QIn.Value)
	}

	ctx.SimIndex = 2
	if err := l.CalcQIn(ctx); !errors.Is(err, ErrMissingInput) {
		t.Errorf("expected ErrMissingInput, got %v", err)
	}
}

func TestDerive(t *testing.T) {
	ctx := dynamo.DefaultContext()

	tests := []struct {
		name     string
		sys      dynamo.System
		x        dynamo.Vector
		expected dynamo.Vector
	}{
		{"linear", NewLinear(0.5, 0, nil), dynamo.Vector{2}, dynamo.Vector{-1}},
		{"threshold", NewThreshold(0.5, 0, nil), dynamo.Vector{2}, dynamo.Vector{-0.5}},
		{"threshold empty", NewThreshold(0.5, 0, nil), dynamo.Vector{0}, dynamo.Vector{0}},
		{"cascade", NewCascade(0.5, 0.25, 0, 0, []float64{1}), dynamo.Vector{2, 4}, dynamo.Vector{0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.sys.StateDim() != len(tt.x) {
				t.Fatalf("state dim %d, vector %d", tt.sys.StateDim(), len(tt.x))
			}
			dx := tt.sys.Derive(ctx, tt.x)
			for i := range dx {
				if math.Abs(dx[i]-tt.expected[i]) > 1e-12 {
					t.Errorf("dx[%d] = %f, want %f", i, dx[i], tt.expected[i])
				}
			}
		})
	}
}
