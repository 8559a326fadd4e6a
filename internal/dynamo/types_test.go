package dynamo

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
)

func TestVector_IsValid(t *testing.T) {
	tests := []struct {
		name  string
		v     Vector
		valid bool
	}{
		{"empty", Vector{}, true},
		{"normal", Vector{1.0, 2.0, 3.0}, true},
		{"zeros", Vector{0.0, 0.0}, true},
		{"with NaN", Vector{1.0, math.NaN()}, false},
		{"with +Inf", Vector{1.0, math.Inf(1)}, false},
		{"with -Inf", Vector{1.0, math.Inf(-1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestVector_Norm(t *testing.T) {
	tests := []struct {
		v        Vector
		expected float64
	}{
		{Vector{3, 4}, 5.0},
		{Vector{1, 0}, 1.0},
		{Vector{0, 0}, 0.0},
		{Vector{1, 1, 1, 1}, 2.0},
		{Vector{}, 0.0},
	}

	for _, tt := range tests {
		if got := tt.v.Norm(); math.Abs(got-tt.expected) > 1e-10 {
			t.Errorf("Norm(%v) = %v, want %v", tt.v, got, tt.expected)
		}
	}
}

func TestVector_Sub(t *testing.T) {
	a := Vector{4, 5, 6}
	b := Vector{1, 2, 3}

	diff := a.Sub(b)
	if diff[0] != 3 || diff[1] != 3 || diff[2] != 3 {
		t.Errorf("Sub failed: got %v", diff)
	}
	if a[0] != 4 {
		t.Error("Sub modified the receiver")
	}

	short := a.Sub(Vector{1})
	if short[0] != 3 || short[1] != 5 || short[2] != 6 {
		t.Errorf("Sub with shorter operand failed: got %v", short)
	}
}

func TestContext_Validate(t *testing.T) {
	tests := []struct {
		name string
		ctx  Context
		want error
	}{
		{"defaults", *DefaultContext(), nil},
		{"zero tolerance", Context{AbsErrorMax: 0, RelDtMin: 0.01}, ErrInvalidTolerance},
		{"negative tolerance", Context{AbsErrorMax: -1, RelDtMin: 0.01}, ErrInvalidTolerance},
		{"NaN tolerance", Context{AbsErrorMax: math.NaN(), RelDtMin: 0.01}, ErrInvalidTolerance},
		{"zero min step", Context{AbsErrorMax: 0.01, RelDtMin: 0}, ErrInvalidMinStep},
		{"min step above one", Context{AbsErrorMax: 0.01, RelDtMin: 1.5}, ErrInvalidMinStep},
		{"min step of one", Context{AbsErrorMax: 0.01, RelDtMin: 1}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ctx.Validate()
			if tt.want == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSimulationError(t *testing.T) {
	inner := errors.New("division by zero")
	err := &SimulationError{Step: 7, Wrapped: inner}

	if err.Error() != "step 7: division by zero" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("SimulationError does not unwrap")
	}
}

func TestSequences_Allocate(t *testing.T) {
	seqs := NewSequences()
	seqs.AddState("s", 1.0)
	seqs.AddFlux("q", true)
	seqs.AddFlux("total", false)

	seqs.Allocate(10, 11)

	st := seqs.States[0]
	if len(st.Points) != 11 || len(st.Results) != 11 {
		t.Errorf("state buffers: points=%d results=%d", len(st.Points), len(st.Results))
	}

	if n := len(seqs.NumericFluxes()); n != 1 {
		t.Fatalf("expected 1 numeric flux, got %d", n)
	}
	q := seqs.NumericFluxes()[0]
	if len(q.Points) != 11 || len(q.Results) != 11 {
		t.Errorf("flux buffers: points=%d results=%d", len(q.Points), len(q.Results))
	}

	total, err := seqs.Flux("total")
	if err != nil {
		t.Fatal(err)
	}
	if total.Points != nil {
		t.Error("diagnostic flux should not get stage buffers")
	}
}

func TestSequences_Lookup(t *testing.T) {
	seqs := NewSequences()
	seqs.AddState("s1", 1.0)
	seqs.AddState("s2", 2.0)
	seqs.AddFlux("q", true)

	if st, err := seqs.State("s2"); err != nil || st.Old != 2.0 {
		t.Errorf("State(s2) = %v, %v", st, err)
	}
	if _, err := seqs.State("missing"); !errors.Is(err, ErrUnknownSequence) {
		t.Errorf("expected ErrUnknownSequence, got %v", err)
	}
	if _, err := seqs.Flux("missing"); !errors.Is(err, ErrUnknownSequence) {
		t.Errorf("expected ErrUnknownSequence, got %v", err)
	}

	if err := seqs.SetValues(Vector{3, 4}); err != nil {
		t.Fatal(err)
	}
	old := seqs.OldValues()
	if old[0] != 3 || old[1] != 4 || seqs.States[1].New != 4 {
		t.Errorf("SetValues did not update both buffers: %v", old)
	}
	if err := seqs.SetValues(Vector{1}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}

	names := seqs.StateNames()
	if len(names) != 2 || names[0] != "s1" {
		t.Errorf("StateNames() = %v", names)
	}
}

func TestEnsemble_Run(t *testing.T) {
	var count atomic.Int64
	results := make([]int, 16)

	err := NewEnsemble(4).Run(context.Background(), len(results), func(ctx context.Context, idx int) error {
		count.Add(1)
		results[idx] = idx * idx
		return nil
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if count.Load() != 16 {
		t.Errorf("expected 16 jobs, got %d", count.Load())
	}
	for i, r := range results {
		if r != i*i {
			t.Errorf("job %d wrote %d", i, r)
		}
	}
}

func TestEnsemble_FirstError(t *testing.T) {
	boom := errors.New("boom")

	err := NewEnsemble(0).Run(context.Background(), 8, func(ctx context.Context, idx int) error {
		if idx == 3 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}
