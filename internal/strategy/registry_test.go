package strategy

import (
	"errors"
	"testing"

	"github.com/newthinker/tradesim/internal/core"
)

type mockSignal struct {
	name    string
	initErr error
	period  int
}

func (m *mockSignal) Name() string        { return m.name }
func (m *mockSignal) Description() string { return "mock signal" }
func (m *mockSignal) Warmup() int         { return m.period }
func (m *mockSignal) Init(cfg Config) error {
	if m.initErr != nil {
		return m.initErr
	}
	if p, ok, err := ParamInt(cfg.Params, "period"); err != nil {
		return err
	} else if ok {
		m.period = p
	}
	return nil
}
func (m *mockSignal) Bind(prices []float64) (Decider, error) { return nil, nil }

func TestRegistry_BuildInitializes(t *testing.T) {
	reg := NewRegistry()
	reg.Register("mock", func() Signal { return &mockSignal{name: "mock", period: 1} })

	s, err := reg.Build("mock", Config{Params: map[string]any{"period": 7}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Warmup() != 7 {
		t.Errorf("expected warmup 7, got %d", s.Warmup())
	}
}

func TestRegistry_BuildReturnsFreshInstances(t *testing.T) {
	reg := NewRegistry()
	reg.Register("mock", func() Signal { return &mockSignal{name: "mock", period: 1} })

	a, _ := reg.Build("mock", Config{Params: map[string]any{"period": 3}})
	b, _ := reg.Build("mock", Config{})

	if a.Warmup() == b.Warmup() {
		t.Error("instances should not share parameters")
	}
}

func TestRegistry_Unknown(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Build("nope", Config{})
	if !errors.Is(err, core.ErrUnknownStrategy) {
		t.Errorf("expected ErrUnknownStrategy, got %v", err)
	}
}

func TestRegistry_InitError(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("bad params")
	reg.Register("mock", func() Signal { return &mockSignal{name: "mock", initErr: boom} })

	if _, err := reg.Build("mock", Config{}); !errors.Is(err, boom) {
		t.Errorf("expected init error, got %v", err)
	}
}

func TestRegistry_Names(t *testing.T) {
	reg := NewRegistry()
	reg.Register("b", func() Signal { return &mockSignal{name: "b"} })
	reg.Register("a", func() Signal { return &mockSignal{name: "a"} })

	names := reg.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("Names() = %v", names)
	}
}

func TestParamInt(t *testing.T) {
	params := map[string]any{"i": 5, "f": 6.0, "frac": 6.5, "s": "x"}

	if v, ok, err := ParamInt(params, "i"); err != nil || !ok || v != 5 {
		t.Errorf("int: %v %v %v", v, ok, err)
	}
	if v, ok, err := ParamInt(params, "f"); err != nil || !ok || v != 6 {
		t.Errorf("float: %v %v %v", v, ok, err)
	}
	if _, _, err := ParamInt(params, "frac"); err == nil {
		t.Error("expected error for fractional value")
	}
	if _, _, err := ParamInt(params, "s"); err == nil {
		t.Error("expected error for string value")
	}
	if _, ok, _ := ParamInt(params, "missing"); ok {
		t.Error("missing key should report ok=false")
	}
}

func TestParamFloat(t *testing.T) {
	params := map[string]any{"f": 0.05, "i": 1}

	if v, _, err := ParamFloat(params, "f"); err != nil || v != 0.05 {
		t.Errorf("float: %v %v", v, err)
	}
	if v, _, err := ParamFloat(params, "i"); err != nil || v != 1 {
		t.Errorf("int: %v %v", v, err)
	}
}
