package clocksync

import (
	"fmt"
	"testing"
)

func TestMergeIdentity(t *testing.T) {
	models := []LinearModel{
		{},
		{Slope: 1e-6, Intercept: 0.5},
		{Slope: -3e-7, Intercept: -12.25},
		{Slope: 0.125, Intercept: 3},
	}
	for _, x := range models {
		if actual := Merge(LinearModel{}, x, InterceptLogP); actual != x {
			t.Errorf("merge(identity, %v) = %v", x, actual)
		}
		if actual := Merge(x, LinearModel{}, InterceptLogP); actual != x {
			t.Errorf("merge(%v, identity) = %v", x, actual)
		}
		expected := LinearModel{Slope: x.Slope}
		if actual := Merge(LinearModel{}, x, InterceptLinear); actual != expected {
			t.Errorf("linear merge(identity, %v) = %v", x, actual)
		}
	}
}

func TestMergeComposes(t *testing.T) {
	up := LinearModel{Slope: 1e-4, Intercept: 0.25}
	down := LinearModel{Slope: -2e-4, Intercept: 1.5}
	merged := Merge(up, down, InterceptLogP)
	for _, tDown := range []float64{0, 1, 1000.5} {
		tUp := down.Apply(tDown)
		expected := up.Apply(tUp)
		actual := merged.Apply(tDown)
		if diff := actual - expected; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("time %f: expected %f but got %f", tDown, expected, actual)
		}
	}
}

func TestParseInterceptMode(t *testing.T) {
	for _, mode := range []InterceptMode{InterceptLinear, InterceptLogP} {
		parsed, err := ParseInterceptMode(mode.String())
		if err != nil {
			t.Fatal(err)
		} else if parsed != mode {
			t.Errorf("expected %v but got %v", mode, parsed)
		}
	}
	if _, err := ParseInterceptMode("quadratic"); err == nil {
		t.Error("expected an error")
	}
}

func ExampleMerge() {
	up := LinearModel{Slope: 0.5, Intercept: 2}
	down := LinearModel{Slope: 0.25, Intercept: 4}
	fmt.Println(Merge(up, down, InterceptLinear))
	fmt.Println(Merge(up, down, InterceptLogP))
	// Output:
	// {0.625 0}
	// {0.625 4}
}
