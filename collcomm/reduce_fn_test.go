package collcomm

import "testing"

func TestReduceFns(t *testing.T) {
	vecs := [][]float64{{1, 5, -3}, {2, 4, -7}, {0, 6, 1}}
	for name, testCase := range map[string]struct {
		fn       ReduceFn
		expected []float64
	}{
		"Sum": {Sum, []float64{3, 15, -9}},
		"Max": {Max, []float64{2, 6, 1}},
		"Min": {Min, []float64{0, 4, -7}},
	} {
		actual := testCase.fn(vecs...)
		for i, x := range testCase.expected {
			if actual[i] != x {
				t.Errorf("%s: expected %v but got %v", name, testCase.expected, actual)
				break
			}
		}
	}
	if vecs[0][0] != 1 {
		t.Error("input was modified")
	}
}
