package tensor

import (
	"math"
	"testing"
)

func TestNewZeroFilled(t *testing.T) {
	x := New(2, 3)
	if x.Rank() != 2 || x.Size() != 6 {
		t.Fatalf("expected rank 2 size 6, got rank %d size %d", x.Rank(), x.Size())
	}
	for i, v := range x.Data {
		if v != 0 {
			t.Errorf("element %d not zero: %v", i, v)
		}
	}
}

func TestFromFlat(t *testing.T) {
	x, err := FromFlat([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	if got := x.At(1, 2); got != 6 {
		t.Errorf("At(1,2) = %v, want 6", got)
	}
	if _, err := FromFlat([]float64{1, 2}, 2, 3); err == nil {
		t.Error("expected error for mismatched length")
	}
}

func TestAtSetRowMajor(t *testing.T) {
	x := New(2, 2, 2)
	x.Set(7, 1, 0, 1)
	if x.Data[5] != 7 {
		t.Errorf("Set(1,0,1) wrote to wrong offset: %v", x.Data)
	}
	if x.At(1, 0, 1) != 7 {
		t.Errorf("At(1,0,1) = %v, want 7", x.At(1, 0, 1))
	}
}

func TestAtPanicsOutOfRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on out-of-range index")
		}
	}()
	New(2, 2).At(2, 0)
}

func TestReshapeSharesData(t *testing.T) {
	x := New(2, 3)
	y, err := x.Reshape(3, 2)
	if err != nil {
		t.Fatal(err)
	}
	y.Data[0] = 9
	if x.Data[0] != 9 {
		t.Error("reshape should share backing data")
	}
	if _, err := x.Reshape(4, 2); err == nil {
		t.Error("expected error for size-changing reshape")
	}
}

func TestCloneIndependent(t *testing.T) {
	x, _ := FromFlat([]float64{1, 2, 3}, 3)
	y := x.Clone()
	y.Data[0] = 5
	if x.Data[0] != 1 {
		t.Error("clone must not share backing data")
	}
}

func TestSameShape(t *testing.T) {
	if !SameShape(New(2, 3), New(2, 3)) {
		t.Error("identical shapes reported unequal")
	}
	if SameShape(New(2, 3), New(3, 2)) {
		t.Error("different shapes reported equal")
	}
	if SameShape(New(6), New(2, 3)) {
		t.Error("different ranks reported equal")
	}
}

func TestSum(t *testing.T) {
	x, _ := FromFlat([]float64{0.5, 1.5, 2.0}, 3)
	if got := x.Sum(); math.Abs(got-4.0) > 1e-12 {
		t.Errorf("Sum = %v, want 4", got)
	}
}
