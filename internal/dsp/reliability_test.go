package dsp

import "testing"

func TestSNRScaleEndpoints(t *testing.T) {
	cases := []struct {
		db   float64
		want float32
	}{
		{-20, 0.80},
		{-13, 0.80},
		{12, 1.00},
		{30, 1.00},
	}
	for _, tc := range cases {
		if got := snrScale(tc.db); got != tc.want {
			t.Errorf("snrScale(%v) = %v, want %v", tc.db, got, tc.want)
		}
	}
	mid := snrScale(0)
	if mid <= 0.80 || mid >= 1.00 {
		t.Errorf("snrScale(0) = %v, want inside (0.8, 1.0)", mid)
	}
}

func TestC4FMReliabilityShape(t *testing.T) {
	// Zero at decision boundaries, maximum at ideal levels.
	for _, boundary := range []float32{0, 2, -2} {
		if r := c4fmReliability(boundary, nil); r != 0 {
			t.Errorf("reliability at boundary %v = %d, want 0", boundary, r)
		}
	}
	for _, ideal := range []float32{1, -1, 3, -3} {
		if r := c4fmReliability(ideal, nil); r != 255 {
			t.Errorf("reliability at ideal %v = %d, want 255", ideal, r)
		}
	}
}

func TestC4FMReliabilityMonotonic(t *testing.T) {
	// Within each decision region, confidence falls as the symbol moves
	// from the ideal level toward a boundary.
	regions := []struct {
		ideal, toward float32
	}{
		{1, 0}, {1, 2}, {3, 2}, {-1, 0}, {-1, -2}, {-3, -2},
	}
	for _, reg := range regions {
		prev := int(c4fmReliability(reg.ideal, nil))
		for step := 1; step <= 10; step++ {
			s := reg.ideal + (reg.toward-reg.ideal)*float32(step)/10
			r := int(c4fmReliability(s, nil))
			if r > prev {
				t.Fatalf("reliability rose from %d to %d moving %v toward %v",
					prev, r, reg.ideal, reg.toward)
			}
			prev = r
		}
	}
}

func TestReliabilitySNRScaling(t *testing.T) {
	low := func() float64 { return -20 }
	if got := c4fmReliability(3, low); got != 204 {
		t.Errorf("scaled reliability %d, want 204 (80%% of 255)", got)
	}
	high := func() float64 { return 20 }
	if got := c4fmReliability(3, high); got != 255 {
		t.Errorf("scaled reliability %d, want 255", got)
	}
}

func TestCQPSKReliability(t *testing.T) {
	for _, ideal := range []float32{1, -1, 3, -3} {
		if r := cqpskReliability(ideal, nil); r != 255 {
			t.Errorf("reliability at ideal %v = %d, want 255", ideal, r)
		}
	}
	if r := cqpskReliability(0, nil); r != 0 {
		t.Errorf("reliability midway = %d, want 0", r)
	}
}

func TestNearestLevel(t *testing.T) {
	cases := []struct {
		in   float32
		want float32
	}{
		{0.4, 1}, {1.9, 1}, {2.1, 3}, {5, 3}, {-0.4, -1}, {-2.5, -3},
	}
	for _, tc := range cases {
		if got := nearestLevel(tc.in); got != tc.want {
			t.Errorf("nearestLevel(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestSNRMeterBias(t *testing.T) {
	base := NewSNRMeter(nil)
	biased := NewSNRMeter(func(db float64) float64 { return db - 3 })
	for i := 0; i < 200; i++ {
		base.Update(3.1)
		biased.Update(3.1)
	}
	if d := base.SNRdB() - biased.SNRdB(); d < 2.9 || d > 3.1 {
		t.Errorf("bias offset %v, want ~3", d)
	}
}
