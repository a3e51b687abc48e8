package calendar

import (
	"errors"
	"math"
	"testing"
)

func TestConvertAll(t *testing.T) {
	c, sys, _ := newTestConverter(t)
	u := mustScan(t, sys, "days since 2000-01-01")
	got, err := c.ConvertAll([]float64{0, 31, 365}, u, "noleap")
	if err != nil {
		t.Fatal(err)
	}
	want := []DateTime{date(2000, 1, 1), date(2000, 2, 1), date(2001, 1, 1)}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestConvertAllStopsAtFirstError(t *testing.T) {
	c, sys, _ := newTestConverter(t)
	u := mustScan(t, sys, "days since 2000-01-01")
	_, err := c.ConvertAll([]float64{1, 2, math.NaN(), math.Inf(1)}, u, "360_day")
	var be *BatchError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want *BatchError", err)
	}
	if be.Index != 2 {
		t.Errorf("Index = %d, want 2", be.Index)
	}
	if !errors.Is(err, ErrValueRange) {
		t.Errorf("err = %v, want ErrValueRange inside", err)
	}
}

func TestConvertAllEmpty(t *testing.T) {
	c, sys, _ := newTestConverter(t)
	u := mustScan(t, sys, "days since 2000-01-01")
	if _, err := c.ConvertAll(nil, u, "noleap"); !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("err = %v, want ErrEmptyBatch", err)
	}
	if _, err := c.InvertAll(nil, u); !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("InvertAll err = %v, want ErrEmptyBatch", err)
	}
}

func TestConvertColumns(t *testing.T) {
	c, sys, _ := newTestConverter(t)
	u := mustScan(t, sys, "hours since 1990-06-30 18:00")
	cols, err := c.ConvertColumns([]float64{0, 6, 30}, u, "360_day")
	if err != nil {
		t.Fatal(err)
	}
	if len(cols.Year) != 3 || len(cols.Second) != 3 {
		t.Fatalf("columns = %+v", cols)
	}
	// 1990-06-30 18:00, 1990-07-01 00:00, 1990-07-02 00:00.
	wantMonth := []int{6, 7, 7}
	wantDay := []int{30, 1, 2}
	wantHour := []int{18, 0, 0}
	for i := range wantMonth {
		if cols.Year[i] != 1990 || cols.Month[i] != wantMonth[i] || cols.Day[i] != wantDay[i] || cols.Hour[i] != wantHour[i] {
			t.Errorf("row %d = %d-%d-%d %d", i, cols.Year[i], cols.Month[i], cols.Day[i], cols.Hour[i])
		}
	}
}

func TestInvertAll(t *testing.T) {
	c, sys, _ := newTestConverter(t)
	u := mustScan(t, sys, "days since 1970-01-01")
	got, err := c.InvertAll([]DateTime{date(1970, 1, 1), date(1970, 2, 1), date(1971, 1, 1)}, u)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0, 31, 365}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	_, err = c.InvertAll([]DateTime{date(1970, 1, 1), {Year: 1970, Month: 13, Day: 1}}, u)
	var be *BatchError
	if !errors.As(err, &be) || be.Index != 1 {
		t.Errorf("err = %v, want BatchError at 1", err)
	}
}
