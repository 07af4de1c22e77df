package core

import (
	"errors"
	"math/rand"
	"testing"
	"time"
	_ "time/tzdata"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return d
}

func TestBinsCoverPartialMonths(t *testing.T) {
	b := NewMonthBinner(time.UTC)
	bins, err := b.Bins(mustDate(t, "2023-01-15"), mustDate(t, "2023-03-10"))
	if err != nil {
		t.Fatalf("bins: %v", err)
	}
	if len(bins) != 3 {
		t.Fatalf("expected 3 bins, got %d", len(bins))
	}
	wantLabels := []string{"January 2023", "February 2023", "March 2023"}
	for i, bin := range bins {
		if bin.Label() != wantLabels[i] {
			t.Fatalf("bin %d label %q, want %q", i, bin.Label(), wantLabels[i])
		}
	}
	if !bins[0].Left.Equal(mustDate(t, "2023-01-01")) {
		t.Fatalf("first bin starts %v", bins[0].Left)
	}
	wantEnd := mustDate(t, "2023-04-01").Add(-time.Nanosecond)
	if !bins[2].Right.Equal(wantEnd) {
		t.Fatalf("last bin ends %v, want %v", bins[2].Right, wantEnd)
	}
	if bins[1].Key() != "2023-02" {
		t.Fatalf("key %q", bins[1].Key())
	}
}

func TestBinsSameMonth(t *testing.T) {
	b := NewMonthBinner(nil)
	bins, err := b.Bins(mustDate(t, "2023-05-02"), mustDate(t, "2023-05-29"))
	if err != nil {
		t.Fatalf("bins: %v", err)
	}
	if len(bins) != 1 || bins[0].Label() != "May 2023" {
		t.Fatalf("unexpected bins: %+v", bins)
	}
	// single instant range
	at := mustDate(t, "2023-05-02")
	bins, err = b.Bins(at, at)
	if err != nil || len(bins) != 1 {
		t.Fatalf("expected one bin for a zero-width range, got %d err=%v", len(bins), err)
	}
}

func TestBinsInvalidRange(t *testing.T) {
	b := NewMonthBinner(time.UTC)
	_, err := b.Bins(mustDate(t, "2023-03-10"), mustDate(t, "2023-01-15"))
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestBinsAcrossYears(t *testing.T) {
	b := NewMonthBinner(time.UTC)
	bins, err := b.Bins(mustDate(t, "2022-11-30"), mustDate(t, "2023-02-01"))
	if err != nil {
		t.Fatalf("bins: %v", err)
	}
	if len(bins) != 4 || bins[1].Key() != "2022-12" || bins[2].Key() != "2023-01" {
		t.Fatalf("unexpected bins across year end: %d", len(bins))
	}
}

func TestBinsContiguousInZones(t *testing.T) {
	zones := []string{"UTC", "America/New_York", "Europe/Rome", "Asia/Kolkata", "Australia/Lord_Howe"}
	rng := rand.New(rand.NewSource(7))
	base := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, name := range zones {
		loc, err := time.LoadLocation(name)
		if err != nil {
			t.Fatalf("load %s: %v", name, err)
		}
		b := NewMonthBinner(loc)
		for i := 0; i < 50; i++ {
			fro := base.Add(time.Duration(rng.Int63n(int64(5 * 365 * 24 * time.Hour))))
			to := fro.Add(time.Duration(rng.Int63n(int64(3 * 365 * 24 * time.Hour))))
			bins, err := b.Bins(fro, to)
			if err != nil {
				t.Fatalf("%s bins: %v", name, err)
			}
			if bins[0].Left.After(fro) || bins[len(bins)-1].Right.Before(to) {
				t.Fatalf("%s: bins do not cover [%v, %v]", name, fro, to)
			}
			for j, bin := range bins {
				l := bin.Left.In(loc)
				if l.Day() != 1 || l.Hour() != 0 || l.Minute() != 0 {
					t.Fatalf("%s: bin %d starts off month boundary: %v", name, j, l)
				}
				if j > 0 && !bins[j-1].Right.Add(time.Nanosecond).Equal(bin.Left) {
					t.Fatalf("%s: gap between bin %d and %d", name, j-1, j)
				}
			}
		}
	}
}

func TestBinsDSTMonths(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	b := NewMonthBinner(loc)
	fro := time.Date(2023, 3, 5, 12, 0, 0, 0, loc)
	to := time.Date(2023, 11, 20, 12, 0, 0, 0, loc)
	bins, err := b.Bins(fro, to)
	if err != nil {
		t.Fatalf("bins: %v", err)
	}
	if len(bins) != 9 {
		t.Fatalf("expected 9 bins, got %d", len(bins))
	}
	// March loses an hour, November gains one.
	if d := bins[0].Right.Sub(bins[0].Left) + time.Nanosecond; d != 31*24*time.Hour-time.Hour {
		t.Fatalf("march length %v", d)
	}
	if d := bins[8].Right.Sub(bins[8].Left) + time.Nanosecond; d != 30*24*time.Hour+time.Hour {
		t.Fatalf("november length %v", d)
	}
}

func TestFindBinBoundaries(t *testing.T) {
	b := NewMonthBinner(time.UTC)
	bins, err := b.Bins(mustDate(t, "2023-01-15"), mustDate(t, "2023-03-10"))
	if err != nil {
		t.Fatalf("bins: %v", err)
	}
	cases := []struct {
		at   time.Time
		want int
	}{
		{time.Date(2023, 2, 28, 23, 59, 59, 0, time.UTC), 1},
		{time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC), 2},
		{time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), 0},
		{time.Date(2023, 1, 31, 23, 59, 59, 999999999, time.UTC), 0},
		{time.Date(2022, 12, 31, 23, 59, 59, 0, time.UTC), -1},
		{time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC), -1},
	}
	for _, tc := range cases {
		if got := FindBin(bins, tc.at); got != tc.want {
			t.Fatalf("FindBin(%v) = %d, want %d", tc.at, got, tc.want)
		}
	}
	if FindBin(nil, time.Now()) != -1 {
		t.Fatalf("FindBin on empty bins should be -1")
	}
}
