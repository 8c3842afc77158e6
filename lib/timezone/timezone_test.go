package timezone

import (
	"testing"
	"time"
)

func TestDay(t *testing.T) {
	// 23:30 UTC on the 5th is already the 6th in Paris (UTC+2 in June)
	utc := time.Date(2021, 6, 5, 23, 30, 0, 0, time.UTC)
	day := Day(utc)
	if day.Day() != 6 {
		t.Fatalf("expected Paris day 6, got %d", day.Day())
	}
	if day.Hour() != 0 || day.Minute() != 0 {
		t.Fatalf("expected midnight, got %v", day)
	}
}

func TestTodayIsMidnight(t *testing.T) {
	today := Today()
	if today.Hour() != 0 || today.Minute() != 0 || today.Second() != 0 {
		t.Fatalf("expected midnight, got %v", today)
	}
	if today.Location() != Location {
		t.Fatal("expected Paris location")
	}
}
