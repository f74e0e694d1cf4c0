package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseTimeSpaceSeparated(t *testing.T) {
	got, ok := ParseTime("2024-10-10 10:10:10.250000")
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Nanosecond() != 250000000 {
		t.Fatalf("unexpected fraction %v", got.Nanosecond())
	}
}

func TestVersionStampSorts(t *testing.T) {
	a := VersionStamp(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	b := VersionStamp(time.Date(2024, 1, 2, 3, 4, 6, 0, time.UTC))
	if !(a < b) {
		t.Fatalf("expected %s < %s", a, b)
	}
}
