package core

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestParseIdentifier(t *testing.T) {
	tests := []struct {
		token   string
		want    time.Time
		wantErr bool
	}{
		{"CATALOGUEID{0b7c1e2a-4d3f-4a51-9b8e-2f6d5c4b3a21:2021-3-14-9-26-53-0}", time.Date(2021, 3, 14, 9, 26, 53, 0, time.UTC), false},
		{"CATALOGUEID{0b7c1e2a-4d3f-4a51-9b8e-2f6d5c4b3a21:2021-12-1-0-0-0}", time.Date(2021, 12, 1, 0, 0, 0, 0, time.UTC), false},
		{"  CATALOGUEID{0B7C1E2A-4D3F-4A51-9B8E-2F6D5C4B3A21:2020-1-1-0-0-0-0} ", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), false},
		{"CATALOGUEID{0b7c1e2a-4d3f-4a51-9b8e-2f6d5c4b3a21:2021-13-1-0-0-0-0}", time.Time{}, true},
		{"CATALOGUEID{0b7c1e2a-4d3f-4a51-9b8e-2f6d5c4b3a21:2021-3-14}", time.Time{}, true},
		{"requires CATALOGUEID{0b7c1e2a-4d3f-4a51-9b8e-2f6d5c4b3a21:2021-3-14-9-26-53-0}", time.Time{}, true},
		{"ZZZ-missing", time.Time{}, true},
	}

	for _, tt := range tests {
		id, err := ParseIdentifier(tt.token)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidIdentifier) {
				t.Errorf("ParseIdentifier(%q) = %v, want ErrInvalidIdentifier", tt.token, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseIdentifier(%q) failed: %v", tt.token, err)
			continue
		}
		if !id.Date.Equal(tt.want) {
			t.Errorf("ParseIdentifier(%q).Date = %v, want %v", tt.token, id.Date, tt.want)
		}
		if id.UUID != uuid.MustParse("0b7c1e2a-4d3f-4a51-9b8e-2f6d5c4b3a21") {
			t.Errorf("ParseIdentifier(%q).UUID = %s", tt.token, id.UUID)
		}
	}
}

func TestIdentifierString(t *testing.T) {
	id := Identifier{
		UUID: uuid.MustParse("0b7c1e2a-4d3f-4a51-9b8e-2f6d5c4b3a21"),
		Date: time.Date(2021, 3, 14, 9, 26, 53, 0, time.UTC),
	}
	want := "CATALOGUEID{0b7c1e2a-4d3f-4a51-9b8e-2f6d5c4b3a21:2021-3-14-9-26-53-0}"
	if got := id.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	back, err := ParseIdentifier(id.String())
	if err != nil {
		t.Fatal(err)
	}
	if back.UUID != id.UUID || !back.Date.Equal(id.Date) {
		t.Errorf("round trip = %v, want %v", back, id)
	}
}

func TestFindIdentifier(t *testing.T) {
	text := "Deck Tools (CATALOGUEID{0b7c1e2a-4d3f-4a51-9b8e-2f6d5c4b3a21:2021-3-14-9-26-53-0}) or later"
	id, ok := FindIdentifier(text)
	if !ok {
		t.Fatal("FindIdentifier found nothing")
	}
	if id.Date.Year() != 2021 {
		t.Errorf("Date = %v", id.Date)
	}
	if _, ok := FindIdentifier("no token here"); ok {
		t.Error("FindIdentifier matched plain text")
	}
}

func TestIdentifierCompare(t *testing.T) {
	now := time.Date(2022, 6, 1, 12, 0, 0, 0, time.UTC)
	v1 := NewIdentifier(now)
	v2 := v1.Touch(now.Add(time.Hour))
	other := NewIdentifier(now.Add(2 * time.Hour))

	if !v2.IsNewerThan(v1) || !v1.IsOlderThan(v2) {
		t.Error("later revision should be newer")
	}
	if v1.Compare(v2) != -1 || v2.Compare(v1) != 1 || v1.Compare(v1) != 0 {
		t.Error("Compare ordering wrong")
	}
	if !v1.SameBundle(v2) {
		t.Error("Touch should keep the UUID")
	}
	if other.IsNewerThan(v1) || v1.Compare(other) != 0 {
		t.Error("different bundles must not be ordered")
	}
}

func TestNewIdentifierTruncates(t *testing.T) {
	id := NewIdentifier(time.Date(2022, 6, 1, 12, 0, 0, 999_000_000, time.FixedZone("X", 3600)))
	if id.Date.Nanosecond() != 0 || id.Date.Location() != time.UTC {
		t.Errorf("Date = %v, want whole seconds in UTC", id.Date)
	}
	if id.IsZero() {
		t.Error("new identifier is zero")
	}
}
