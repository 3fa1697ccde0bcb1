package traffic

import (
	"errors"
	"testing"
)

func TestClassificationValidate(t *testing.T) {
	for _, c := range []Classification{SituationalAwareness, Alert} {
		if err := c.Validate(); err != nil {
			t.Errorf("Expected %s to be valid, got %v", c, err)
		}
	}

	for _, c := range []Classification{-1, 2, 42} {
		err := c.Validate()
		if !errors.Is(err, ErrUnsupportedClassification) {
			t.Errorf("Expected ErrUnsupportedClassification for %d, got %v", int(c), err)
		}
	}
}

func TestClassificationString(t *testing.T) {
	if SituationalAwareness.String() != "situational-awareness" {
		t.Errorf("Unexpected string %q", SituationalAwareness.String())
	}
	if Alert.String() != "alert" {
		t.Errorf("Unexpected string %q", Alert.String())
	}
	if Classification(7).String() != "Classification(7)" {
		t.Errorf("Unexpected string %q", Classification(7).String())
	}
}

func TestContactLabel(t *testing.T) {
	c := Contact{ID: "a1b2c3"}
	if c.Label() != "a1b2c3" {
		t.Errorf("Expected ID fallback, got %s", c.Label())
	}
	c.Callsign = "N123AB"
	if c.Label() != "N123AB" {
		t.Errorf("Expected callsign, got %s", c.Label())
	}
}

func TestContactPosition(t *testing.T) {
	c := Contact{Latitude: 34.01, Longitude: -118.49, AltitudeFt: 2500}
	pos := c.Position()
	if pos.Latitude != 34.01 || pos.Longitude != -118.49 {
		t.Errorf("Unexpected position %+v", pos)
	}
}
