package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReservationID_Format(t *testing.T) {
	id := NewReservationID()

	assert.Len(t, id.String(), 13)
	assert.Equal(t, "RSV", id.String()[:3])

	parsed, err := ParseReservationID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParseID_RejectsMalformedInput(t *testing.T) {
	cases := []string{
		"",
		"RSV123",
		"RSV12345678901",
		"rsv1234567890",
		"RSVabcdefghij",
		"1234567890RSV",
	}
	for _, raw := range cases {
		_, err := ParseReservationID(raw)
		assert.Error(t, err, "expected %q to be rejected", raw)
	}
}

func TestParseID_RejectsWrongPrefix(t *testing.T) {
	_, err := ParseUserID("RSV1234567890")
	assert.Error(t, err)

	_, err = ParseBookID("USR1234567890")
	assert.Error(t, err)

	_, err = ParseUserID("USR1234567890")
	assert.NoError(t, err)

	_, err = ParseBookID("BKS1234567890")
	assert.NoError(t, err)
}

func TestNewID_ValuesDiffer(t *testing.T) {
	seen := make(map[ReservationID]bool)
	for i := 0; i < 100; i++ {
		id := NewReservationID()
		assert.False(t, seen[id], "generated duplicate id %s", id)
		seen[id] = true
	}
}
