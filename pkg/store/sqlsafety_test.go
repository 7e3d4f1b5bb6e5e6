package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateReadOnly(t *testing.T) {
	cases := []struct {
		sql string
		ok  bool
	}{
		{"SELECT * FROM server_status", true},
		{"  select host, type from server_status", true},
		{"WITH recent AS (SELECT 1) SELECT * FROM recent", true},
		{"DELETE FROM server_status", false},
		{"SELECT * FROM server_status; DROP TABLE devices", false},
		{"SELECT * FROM server_status;", true},
		{"SELECT updated_at FROM server_status", true}, // "updated" contains "UPDATE" but not as a whole word
		{"INSERT INTO devices VALUES (1)", false},
		{"UPDATE devices SET hidden = true", false},
		{"SELECT * FROM devices; SELECT * FROM server_status", false},
	}

	for _, tc := range cases {
		err := ValidateReadOnly(tc.sql)
		if tc.ok {
			assert.NoError(t, err, tc.sql)
		} else {
			assert.ErrorIs(t, err, ErrUnsafeQuery, tc.sql)
		}
	}
}
