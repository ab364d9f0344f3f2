package storage

import (
	"database/sql/driver"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextArray(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   any
	}{
		{name: "nil binds an empty array", values: nil, want: "{}"},
		{name: "empty", values: []string{}, want: "{}"},
		{name: "values", values: []string{"a", "b c"}, want: `{"a","b c"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valuer, ok := textArray(tt.values).(driver.Valuer)
			require.True(t, ok)

			got, err := valuer.Value()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
