package upsert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_EmptySheet(t *testing.T) {
	t.Parallel()

	got, err := Apply(nil, []string{"ID", "Value"}, [][]any{{"1", "A"}}, []string{"ID"})
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"ID", "Value"}, {"1", "A"}}, got)
}

func TestApply_UpdateAndAppend(t *testing.T) {
	t.Parallel()

	existing := [][]any{{"ID", "Value"}, {"1", "Old"}}
	rows := [][]any{{"1", "Updated"}, {"2", "New"}}

	got, err := Apply(existing, []string{"ID", "Value"}, rows, []string{"ID"})
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"ID", "Value"}, {"1", "Updated"}, {"2", "New"}}, got)
	assert.Equal(t, [][]any{{"ID", "Value"}, {"1", "Old"}}, existing)
}

func TestApply_Errors(t *testing.T) {
	t.Parallel()

	_, err := Apply(nil, nil, nil, []string{"ID"})
	assert.ErrorIs(t, err, ErrMissingHeader)

	_, err = Apply(nil, []string{"ID"}, nil, nil)
	assert.ErrorIs(t, err, ErrMissingKeyColumns)

	_, err = Apply(nil, []string{"ID"}, nil, []string{"ID", "Date"})
	assert.ErrorIs(t, err, ErrKeyColumnNotFound)
	assert.Contains(t, err.Error(), "Date")
}

func TestApply_Semantics(t *testing.T) {
	t.Parallel()

	header := []string{"Date", "Account", "Amount"}
	keys := []string{"Date", "Account"}

	tests := []struct {
		name     string
		existing [][]any
		rows     [][]any
		want     [][]any
	}{
		{
			name:     "stale header replaced",
			existing: [][]any{{"old", "header"}, {"d1", "a", 1}},
			rows:     nil,
			want:     [][]any{{"Date", "Account", "Amount"}, {"d1", "a", 1}},
		},
		{
			name:     "composite key match in place",
			existing: [][]any{{"Date", "Account", "Amount"}, {"d1", "a", 1}, {"d1", "b", 2}, {"d2", "a", 3}},
			rows:     [][]any{{"d1", "b", 20}},
			want:     [][]any{{"Date", "Account", "Amount"}, {"d1", "a", 1}, {"d1", "b", 20}, {"d2", "a", 3}},
		},
		{
			name:     "empty key rows pass through and incoming blanks dropped",
			existing: [][]any{{"Date", "Account", "Amount"}, {"", "", "note"}, {"d1", "a", 1}},
			rows:     [][]any{{"", nil, 5}, {"d1", "a", 9}},
			want:     [][]any{{"Date", "Account", "Amount"}, {"", "", "note"}, {"d1", "a", 9}},
		},
		{
			name:     "short existing rows",
			existing: [][]any{{"Date", "Account", "Amount"}, {"d1"}, {}},
			rows:     [][]any{{"d1", "", 4}},
			want:     [][]any{{"Date", "Account", "Amount"}, {"d1", "", 4}, {}},
		},
		{
			name:     "duplicate keys in batch update the appended row",
			existing: [][]any{{"Date", "Account", "Amount"}},
			rows:     [][]any{{"d1", "a", 1}, {"d2", "a", 2}, {"d1", "a", 3}},
			want:     [][]any{{"Date", "Account", "Amount"}, {"d1", "a", 3}, {"d2", "a", 2}},
		},
		{
			name:     "numeric key values",
			existing: [][]any{{"Date", "Account", "Amount"}, {"2024", 7, 1}},
			rows:     [][]any{{"2024", "7", 2}},
			want:     [][]any{{"Date", "Account", "Amount"}, {"2024", "7", 2}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(tt.existing, header, tt.rows, keys)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApply_Idempotent(t *testing.T) {
	t.Parallel()

	header := []string{"ID", "Value"}
	existing := [][]any{{"ID", "Value"}, {"3", "c"}, {"", "loose"}, {"1", "a"}}
	rows := [][]any{{"1", "A"}, {"2", "B"}, {"", "skip"}, {"4", "D"}}

	once, err := Apply(existing, header, rows, []string{"ID"})
	require.NoError(t, err)
	twice, err := Apply(once, header, rows, []string{"ID"})
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.Equal(t, [][]any{{"ID", "Value"}, {"3", "c"}, {"", "loose"}, {"1", "A"}, {"2", "B"}, {"4", "D"}}, once)
}
