package sheet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyRow(t *testing.T) {
	layout := defaultLayout()

	cases := []struct {
		name string
		row  []string
		want RowKind
	}{
		{
			name: "totals row",
			row:  []string{"Totals", "", "", "", "", "120"},
			want: RowTotals,
		},
		{
			name: "totals row lowercase",
			row:  []string{"totals", "", "", "", "", ""},
			want: RowTotals,
		},
		{
			name: "section header repeated in description",
			row:  []string{"Earthwire", "", "Earthwire", "", "", ""},
			want: RowSectionHeader,
		},
		{
			name: "section header with parenthetical echo",
			row:  []string{"Earthwire (Earthwire)", "", "Earthwire", "", "", ""},
			want: RowSectionHeader,
		},
		{
			name: "section header spilled into quantity columns",
			row:  []string{"Hand Tools", "", "", "", "Hand Tools", "Hand Tools"},
			want: RowSectionHeader,
		},
		{
			name: "label with numeric quantity is not a section header",
			row:  []string{"Earthwire", "EW-001", "Earthwire clamp", "", "5", "12"},
			want: RowItem,
		},
		{
			name: "item row without label",
			row:  []string{"", "EW-002", "Earthwire rod", "consumable", "2", "7"},
			want: RowItem,
		},
		{
			name: "item row with numeric sub-identifier label",
			row:  []string{"12", "EW-003", "Earthwire joint", "", "1", "4"},
			want: RowItem,
		},
		{
			name: "blank spacer",
			row:  []string{"", "", "", "", "", ""},
			want: RowSpacer,
		},
		{
			name: "spacer with zero quantities",
			row:  []string{"", "", "", "", "0", "0"},
			want: RowSpacer,
		},
		{
			name: "stray label without data",
			row:  []string{"see storeman", "", "", "", "", ""},
			want: RowSpacer,
		},
		{
			name: "zero item code",
			row:  []string{"", "0", "scrapped", "", "", "3"},
			want: RowSpacer,
		},
		{
			name: "short row",
			row:  []string{"", "EW-004"},
			want: RowItem,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, classifyRow(layout, tc.row))
		})
	}
}

func TestSectionColFallsBackToFirstColumn(t *testing.T) {
	layout := Layout{HeaderRow: 1, Columns: map[Field]int{FieldItemCode: 2}}
	require.Equal(t, 1, sectionCol(layout))

	layout.Columns[FieldSection] = 3
	require.Equal(t, 3, sectionCol(layout))
}

func TestTextRepeats(t *testing.T) {
	require.True(t, textRepeats("Earthwire", "earthwire"))
	require.True(t, textRepeats("Earthwire (Earthwire)", "Earthwire"))
	require.True(t, textRepeats("Hand  Tools", "hand tools"))
	require.False(t, textRepeats("Earthwire", "Hand Tools"))
	require.False(t, textRepeats("", "Earthwire"))
	require.False(t, textRepeats("Earthwire", "", ""))
}
