package amount

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFind(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		values []float64
	}{
		{"swedish decimals", "Produkt 5 st 150,00 300,00", []float64{150, 300}},
		{"space grouped", "Att betala 1 796,88", []float64{1796.88}},
		{"period grouped", "Summa 1.796,88 SEK", []float64{1796.88}},
		{"english grouped", "Total 1,796.88", []float64{1796.88}},
		{"leading minus", "Rabatt -50,00 250,00", []float64{-50, 250}},
		{"trailing minus", "Kredit 75,00-", []float64{-75}},
		{"currency suffix", "Belopp 99,50kr", []float64{99.5}},
		{"percent skipped", "Moms 25,00 % 250,00", []float64{250}},
		{"date skipped", "Datum 15.03.2024", nil},
		{"glued hyphen is not a sign", "INV-100,00", nil},
		{"no decimals", "Kundnummer 12345", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			matches := Find(tc.text)
			var got []float64
			for _, m := range matches {
				got = append(got, m.Float())
			}
			assert.Equal(t, tc.values, got)
		})
	}
}

func TestFind_SpansCoverSign(t *testing.T) {
	text := "Rabatt -50,00"
	matches := Find(text)
	require.Len(t, matches, 1)
	assert.True(t, matches[0].Negative)
	assert.Equal(t, "-50,00", text[matches[0].Start:matches[0].End])
}

func TestMatch_Split(t *testing.T) {
	matches := Find("Skruv 2 150,00")
	require.Len(t, matches, 1)
	require.True(t, matches[0].SpaceGrouped())

	lead, rest, ok := matches[0].Split()
	require.True(t, ok)
	assert.Equal(t, 2.0, lead)
	assert.Equal(t, 150.0, rest.Float())
	assert.Equal(t, "150,00", rest.Text)
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1 796,88", 1796.88, true},
		{"1.500", 1500, true},
		{"0.125", 0.125, true},
		{"2,5", 2.5, true},
		{"-12,00", -12, true},
		{"12,00-", -12, true},
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, tc := range tests {
		got, ok := ParseFloat(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.InDelta(t, tc.want, got, 1e-9, tc.in)
	}
}

func TestSum_IsExact(t *testing.T) {
	values := make([]float64, 100)
	for i := range values {
		values[i] = 0.1
	}
	assert.Equal(t, 10.0, Sum(values))
	assert.True(t, Within(1796.88, 1796.875, 0.01))
	assert.False(t, Within(100, 101.5, 1.0))
}

func ExampleFind() {
	for _, m := range Find("Summa exkl. moms 1 437,50 Att betala 1 796,88") {
		fmt.Println(m.Value.StringFixed(2))
	}
	// Output:
	// 1437.50
	// 1796.88
}
