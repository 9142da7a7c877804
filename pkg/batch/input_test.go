package batch_test

import (
	"strings"
	"testing"

	"github.com/jmylchreest/cinetag/pkg/batch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogue = `Show_Id,Category,Title,Director,Type,Description
s1,TV Show,3%,,"International TV Shows, TV Dramas, TV Sci-Fi & Fantasy","In a future where the elite inhabit an island paradise, you get one chance to join the 3% saved from squalor."
s2,Movie,7:19,Jorge Michel Grau,"Dramas, International Movies",
s3,Movie,21,Robert Luketic,Dramas,"A brilliant group of students become card-counting experts."
`

func TestReadCSV_DefaultColumns(t *testing.T) {
	t.Parallel()

	got, err := batch.ReadCSV(strings.NewReader(catalogue), batch.DefaultReadOptions())

	require.NoError(t, err)
	require.Len(t, got, 2, "row with blank description is skipped")

	assert.Equal(t, 1, got[0].Row)
	assert.Equal(t, "3%", got[0].Title)
	assert.Equal(t, []string{"International TV Shows", "TV Dramas", "TV Sci-Fi & Fantasy"}, got[0].Genres)
	assert.True(t, strings.HasPrefix(got[0].Description, "In a future"))

	assert.Equal(t, 3, got[1].Row)
	assert.Equal(t, "21", got[1].Title)
	assert.Equal(t, []string{"Dramas"}, got[1].Genres)
}

func TestReadCSV_CustomColumnsAndLimit(t *testing.T) {
	t.Parallel()

	data := "name,SYNOPSIS\nA,first one\nB,second one\nC,third one\n"
	got, err := batch.ReadCSV(strings.NewReader(data), batch.ReadOptions{
		TitleColumn:       "Name",
		DescriptionColumn: "synopsis",
		Limit:             2,
	})

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "B", got[1].Title)
	assert.Nil(t, got[1].Genres)
}

func TestReadCSV_StripHTML(t *testing.T) {
	t.Parallel()

	data := "Title,Description\nX,\"<p>A <b>bold</b> heist.</p><p>Second&nbsp;act.</p>\"\nY,<br/>\n"
	got, err := batch.ReadCSV(strings.NewReader(data), batch.ReadOptions{
		TitleColumn:       "Title",
		DescriptionColumn: "Description",
		StripHTML:         true,
	})

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A bold heist. Second act.", got[0].Description)
}

func TestReadCSV_Errors(t *testing.T) {
	t.Parallel()

	_, err := batch.ReadCSV(strings.NewReader(""), batch.DefaultReadOptions())
	assert.ErrorContains(t, err, "empty")

	_, err = batch.ReadCSV(strings.NewReader("Title,Plot\nA,b\n"), batch.DefaultReadOptions())
	assert.ErrorContains(t, err, `no "Description" column`)
}

func TestStripHTML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"plain   text\n here", "plain text here"},
		{"<div>one</div><div>two</div>", "one two"},
		{"<script>alert(1)</script>visible", "visible"},
		{"Tom &amp; Jerry", "Tom & Jerry"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, batch.StripHTML(tt.in), tt.in)
	}
}

func TestSample(t *testing.T) {
	t.Parallel()

	all := make([]batch.Input, 20)
	for i := range all {
		all[i] = batch.Input{Row: i + 1}
	}

	a := batch.Sample(all, 5, 42)
	b := batch.Sample(all, 5, 42)

	require.Len(t, a, 5)
	assert.Equal(t, a, b, "same seed gives the same sample")
	for i := 1; i < len(a); i++ {
		assert.Less(t, a[i-1].Row, a[i].Row, "source order is kept")
	}
	assert.Len(t, batch.Sample(all, 0, 42), 20)
	assert.Len(t, batch.Sample(all, 50, 42), 20)
}
