package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVRenderPadsShortRows(t *testing.T) {
	out, err := NewCSVExporter().Render(Table{
		Headers: []string{"date", "start", "status"},
		Rows:    [][]string{{"2025-03-10", "09:00", "CONFIRMED"}, {"2025-03-11"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "date,start,status\n2025-03-10,09:00,CONFIRMED\n2025-03-11,,\n", string(out))
}

func TestCSVRenderNeutralisesFormulas(t *testing.T) {
	out, err := NewCSVExporter().Render(Table{
		Headers: []string{"location", "notes"},
		Rows:    [][]string{{"=HYPERLINK(\"x\")", "@risk"}, {"Depot", "-"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "location,notes\n\"'=HYPERLINK(\"\"x\"\")\",'@risk\nDepot,'-\n", string(out))
}

func TestRenderRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Table{})
	assert.Error(t, err)
	_, err = NewPDFExporter().Render(Table{})
	assert.Error(t, err)
}

func TestPDFRender(t *testing.T) {
	out, err := NewPDFExporter().Render(Table{
		Title:   "Instructor calendar",
		Headers: []string{"date", "start"},
		Rows:    [][]string{{"2025-03-10", "09:00"}},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}
