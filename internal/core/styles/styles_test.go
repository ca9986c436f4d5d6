package styles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThemeNames(t *testing.T) {
	assert.Equal(t, []string{"gruvbox", "tokyo-night"}, ThemeNames())
}

func TestGetPalette(t *testing.T) {
	p, ok := GetPalette(DefaultTheme)
	require.True(t, ok)
	assert.NotEmpty(t, p.Primary)

	_, ok = GetPalette("solarized")
	assert.False(t, ok)
}

func TestSetTheme(t *testing.T) {
	t.Cleanup(func() {
		p, _ := GetPalette(DefaultTheme)
		SetTheme(p)
	})

	p, _ := GetPalette("gruvbox")
	SetTheme(p)

	assert.Equal(t, p, CurrentPalette)
	assert.Equal(t, p.Primary, HeaderStyle.GetForeground())
	assert.Contains(t, HeaderStyle.Render("Pending"), "Pending")
}
