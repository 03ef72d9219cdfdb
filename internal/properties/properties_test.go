package properties

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_properties_Read(t *testing.T) {
	in := strings.NewReader(`
# control file
Name = fingers
  Description =  ten print slap
Count = 42
Name = fingers2
`)
	p := New()
	require.NoError(t, p.read(in))

	name, ok := p.Get("Name")
	require.True(t, ok)
	require.EqualValues(t, "fingers2", name, "last occurrence wins")

	desc, ok := p.Get("Description")
	require.True(t, ok)
	require.EqualValues(t, "ten print slap", desc)

	n, err := p.GetInt("Count")
	require.NoError(t, err)
	require.EqualValues(t, 42, n)

	_, ok = p.Get("Missing")
	require.False(t, ok)
	require.EqualValues(t, "fallback", p.GetDefault("Missing", "fallback"))
}

func Test_properties_ReadErrors(t *testing.T) {
	require.Error(t, New().read(strings.NewReader("no separator here\n")))
	require.Error(t, New().read(strings.NewReader("= value without name\n")))
}

func Test_properties_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "control.prop")

	p := New()
	p.Set("Name", "irises")
	p.Set(" Padded ", "trimmed")
	p.Set("Empty", "")
	require.NoError(t, p.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	require.EqualValues(t, 3, got.Len())

	name, _ := got.Get("Name")
	require.EqualValues(t, "irises", name)

	padded, ok := got.Get("Padded")
	require.True(t, ok, "key saved trimmed")
	require.EqualValues(t, "trimmed", padded)

	empty, ok := got.Get("Empty")
	require.True(t, ok)
	require.EqualValues(t, "", empty)
}

func Test_properties_LoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.prop"))
	require.Error(t, err)
}
