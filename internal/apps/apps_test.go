package apps

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDesktopFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestScan_ParsesApplications(t *testing.T) {
	dir := t.TempDir()
	path := writeDesktopFile(t, dir, "firefox.desktop", `[Desktop Entry]
Type=Application
Name=Firefox
Exec=firefox %u
Comment=Web Browser
Icon=firefox
Terminal=false
`)

	apps := Scan([]string{dir})

	require.Len(t, apps, 1)
	assert.Equal(t, App{
		Path:        path,
		Name:        "Firefox",
		Exec:        "firefox",
		Description: "Web Browser",
		Icon:        "firefox",
	}, apps[0])
}

func TestScan_SkipsUndisplayableEntries(t *testing.T) {
	dir := t.TempDir()
	writeDesktopFile(t, dir, "link.desktop", `[Desktop Entry]
Type=Link
Name=Somewhere
URL=https://example.org
`)
	writeDesktopFile(t, dir, "nodisplay.desktop", `[Desktop Entry]
Type=Application
Name=Helper
Exec=helper
NoDisplay=true
`)
	writeDesktopFile(t, dir, "hidden.desktop", `[Desktop Entry]
Type=Application
Name=Gone
Exec=gone
Hidden=true
`)
	writeDesktopFile(t, dir, "nameless.desktop", `[Desktop Entry]
Type=Application
Exec=mystery
`)
	writeDesktopFile(t, dir, "execless.desktop", `[Desktop Entry]
Type=Application
Name=Inert
`)
	writeDesktopFile(t, dir, "codes-only.desktop", `[Desktop Entry]
Type=Application
Name=Codes
Exec=%U
`)
	writeDesktopFile(t, dir, "notes.txt", "not a desktop file")

	assert.Empty(t, Scan([]string{dir}))
}

func TestScan_WalksSubdirectories(t *testing.T) {
	dir := t.TempDir()
	writeDesktopFile(t, filepath.Join(dir, "kde"), "dolphin.desktop", `[Desktop Entry]
Type=Application
Name=Dolphin
Exec=dolphin
`)

	apps := Scan([]string{dir})
	require.Len(t, apps, 1)
	assert.Equal(t, "Dolphin", apps[0].Name)
}

func TestScan_SortsByCaseFoldedName(t *testing.T) {
	dir := t.TempDir()
	for name, exec := range map[string]string{
		"gimp":    "gimp",
		"Blender": "blender",
		"ark":     "ark",
	} {
		writeDesktopFile(t, dir, exec+".desktop", `[Desktop Entry]
Type=Application
Name=`+name+`
Exec=`+exec+`
`)
	}

	apps := Scan([]string{dir})
	require.Len(t, apps, 3)
	assert.Equal(t, "ark", apps[0].Name)
	assert.Equal(t, "Blender", apps[1].Name)
	assert.Equal(t, "gimp", apps[2].Name)
}

func TestScan_DeduplicatesOverlappingDirs(t *testing.T) {
	dir := t.TempDir()
	writeDesktopFile(t, dir, "app.desktop", `[Desktop Entry]
Type=Application
Name=App
Exec=app
`)

	apps := Scan([]string{dir, dir})
	assert.Len(t, apps, 1)
}

func TestScan_MissingDirIgnored(t *testing.T) {
	assert.Empty(t, Scan([]string{filepath.Join(t.TempDir(), "nope")}))
}

func TestCleanExec(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"firefox %u", "firefox"},
		{"gimp-2.10 %U", "gimp-2.10"},
		{"app --flag %F rest", "app --flag rest"},
		{"env FOO=bar app %f %i %c %k", "env FOO=bar app"},
		{"plain-command", "plain-command"},
		{"spaced   out", "spaced out"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanExec(tt.in), "cleanExec(%q)", tt.in)
	}
}
