package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWithinDirectory(t *testing.T) {
	tmp := t.TempDir()
	safe := filepath.Join(tmp, "safe")
	outside := filepath.Join(tmp, "outside")
	for _, d := range []string{safe, outside} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	link := filepath.Join(safe, "link")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	testCases := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"new file", filepath.Join(safe, "chart.html"), false},
		{"nested new file", filepath.Join(safe, "a", "b", "trace.png"), false},
		{"dot dot", filepath.Join(safe, "..", "outside", "x.png"), true},
		{"sibling", filepath.Join(outside, "x.png"), true},
		{"through symlink", filepath.Join(link, "x.png"), true},
		{"dir itself", safe, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := WithinDirectory(tc.path, safe)
			if (err != nil) != tc.wantErr {
				t.Errorf("WithinDirectory(%q) err = %v, wantErr %v", tc.path, err, tc.wantErr)
			}
		})
	}
}

func TestValidateOutputPath(t *testing.T) {
	tmp := t.TempDir()

	testCases := []struct {
		name    string
		path    string
		ext     string
		dirs    []string
		wantErr bool
	}{
		{"allowed png", filepath.Join(tmp, "trace.png"), ".png", []string{tmp}, false},
		{"case insensitive ext", filepath.Join(tmp, "trace.PNG"), ".png", []string{tmp}, false},
		{"wrong ext", filepath.Join(tmp, "trace.jpg"), ".png", []string{tmp}, true},
		{"any ext", filepath.Join(tmp, "params.txt"), "", []string{tmp}, false},
		{"outside", "/etc/fuelfit.html", ".html", []string{tmp}, true},
		{"default dirs include temp", filepath.Join(os.TempDir(), "fit.html"), ".html", nil, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateOutputPath(tc.path, tc.ext, tc.dirs...)
			if (err != nil) != tc.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	testCases := []struct {
		in, want string
	}{
		{"", "unknown"},
		{"run-1.txt", "run-1.txt"},
		{"../../etc/passwd", "etc_passwd"},
		{"a  b//c", "a_b_c"},
		{"___", "unknown"},
		{"ünïcode run", "n_code_run"},
	}
	for _, tc := range testCases {
		if got := SanitizeFilename(tc.in); got != tc.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
