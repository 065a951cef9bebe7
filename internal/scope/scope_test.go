package scope

import "testing"

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		parent    string
		candidate string
		want      string
	}{
		{"absolute ignores parent", "http://x/a/", "http://y/b", "http://y/b"},
		{"absolute without parent", "", "http://y/b#", "http://y/b#"},
		{"relative against parent", "http://x/a/", "b.json", "http://x/a/b.json"},
		{"relative replaces last segment", "http://x/a/root.json", "child", "http://x/a/child"},
		{"fragment id", "http://x/root.json", "#foo", "http://x/root.json#foo"},
		{"dot segments", "http://x/a/b/", "../c", "http://x/a/c"},
		{"relative without parent is root", "", "item", "item"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.parent, tt.candidate)
			if err != nil {
				t.Fatalf("Resolve(%q, %q): %v", tt.parent, tt.candidate, err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q, %q) = %q, want %q", tt.parent, tt.candidate, got, tt.want)
			}
		})
	}
}

func TestResolveMalformed(t *testing.T) {
	if _, err := Resolve("", "http://[::1"); err == nil {
		t.Fatal("expected parse error for malformed candidate")
	}
	if _, err := Resolve("http://[::1", "child"); err == nil {
		t.Fatal("expected parse error for malformed parent")
	}
}

func TestSplitFragment(t *testing.T) {
	base, frag := SplitFragment("http://x/s.json#/definitions/a")
	if base != "http://x/s.json" || frag != "/definitions/a" {
		t.Fatalf("got %q %q", base, frag)
	}
	base, frag = SplitFragment("#")
	if base != "" || frag != "" {
		t.Fatalf("got %q %q", base, frag)
	}
	base, frag = SplitFragment("plain")
	if base != "plain" || frag != "" {
		t.Fatalf("got %q %q", base, frag)
	}
}

func TestBase(t *testing.T) {
	got, err := Base("http://x/s.json#/definitions/a")
	if err != nil {
		t.Fatal(err)
	}
	if got != "http://x/s.json" {
		t.Fatalf("Base = %q", got)
	}
	if !IsAbsolute("file:///tmp/a.json") || IsAbsolute("#/a") {
		t.Fatal("IsAbsolute misclassified")
	}
}
