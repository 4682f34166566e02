package mcphost

import "testing"

func TestParseServerSpecsStdio(t *testing.T) {
	cfgs, err := ParseServerSpecs([]string{"dice=stdio:/usr/local/bin/mcp-dice --verbose"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfgs) != 1 {
		t.Fatalf("expected 1 config, got %d", len(cfgs))
	}
	if cfgs[0].Name != "dice" || cfgs[0].Transport != TransportStdio || cfgs[0].Command != "/usr/local/bin/mcp-dice --verbose" {
		t.Fatalf("unexpected parse result: %+v", cfgs[0])
	}
}

func TestParseServerSpecsStreamableHTTP(t *testing.T) {
	cfgs, err := ParseServerSpecs([]string{"weather=streamable_http:https://example.com/mcp"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfgs[0].Transport != TransportStreamableHTTP || cfgs[0].URL != "https://example.com/mcp" {
		t.Fatalf("unexpected parse result: %+v", cfgs[0])
	}
}

func TestParseServerSpecsMalformed(t *testing.T) {
	cases := []string{"", "noequalssign", "name=unknown_transport:target", "name=stdio"}
	for _, c := range cases {
		if _, err := ParseServerSpecs([]string{c}); err == nil {
			t.Fatalf("expected error for spec %q", c)
		}
	}
}

func TestSplitCommand(t *testing.T) {
	exe, args := splitCommand("/bin/foo --bar baz")
	if exe != "/bin/foo" || len(args) != 2 || args[0] != "--bar" || args[1] != "baz" {
		t.Fatalf("unexpected split: exe=%q args=%v", exe, args)
	}
	exe, args = splitCommand("")
	if exe != "" || args != nil {
		t.Fatalf("expected empty split for empty command, got exe=%q args=%v", exe, args)
	}
}
