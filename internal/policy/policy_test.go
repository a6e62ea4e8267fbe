package policy

import "testing"

func TestIsCommandAllowed(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    bool
	}{
		{"bare git", "git status", true},
		{"leading whitespace", "   git status", true},
		{"prefix without boundary", "gitignore status", false},
		{"other binary", "rm -rf /", false},
		{"git alone", "git", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCommandAllowed(tt.command); got != tt.want {
				t.Errorf("IsCommandAllowed(%q) = %v, want %v", tt.command, got, tt.want)
			}
		})
	}
}

func TestHasForbiddenShellOperators(t *testing.T) {
	tests := []struct {
		command string
		want    bool
	}{
		{"git status", false},
		{"git status && rm -rf /", true},
		{"git log | head", true},
		{"git log > out.txt", true},
		{"git grep 'a < b'", true},
		{"git commit -m `date`", true},
		{"git diff --stat", false},
	}
	for _, tt := range tests {
		if got := HasForbiddenShellOperators(tt.command); got != tt.want {
			t.Errorf("HasForbiddenShellOperators(%q) = %v, want %v", tt.command, got, tt.want)
		}
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    []string
		wantErr bool
	}{
		{"simple", "git status", []string{"git", "status"}, false},
		{"double quoted", `git grep -n "hello world" -- f.ts`, []string{"git", "grep", "-n", "hello world", "--", "f.ts"}, false},
		{"single quoted literal", `git commit -m 'a $(b) c'`, []string{"git", "commit", "-m", "a $(b) c"}, false},
		{"backslash escape", `git grep foo\ bar`, []string{"git", "grep", "foo bar"}, false},
		{"empty", "   ", nil, true},
		{"unterminated quote", `git grep "unterminated`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Tokenize(tt.command)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Tokenize(%q) error = %v, wantErr %v", tt.command, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Tokenize(%q) = %v, want %v", tt.command, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Tokenize(%q)[%d] = %q, want %q", tt.command, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestIsContentSearchProbe(t *testing.T) {
	tests := []struct {
		command string
		want    bool
	}{
		{`git grep -n "X" -- f.ts`, true},
		{"git status", false},
		{"git diff", false},
	}
	for _, tt := range tests {
		if got := IsContentSearchProbe(tt.command); got != tt.want {
			t.Errorf("IsContentSearchProbe(%q) = %v, want %v", tt.command, got, tt.want)
		}
	}
}

func TestIsExecutorToolAllowed(t *testing.T) {
	if !IsExecutorToolAllowed("codex") {
		t.Error("expected codex to be allowed")
	}
	if IsExecutorToolAllowed("unknown-tool") {
		t.Error("expected unknown-tool to be rejected")
	}
}
