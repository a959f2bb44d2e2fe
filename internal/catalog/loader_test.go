package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func writeChallenge(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadFromDir(t *testing.T) {
	dir := t.TempDir()

	writeChallenge(t, dir, "warmup-echo.yaml", `
id: warmup-echo
name: Echoes in the Terminal
category: pwn
points: 100
difficulty: easy
daily: true
description: Warm up your terminal-fu.
files: [README.md, challenge.txt, hints.txt]
hint: Try inspecting simple strings and outputs.
flag: editaCTF{terminal_echo_master}
`)
	writeChallenge(t, dir, "web-sqli.yaml", `
id: web-sqli
name: Login Bypass 101
category: web
points: 200
difficulty: medium
description: A classic web challenge.
hint: What does ' OR '1'='1 do in the right context?
flag: editaCTF{no_sql_for_you}
`)

	loader := NewLoader()
	if err := loader.LoadFromDir(dir); err != nil {
		t.Fatalf("LoadFromDir failed: %v", err)
	}

	if loader.Len() != 2 {
		t.Fatalf("expected 2 challenges, got %d", loader.Len())
	}

	ch, ok := loader.Get("warmup-echo")
	if !ok {
		t.Fatal("warmup-echo not found")
	}
	if ch.Points != 100 {
		t.Errorf("expected 100 points, got %d", ch.Points)
	}
	if !ch.Daily {
		t.Error("expected warmup-echo to be daily")
	}
	if len(ch.Files) != 3 {
		t.Errorf("expected 3 files, got %d", len(ch.Files))
	}

	hint, ok := loader.Hint("web-sqli")
	if !ok || hint == "" {
		t.Error("expected a hint for web-sqli")
	}

	flag, ok := loader.SecretFlag("warmup-echo")
	if !ok || flag != "editaCTF{terminal_echo_master}" {
		t.Errorf("unexpected secret flag: %q", flag)
	}

	if _, ok := loader.Get("nope"); ok {
		t.Error("expected lookup miss for unknown id")
	}
}

func TestListOrder(t *testing.T) {
	dir := t.TempDir()

	// File names sort crypto < pwn < web; within a category, points decide.
	writeChallenge(t, dir, "a-crypto-hard.yaml", "id: crypto-hard\ncategory: crypto\npoints: 300\nflag: editaCTF{a}\n")
	writeChallenge(t, dir, "b-crypto-easy.yaml", "id: crypto-easy\ncategory: crypto\npoints: 100\nflag: editaCTF{b}\n")
	writeChallenge(t, dir, "c-pwn.yaml", "id: pwn-1\ncategory: pwn\npoints: 50\nflag: editaCTF{c}\n")

	loader := NewLoader()
	if err := loader.LoadFromDir(dir); err != nil {
		t.Fatalf("LoadFromDir failed: %v", err)
	}

	got := loader.List()
	want := []string{"crypto-easy", "crypto-hard", "pwn-1"}
	if len(got) != len(want) {
		t.Fatalf("expected %d challenges, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
}

func TestLoadValidation(t *testing.T) {
	dir := t.TempDir()
	writeChallenge(t, dir, "bad.yaml", "id: bad\ncategory: misc\npoints: 10\n") // no flag

	loader := NewLoader()
	if err := loader.LoadFromFile(filepath.Join(dir, "bad.yaml")); err == nil {
		t.Error("expected validation error for missing flag")
	}
}

func TestRulesFallback(t *testing.T) {
	loader := NewLoader()
	if loader.Rules() != DefaultRules {
		t.Error("expected default rules before loading")
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "rules.txt"), []byte("house rules"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := loader.LoadFromDir(dir); err != nil {
		t.Fatalf("LoadFromDir failed: %v", err)
	}
	if loader.Rules() != "house rules" {
		t.Errorf("expected rules.txt contents, got %q", loader.Rules())
	}
}
