package sequencer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aamcrae/config"
	"github.com/google/go-cmp/cmp"
	"github.com/w1xm/covers_interface/relay"
)

func parseConfig(t *testing.T, contents string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "covers.conf")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	conf, err := config.ParseFile(path)
	if err != nil {
		t.Fatalf("%s: %v", path, err)
	}
	return conf
}

func TestParseConfig(t *testing.T) {
	conf := parseConfig(t, `[roof]
base=avr
stagger=4
window=25
counting=up
reverse=direct
persist=yes
terminator=cr
relays=4,0,1001,1101,0110,1110

[plain]
base=pico

[bad]
window=3
stagger=3
`)
	got, err := ParseConfig(conf, "roof")
	if err != nil {
		t.Fatalf("ParseConfig(roof): %v", err)
	}
	want := Params{
		Name:       "roof",
		Stagger:    4,
		Window:     25,
		Counting:   CountUp,
		Persist:    true,
		Terminator: "\r",
		Layout:     relay.FourLine,
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("unexpected params: got(-)/want(+):\n%s", diff)
	}

	got, err = ParseConfig(conf, "plain")
	if err != nil {
		t.Fatalf("ParseConfig(plain): %v", err)
	}
	want = Pico
	want.Name = "plain"
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("unexpected params: got(-)/want(+):\n%s", diff)
	}

	if _, err := ParseConfig(conf, "bad"); err == nil {
		t.Error("ParseConfig(bad) accepted stagger == window")
	}
	if _, err := ParseConfig(conf, "missing"); err == nil {
		t.Error("ParseConfig(missing) did not fail")
	}
}

func TestPresets(t *testing.T) {
	for _, name := range []string{"pico", "avr"} {
		p, err := Preset(name)
		if err != nil {
			t.Fatalf("Preset(%q): %v", name, err)
		}
		if err := p.Check(); err != nil {
			t.Errorf("Preset(%q).Check() = %v", name, err)
		}
	}
	if _, err := Preset("arduino"); err == nil {
		t.Error("Preset(arduino) did not fail")
	}
}

func TestParamsCheck(t *testing.T) {
	for _, test := range []struct {
		name   string
		modify func(p *Params)
	}{
		{"zero window", func(p *Params) { p.Window = 0 }},
		{"huge window", func(p *Params) { p.Window = 1 << 16 }},
		{"negative stagger", func(p *Params) { p.Stagger = -1 }},
		{"stagger past window", func(p *Params) { p.Stagger = p.Window }},
		{"no terminator", func(p *Params) { p.Terminator = "" }},
		{"bad layout", func(p *Params) { p.Layout.Masks[relay.Idle] = 1 }},
	} {
		t.Run(test.name, func(t *testing.T) {
			p := Pico
			test.modify(&p)
			if err := p.Check(); err == nil {
				t.Error("Check() accepted invalid params")
			}
		})
	}
}
