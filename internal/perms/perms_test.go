package perms

import (
	"encoding/json"
	"testing"
)

func TestMaskRoundTrip(t *testing.T) {
	// FromList(FromMask(m).List()) must reproduce every valid mask.
	for mask := 0; mask <= AllMask; mask++ {
		got := FromList(FromMask(mask).List()).Mask()
		if got != mask {
			t.Fatalf("mask %d round-tripped to %d", mask, got)
		}
	}
}

func TestListRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		caps []Capability
	}{
		{"empty", nil},
		{"single", []Capability{ViewAudience}},
		{"several", []Capability{ViewKeys, EditSettings, ViewAudience}},
		{"duplicates", []Capability{ViewMetrics, ViewMetrics}},
		{"all", All().List()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := FromList(tt.caps)
			want := map[Capability]bool{}
			for _, c := range tt.caps {
				want[c] = true
			}

			got := set.List()
			if len(got) != len(want) {
				t.Fatalf("got %v, want set of %v", got, tt.caps)
			}
			for _, c := range got {
				if !want[c] {
					t.Errorf("unexpected capability %v", c)
				}
			}
		})
	}
}

func TestFromListIgnoresInvalid(t *testing.T) {
	set := FromList([]Capability{ViewAudience, Capability(12), Capability(-1)})
	if set.Mask() != 1<<ViewAudience {
		t.Errorf("got mask %d, want %d", set.Mask(), 1<<ViewAudience)
	}
}

func TestHas(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		granted   int
		any       bool
		want      bool
	}{
		{"all mode exact", 0b0101, 0b0101, false, true},
		{"all mode superset", 0b0101, 0b1111, false, true},
		{"all mode missing bit", 0b0101, 0b0001, false, false},
		{"all mode disjoint", 0b0101, 0b1010, false, false},
		{"all mode empty request", 0, 0b1010, false, true},
		{"all mode empty grant", 0b0001, 0, false, false},
		{"any mode overlap", 0b0101, 0b0100, true, true},
		{"any mode disjoint", 0b0101, 0b1010, true, false},
		{"any mode empty request", 0, 0b1111, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Has(FromMask(tt.requested), FromMask(tt.granted), tt.any)
			if got != tt.want {
				t.Errorf("Has(%b, %b, %v) = %v, want %v",
					tt.requested, tt.granted, tt.any, got, tt.want)
			}
		})
	}
}

func TestHasMatchesMaskLaws(t *testing.T) {
	// Has(R, G, all) iff G&R == R; Has(R, G, any) iff G&R != 0.
	for r := 0; r <= AllMask; r += 7 {
		for g := 0; g <= AllMask; g += 5 {
			req, grant := FromMask(r), FromMask(g)
			if Has(req, grant, false) != (g&r == r) {
				t.Fatalf("all-mode law broken for R=%b G=%b", r, g)
			}
			if Has(req, grant, true) != (g&r != 0) {
				t.Fatalf("any-mode law broken for R=%b G=%b", r, g)
			}
		}
	}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		granted   int
		any       bool
		want      int
	}{
		{"all mode intersects", 0b0111, 0b0101, false, 0b0101},
		{"all mode disjoint", 0b0101, 0b1010, false, 0},
		{"any mode unions", 0b0101, 0b1010, true, 0b1111},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Apply(FromMask(tt.requested), FromMask(tt.granted), tt.any).Mask()
			if got != tt.want {
				t.Errorf("Apply(%b, %b, %v) = %b, want %b",
					tt.requested, tt.granted, tt.any, got, tt.want)
			}
		})
	}
}

func TestGrantRevoke(t *testing.T) {
	current := FromList([]Capability{ViewAudience, ViewKeys})

	granted := Grant(current, FromList([]Capability{EditSettings}))
	if !Has(FromList([]Capability{ViewAudience, ViewKeys, EditSettings}), granted, false) {
		t.Errorf("grant did not add EditSettings: %v", granted.List())
	}

	revoked := Revoke(granted, FromList([]Capability{ViewKeys}))
	if Has(FromList([]Capability{ViewKeys}), revoked, true) {
		t.Errorf("revoke did not remove ViewKeys: %v", revoked.List())
	}
	if !Has(FromList([]Capability{ViewAudience, EditSettings}), revoked, false) {
		t.Errorf("revoke removed too much: %v", revoked.List())
	}
}

func TestUnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantMask int
		wantErr  bool
	}{
		{"bitmask", `5`, 0b0101, false},
		{"zero", `0`, 0, false},
		{"name list", `["VIEW_AUDIENCE", "VIEW_KEYS"]`, 1<<ViewAudience | 1<<ViewKeys, false},
		{"bit list", `[0, 5]`, 1<<ViewAudience | 1<<ViewKeys, false},
		{"empty list", `[]`, 0, false},
		{"unknown name", `["VIEW_EVERYTHING"]`, 0, true},
		{"wrong type", `"nope"`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var set PermissionSet
			err := json.Unmarshal([]byte(tt.input), &set)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr = %v", err, tt.wantErr)
			}
			if err == nil && set.Mask() != tt.wantMask {
				t.Errorf("mask = %b, want %b", set.Mask(), tt.wantMask)
			}
		})
	}
}

func TestMarshalJSON(t *testing.T) {
	data, err := json.Marshal(FromList([]Capability{EditSettings, ViewAudience}))
	if err != nil {
		t.Fatal(err)
	}
	want := `["VIEW_AUDIENCE","EDIT_SETTINGS"]`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}
