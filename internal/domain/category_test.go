package domain

import "testing"

func TestNormalizeCategory(t *testing.T) {
	tests := []struct {
		name string
		in   Category
		want Category
	}{
		{name: "legacy trash becomes general", in: CategoryLegacyTrash, want: CategoryGeneral},
		{name: "recyclable unchanged", in: CategoryRecyclable, want: CategoryRecyclable},
		{name: "unknown passes through", in: "mystery", want: "mystery"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeCategory(tc.in); got != tc.want {
				t.Errorf("NormalizeCategory(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestBagColor(t *testing.T) {
	tests := []struct {
		in   Category
		want string
	}{
		{in: CategoryRecyclable, want: "blue"},
		{in: CategoryOrganic, want: "green"},
		{in: CategoryGeneral, want: "black"},
		{in: CategoryHazardous, want: "red"},
		{in: CategoryEWaste, want: "orange"},
		// Legacy entries resolve through normalization.
		{in: CategoryLegacyTrash, want: "black"},
		// Anything unknown degrades to the general bag.
		{in: "mystery", want: "black"},
	}

	for _, tc := range tests {
		if got := BagColor(tc.in); got != tc.want {
			t.Errorf("BagColor(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsKnownCategory(t *testing.T) {
	if !IsKnownCategory(CategoryLegacyTrash) {
		t.Error("legacy trash should be known after normalization")
	}
	if IsKnownCategory("compostable") {
		t.Error("unlisted category should be unknown")
	}
}
