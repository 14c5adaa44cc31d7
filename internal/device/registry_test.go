package device

import "testing"

func TestLocationFor(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"living_room_thermometer", "Living Room"},
		{"bedroom_thermometer", "Bedroom"},
		{"office_thermometer", "Office"},
		{"outdoor_thermometer", "Outdoor"},

		// Identifiers without the suffix still map deterministically.
		{"garage", "Garage"},
		{"wine_cellar", "Wine Cellar"},
		{"_thermometer", "_thermometer"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := LocationFor(tt.input); got != tt.expected {
				t.Errorf("LocationFor(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestRegistryOrdering(t *testing.T) {
	devices := []Device{
		{Name: "living_room_thermometer", Address: "D40E84863006"},
		{Name: "bedroom_thermometer", Address: "D40E84861814"},
		{Name: "office_thermometer", Address: "D628EA1C498F"},
	}
	r := NewRegistry(devices)

	if r.Len() != 3 {
		t.Fatalf("Len = %d, want 3", r.Len())
	}

	names := r.Names()
	want := []string{"living_room_thermometer", "bedroom_thermometer", "office_thermometer"}
	for i, n := range want {
		if names[i] != n {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], n)
		}
	}
}

func TestEmptyRegistry(t *testing.T) {
	r := NewRegistry(nil)
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
	if len(r.Names()) != 0 {
		t.Errorf("Names = %v, want empty", r.Names())
	}
}
