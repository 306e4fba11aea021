package directory

import "testing"

func TestParseDoctorStatus(t *testing.T) {
	for _, s := range []string{"pending", "Approved", " rejected "} {
		if _, err := ParseDoctorStatus(s); err != nil {
			t.Errorf("ParseDoctorStatus(%q): unexpected error %v", s, err)
		}
	}
	if _, err := ParseDoctorStatus("suspended"); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestFilter_Match(t *testing.T) {
	d := &Doctor{FullName: "Asha Rao", Specialty: "Cardiology", Location: "Pune"}

	tests := []struct {
		filter Filter
		want   bool
	}{
		{Filter{}, true},
		{Filter{Text: "rao"}, true},
		{Filter{Text: "CARDIO"}, true},
		{Filter{Text: "pune"}, false},
		{Filter{Specialty: " Cardiology "}, true},
		{Filter{Specialty: "cardiology"}, false},
		{Filter{Location: "Pune", Text: "asha"}, true},
		{Filter{Location: "Mumbai", Text: "asha"}, false},
	}
	for _, tt := range tests {
		if got := tt.filter.Match(d); got != tt.want {
			t.Errorf("%+v.Match() = %v, want %v", tt.filter, got, tt.want)
		}
	}
}
