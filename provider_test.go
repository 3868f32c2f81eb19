package capture

import "testing"

func TestProviderCapabilities(t *testing.T) {
	tests := []struct {
		p       Provider
		name    string
		license License
		encode  bool
		decode  bool
	}{
		{ProviderAuto, "auto", LicenseBSD, false, false},
		{ProviderX264, "x264", LicenseGPL, true, false},
		{ProviderOpenH264, "openh264", LicenseBSD, false, true},
		{ProviderFDKAAC, "fdk-aac", LicenseBSD, true, false},
		{Provider(200), "unknown", LicenseGPL, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.String(); got != tt.name {
				t.Errorf("String() = %q", got)
			}
			if got := tt.p.License(); got != tt.license {
				t.Errorf("License() = %s, want %s", got, tt.license)
			}
			if got := tt.p.CanEncode(); got != tt.encode {
				t.Errorf("CanEncode() = %v", got)
			}
			if got := tt.p.CanDecode(); got != tt.decode {
				t.Errorf("CanDecode() = %v", got)
			}
		})
	}
}

func TestRegisterRejectsMismatchedProvider(t *testing.T) {
	tests := []struct {
		name     string
		register func()
	}{
		{"decoder as video encoder", func() {
			registerVideoEncoder(VideoCodecH264, ProviderOpenH264, nil)
		}},
		{"encoder as decoder", func() {
			registerVideoDecoder(VideoCodecH264, ProviderX264, nil)
		}},
		{"auto as audio encoder", func() {
			registerAudioEncoder(AudioCodecAAC, ProviderAuto, nil)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("registration did not panic")
				}
			}()
			tt.register()
		})
	}
}
