package i18n

import "testing"

func TestGetCatalogFallback(t *testing.T) {
	base := GetCatalog("en-US")
	if base == nil {
		t.Fatal("expected base catalog")
	}
	if fallback := GetCatalog("not a locale!"); fallback != base {
		t.Fatal("expected fallback to en-US catalog")
	}
	if got := GetCatalog("pt").Locale(); got != "pt-BR" {
		t.Fatalf("pt resolved to %q, want pt-BR", got)
	}
}

func TestForAcceptLanguage(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", "en-US"},
		{"pt-BR,pt;q=0.9,en;q=0.8", "pt-BR"},
		{"en-GB", "en-US"},
		{"ja", "en-US"},
	}
	for _, tc := range tests {
		if got := ForAcceptLanguage(tc.header).Locale(); got != tc.want {
			t.Fatalf("ForAcceptLanguage(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}

func TestFormatFallbacks(t *testing.T) {
	cat := NewCatalog("en-US", map[Code]string{
		"code": "hello {{.Name}}",
	})

	if cat.Format("unknown", nil) != "unknown" {
		t.Fatal("expected code fallback when template missing")
	}
	if cat.Format("code", nil) != "hello <no value>" {
		t.Fatal("expected template to render missing metadata")
	}
}

func TestFormatUsesBaseForMissingTranslations(t *testing.T) {
	pt := GetCatalog("pt-BR")
	got := pt.Format("AUTH_PASSWORD_TOO_SHORT", map[string]string{"Min": "8"})
	if got != "Passwords must be at least 8 characters." {
		t.Fatalf("unexpected fallback message %q", got)
	}
}

func TestFormatTemplateErrorFallback(t *testing.T) {
	cat := NewCatalog("test", map[Code]string{
		"code": "{{ if .Name }}",
	})
	if cat.Format("code", map[string]string{"Name": "X"}) != "{{ if .Name }}" {
		t.Fatal("expected template fallback on parse error")
	}
}
