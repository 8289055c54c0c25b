package validation

import (
	"errors"
	"testing"

	"github.com/abdusco/linkdash/internal"
)

type sample struct {
	URL       string `json:"url" validate:"required,url"`
	ShortCode string `json:"shortCode" validate:"omitempty,shortcode"`
	ExpiresIn *int   `json:"expiresIn" validate:"omitempty,min=0"`
}

func TestGet_Singleton(t *testing.T) {
	if Get() != Get() {
		t.Error("Get() should return the same instance")
	}
}

func TestStruct(t *testing.T) {
	negative := -1
	zero := 0

	tests := []struct {
		name    string
		input   sample
		wantErr string
	}{
		{name: "valid", input: sample{URL: "https://example.com/a?b=c"}},
		{name: "valid with code and zero expiry", input: sample{URL: "https://example.com", ShortCode: "promo_2024", ExpiresIn: &zero}},
		{name: "missing url", input: sample{}, wantErr: "url is required"},
		{name: "relative url", input: sample{URL: "/just/a/path"}, wantErr: "url must be a valid absolute URL"},
		{name: "code too short", input: sample{URL: "https://example.com", ShortCode: "ab"}, wantErr: "shortCode must be 3-32 characters of letters, digits, '-' or '_'"},
		{name: "code with slash", input: sample{URL: "https://example.com", ShortCode: "a/b/c"}, wantErr: "shortCode must be 3-32 characters of letters, digits, '-' or '_'"},
		{name: "negative expiry", input: sample{URL: "https://example.com", ExpiresIn: &negative}, wantErr: "expiresIn must be at least 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(&tt.input)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error %q, got nil", tt.wantErr)
			}
			var appErr *internal.Error
			if !errors.As(err, &appErr) || appErr.Kind != internal.KindValidation {
				t.Fatalf("expected validation error, got %#v", err)
			}
			if appErr.Message != tt.wantErr {
				t.Errorf("message = %q, want %q", appErr.Message, tt.wantErr)
			}
		})
	}
}
