package site

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"testing"
)

func TestCaptureForm_JSONBody(t *testing.T) {
	t.Parallel()

	body := `{"name":"Asha","age":52,"place":"","productName":"Clay lamp","fragile":true}`
	req := httptest.NewRequest(http.MethodPost, "http://127.0.0.1/api/generate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	values, err := CaptureForm(req)
	if err != nil {
		t.Fatalf("CaptureForm error: %v", err)
	}

	want := map[string]string{
		"name":        "Asha",
		"age":         "52",
		"place":       "",
		"productName": "Clay lamp",
		"fragile":     "true",
	}
	if !reflect.DeepEqual(values, want) {
		t.Fatalf("expected %v, got %v", want, values)
	}
}

func TestCaptureForm_URLEncodedIncludesEmptyFields(t *testing.T) {
	t.Parallel()

	form := url.Values{}
	form.Set("name", "Ravi")
	form.Set("place", "")
	form.Set("tone", "warm")
	req := httptest.NewRequest(http.MethodPost, "http://127.0.0.1/api/publish",
		strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	values, err := CaptureForm(req)
	if err != nil {
		t.Fatalf("CaptureForm error: %v", err)
	}

	if values["name"] != "Ravi" || values["tone"] != "warm" {
		t.Fatalf("unexpected values: %v", values)
	}
	if _, present := values["place"]; !present {
		t.Fatalf("expected empty field to be captured, got %v", values)
	}
	if values["place"] != "" {
		t.Fatalf("expected empty place, got %q", values["place"])
	}
}

func TestCaptureForm_RejectsMalformedJSON(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "http://127.0.0.1/api/generate",
		strings.NewReader(`{"name":`))
	req.Header.Set("Content-Type", "application/json")

	if _, err := CaptureForm(req); err == nil {
		t.Fatalf("expected error for malformed JSON")
	}
}

func TestFormValues_FirstValueWins(t *testing.T) {
	t.Parallel()

	values := FormValues(url.Values{"tone": {"warm", "cold"}, "name": {}})
	if values["tone"] != "warm" {
		t.Fatalf("expected first value, got %q", values["tone"])
	}
	if values["name"] != "" {
		t.Fatalf("expected empty value for valueless key, got %q", values["name"])
	}
}
