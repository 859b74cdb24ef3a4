package licensescan

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLicenseText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/MIT.txt":
			fmt.Fprint(w, "MIT License\n\nPermission is hereby granted...")
		case "/HTML-404.txt":
			fmt.Fprint(w, "<html><body>Not here</body></html>")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := newFetcher(srv.URL, "test", nil)

	text, ok := f.LicenseText(context.Background(), "MIT")
	if !ok {
		t.Fatal("LicenseText(MIT) reported failure")
	}
	if !strings.HasPrefix(text, "MIT License") {
		t.Errorf("unexpected text: %q", text)
	}

	text, ok = f.LicenseText(context.Background(), "NoSuchLicense")
	if ok {
		t.Error("LicenseText for missing identifier reported success")
	}
	want := "!!! License text for 'NoSuchLicense' could not be retrieved. !!!"
	if text != want {
		t.Errorf("fallback text = %q, want %q", text, want)
	}

	// A body that is really an HTML page counts as a failed fetch.
	if _, ok := f.LicenseText(context.Background(), "HTML-404"); ok {
		t.Error("HTML body reported as success")
	}
}

func TestContent(t *testing.T) {
	const rtfDoc = `{\rtf1\ansi{\fonttbl{\f0 Arial;}}\f0\pard This program is licensed under the MIT license.\par See LICENSE for details.\par}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/plain":
			fmt.Fprint(w, "plain license text")
		case "/html":
			fmt.Fprint(w, "<html><body>landing page</body></html>")
		case "/rtf":
			fmt.Fprint(w, rtfDoc)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := newFetcher(srv.URL, "test", nil)
	ctx := context.Background()

	if got := f.Content(ctx, srv.URL+"/plain"); got != "plain license text" {
		t.Errorf("Content(plain) = %q", got)
	}
	if got := f.Content(ctx, srv.URL+"/html"); got != "" {
		t.Errorf("Content(html) = %q, want empty", got)
	}
	if got := f.Content(ctx, srv.URL+"/missing"); got != "" {
		t.Errorf("Content(404) = %q, want empty", got)
	}
	if got := f.Content(ctx, "http://127.0.0.1:1/unreachable"); got != "" {
		t.Errorf("Content(unreachable) = %q, want empty", got)
	}

	rtf := f.Content(ctx, srv.URL+"/rtf")
	if !strings.Contains(rtf, "This program is licensed under the MIT license.") {
		t.Errorf("RTF conversion lost content: %q", rtf)
	}
	if strings.Contains(rtf, `\`) || strings.Contains(rtf, "Arial") {
		t.Errorf("RTF conversion leaked control content: %q", rtf)
	}
}

func TestLooksLikeHTML(t *testing.T) {
	tests := []struct {
		body string
		want bool
	}{
		{"<html><body>...</body></html>", true},
		{"  \n<!DOCTYPE html><html></html>", true},
		{"MIT License", false},
		{"a < b and b > c", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := looksLikeHTML(tt.body); got != tt.want {
			t.Errorf("looksLikeHTML(%q) = %v, want %v", tt.body, got, tt.want)
		}
	}
}

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"blocks become line breaks",
			"<h1>Title</h1><p>First paragraph.</p><p>Second&nbsp;paragraph.</p>",
			"Title\n\nFirst paragraph.\n\nSecond paragraph.",
		},
		{
			"entities decoded",
			"<div>Copyright &copy; 2024 &amp; beyond</div>",
			"Copyright © 2024 & beyond",
		},
		{
			"blank runs collapsed",
			"<p>a</p><br/><br/><br/><br/><p>b</p>",
			"a\n\nb",
		},
		{
			"list items",
			"<ul><li>one</li><li>two</li></ul>",
			"one\n\ntwo",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := htmlToText(tt.in); got != tt.want {
				t.Errorf("htmlToText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRTFToText(t *testing.T) {
	in := `{\rtf1\ansi\deff0{\fonttbl{\f0\fswiss Helvetica;}}{\colortbl;\red0\green0\blue0;}\f0\fs24 Copyright \'a9 2024 Example Corp.\par All rights reserved.\par}`
	got := rtfToText(in)

	for _, want := range []string{"Copyright", "2024 Example Corp.", "All rights reserved."} {
		if !strings.Contains(got, want) {
			t.Errorf("rtfToText missing %q in %q", want, got)
		}
	}
	for _, leak := range []string{"Helvetica", "rtf1", `\par`, "colortbl"} {
		if strings.Contains(got, leak) {
			t.Errorf("rtfToText leaked %q in %q", leak, got)
		}
	}
	if !strings.Contains(got, "\n") {
		t.Errorf("paragraph break lost in %q", got)
	}
}

func TestStripTagsFallback(t *testing.T) {
	got := stripTags("<p>Hello <b>world</b> &amp; friends</p>")
	if got != "Hello world & friends" {
		t.Errorf("stripTags = %q", got)
	}
}
