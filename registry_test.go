package licensescan

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func registrationJSON(entries ...catalogEntry) registrationIndex {
	page := registrationPage{}
	for _, e := range entries {
		page.Items = append(page.Items, registrationLeaf{CatalogEntry: e})
	}
	return registrationIndex{Items: []registrationPage{page}}
}

func TestQueryVersions(t *testing.T) {
	listed := true
	unlisted := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/newtonsoft.json/index.json" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(registrationJSON(
			catalogEntry{Version: "12.0.1", Authors: "James Newton-King", LicenseExpression: "MIT", Listed: &listed},
			catalogEntry{Version: "13.0.1", Authors: "James Newton-King", LicenseExpression: "MIT", Listed: &unlisted},
			catalogEntry{Version: "13.0.3", Authors: "James Newton-King", LicenseExpression: "MIT",
				ProjectURL: "https://www.newtonsoft.com/json"},
		))
	}))
	defer srv.Close()

	c := newNuGetRegistryClient(srv.URL, "test", nil)
	records, err := c.QueryVersions(context.Background(), "Newtonsoft.Json")
	if err != nil {
		t.Fatalf("QueryVersions error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3 (unlisted versions must be included)", len(records))
	}
	if records[1].Listed {
		t.Error("unlisted version reported as listed")
	}
	if records[2].ProjectURL != "https://www.newtonsoft.com/json" {
		t.Errorf("ProjectURL = %q", records[2].ProjectURL)
	}
	if records[0].LicenseExpression != "MIT" {
		t.Errorf("LicenseExpression = %q", records[0].LicenseExpression)
	}
}

func TestQueryVersionsFollowsExternalPages(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/paged/index.json":
			// Page without inline items must be fetched via its @id.
			fmt.Fprintf(w, `{"items":[{"@id":"%s/paged/page/0.json"}]}`, srv.URL)
		case "/paged/page/0.json":
			json.NewEncoder(w).Encode(registrationPage{
				Items: []registrationLeaf{
					{CatalogEntry: catalogEntry{Version: "1.0.0", LicenseExpression: "Apache-2.0"}},
					{CatalogEntry: catalogEntry{Version: "2.0.0", LicenseExpression: "Apache-2.0"}},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := newNuGetRegistryClient(srv.URL, "test", nil)
	records, err := c.QueryVersions(context.Background(), "Paged")
	if err != nil {
		t.Fatalf("QueryVersions error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[1].Version != "2.0.0" {
		t.Errorf("second record = %q", records[1].Version)
	}
}

func TestQueryVersionsUnknownPackage(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := newNuGetRegistryClient(srv.URL, "test", nil)
	records, err := c.QueryVersions(context.Background(), "No.Such.Package")
	if err != nil {
		t.Fatalf("404 must not be an error, got %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records for unknown package", len(records))
	}
}

func TestQueryVersionsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newNuGetRegistryClient(srv.URL, "test", nil)
	if _, err := c.QueryVersions(context.Background(), "Broken"); err == nil {
		t.Error("expected error for 500 response")
	}
}
