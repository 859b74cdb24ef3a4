package licensescan

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultRegistrationBase = "https://api.nuget.org/v3/registration5-semver2"

// NuGetRegistryClient queries the NuGet v3 registration index.
type NuGetRegistryClient struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// NewNuGetRegistryClient creates a client for the public NuGet registry.
func NewNuGetRegistryClient() *NuGetRegistryClient {
	return newNuGetRegistryClient(defaultRegistrationBase, defaultUserAgent, nil)
}

func newNuGetRegistryClient(baseURL, userAgent string, httpClient *http.Client) *NuGetRegistryClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &NuGetRegistryClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		userAgent:  userAgent,
	}
}

// QueryVersions returns every version record in the package's registration
// index, pre-release and unlisted included. Registration pages without inline
// items are fetched through their @id link. An unknown package yields an
// empty slice and no error.
func (c *NuGetRegistryClient) QueryVersions(ctx context.Context, name string) ([]VersionRecord, error) {
	u := fmt.Sprintf("%s/%s/index.json", c.baseURL, strings.ToLower(name))

	var index registrationIndex
	found, err := c.getJSON(ctx, u, &index)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	var records []VersionRecord
	for _, page := range index.Items {
		leaves := page.Items
		if len(leaves) == 0 && page.ID != "" {
			var full registrationPage
			found, err := c.getJSON(ctx, page.ID, &full)
			if err != nil {
				return nil, err
			}
			if !found {
				continue
			}
			leaves = full.Items
		}
		for _, leaf := range leaves {
			records = append(records, leaf.CatalogEntry.record())
		}
	}
	return records, nil
}

// getJSON reports found=false for a 404 so callers can distinguish an unknown
// package from a registry failure.
func (c *NuGetRegistryClient) getJSON(ctx context.Context, u string, out any) (found bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("nuget registry: %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decoding registration response: %w", err)
	}
	return true, nil
}

type registrationIndex struct {
	Items []registrationPage `json:"items"`
}

type registrationPage struct {
	ID    string             `json:"@id"`
	Items []registrationLeaf `json:"items"`
}

type registrationLeaf struct {
	CatalogEntry catalogEntry `json:"catalogEntry"`
}

type catalogEntry struct {
	ID                string `json:"id"`
	Version           string `json:"version"`
	Authors           string `json:"authors"`
	ProjectURL        string `json:"projectUrl"`
	LicenseExpression string `json:"licenseExpression"`
	LicenseFile       string `json:"licenseFile"`
	LicenseURL        string `json:"licenseUrl"`
	Listed            *bool  `json:"listed"`
}

func (e catalogEntry) record() VersionRecord {
	// Entries without a listed field are listed; unlisted ones are kept too,
	// compliance scans must see every version that can be restored.
	listed := e.Listed == nil || *e.Listed
	return VersionRecord{
		Version:           e.Version,
		Authors:           e.Authors,
		ProjectURL:        e.ProjectURL,
		LicenseExpression: e.LicenseExpression,
		LicenseFile:       e.LicenseFile,
		LicenseURL:        e.LicenseURL,
		Listed:            listed,
	}
}
